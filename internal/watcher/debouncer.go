package watcher

import (
	"context"
	"sync"
	"time"
)

// State is a debouncer state.
type State int

const (
	// StateIdle has no pending events and no running action.
	StateIdle State = iota
	// StatePending holds events waiting for the window to elapse.
	StatePending
	// StateFiring has at least one action running and nothing pending.
	StateFiring
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateFiring:
		return "firing"
	default:
		return "unknown"
	}
}

// Debouncer groups rapid file changes together. Each Add restarts the
// window; when it elapses with no further Add, the collected events are
// handed to fire on a new goroutine. Runs of fire may overlap.
type Debouncer struct {
	delay      time.Duration
	fire       func(events []ChangeEvent)
	timer      *time.Timer
	pending    []ChangeEvent
	state      State
	running    int
	generation uint64
	mutex      sync.Mutex
}

// NewDebouncer creates a debouncer calling fire after delay of quiet.
func NewDebouncer(delay time.Duration, fire func(events []ChangeEvent)) *Debouncer {
	return &Debouncer{
		delay:   delay,
		fire:    fire,
		pending: make([]ChangeEvent, 0),
	}
}

// Add records event and restarts the window.
func (d *Debouncer) Add(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)
	d.state = StatePending
	d.generation++

	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.generation
	d.timer = time.AfterFunc(d.delay, func() {
		d.flush(gen)
	})
}

// State returns the current state.
func (d *Debouncer) State() State {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.state
}

// Stop cancels a pending window. Pending events are dropped.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.generation++
	d.pending = d.pending[:0]
	if d.state == StatePending {
		d.state = StateIdle
		if d.running > 0 {
			d.state = StateFiring
		}
	}
}

func (d *Debouncer) flush(gen uint64) {
	d.mutex.Lock()
	// A timer that fired while Add was replacing it is stale.
	if gen != d.generation || len(d.pending) == 0 {
		d.mutex.Unlock()
		return
	}

	events := dedupe(d.pending)
	d.pending = make([]ChangeEvent, 0)
	d.state = StateFiring
	d.running++
	d.mutex.Unlock()

	go func() {
		defer d.done()
		d.fire(events)
	}()
}

func (d *Debouncer) done() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.running--
	if d.running == 0 && d.state == StateFiring {
		d.state = StateIdle
	}
}

// dedupe keeps the last event per path, in first-seen order.
func dedupe(events []ChangeEvent) []ChangeEvent {
	index := make(map[string]int, len(events))
	out := make([]ChangeEvent, 0, len(events))
	for _, event := range events {
		if i, ok := index[event.Path]; ok {
			out[i] = event
			continue
		}
		index[event.Path] = len(out)
		out = append(out, event)
	}
	return out
}

// Action is run when a trigger fires.
type Action func(ctx context.Context, events []ChangeEvent)

// Trigger pairs a set of path globs with the stage action they re-run.
type Trigger struct {
	Name string
	// Patterns are doublestar globs relative to the watch root.
	Patterns []string
	// Ignore excludes paths that Patterns would otherwise match.
	Ignore []string
	Action Action

	debouncer *Debouncer
}

// NewTrigger creates a trigger.
func NewTrigger(name string, patterns, ignore []string, action Action) *Trigger {
	return &Trigger{Name: name, Patterns: patterns, Ignore: ignore, Action: action}
}

// Matches reports whether rel (slash separated, relative to the watch root)
// should fire this trigger.
func (t *Trigger) Matches(rel string) bool {
	return matchAny(t.Patterns, rel) && !matchAny(t.Ignore, rel)
}

// State returns the trigger's debouncer state, idle before registration.
func (t *Trigger) State() State {
	if t.debouncer == nil {
		return StateIdle
	}
	return t.debouncer.State()
}
