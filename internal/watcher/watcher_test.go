package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "firing", StateFiring.String())
}

// devTriggers mirrors the three triggers dev registers.
func devTriggers(record func(name string)) []*Trigger {
	action := func(name string) Action {
		return func(context.Context, []ChangeEvent) { record(name) }
	}
	return []*Trigger{
		NewTrigger("static", []string{"src/**"}, []string{"src/scripts/**", "src/styles/**"}, action("static")),
		NewTrigger("scripts", []string{"src/scripts/**"}, nil, action("scripts")),
		NewTrigger("styles", []string{"src/styles/**"}, nil, action("styles")),
	}
}

func TestTriggerMatches(t *testing.T) {
	triggers := devTriggers(func(string) {})
	static, scripts, styles := triggers[0], triggers[1], triggers[2]

	testCases := []struct {
		rel     string
		static  bool
		scripts bool
		styles  bool
	}{
		{"src/acme.php", true, false, false},
		{"src/includes/admin/page.php", true, false, false},
		{"src/scripts/index/main.js", false, true, false},
		{"src/styles/partials/base.css", false, false, true},
		{"src/scriptsx/file.js", true, false, false},
		{"package.json", false, false, false},
		{"dist/acme.php", false, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.rel, func(t *testing.T) {
			assert.Equal(t, tc.static, static.Matches(tc.rel), "static")
			assert.Equal(t, tc.scripts, scripts.Matches(tc.rel), "scripts")
			assert.Equal(t, tc.styles, styles.Matches(tc.rel), "styles")
		})
	}
}

func TestDebouncerCollapsesBurst(t *testing.T) {
	var (
		fired    atomic.Int32
		received []ChangeEvent
		firedAt  time.Time
		mu       sync.Mutex
	)
	d := NewDebouncer(100*time.Millisecond, func(events []ChangeEvent) {
		mu.Lock()
		received = events
		firedAt = time.Now()
		mu.Unlock()
		fired.Add(1)
	})

	assert.Equal(t, StateIdle, d.State())

	var last time.Time
	for i := 0; i < 5; i++ {
		d.Add(ChangeEvent{Type: EventTypeModified, Path: "src/a.php"})
		last = time.Now()
		assert.Equal(t, StatePending, d.State())
		time.Sleep(30 * time.Millisecond)
	}
	d.Add(ChangeEvent{Type: EventTypeCreated, Path: "src/b.php"})
	last = time.Now()

	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load(), "one fire per burst")

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, firedAt.Sub(last), 100*time.Millisecond, "window is timed from the last event")
	require.Len(t, received, 2, "events are deduplicated by path")
	assert.Equal(t, "src/a.php", received[0].Path)
	assert.Equal(t, "src/b.php", received[1].Path)
}

func TestDebouncerSeparateBursts(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func([]ChangeEvent) { fired.Add(1) })

	d.Add(ChangeEvent{Path: "a"})
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	d.Add(ChangeEvent{Path: "a"})
	require.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return d.State() == StateIdle }, time.Second, 5*time.Millisecond)
}

func TestDebouncerOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	var running, peak atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func([]ChangeEvent) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
	})

	d.Add(ChangeEvent{Path: "a"})
	require.Eventually(t, func() bool { return d.State() == StateFiring }, time.Second, 5*time.Millisecond)

	d.Add(ChangeEvent{Path: "b"})
	assert.Equal(t, StatePending, d.State())
	require.Eventually(t, func() bool { return running.Load() == 2 }, time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return d.State() == StateIdle }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), peak.Load(), "runs are not serialized")
}

func TestDebouncerStop(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func([]ChangeEvent) { fired.Add(1) })

	d.Add(ChangeEvent{Path: "a"})
	d.Stop()
	assert.Equal(t, StateIdle, d.State())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestFileWatcherDispatchRoutesToTriggers(t *testing.T) {
	root := t.TempDir()
	fw, err := NewFileWatcher(root, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	var mu sync.Mutex
	counts := map[string]int{}
	for _, trig := range devTriggers(func(name string) {
		mu.Lock()
		counts[name]++
		mu.Unlock()
	}) {
		fw.AddTrigger(trig)
	}
	require.NoError(t, fw.Start(context.Background()))

	for i := 0; i < 3; i++ {
		fw.Dispatch(ChangeEvent{Type: EventTypeModified, Path: filepath.Join(root, "src", "scripts", "index", "main.js")})
	}
	fw.Dispatch(ChangeEvent{Type: EventTypeModified, Path: filepath.Join(root, "src", "acme.php")})
	fw.Dispatch(ChangeEvent{Type: EventTypeModified, Path: filepath.Join(root, "README.md")})
	fw.Dispatch(ChangeEvent{Type: EventTypeModified, Path: "/elsewhere/file.php"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["scripts"] == 1 && counts["static"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"scripts": 1, "static": 1}, counts)
}

func TestFileWatcherEndToEnd(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "styles", "index"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "acme.php"), []byte("initial"), 0o644))

	fw, err := NewFileWatcher(root, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()
	fw.AddFilter(NoTempFilter)

	events := make(chan []ChangeEvent, 10)
	var styles atomic.Int32
	fw.AddTrigger(NewTrigger("static", []string{"src/**"}, []string{"src/styles/**"},
		func(_ context.Context, evs []ChangeEvent) { events <- evs }))
	fw.AddTrigger(NewTrigger("styles", []string{"src/styles/**"}, nil,
		func(context.Context, []ChangeEvent) { styles.Add(1) }))

	require.NoError(t, fw.AddRecursive(filepath.Join(root, "src")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	// Nothing fires for the state present before watching began.
	select {
	case <-events:
		t.Fatal("initial state must not fire")
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "acme.php"), []byte("changed"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "acme.php~"), []byte("backup"), 0o644))

	select {
	case evs := <-events:
		require.NotEmpty(t, evs)
		for _, ev := range evs {
			assert.Equal(t, "src/acme.php", ev.Rel)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("static trigger did not fire")
	}

	// Directories created after watching began are picked up.
	newDir := filepath.Join(root, "src", "includes")
	require.NoError(t, os.MkdirAll(newDir, 0o755))
	select {
	case <-events:
	case <-time.After(3 * time.Second):
		t.Fatal("directory creation did not fire")
	}
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(newDir, "admin.php"), []byte("x"), 0o644))
	select {
	case evs := <-events:
		assert.Equal(t, "src/includes/admin.php", evs[len(evs)-1].Rel)
	case <-time.After(3 * time.Second):
		t.Fatal("file in new directory did not fire")
	}

	assert.Equal(t, int32(0), styles.Load())
}

func TestNewFileWatcherValidation(t *testing.T) {
	_, err := NewFileWatcher("/non/existent/path", 0, nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = NewFileWatcher(file, 0, nil)
	assert.Error(t, err)

	fw, err := NewFileWatcher(t.TempDir(), 0, nil)
	require.NoError(t, err)
	defer fw.Stop()
	assert.Equal(t, DefaultDelay, fw.delay)
	assert.Error(t, fw.AddRecursive("/non/existent/path"))
}

func TestAddRecursiveSkipsFiltered(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"src/a/b", "src/node_modules/pkg", ".git/objects"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o755))
	}

	fw, err := NewFileWatcher(root, 0, nil)
	require.NoError(t, err)
	defer fw.Stop()
	fw.AddFilter(NoGitFilter)
	fw.AddFilter(NoNodeModulesFilter)

	require.NoError(t, fw.AddRecursive(root))

	watched := fw.watcher.WatchList()
	assert.Contains(t, watched, filepath.Join(root, "src", "a", "b"))
	assert.NotContains(t, watched, filepath.Join(root, "src", "node_modules"))
	assert.NotContains(t, watched, filepath.Join(root, ".git"))
}

func TestFilters(t *testing.T) {
	testCases := []struct {
		name   string
		filter FileFilter
		path   string
		want   bool
	}{
		{"git dir", NoGitFilter, "/p/.git/HEAD", false},
		{"git root", NoGitFilter, "/p/.git", false},
		{"not git", NoGitFilter, "/p/src/gitignore.php", true},
		{"swap", NoTempFilter, "/p/src/.acme.php.swp", false},
		{"backup", NoTempFilter, "/p/src/acme.php~", false},
		{"emacs lock", NoTempFilter, "/p/src/.#acme.php", false},
		{"regular", NoTempFilter, "/p/src/acme.php", true},
		{"node_modules", NoNodeModulesFilter, "/p/node_modules/x/index.js", false},
		{"source", NoNodeModulesFilter, "/p/src/modules/x.js", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter(tc.path))
		})
	}
}
