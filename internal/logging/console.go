package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// ConsoleHandler is a slog.Handler that prints compact, human oriented lines:
//
//	[15:04:05] starting: 'buildJS'
//	[15:04:05] WARN buildwp.yml not found or contains errors - loading defaults...
type ConsoleHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Leveler
	attrs []slog.Attr

	stamp lipgloss.Style
	warn  lipgloss.Style
	err   lipgloss.Style
	debug lipgloss.Style
	key   lipgloss.Style
	task  lipgloss.Style
}

// NewConsoleHandler creates a console handler writing to out.
func NewConsoleHandler(out io.Writer, level slog.Leveler) *ConsoleHandler {
	r := lipgloss.NewRenderer(out)
	return &ConsoleHandler{
		mu:    &sync.Mutex{},
		out:   out,
		level: level,
		stamp: r.NewStyle().Foreground(lipgloss.Color("240")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("11")),
		err:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		debug: r.NewStyle().Foreground(lipgloss.Color("12")),
		key:   r.NewStyle().Foreground(lipgloss.Color("245")),
		task:  r.NewStyle().Foreground(lipgloss.Color("14")),
	}
}

// Enabled implements slog.Handler.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	b.WriteString(h.stamp.Render(TimeStamp(r.Time)))
	b.WriteByte(' ')

	switch {
	case r.Level >= slog.LevelError:
		b.WriteString(h.err.Render("ERROR"))
		b.WriteByte(' ')
	case r.Level >= slog.LevelWarn:
		b.WriteString(h.warn.Render("WARN"))
		b.WriteByte(' ')
	case r.Level < slog.LevelInfo:
		b.WriteString(h.debug.Render("DEBUG"))
		b.WriteByte(' ')
	}

	b.WriteString(h.highlight(r.Message))

	write := func(a slog.Attr) bool {
		if a.Equal(slog.Attr{}) {
			return true
		}
		b.WriteByte(' ')
		b.WriteString(h.key.Render(a.Key + "="))
		b.WriteString(formatValue(a.Value))
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

// WithAttrs implements slog.Handler.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup implements slog.Handler. Groups are flattened on the console.
func (h *ConsoleHandler) WithGroup(string) slog.Handler {
	return h
}

// highlight colours the first single-quoted name in msg, which is how task
// lines refer to the task.
func (h *ConsoleHandler) highlight(msg string) string {
	start := strings.IndexByte(msg, '\'')
	if start < 0 {
		return msg
	}
	end := strings.IndexByte(msg[start+1:], '\'')
	if end < 0 {
		return msg
	}
	end += start + 2
	return msg[:start] + h.task.Render(msg[start:end]) + msg[end:]
}

func formatValue(v slog.Value) string {
	s := v.Resolve().String()
	if strings.ContainsAny(s, " \t\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
