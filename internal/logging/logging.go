package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Attribute keys shared by every procsim logger.
const (
	ComponentKey = "component"
	TickKey      = "tick"
)

// Options selects where procsim logs go and how they look. The zero value
// logs text at info level to stderr, leaving stdout to the simulated
// console.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Writer io.Writer
}

// New builds the root logger from server or CLI settings. An unknown level
// or format is an error so a typo in procsim.yaml fails at startup instead
// of silently logging at the wrong verbosity.
func New(o Options) (*slog.Logger, error) {
	level, err := ParseLevel(o.Level)
	if err != nil {
		return nil, err
	}
	w := o.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(o.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", o.Format)
	}
}

// ParseLevel accepts the slog level names in any case, with "warning" as
// an alias for warn and an empty string meaning info. Offsets such as
// "debug-2" pass through to slog.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: want debug, info, warn or error", s)
	}
	return l, nil
}

// Component scopes a logger to a named subsystem ("kernel", "store", ...).
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(ComponentKey, name)
}

// WithTicks stamps every record with the simulated tick read from now at
// the time of the call, so kernel log lines line up with recorded
// snapshots and events.
func WithTicks(logger *slog.Logger, now func() int) *slog.Logger {
	return slog.New(&tickHandler{next: logger.Handler(), now: now})
}

type tickHandler struct {
	next slog.Handler
	now  func() int
}

func (h *tickHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *tickHandler) Handle(ctx context.Context, r slog.Record) error {
	r = r.Clone()
	r.AddAttrs(slog.Int(TickKey, h.now()))
	return h.next.Handle(ctx, r)
}

func (h *tickHandler) WithAttrs(as []slog.Attr) slog.Handler {
	return &tickHandler{next: h.next.WithAttrs(as), now: h.now}
}

func (h *tickHandler) WithGroup(name string) slog.Handler {
	return &tickHandler{next: h.next.WithGroup(name), now: h.now}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
