// Package timer drives the simulated clock: it raises a timer interrupt on
// the kernel at a fixed wall-clock interval.
package timer

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Clock is the kernel's timer interrupt.
type Clock interface {
	Tick()
	Ticks() int
}

// Hook runs after every tick with the new tick count.
type Hook func(ctx context.Context, tick int) error

// Config holds timer configuration.
type Config struct {
	Interval time.Duration
	MaxTicks int // stop after this many ticks (0 = run until stopped)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: 10 * time.Millisecond}
}

// Loop ticks the clock on a wall-clock ticker.
type Loop struct {
	clock  Clock
	config Config
	hooks  []Hook
	logger *slog.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewLoop creates a new timer loop.
func NewLoop(clock Clock, cfg Config, logger *slog.Logger, hooks ...Hook) *Loop {
	return &Loop{
		clock:  clock,
		config: cfg,
		hooks:  hooks,
		logger: logger.With("component", "timer"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins ticking. Blocks until ctx is cancelled, Stop is called or
// MaxTicks is reached.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("timer started", "interval", l.config.Interval, "max_ticks", l.config.MaxTicks)
	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()
	defer close(l.doneCh)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("timer stopping (context cancelled)", "ticks", l.clock.Ticks())
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("timer stopping (stop called)", "ticks", l.clock.Ticks())
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
			if l.config.MaxTicks > 0 && l.clock.Ticks() >= l.config.MaxTicks {
				l.logger.Info("timer stopping (tick limit)", "ticks", l.clock.Ticks())
				return nil
			}
		}
	}
}

// Stop shuts the timer down and waits for the current tick to finish.
func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// Tick raises one timer interrupt and runs the hooks.
func (l *Loop) Tick(ctx context.Context) error {
	l.clock.Tick()
	now := l.clock.Ticks()
	for i, h := range l.hooks {
		if err := h(ctx, now); err != nil {
			return fmt.Errorf("hook %d at tick %d: %w", i, now, err)
		}
	}
	return nil
}
