// Package sim drives a full simulated workday: it repeatedly asks the
// decision policy for the next action, hands it to the transport, records
// the outcome, and sleeps the compressed real-time equivalent of the
// action's simulated duration.
package sim

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
	"github.com/hochfrequenz/worksim/internal/history"
	"github.com/hochfrequenz/worksim/internal/persona"
	"github.com/hochfrequenz/worksim/internal/policy"
	"github.com/hochfrequenz/worksim/internal/vclock"
)

// Transport delivers one action and reports its outcome. Implementations
// must return a result for every request, folding transport failures into
// failed results rather than panicking or blocking forever.
type Transport interface {
	Send(ctx context.Context, req domain.ActionRequest) domain.ActionResult
	Close() error
}

// Config assembles the collaborators of one run.
type Config struct {
	Persona   *persona.Persona
	Clock     *vclock.Clock
	Strategy  policy.Strategy
	Transport Transport
	History   *history.Log

	// OnEntry, when set, observes every recorded cycle. Used for run
	// persistence; errors there must not stall the day.
	OnEntry func(domain.HistoryEntry)
}

// Loop runs one persona through one simulated workday.
type Loop struct {
	cfg Config
}

// New validates the wiring and creates a loop.
func New(cfg Config) (*Loop, error) {
	if cfg.Persona == nil {
		return nil, fmt.Errorf("persona is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("strategy is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.History == nil {
		cfg.History = history.New()
	}
	return &Loop{cfg: cfg}, nil
}

// Run executes decision cycles until the simulated day ends or ctx is
// cancelled. An in-flight action is always dispatched and recorded before
// cancellation is honored, so the returned stats never miss a sent action.
func (l *Loop) Run(ctx context.Context) (*Stats, error) {
	clock := l.cfg.Clock
	stats := NewStats(clock.SimStart(), clock.EndOfDay())

	log.Printf("starting workday for %s (%s): %s to %s at %gx compression",
		l.cfg.Persona.Name, l.cfg.Persona.Role,
		clock.SimStart().Format("15:04"), clock.EndOfDay().Format("15:04"), clock.Factor())

	for !clock.Done() {
		if err := ctx.Err(); err != nil {
			stats.Finish(domain.RunAborted)
			return stats, err
		}

		now := clock.NowSimulated()
		req, err := l.cfg.Strategy.Decide(ctx, l.cfg.Persona, now, l.cfg.History)
		if err != nil {
			log.Printf("decision at %s failed: %v", now.Format("15:04"), err)
			if err := l.sleep(ctx, clock.TimeUntil(now.Add(time.Minute))); err != nil {
				stats.Finish(domain.RunAborted)
				return stats, err
			}
			continue
		}

		log.Printf("[%s] %s %s (%d min, %s)", now.Format("15:04"),
			req.Kind, req.Target, req.DurationMin, req.Source)

		result := l.cfg.Transport.Send(ctx, req)
		if !result.Success {
			log.Printf("[%s] %s failed: %s", now.Format("15:04"), req.Kind, result.Error)
		}

		entry := domain.HistoryEntry{Request: req, Result: result, SimTime: now}
		if err := l.cfg.History.Append(entry); err != nil {
			log.Printf("history append: %v", err)
		}
		stats.Record(entry)
		if l.cfg.OnEntry != nil {
			l.cfg.OnEntry(entry)
		}

		wake := now.Add(time.Duration(req.DurationMin) * time.Minute)
		if wake.After(clock.EndOfDay()) {
			wake = clock.EndOfDay()
		}
		if err := l.sleep(ctx, clock.TimeUntil(wake)); err != nil {
			stats.Finish(domain.RunAborted)
			return stats, err
		}
	}

	stats.Finish(domain.RunCompleted)
	log.Printf("workday complete: %s", stats.OneLine())
	return stats, nil
}

// sleep blocks for d real time, waking early on cancellation.
func (l *Loop) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
