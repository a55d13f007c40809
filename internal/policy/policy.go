// Package policy decides the next worker action. Two strategies share one
// contract: an advisory strategy that consults an external text-generation
// service, and a deterministic weighted-random fallback. A composite chains
// them with automatic per-cycle failover.
package policy

import (
	"context"
	"log"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
	"github.com/hochfrequenz/worksim/internal/history"
	"github.com/hochfrequenz/worksim/internal/persona"
)

// Strategy decides the next action from persona data, the current simulated
// instant, and recent history.
type Strategy interface {
	Decide(ctx context.Context, p *persona.Persona, now time.Time, h *history.Log) (domain.ActionRequest, error)
}

// CompositeConfig tunes the advisory/fallback composition.
type CompositeConfig struct {
	AdvisoryTimeout time.Duration // per-call bound on the advisory service
	AdvisoryRetries int           // extra attempts after the first (at most 1)
	CoolDown        time.Duration // real-time pause after an advisory failure
}

// DefaultCompositeConfig returns the standard composition tuning.
func DefaultCompositeConfig() CompositeConfig {
	return CompositeConfig{
		AdvisoryTimeout: 5 * time.Second,
		AdvisoryRetries: 1,
		CoolDown:        30 * time.Second,
	}
}

// Composite tries the advisory strategy first and falls back to the
// heuristic strategy for the cycle on any advisory failure. During break
// windows both strategies are short-circuited by a fixed idle action.
type Composite struct {
	advisory Strategy // nil disables the advisory path entirely
	fallback Strategy
	cfg      CompositeConfig

	lastAdvisoryFailure time.Time
	realNow             func() time.Time // real-time source, replaceable in tests
}

// NewComposite builds the composed policy. advisory may be nil.
func NewComposite(advisory, fallback Strategy, cfg CompositeConfig) *Composite {
	if cfg.AdvisoryRetries > 1 {
		cfg.AdvisoryRetries = 1
	}
	return &Composite{
		advisory: advisory,
		fallback: fallback,
		cfg:      cfg,
		realNow:  time.Now,
	}
}

// Decide implements Strategy.
func (c *Composite) Decide(ctx context.Context, p *persona.Persona, now time.Time, h *history.Log) (domain.ActionRequest, error) {
	// Breaks short-circuit both strategies. The idle duration never
	// extends past the end of the window.
	if window, ok := p.Schedule.InBreak(now); ok {
		// A sub-minute remainder falls through to the strategies rather
		// than rounding the idle past the window end.
		if minutes := int(window.Remaining(now) / time.Minute); minutes >= 1 {
			return domain.NewActionRequest(domain.KindIdle, "break", minutes, "scheduled break", domain.SourceBreak, now), nil
		}
	}

	if c.advisory != nil && !c.coolingDown() {
		attempts := 1 + c.cfg.AdvisoryRetries
		for i := 0; i < attempts; i++ {
			req, err := c.decideAdvisory(ctx, p, now, h)
			if err == nil {
				return req, nil
			}
			log.Printf("advisory decision failed (attempt %d/%d): %v", i+1, attempts, err)
		}
		// Failure is local to this cycle; the cool-down only stops us
		// hammering a failing service.
		c.lastAdvisoryFailure = c.realNow()
	}

	return c.fallback.Decide(ctx, p, now, h)
}

func (c *Composite) decideAdvisory(ctx context.Context, p *persona.Persona, now time.Time, h *history.Log) (domain.ActionRequest, error) {
	if c.cfg.AdvisoryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AdvisoryTimeout)
		defer cancel()
	}
	return c.advisory.Decide(ctx, p, now, h)
}

func (c *Composite) coolingDown() bool {
	if c.cfg.CoolDown <= 0 || c.lastAdvisoryFailure.IsZero() {
		return false
	}
	return c.realNow().Sub(c.lastAdvisoryFailure) < c.cfg.CoolDown
}
