package policy

import (
	"context"
	"math/rand"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
	"github.com/hochfrequenz/worksim/internal/history"
	"github.com/hochfrequenz/worksim/internal/persona"
)

// FallbackConfig tunes the weighted-random strategy.
type FallbackConfig struct {
	RepeatWindow    int // lookback over the last k history entries
	RepeatThreshold int // entries of one kind in the window that suppress it
}

// DefaultFallbackConfig returns the standard repetition tuning.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{RepeatWindow: 5, RepeatThreshold: 2}
}

// Fallback is the deterministic weighted-random strategy. It filters the
// persona's catalog to activities whose time window admits the current
// simulated instant and whose recent-repetition count is under threshold,
// then samples by cumulative weight.
type Fallback struct {
	cfg FallbackConfig
	rng *rand.Rand
}

// NewFallback creates the strategy with a seeded source so runs are
// reproducible.
func NewFallback(cfg FallbackConfig, seed int64) *Fallback {
	if cfg.RepeatWindow <= 0 {
		cfg.RepeatWindow = 5
	}
	if cfg.RepeatThreshold <= 0 {
		cfg.RepeatThreshold = 2
	}
	return &Fallback{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Decide implements Strategy. It never fails: when no activity is eligible
// it emits a short idle action.
func (f *Fallback) Decide(_ context.Context, p *persona.Persona, now time.Time, h *history.Log) (domain.ActionRequest, error) {
	type candidate struct {
		activity persona.Activity
		weight   float64
	}

	var eligible []candidate
	var total float64
	for _, a := range p.Activities {
		if a.Weight <= 0 || !a.EligibleAt(now) {
			continue
		}
		if h.CountRecent(a.Kind, f.cfg.RepeatWindow) >= f.cfg.RepeatThreshold {
			continue
		}
		w := a.Weight + hourBandBoost(a.Kind, now)
		eligible = append(eligible, candidate{activity: a, weight: w})
		total += w
	}

	if len(eligible) == 0 {
		return f.idle(now), nil
	}

	// Cumulative-weight sampling: first candidate whose running total
	// exceeds a uniform draw.
	draw := f.rng.Float64() * total
	var sum float64
	chosen := eligible[len(eligible)-1].activity
	for _, c := range eligible {
		sum += c.weight
		if draw < sum {
			chosen = c.activity
			break
		}
	}

	return f.request(chosen, now), nil
}

func (f *Fallback) request(a persona.Activity, now time.Time) domain.ActionRequest {
	target := defaultTarget(a.Kind)
	if len(a.Targets) > 0 {
		target = a.Targets[f.rng.Intn(len(a.Targets))]
	}

	duration := a.MinDuration
	if a.MaxDuration > a.MinDuration {
		duration += f.rng.Intn(a.MaxDuration - a.MinDuration + 1)
	}

	return domain.NewActionRequest(a.Kind, target, duration, reasonFor(a.Kind, target), domain.SourceFallback, now)
}

func (f *Fallback) idle(now time.Time) domain.ActionRequest {
	// Short randomized micro-break when nothing else is eligible.
	duration := 2 + f.rng.Intn(4)
	return domain.NewActionRequest(domain.KindIdle, "micro_break", duration, "no eligible activity", domain.SourceFallback, now)
}

// hourBandBoost shapes weights by simulated time of day: email early and at
// wrap-up, document work through the middle, lighter tasks around lunch.
func hourBandBoost(kind domain.ActionKind, now time.Time) float64 {
	hour := now.Hour()
	switch {
	case hour < 10:
		if kind == domain.KindEmailCheck {
			return 15
		}
	case hour < 12:
		if kind == domain.KindCreateDoc {
			return 12
		}
	case hour < 14:
		if kind == domain.KindBrowse || kind == domain.KindIdle {
			return 5
		}
	case hour < 16:
		if kind == domain.KindCreateDoc {
			return 8
		}
	default:
		if kind == domain.KindEmailCheck {
			return 10
		}
		if kind == domain.KindFileOp {
			return 8
		}
	}
	return 0
}

func defaultTarget(kind domain.ActionKind) string {
	switch kind {
	case domain.KindEmailCheck:
		return "outlook"
	case domain.KindCreateDoc:
		return "document"
	case domain.KindFileOp:
		return "create_file"
	case domain.KindDownload:
		return "" // executor picks a safe default resource
	case domain.KindIdle:
		return "micro_break"
	default:
		return ""
	}
}

func reasonFor(kind domain.ActionKind, target string) string {
	switch kind {
	case domain.KindEmailCheck:
		return "checking inbox"
	case domain.KindBrowse:
		return "researching on " + target
	case domain.KindCreateDoc:
		return "drafting a document"
	case domain.KindFileOp:
		return "organizing files"
	case domain.KindDownload:
		return "downloading a resource"
	case domain.KindLaunchApp:
		return "opening " + target
	default:
		return "taking a short break"
	}
}
