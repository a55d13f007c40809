package sim

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
)

// Stats aggregates the outcome of one run. Record and Finish are called
// from the loop goroutine only; read after Run returns.
type Stats struct {
	Status   domain.RunStatus
	SimStart time.Time
	SimEnd   time.Time

	RealStart time.Time
	RealEnd   time.Time

	ByKind   map[domain.ActionKind]int
	BySource map[string]int

	Succeeded int
	Failed    int
}

// NewStats creates stats for a run spanning the given simulated window.
func NewStats(simStart, simEnd time.Time) *Stats {
	return &Stats{
		Status:    domain.RunRunning,
		SimStart:  simStart,
		SimEnd:    simEnd,
		RealStart: time.Now(),
		ByKind:    make(map[domain.ActionKind]int),
		BySource:  make(map[string]int),
	}
}

// Record counts one completed cycle.
func (s *Stats) Record(e domain.HistoryEntry) {
	s.ByKind[e.Request.Kind]++
	s.BySource[e.Request.Source]++
	if e.Result.Success {
		s.Succeeded++
	} else {
		s.Failed++
	}
}

// Finish seals the stats with a terminal status.
func (s *Stats) Finish(status domain.RunStatus) {
	s.Status = status
	s.RealEnd = time.Now()
}

// Total returns the number of recorded cycles.
func (s *Stats) Total() int {
	return s.Succeeded + s.Failed
}

// SuccessRate returns the fraction of cycles whose action succeeded, in
// [0, 1]. A run with no cycles reports 1.
func (s *Stats) SuccessRate() float64 {
	if s.Total() == 0 {
		return 1
	}
	return float64(s.Succeeded) / float64(s.Total())
}

// RealDuration returns wall-clock time the run took.
func (s *Stats) RealDuration() time.Duration {
	end := s.RealEnd
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.RealStart)
}

// OneLine renders a compact single-line summary for logs.
func (s *Stats) OneLine() string {
	return fmt.Sprintf("%d actions (%d failed) in %s, %.0f%% success",
		s.Total(), s.Failed, s.RealDuration().Round(time.Second), s.SuccessRate()*100)
}

// Breakdown renders per-kind counts sorted by frequency, most common first.
func (s *Stats) Breakdown() string {
	type kindCount struct {
		kind  domain.ActionKind
		count int
	}
	kinds := make([]kindCount, 0, len(s.ByKind))
	for k, c := range s.ByKind {
		kinds = append(kinds, kindCount{k, c})
	}
	sort.Slice(kinds, func(i, j int) bool {
		if kinds[i].count != kinds[j].count {
			return kinds[i].count > kinds[j].count
		}
		return kinds[i].kind < kinds[j].kind
	})

	var b strings.Builder
	for _, kc := range kinds {
		fmt.Fprintf(&b, "  %-16s %d\n", kc.kind, kc.count)
	}
	return b.String()
}
