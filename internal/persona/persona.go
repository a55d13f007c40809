// Package persona loads and validates worker behavioral profiles.
// A persona describes a simulated worker's schedule and weighted activity
// catalog; it is loaded once at startup and immutable afterwards.
package persona

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/worksim/internal/domain"
	"github.com/hochfrequenz/worksim/internal/vclock"
)

// defaultBreakLength is the length of a coffee break declared as a bare
// "HH:MM" start time.
const defaultBreakLength = 15 * time.Minute

// Schedule describes the working day in simulated time-of-day offsets.
type Schedule struct {
	WorkStart    time.Duration
	WorkEnd      time.Duration
	Lunch        vclock.Window
	CoffeeBreaks []vclock.Window
}

// WorkHours returns the working day as a window.
func (s Schedule) WorkHours() vclock.Window {
	return vclock.Window{Start: s.WorkStart, End: s.WorkEnd}
}

// InBreak reports whether t falls inside the lunch window or any coffee
// break, and returns the matching window.
func (s Schedule) InBreak(t time.Time) (vclock.Window, bool) {
	if s.Lunch.Contains(t) {
		return s.Lunch, true
	}
	for _, b := range s.CoffeeBreaks {
		if b.Contains(t) {
			return b, true
		}
	}
	return vclock.Window{}, false
}

// Activity is one entry in the weighted activity catalog.
type Activity struct {
	Kind        domain.ActionKind
	Weight      float64
	Windows     []vclock.Window // empty means any time within work hours
	Targets     []string
	MinDuration int // simulated minutes
	MaxDuration int
}

// EligibleAt reports whether the activity's time windows admit t.
func (a Activity) EligibleAt(t time.Time) bool {
	if len(a.Windows) == 0 {
		return true
	}
	for _, w := range a.Windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// Persona is a validated worker profile.
type Persona struct {
	Name          string
	Role          string
	Schedule      Schedule
	Activities    []Activity
	Applications  []string
	Sites         []string
	DocumentTasks []string
	WorkerID      string // namespaces the remote working directory
}

// AllowedKinds returns the set of action kinds this persona may perform.
// Idle is always allowed.
func (p *Persona) AllowedKinds() map[domain.ActionKind]bool {
	kinds := map[domain.ActionKind]bool{domain.KindIdle: true}
	for _, a := range p.Activities {
		kinds[a.Kind] = true
	}
	return kinds
}

// Validate checks the persona invariants: a non-empty identity, a coherent
// schedule, and a catalog with at least one positively weighted activity.
func (p *Persona) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("persona name is required")
	}
	if p.Role == "" {
		return fmt.Errorf("persona role is required")
	}
	if p.Schedule.WorkStart >= p.Schedule.WorkEnd {
		return fmt.Errorf("work start %v must be before work end %v", p.Schedule.WorkStart, p.Schedule.WorkEnd)
	}
	if len(p.Activities) == 0 {
		return fmt.Errorf("persona has no activities")
	}

	positive := false
	for i, a := range p.Activities {
		if !domain.ValidKind(a.Kind) {
			return fmt.Errorf("activity %d: unknown action kind %q", i, a.Kind)
		}
		if a.Weight < 0 {
			return fmt.Errorf("activity %d (%s): negative weight %v", i, a.Kind, a.Weight)
		}
		if a.Weight > 0 {
			positive = true
		}
		if a.MinDuration > a.MaxDuration {
			return fmt.Errorf("activity %d (%s): min duration %d exceeds max %d", i, a.Kind, a.MinDuration, a.MaxDuration)
		}
		for _, w := range a.Windows {
			if w.Start >= w.End {
				return fmt.Errorf("activity %d (%s): empty window %v-%v", i, a.Kind, w.Start, w.End)
			}
		}
	}
	if !positive {
		return fmt.Errorf("persona needs at least one positively weighted activity")
	}
	return nil
}

// yamlPersona mirrors the on-disk document schema.
type yamlPersona struct {
	Name         string `yaml:"name"`
	Role         string `yaml:"role"`
	WorkerID     string `yaml:"worker_id"`
	WorkSchedule struct {
		Start string `yaml:"start"`
		End   string `yaml:"end"`
		Lunch struct {
			Start string `yaml:"start"`
			End   string `yaml:"end"`
		} `yaml:"lunch"`
		CoffeeBreaks []string `yaml:"coffee_breaks"`
	} `yaml:"work_schedule"`
	Applications  []string       `yaml:"applications"`
	Sites         []string       `yaml:"sites"`
	DocumentTasks []string       `yaml:"document_tasks"`
	Activities    []yamlActivity `yaml:"activities"`
}

type yamlActivity struct {
	Kind    string   `yaml:"kind"`
	Weight  float64  `yaml:"weight"`
	Targets []string `yaml:"targets"`
	Windows []struct {
		Start string `yaml:"start"`
		End   string `yaml:"end"`
	} `yaml:"windows"`
	MinDuration int `yaml:"min_duration_minutes"`
	MaxDuration int `yaml:"max_duration_minutes"`
}

// Load reads and validates a persona YAML document.
func Load(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading persona: %w", err)
	}
	return Parse(data)
}

// Parse builds a validated persona from YAML bytes.
func Parse(data []byte) (*Persona, error) {
	var raw yamlPersona
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing persona: %w", err)
	}

	p := &Persona{
		Name:          raw.Name,
		Role:          raw.Role,
		WorkerID:      raw.WorkerID,
		Applications:  raw.Applications,
		Sites:         raw.Sites,
		DocumentTasks: raw.DocumentTasks,
	}
	if p.WorkerID == "" {
		p.WorkerID = "default"
	}

	var err error
	if p.Schedule.WorkStart, err = vclock.ParseTimeOfDay(raw.WorkSchedule.Start); err != nil {
		return nil, fmt.Errorf("work_schedule.start: %w", err)
	}
	if p.Schedule.WorkEnd, err = vclock.ParseTimeOfDay(raw.WorkSchedule.End); err != nil {
		return nil, fmt.Errorf("work_schedule.end: %w", err)
	}
	if raw.WorkSchedule.Lunch.Start != "" {
		lunchStart, err := vclock.ParseTimeOfDay(raw.WorkSchedule.Lunch.Start)
		if err != nil {
			return nil, fmt.Errorf("work_schedule.lunch.start: %w", err)
		}
		lunchEnd, err := vclock.ParseTimeOfDay(raw.WorkSchedule.Lunch.End)
		if err != nil {
			return nil, fmt.Errorf("work_schedule.lunch.end: %w", err)
		}
		p.Schedule.Lunch = vclock.Window{Start: lunchStart, End: lunchEnd}
	}
	for _, b := range raw.WorkSchedule.CoffeeBreaks {
		start, err := vclock.ParseTimeOfDay(b)
		if err != nil {
			return nil, fmt.Errorf("work_schedule.coffee_breaks: %w", err)
		}
		p.Schedule.CoffeeBreaks = append(p.Schedule.CoffeeBreaks, vclock.Window{
			Start: start,
			End:   start + defaultBreakLength,
		})
	}

	for i, ra := range raw.Activities {
		a := Activity{
			Kind:        domain.ActionKind(ra.Kind),
			Weight:      ra.Weight,
			Targets:     ra.Targets,
			MinDuration: ra.MinDuration,
			MaxDuration: ra.MaxDuration,
		}
		if a.MinDuration == 0 {
			a.MinDuration = 2
		}
		if a.MaxDuration == 0 {
			a.MaxDuration = a.MinDuration + 8
		}
		for _, rw := range ra.Windows {
			start, err := vclock.ParseTimeOfDay(rw.Start)
			if err != nil {
				return nil, fmt.Errorf("activity %d window start: %w", i, err)
			}
			end, err := vclock.ParseTimeOfDay(rw.End)
			if err != nil {
				return nil, fmt.Errorf("activity %d window end: %w", i, err)
			}
			a.Windows = append(a.Windows, vclock.Window{Start: start, End: end})
		}
		p.Activities = append(p.Activities, a)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
