// Package vclock maps elapsed real time onto a compressed simulated
// time-of-day and answers schedule-window queries.
package vclock

import (
	"fmt"
	"time"
)

// Window is a half-open interval [Start, End) of time-of-day offsets
// from midnight, in simulated time.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// Contains reports whether t's time-of-day falls inside the window.
func (w Window) Contains(t time.Time) bool {
	tod := TimeOfDay(t)
	return tod >= w.Start && tod < w.End
}

// Remaining returns how much of the window is left at t, or zero when
// t is outside the window.
func (w Window) Remaining(t time.Time) time.Duration {
	if !w.Contains(t) {
		return 0
	}
	return w.End - TimeOfDay(t)
}

// TimeOfDay returns t as an offset from midnight.
func TimeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// ParseTimeOfDay parses "HH:MM" into an offset from midnight.
func ParseTimeOfDay(s string) (time.Duration, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(parsed), nil
}

// Clock converts real elapsed time into simulated time using a fixed
// compression factor. The simulated day is a fixed-length interval ending at
// endOfDay; multi-day wraparound is not modelled.
type Clock struct {
	realStart time.Time
	simStart  time.Time
	endOfDay  time.Time
	factor    float64

	now func() time.Time // real-time source, replaceable in tests
}

// New creates a clock that starts ticking immediately. factor must be
// positive; factor 1 means real time, factor 60 compresses an hour into
// a minute.
func New(simStart, endOfDay time.Time, factor float64) (*Clock, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("compression factor must be positive, got %v", factor)
	}
	if !endOfDay.After(simStart) {
		return nil, fmt.Errorf("end of day %v not after start %v", endOfDay, simStart)
	}
	return &Clock{
		realStart: time.Now(),
		simStart:  simStart,
		endOfDay:  endOfDay,
		factor:    factor,
		now:       time.Now,
	}, nil
}

// NowSimulated returns the current simulated instant:
// simStart + (realNow - realStart) * factor.
func (c *Clock) NowSimulated() time.Time {
	elapsed := c.now().Sub(c.realStart)
	return c.simStart.Add(time.Duration(float64(elapsed) * c.factor))
}

// TimeUntil returns the real-time duration to sleep until the simulated
// clock reaches target. Returns zero if target has already passed.
func (c *Clock) TimeUntil(target time.Time) time.Duration {
	simDelta := target.Sub(c.NowSimulated())
	if simDelta <= 0 {
		return 0
	}
	return time.Duration(float64(simDelta) / c.factor)
}

// InWindow reports whether the current simulated instant is inside w.
func (c *Clock) InWindow(w Window) bool {
	return w.Contains(c.NowSimulated())
}

// Done reports whether the simulated day has ended.
func (c *Clock) Done() bool {
	return !c.NowSimulated().Before(c.endOfDay)
}

// SimStart returns the simulated start instant.
func (c *Clock) SimStart() time.Time { return c.simStart }

// EndOfDay returns the simulated end instant.
func (c *Clock) EndOfDay() time.Time { return c.endOfDay }

// Factor returns the compression factor.
func (c *Clock) Factor() float64 { return c.factor }
