// FilePath: internal/schedule/schedule.go

// Package schedule parses device wake-schedule expressions and infers which
// scheduled slot a wake event belongs to. Two forms are accepted: the compact
// firmware form "08:00,16:00 daily" and a standard 5-field cron spec. Both
// normalize to an ordered list of times-of-day.
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	minutesPerDay = 24 * 60

	// maxSlots bounds slot expansion of pathological cron specs.
	maxSlots = 96
)

// Schedule is a parsed wake schedule: one or more times-of-day, daily.
type Schedule struct {
	raw   string
	slots []int // minutes after midnight, ascending
}

// Parse parses a wake-schedule expression.
func Parse(expr string) (*Schedule, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, fmt.Errorf("empty wake schedule")
	}

	if fields := strings.Fields(trimmed); len(fields) == 5 && !strings.Contains(fields[0], ":") {
		return parseCron(trimmed)
	}
	return parseCompact(trimmed)
}

// parseCompact handles "08:00,16:00" with an optional trailing "daily" keyword.
func parseCompact(expr string) (*Schedule, error) {
	spec := strings.TrimSpace(strings.TrimSuffix(expr, "daily"))
	var slots []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		hh, mm, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid wake time %q in schedule %q", part, expr)
		}
		hour, err := strconv.Atoi(hh)
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("invalid hour %q in schedule %q", hh, expr)
		}
		minute, err := strconv.Atoi(mm)
		if err != nil || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("invalid minute %q in schedule %q", mm, expr)
		}
		slots = append(slots, hour*60+minute)
	}
	return newSchedule(expr, slots)
}

// parseCron expands a cron spec into its times-of-day by walking one day of
// firings. Only daily-recurring specs are meaningful for wake windows.
func parseCron(spec string) (*Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron schedule %q: %w", spec, err)
	}

	day := time.Date(2000, time.January, 3, 0, 0, 0, 0, time.UTC)
	var slots []int
	for t := sched.Next(day.Add(-time.Minute)); t.Before(day.Add(24 * time.Hour)); t = sched.Next(t) {
		slots = append(slots, t.Hour()*60+t.Minute())
		if len(slots) >= maxSlots {
			break
		}
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("cron schedule %q has no daily wake slots", spec)
	}
	return newSchedule(spec, slots)
}

func newSchedule(raw string, slots []int) (*Schedule, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("schedule %q has no wake slots", raw)
	}
	sort.Ints(slots)
	deduped := slots[:1]
	for _, m := range slots[1:] {
		if m != deduped[len(deduped)-1] {
			deduped = append(deduped, m)
		}
	}
	return &Schedule{raw: raw, slots: deduped}, nil
}

// Raw returns the original expression.
func (s *Schedule) Raw() string { return s.raw }

// SlotCount returns the number of scheduled wakes per day.
func (s *Schedule) SlotCount() int { return len(s.slots) }

// Slots returns the scheduled times-of-day as minutes after midnight.
func (s *Schedule) Slots() []int {
	out := make([]int, len(s.slots))
	copy(out, s.slots)
	return out
}

// Nearest returns the 1-based index of the slot closest to t's local clock
// time, and the circular distance to it. Ties resolve to the earlier slot.
func (s *Schedule) Nearest(t time.Time) (int, time.Duration) {
	minuteOfDay := float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60.0

	bestIdx := 0
	bestDist := float64(minutesPerDay)
	for i, slot := range s.slots {
		d := minuteOfDay - float64(slot)
		if d < 0 {
			d = -d
		}
		if wrap := float64(minutesPerDay) - d; wrap < d {
			d = wrap
		}
		if d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}
	return bestIdx + 1, time.Duration(bestDist * float64(time.Minute))
}

// Tolerance returns the overage tolerance window: half the smallest gap
// between adjacent slots, never more than max (when max > 0). A single-slot
// schedule uses max directly.
func (s *Schedule) Tolerance(max time.Duration) time.Duration {
	if len(s.slots) < 2 {
		if max > 0 {
			return max
		}
		return 12 * time.Hour
	}

	minGap := minutesPerDay - s.slots[len(s.slots)-1] + s.slots[0] // wrap-around gap
	for i := 1; i < len(s.slots); i++ {
		if gap := s.slots[i] - s.slots[i-1]; gap < minGap {
			minGap = gap
		}
	}

	tol := time.Duration(minGap) * time.Minute / 2
	if max > 0 && tol > max {
		tol = max
	}
	return tol
}

// NextWake returns the first scheduled wake instant strictly after the given
// time, in its location.
func (s *Schedule) NextWake(after time.Time) time.Time {
	midnight := time.Date(after.Year(), after.Month(), after.Day(), 0, 0, 0, 0, after.Location())
	for d := 0; ; d++ {
		day := midnight.AddDate(0, 0, d)
		for _, m := range s.slots {
			if t := day.Add(time.Duration(m) * time.Minute); t.After(after) {
				return t
			}
		}
	}
}
