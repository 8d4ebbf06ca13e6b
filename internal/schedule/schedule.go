// Package schedule computes recurrence occurrences for medication
// schedules. Everything here is pure: callers supply the query instant and
// the engine persists the results.
package schedule

import (
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/apperr"
	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

// Validate checks kind-specific field ranges and the cross-entity rule that
// an enabled schedule requires an active medication.
func Validate(s domain.Schedule, medicationActive bool) error {
	if s.MedicationID == "" {
		return apperr.New(apperr.EmptyField, "medication_id", "schedule must belong to a medication")
	}
	if _, err := zoneclock.Canonical(s.ReferenceZone); err != nil {
		return err
	}
	switch s.Kind {
	case domain.ScheduleTimeOfDay:
		if err := s.TimeOfDay.Validate(); err != nil {
			return err
		}
		if err := s.DayMask.Validate(); err != nil {
			return err
		}
	case domain.ScheduleInterval:
		if s.Interval <= 0 {
			return apperr.New(apperr.InvalidRange, "interval", "interval must be positive")
		}
		if s.Anchor == nil {
			return apperr.New(apperr.EmptyField, "anchor", "interval schedule requires an anchor instant")
		}
	case domain.ScheduleAsNeeded:
		// no recurrence fields
	default:
		return apperr.Newf(apperr.InvalidValue, "kind", "unknown schedule kind %q", s.Kind)
	}
	if s.Enabled && !medicationActive {
		return apperr.New(apperr.BusinessRuleViolation, "enabled", "schedule cannot be enabled while its medication is inactive")
	}
	return nil
}

// DueOn reports whether a time-of-day schedule fires on the calendar date,
// evaluated in the schedule's reference zone.
func DueOn(s domain.Schedule, date zoneclock.CivilDate) bool {
	if !s.Enabled || s.Kind != domain.ScheduleTimeOfDay {
		return false
	}
	return s.DayMask.On(date.Weekday())
}

// ScheduledInstant resolves the schedule's civil time on the date to an
// absolute instant using the default gap/fold policy, so a dose in a
// spring-forward gap still lands exactly once on the affected day.
func ScheduledInstant(s domain.Schedule, date zoneclock.CivilDate) (time.Time, zoneclock.Resolution, error) {
	return zoneclock.ToInstant(zoneclock.Of(date, s.TimeOfDay), s.ReferenceZone, zoneclock.DefaultResolve)
}

// NextOccurrence returns the first occurrence strictly after the query
// instant, or nil when the schedule can never fire (as-needed kind, or a
// disabled schedule).
func NextOccurrence(s domain.Schedule, after time.Time) (*time.Time, error) {
	if !s.Enabled {
		return nil, nil
	}
	switch s.Kind {
	case domain.ScheduleAsNeeded:
		return nil, nil
	case domain.ScheduleInterval:
		return nextIntervalOccurrence(s, after)
	case domain.ScheduleTimeOfDay:
		return nextTimeOfDayOccurrence(s, after)
	default:
		return nil, apperr.Newf(apperr.InvalidValue, "kind", "unknown schedule kind %q", s.Kind)
	}
}

// The day mask repeats weekly. The day-0 occurrence may already be in the
// past, so the scan covers the query date plus seven more days; day 7 is
// the same weekday one week later.
func nextTimeOfDayOccurrence(s domain.Schedule, after time.Time) (*time.Time, error) {
	civil, err := zoneclock.ToCivil(after, s.ReferenceZone)
	if err != nil {
		return nil, err
	}
	start := civil.Date()
	for i := 0; i <= 7; i++ {
		date := start.AddDays(i)
		if !DueOn(s, date) {
			continue
		}
		instant, _, err := ScheduledInstant(s, date)
		if err != nil {
			return nil, err
		}
		// The day-0 candidate may already be in the past.
		if !instant.After(after) {
			continue
		}
		return &instant, nil
	}
	return nil, nil
}

// Interval recurrence is pure duration arithmetic on the anchor and is
// independent of any zone.
func nextIntervalOccurrence(s domain.Schedule, after time.Time) (*time.Time, error) {
	if s.Interval <= 0 {
		return nil, apperr.New(apperr.InvalidRange, "interval", "interval must be positive")
	}
	if s.Anchor == nil {
		return nil, apperr.New(apperr.EmptyField, "anchor", "interval schedule requires an anchor instant")
	}
	anchor := *s.Anchor
	n := after.Sub(anchor) / s.Interval
	cand := anchor.Add(n * s.Interval)
	for !cand.After(after) {
		cand = cand.Add(s.Interval)
	}
	return &cand, nil
}

// OccurrencesWithin lists interval-schedule occurrences in (from, to].
// Time-of-day schedules fire at most once per date and are handled by
// ScheduledInstant instead.
func OccurrencesWithin(s domain.Schedule, from, to time.Time) ([]time.Time, error) {
	if s.Kind != domain.ScheduleInterval || !s.Enabled {
		return nil, nil
	}
	var out []time.Time
	cursor := from
	for {
		next, err := nextIntervalOccurrence(s, cursor)
		if err != nil {
			return nil, err
		}
		if next.After(to) {
			return out, nil
		}
		out = append(out, *next)
		cursor = *next
	}
}

// Overdue reports whether a pending dose's scheduled instant has passed.
func Overdue(r domain.DoseRecord, now time.Time) bool {
	return r.Status == domain.DosePending && r.ScheduledAt != nil && r.ScheduledAt.Before(now)
}

// Adherence is the taken fraction of doses scheduled within [from, to].
// An empty set yields 0, not an error.
func Adherence(records []domain.DoseRecord, from, to time.Time) float64 {
	total, taken := 0, 0
	for _, r := range records {
		if r.ScheduledAt == nil {
			continue
		}
		if r.ScheduledAt.Before(from) || r.ScheduledAt.After(to) {
			continue
		}
		total++
		if r.Status == domain.DoseTaken {
			taken++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(taken) / float64(total)
}
