// Package transition computes re-anchoring proposals for schedules affected
// by a zone change. Proposals are pure values; the engine applies and
// persists them.
package transition

import (
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/apperr"
	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/schedule"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

// ProposeOptions selects the strategy and its parameters.
type ProposeOptions struct {
	Strategy domain.AdjustmentStrategy
	// GradualDays is the number of interpolation steps for gradual_shift.
	GradualDays int
	// CustomTimes maps schedule ID to the caller-chosen civil time for the
	// custom strategy.
	CustomTimes map[string]zoneclock.CivilTime
	// Now anchors next-occurrence computation for keep_absolute_time.
	Now time.Time
}

// Propose builds one proposal set per affected schedule. Only enabled
// time-of-day schedules are affected by a zone change; interval schedules
// are zone-independent and as-needed schedules have no clock to move.
func Propose(event domain.TransitionEvent, schedules []domain.Schedule, opts ProposeOptions) ([]domain.ScheduleAdjustment, error) {
	if _, err := zoneclock.Canonical(event.NewZone); err != nil {
		return nil, err
	}
	var out []domain.ScheduleAdjustment
	for _, s := range schedules {
		if !s.Enabled || s.Kind != domain.ScheduleTimeOfDay {
			continue
		}
		adjs, err := proposeOne(event, s, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, adjs...)
	}
	return out, nil
}

func proposeOne(event domain.TransitionEvent, s domain.Schedule, opts ProposeOptions) ([]domain.ScheduleAdjustment, error) {
	base := domain.ScheduleAdjustment{
		EventID:    event.ID,
		ScheduleID: s.ID,
		Strategy:   opts.Strategy,
		OldZone:    s.ReferenceZone,
		NewZone:    event.NewZone,
		OldTime:    s.TimeOfDay,
		Step:       1,
		StepCount:  1,
	}
	switch opts.Strategy {
	case domain.KeepLocalTime:
		// Civil values stay put; only the frame they are read in moves.
		base.NewTime = s.TimeOfDay
		return []domain.ScheduleAdjustment{base}, nil

	case domain.KeepAbsoluteTime:
		newTime, err := absolutePreservingTime(s, event, opts.Now)
		if err != nil {
			return nil, err
		}
		base.NewTime = newTime
		return []domain.ScheduleAdjustment{base}, nil

	case domain.GradualShift:
		return gradualSteps(base, s, event, opts)

	case domain.CustomShift:
		custom, ok := opts.CustomTimes[s.ID]
		if !ok {
			return nil, apperr.Newf(apperr.EmptyField, "custom_times", "no custom time supplied for schedule %s", s.ID)
		}
		if err := custom.Validate(); err != nil {
			return nil, err
		}
		base.NewTime = custom
		return []domain.ScheduleAdjustment{base}, nil

	default:
		return nil, apperr.Newf(apperr.InvalidValue, "strategy", "unknown adjustment strategy %q", opts.Strategy)
	}
}

// absolutePreservingTime recomputes the civil time-of-day so that the
// instant of the schedule's next occurrence reads the same on a clock in
// the new zone.
func absolutePreservingTime(s domain.Schedule, event domain.TransitionEvent, now time.Time) (zoneclock.CivilTime, error) {
	if now.IsZero() {
		now = event.OccurredAt
	}
	next, err := schedule.NextOccurrence(s, now)
	if err != nil {
		return zoneclock.CivilTime{}, err
	}
	var instant time.Time
	if next != nil {
		instant = *next
	} else {
		// No upcoming occurrence; fall back to the schedule's civil time on
		// the event's date in the old zone.
		civil, err := zoneclock.ToCivil(event.OccurredAt, s.ReferenceZone)
		if err != nil {
			return zoneclock.CivilTime{}, err
		}
		instant, _, err = zoneclock.ToInstant(zoneclock.Of(civil.Date(), s.TimeOfDay), s.ReferenceZone, zoneclock.DefaultResolve)
		if err != nil {
			return zoneclock.CivilTime{}, err
		}
	}
	civilNew, err := zoneclock.ToCivil(instant, event.NewZone)
	if err != nil {
		return zoneclock.CivilTime{}, err
	}
	return civilNew.TimeOfDay(), nil
}

// gradualSteps interpolates linearly from where the dose time lands on the
// new zone's clock toward the original local time, one step per day,
// converging on the keep-local-time result.
func gradualSteps(base domain.ScheduleAdjustment, s domain.Schedule, event domain.TransitionEvent, opts ProposeOptions) ([]domain.ScheduleAdjustment, error) {
	steps := opts.GradualDays
	if steps <= 0 {
		steps = 3
	}
	startTime, err := absolutePreservingTime(s, event, opts.Now)
	if err != nil {
		return nil, err
	}
	startMin := startTime.MinuteOfDay()
	targetMin := s.TimeOfDay.MinuteOfDay()
	// Shift along the shorter way around the clock face.
	delta := targetMin - startMin
	if delta > 12*60 {
		delta -= 24 * 60
	} else if delta < -12*60 {
		delta += 24 * 60
	}

	eventCivil, err := zoneclock.ToCivil(event.OccurredAt, event.NewZone)
	if err != nil {
		return nil, err
	}
	eventDate := eventCivil.Date()

	out := make([]domain.ScheduleAdjustment, 0, steps)
	for k := 1; k <= steps; k++ {
		adj := base
		adj.Step = k
		adj.StepCount = steps
		stepMin := startMin + delta*k/steps
		if k == steps {
			// The final step is the keep-local-time result by definition;
			// never leave it to rounding.
			adj.NewTime = s.TimeOfDay
		} else {
			adj.NewTime = zoneclock.CivilTimeOfMinutes(stepMin)
		}
		date := eventDate.AddDays(k)
		adj.EffectiveDate = &date
		out = append(out, adj)
	}
	return out, nil
}
