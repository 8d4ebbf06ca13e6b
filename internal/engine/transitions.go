package engine

import (
	"context"
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/apperr"
	"github.com/TrXuk/open-medtracker-sub000/internal/audit"
	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/repo"
	"github.com/TrXuk/open-medtracker-sub000/internal/transition"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

// DetectTransition registers a zone-change candidate in the single pending
// slot. Detections of the same zone pair coalesce; a different pair replaces
// the slot. A nil result means the zones canonicalize to the same zone and
// nothing was recorded.
func (e Engine) DetectTransition(ctx context.Context, previousZone, newZone string, occurredAt time.Time, detection domain.DetectionMethod) (*domain.PendingTransition, error) {
	prev, err := zoneclock.Canonical(previousZone)
	if err != nil {
		return nil, err
	}
	next, err := zoneclock.Canonical(newZone)
	if err != nil {
		return nil, err
	}
	if prev == next {
		return nil, nil
	}
	if _, err := domain.ParseDetectionMethod(string(detection)); err != nil {
		return nil, err
	}
	now := e.now().UTC()
	if occurredAt.IsZero() {
		occurredAt = now
	}
	p := domain.PendingTransition{
		PreviousZone: prev,
		NewZone:      next,
		OccurredAt:   occurredAt.UTC(),
		Detection:    detection,
		DetectedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := e.Repo.GetPendingTransitionTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.PreviousZone == p.PreviousZone && existing.NewZone == p.NewZone {
		// Same candidate seen again; keep the earliest occurrence instant.
		p.OccurredAt = existing.OccurredAt
	}
	if err := e.Repo.UpsertPendingTransition(ctx, tx, p); err != nil {
		return nil, apperr.Wrap(apperr.SaveFailed, err, "upsert pending transition")
	}
	if err := e.Audit.Append(ctx, tx, "transition.detected", "transition", "", audit.EventPayload{
		"previous_zone": p.PreviousZone,
		"new_zone":      p.NewZone,
		"detection":     string(p.Detection),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
}

// PendingTransition returns the unconfirmed candidate, or nil when none.
func (e Engine) PendingTransition(ctx context.Context) (*domain.PendingTransition, error) {
	return e.Repo.GetPendingTransition(ctx)
}

// ConfirmPending promotes the pending candidate to a confirmed event and
// clears the slot in one transaction.
func (e Engine) ConfirmPending(ctx context.Context) (domain.TransitionEvent, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TransitionEvent{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetPendingTransitionTx(ctx, tx)
	if err != nil {
		return domain.TransitionEvent{}, err
	}
	if p == nil {
		return domain.TransitionEvent{}, apperr.New(apperr.BusinessRuleViolation, "pending", "no pending transition to confirm")
	}
	evt := domain.TransitionEvent{
		ID:            newID(),
		PreviousZone:  p.PreviousZone,
		NewZone:       p.NewZone,
		OccurredAt:    p.OccurredAt,
		Detection:     p.Detection,
		UserConfirmed: true,
		CreatedAt:     e.now().UTC(),
	}
	if err := e.Repo.InsertTransitionEvent(ctx, tx, evt); err != nil {
		return domain.TransitionEvent{}, apperr.Wrap(apperr.SaveFailed, err, "insert transition event")
	}
	if err := e.Repo.DeletePendingTransition(ctx, tx); err != nil {
		return domain.TransitionEvent{}, err
	}
	if err := e.Audit.Append(ctx, tx, "transition.confirmed", "transition", evt.ID, audit.EventPayload{
		"previous_zone": evt.PreviousZone,
		"new_zone":      evt.NewZone,
	}); err != nil {
		return domain.TransitionEvent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TransitionEvent{}, err
	}
	return evt, nil
}

// DiscardPending drops the candidate without recording an event.
func (e Engine) DiscardPending(ctx context.Context) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetPendingTransitionTx(ctx, tx)
	if err != nil {
		return err
	}
	if p == nil {
		return apperr.New(apperr.BusinessRuleViolation, "pending", "no pending transition to discard")
	}
	if err := e.Repo.DeletePendingTransition(ctx, tx); err != nil {
		return apperr.Wrap(apperr.DeleteFailed, err, "delete pending transition")
	}
	if err := e.Audit.Append(ctx, tx, "transition.discarded", "transition", "", nil); err != nil {
		return err
	}
	return tx.Commit()
}

// TransitionRecordOptions are parameters for recording a zone change
// directly, bypassing the pending slot.
type TransitionRecordOptions struct {
	PreviousZone string
	NewZone      string
	OccurredAt   time.Time
	Detection    domain.DetectionMethod
}

func (e Engine) RecordTransition(ctx context.Context, opts TransitionRecordOptions) (domain.TransitionEvent, error) {
	prev, err := zoneclock.Canonical(opts.PreviousZone)
	if err != nil {
		return domain.TransitionEvent{}, err
	}
	next, err := zoneclock.Canonical(opts.NewZone)
	if err != nil {
		return domain.TransitionEvent{}, err
	}
	if prev == next {
		return domain.TransitionEvent{}, apperr.New(apperr.BusinessRuleViolation, "new_zone", "zones are the same after canonicalization")
	}
	if opts.Detection == "" {
		opts.Detection = domain.DetectionManual
	}
	if _, err := domain.ParseDetectionMethod(string(opts.Detection)); err != nil {
		return domain.TransitionEvent{}, err
	}
	now := e.now().UTC()
	occurredAt := opts.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = now
	}
	if occurredAt.After(now) {
		return domain.TransitionEvent{}, apperr.New(apperr.InvalidDate, "occurred_at", "transition cannot occur in the future")
	}
	if occurredAt.Before(now.Add(-e.Config.RetentionHorizon())) {
		return domain.TransitionEvent{}, apperr.New(apperr.InvalidRange, "occurred_at", "transition is older than the retention horizon")
	}
	evt := domain.TransitionEvent{
		ID:            newID(),
		PreviousZone:  prev,
		NewZone:       next,
		OccurredAt:    occurredAt,
		Detection:     opts.Detection,
		UserConfirmed: true,
		CreatedAt:     now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TransitionEvent{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTransitionEvent(ctx, tx, evt); err != nil {
		return domain.TransitionEvent{}, apperr.Wrap(apperr.SaveFailed, err, "insert transition event")
	}
	if err := e.Audit.Append(ctx, tx, "transition.recorded", "transition", evt.ID, audit.EventPayload{
		"previous_zone": evt.PreviousZone,
		"new_zone":      evt.NewZone,
		"detection":     string(evt.Detection),
	}); err != nil {
		return domain.TransitionEvent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TransitionEvent{}, err
	}
	return evt, nil
}

func (e Engine) proposeOptions(strategy domain.AdjustmentStrategy, gradualDays int, customTimes map[string]zoneclock.CivilTime) transition.ProposeOptions {
	if gradualDays <= 0 {
		gradualDays = e.Config.Transitions.GradualShiftDays
	}
	return transition.ProposeOptions{
		Strategy:    strategy,
		GradualDays: gradualDays,
		CustomTimes: customTimes,
		Now:         e.now().UTC(),
	}
}

// ProposeAdjustments computes re-anchoring proposals for an event without
// persisting anything.
func (e Engine) ProposeAdjustments(ctx context.Context, eventID string, strategy domain.AdjustmentStrategy, gradualDays int, customTimes map[string]zoneclock.CivilTime) ([]domain.ScheduleAdjustment, error) {
	evt, err := e.Repo.GetTransitionEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	scheds, err := e.Repo.ListSchedules(ctx, repo.ScheduleFilters{EnabledOnly: true})
	if err != nil {
		return nil, err
	}
	return transition.Propose(evt, scheds, e.proposeOptions(strategy, gradualDays, customTimes))
}

// ApplyAdjustments persists the proposals for an event and moves each
// affected schedule to its final zone and civil time atomically. Gradual
// steps are retained as rows; the schedule itself lands on the last step.
func (e Engine) ApplyAdjustments(ctx context.Context, eventID string, strategy domain.AdjustmentStrategy, gradualDays int, customTimes map[string]zoneclock.CivilTime) ([]domain.ScheduleAdjustment, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	evt, err := e.Repo.GetTransitionEventTx(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	scheds, err := e.Repo.ListEnabledSchedulesTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	adjs, err := transition.Propose(evt, scheds, e.proposeOptions(strategy, gradualDays, customTimes))
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	final := map[string]domain.ScheduleAdjustment{}
	for i := range adjs {
		adjs[i].ID = newID()
		adjs[i].CreatedAt = now
		if err := e.Repo.InsertAdjustment(ctx, tx, adjs[i]); err != nil {
			return nil, apperr.Wrap(apperr.SaveFailed, err, "insert adjustment")
		}
		if adjs[i].Step == adjs[i].StepCount {
			final[adjs[i].ScheduleID] = adjs[i]
		}
	}
	for _, s := range scheds {
		adj, ok := final[s.ID]
		if !ok {
			continue
		}
		s.ReferenceZone = adj.NewZone
		s.TimeOfDay = adj.NewTime
		s.UpdatedAt = now
		if err := e.Repo.UpdateSchedule(ctx, tx, s); err != nil {
			return nil, err
		}
	}
	if err := e.Audit.Append(ctx, tx, "transition.applied", "transition", evt.ID, audit.EventPayload{
		"strategy": string(strategy),
		"count":    len(adjs),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return adjs, nil
}

// AssociateAffectedDoses links doses scheduled near the event to it,
// whatever their resolution status. A dose already linked keeps whichever
// event occurred nearer its scheduled instant.
func (e Engine) AssociateAffectedDoses(ctx context.Context, eventID string) (int, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	evt, err := e.Repo.GetTransitionEventTx(ctx, tx, eventID)
	if err != nil {
		return 0, err
	}
	window := e.Config.AssociationWindow()
	doses, err := e.Repo.ListScheduledDosesBetweenTx(ctx, tx, evt.OccurredAt.Add(-window), evt.OccurredAt.Add(window))
	if err != nil {
		return 0, err
	}
	now := e.now().UTC()
	linked := 0
	for _, d := range doses {
		if d.EventID != nil && *d.EventID == evt.ID {
			continue
		}
		if d.EventID != nil {
			other, err := e.Repo.GetTransitionEventTx(ctx, tx, *d.EventID)
			if err != nil && err != repo.ErrNotFound {
				return 0, err
			}
			if err == nil && absDuration(d.ScheduledAt.Sub(other.OccurredAt)) <= absDuration(d.ScheduledAt.Sub(evt.OccurredAt)) {
				continue
			}
		}
		if err := e.Repo.SetDoseEvent(ctx, tx, d.ID, evt.ID, now); err != nil {
			return 0, err
		}
		linked++
	}
	if linked > 0 {
		if err := e.Audit.Append(ctx, tx, "transition.doses_associated", "transition", evt.ID, audit.EventPayload{"count": linked}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return linked, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
