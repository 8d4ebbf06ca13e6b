package engine

import (
	"context"
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/apperr"
	"github.com/TrXuk/open-medtracker-sub000/internal/audit"
	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/schedule"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

// ensureDoseTransition is the closed dose state machine. Resolved records
// return to pending only through ResetDose.
func ensureDoseTransition(from, to domain.DoseStatus) error {
	switch from {
	case domain.DosePending:
		switch to {
		case domain.DoseTaken, domain.DoseMissed, domain.DoseSkipped:
			return nil
		}
	case domain.DoseMissed:
		// A missed dose may be corrected to taken after the fact.
		if to == domain.DoseTaken {
			return nil
		}
	}
	return apperr.Newf(apperr.BusinessRuleViolation, "status", "cannot transition dose from %s to %s", from, to)
}

// GenerateDoses materializes pending records for every enabled schedule over
// the inclusive civil date range. Generation is idempotent: an occurrence
// already on file is left untouched, and the whole run commits or rolls back
// as one unit.
func (e Engine) GenerateDoses(ctx context.Context, from, to zoneclock.CivilDate) ([]domain.DoseRecord, error) {
	if from.IsZero() || to.IsZero() {
		return nil, apperr.New(apperr.EmptyField, "range", "date range is required")
	}
	if to.String() < from.String() {
		return nil, apperr.New(apperr.InvalidRange, "range", "end date precedes start date")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	scheds, err := e.Repo.ListEnabledSchedulesTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	var created []domain.DoseRecord
	for _, s := range scheds {
		switch s.Kind {
		case domain.ScheduleTimeOfDay:
			for date := from; date.String() <= to.String(); date = date.AddDays(1) {
				if !schedule.DueOn(s, date) {
					continue
				}
				exists, err := e.Repo.HasDoseForDate(ctx, tx, s.ID, date)
				if err != nil {
					return nil, err
				}
				if exists {
					continue
				}
				instant, _, err := schedule.ScheduledInstant(s, date)
				if err != nil {
					return nil, err
				}
				d := date
				at := instant
				rec := domain.DoseRecord{
					ID:           newID(),
					ScheduleID:   &s.ID,
					MedicationID: s.MedicationID,
					ScheduledAt:  &at,
					DoseDate:     &d,
					Status:       domain.DosePending,
					RecordedZone: s.ReferenceZone,
					CreatedAt:    now,
					UpdatedAt:    now,
				}
				if err := e.Repo.InsertDose(ctx, tx, rec); err != nil {
					return nil, apperr.Wrap(apperr.SaveFailed, err, "insert dose")
				}
				created = append(created, rec)
			}
		case domain.ScheduleInterval:
			fromInstant, _, err := zoneclock.ToInstant(zoneclock.Of(from, zoneclock.CivilTime{}), s.ReferenceZone, zoneclock.DefaultResolve)
			if err != nil {
				return nil, err
			}
			toInstant, _, err := zoneclock.ToInstant(zoneclock.Of(to.AddDays(1), zoneclock.CivilTime{}), s.ReferenceZone, zoneclock.DefaultResolve)
			if err != nil {
				return nil, err
			}
			// OccurrencesWithin is half-open on the left; step back a second
			// so an occurrence at the range start is included.
			occs, err := schedule.OccurrencesWithin(s, fromInstant.Add(-time.Second), toInstant.Add(-time.Second))
			if err != nil {
				return nil, err
			}
			for _, occ := range occs {
				exists, err := e.Repo.HasDoseAt(ctx, tx, s.ID, occ)
				if err != nil {
					return nil, err
				}
				if exists {
					continue
				}
				civil, err := zoneclock.ToCivil(occ, s.ReferenceZone)
				if err != nil {
					return nil, err
				}
				d := civil.Date()
				at := occ
				rec := domain.DoseRecord{
					ID:           newID(),
					ScheduleID:   &s.ID,
					MedicationID: s.MedicationID,
					ScheduledAt:  &at,
					DoseDate:     &d,
					Status:       domain.DosePending,
					RecordedZone: s.ReferenceZone,
					CreatedAt:    now,
					UpdatedAt:    now,
				}
				if err := e.Repo.InsertDose(ctx, tx, rec); err != nil {
					return nil, apperr.Wrap(apperr.SaveFailed, err, "insert dose")
				}
				created = append(created, rec)
			}
		}
	}
	if len(created) > 0 {
		if err := e.Audit.Append(ctx, tx, "doses.generated", "dose", "", audit.EventPayload{
			"from":  from.String(),
			"to":    to.String(),
			"count": len(created),
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// MarkTaken records intake. A nil takenAt means now. The timestamp may lead
// the clock by at most the configured tolerance and, for scheduled doses,
// trail the scheduled instant by at most the backfill window.
func (e Engine) MarkTaken(ctx context.Context, id string, takenAt *time.Time, zone, note string) (domain.DoseRecord, error) {
	now := e.now().UTC()
	at := now
	if takenAt != nil {
		at = takenAt.UTC()
	}
	if at.After(now.Add(e.Config.TakenFutureTolerance())) {
		return domain.DoseRecord{}, apperr.New(apperr.InvalidDate, "taken_at", "taken time is too far in the future")
	}
	if zone != "" {
		canonical, err := zoneclock.Canonical(zone)
		if err != nil {
			return domain.DoseRecord{}, err
		}
		zone = canonical
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DoseRecord{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDoseTx(ctx, tx, id)
	if err != nil {
		return domain.DoseRecord{}, err
	}
	if err := ensureDoseTransition(d.Status, domain.DoseTaken); err != nil {
		return domain.DoseRecord{}, err
	}
	if d.ScheduledAt != nil && at.Before(d.ScheduledAt.Add(-e.Config.TakenBackfillWindow())) {
		return domain.DoseRecord{}, apperr.New(apperr.InvalidRange, "taken_at", "taken time is too long before the scheduled instant")
	}
	d.Status = domain.DoseTaken
	d.TakenAt = &at
	if zone != "" {
		d.RecordedZone = zone
	}
	if note != "" {
		d.Note = note
	}
	d.UpdatedAt = now
	if err := e.Repo.UpdateDose(ctx, tx, d); err != nil {
		return domain.DoseRecord{}, err
	}
	if err := e.Audit.Append(ctx, tx, "dose.taken", "dose", d.ID, audit.EventPayload{"taken_at": at.Format(time.RFC3339)}); err != nil {
		return domain.DoseRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DoseRecord{}, err
	}
	return d, nil
}

// MarkMissed resolves a pending dose as missed. The scheduled instant may
// still be in the future.
func (e Engine) MarkMissed(ctx context.Context, id, note string) (domain.DoseRecord, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DoseRecord{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDoseTx(ctx, tx, id)
	if err != nil {
		return domain.DoseRecord{}, err
	}
	if err := ensureDoseTransition(d.Status, domain.DoseMissed); err != nil {
		return domain.DoseRecord{}, err
	}
	if d.ScheduledAt == nil {
		return domain.DoseRecord{}, apperr.New(apperr.BusinessRuleViolation, "scheduled_at", "only a scheduled dose can be missed")
	}
	d.Status = domain.DoseMissed
	if note != "" {
		d.Note = note
	}
	d.UpdatedAt = e.now().UTC()
	if err := e.Repo.UpdateDose(ctx, tx, d); err != nil {
		return domain.DoseRecord{}, err
	}
	if err := e.Audit.Append(ctx, tx, "dose.missed", "dose", d.ID, nil); err != nil {
		return domain.DoseRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DoseRecord{}, err
	}
	return d, nil
}

func (e Engine) MarkSkipped(ctx context.Context, id, note string) (domain.DoseRecord, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DoseRecord{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDoseTx(ctx, tx, id)
	if err != nil {
		return domain.DoseRecord{}, err
	}
	if err := ensureDoseTransition(d.Status, domain.DoseSkipped); err != nil {
		return domain.DoseRecord{}, err
	}
	d.Status = domain.DoseSkipped
	if note != "" {
		d.Note = note
	}
	d.UpdatedAt = e.now().UTC()
	if err := e.Repo.UpdateDose(ctx, tx, d); err != nil {
		return domain.DoseRecord{}, err
	}
	if err := e.Audit.Append(ctx, tx, "dose.skipped", "dose", d.ID, nil); err != nil {
		return domain.DoseRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DoseRecord{}, err
	}
	return d, nil
}

// ResetDose returns a resolved record to pending, clearing the intake
// timestamp and note. Ad-hoc logs have no schedule to return to and stay put.
func (e Engine) ResetDose(ctx context.Context, id string) (domain.DoseRecord, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DoseRecord{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDoseTx(ctx, tx, id)
	if err != nil {
		return domain.DoseRecord{}, err
	}
	if d.Status == domain.DosePending {
		return domain.DoseRecord{}, apperr.New(apperr.BusinessRuleViolation, "status", "dose is already pending")
	}
	if d.ScheduleID == nil {
		return domain.DoseRecord{}, apperr.New(apperr.BusinessRuleViolation, "schedule_id", "an as-needed log cannot be reset")
	}
	d.Status = domain.DosePending
	d.TakenAt = nil
	d.Note = ""
	d.UpdatedAt = e.now().UTC()
	if err := e.Repo.UpdateDose(ctx, tx, d); err != nil {
		return domain.DoseRecord{}, err
	}
	if err := e.Audit.Append(ctx, tx, "dose.reset", "dose", d.ID, nil); err != nil {
		return domain.DoseRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DoseRecord{}, err
	}
	return d, nil
}

// LogAsNeededDose records an unscheduled intake directly in the taken state.
func (e Engine) LogAsNeededDose(ctx context.Context, medicationID string, takenAt *time.Time, zone, note string) (domain.DoseRecord, error) {
	now := e.now().UTC()
	at := now
	if takenAt != nil {
		at = takenAt.UTC()
	}
	if at.After(now.Add(e.Config.TakenFutureTolerance())) {
		return domain.DoseRecord{}, apperr.New(apperr.InvalidDate, "taken_at", "taken time is too far in the future")
	}
	canonical, err := zoneclock.Canonical(zone)
	if err != nil {
		return domain.DoseRecord{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DoseRecord{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMedicationTx(ctx, tx, medicationID)
	if err != nil {
		return domain.DoseRecord{}, err
	}
	if !m.Active {
		return domain.DoseRecord{}, apperr.New(apperr.BusinessRuleViolation, "medication_id", "medication is inactive")
	}
	d := domain.DoseRecord{
		ID:           newID(),
		MedicationID: m.ID,
		TakenAt:      &at,
		Status:       domain.DoseTaken,
		RecordedZone: canonical,
		Note:         note,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Repo.InsertDose(ctx, tx, d); err != nil {
		return domain.DoseRecord{}, apperr.Wrap(apperr.SaveFailed, err, "insert dose")
	}
	if err := e.Audit.Append(ctx, tx, "dose.logged", "dose", d.ID, audit.EventPayload{"medication_id": m.ID}); err != nil {
		return domain.DoseRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DoseRecord{}, err
	}
	return d, nil
}

// PruneDoseHistory deletes resolved records older than the retention
// horizon and reports how many went.
func (e Engine) PruneDoseHistory(ctx context.Context) (int64, error) {
	cutoff := e.now().UTC().Add(-e.Config.RetentionHorizon())
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	n, err := e.Repo.PruneDosesBefore(ctx, tx, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.DeleteFailed, err, "prune dose history")
	}
	if n > 0 {
		if err := e.Audit.Append(ctx, tx, "doses.pruned", "dose", "", audit.EventPayload{"count": n, "cutoff": cutoff.Format(time.RFC3339)}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}
