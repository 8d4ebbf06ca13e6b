// Package engine serializes every mutation through one SQLite transaction:
// begin, validate against current state, write, append audit rows, commit.
package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/TrXuk/open-medtracker-sub000/internal/apperr"
	"github.com/TrXuk/open-medtracker-sub000/internal/audit"
	"github.com/TrXuk/open-medtracker-sub000/internal/config"
	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/repo"
	"github.com/TrXuk/open-medtracker-sub000/internal/schedule"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	zoneclock.RegisterAliases(cfg.ZoneAliases)
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func newID() string {
	return uuid.NewString()
}

// MedicationCreateOptions are parameters for registering a medication.
type MedicationCreateOptions struct {
	Name      string
	Dosage    string
	StartDate zoneclock.CivilDate
	EndDate   *zoneclock.CivilDate
}

func (e Engine) CreateMedication(ctx context.Context, opts MedicationCreateOptions) (domain.Medication, error) {
	if opts.Name == "" {
		return domain.Medication{}, apperr.New(apperr.EmptyField, "name", "name is required")
	}
	if opts.StartDate.IsZero() {
		return domain.Medication{}, apperr.New(apperr.EmptyField, "start_date", "start date is required")
	}
	if _, err := zoneclock.ParseCivilDate(opts.StartDate.String()); err != nil {
		return domain.Medication{}, err
	}
	if opts.EndDate != nil {
		if _, err := zoneclock.ParseCivilDate(opts.EndDate.String()); err != nil {
			return domain.Medication{}, err
		}
		if opts.EndDate.String() < opts.StartDate.String() {
			return domain.Medication{}, apperr.New(apperr.InvalidRange, "end_date", "end date precedes start date")
		}
	}
	now := e.now().UTC()
	m := domain.Medication{
		ID:        newID(),
		Name:      opts.Name,
		Dosage:    opts.Dosage,
		Active:    true,
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Medication{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMedication(ctx, tx, m); err != nil {
		return domain.Medication{}, apperr.Wrap(apperr.SaveFailed, err, "insert medication")
	}
	if err := e.Audit.Append(ctx, tx, "medication.created", "medication", m.ID, audit.EventPayload{"name": m.Name}); err != nil {
		return domain.Medication{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Medication{}, err
	}
	return m, nil
}

// MedicationUpdateOptions carry optional field updates; nil means unchanged.
type MedicationUpdateOptions struct {
	Name    *string
	Dosage  *string
	EndDate *zoneclock.CivilDate
}

func (e Engine) UpdateMedication(ctx context.Context, id string, opts MedicationUpdateOptions) (domain.Medication, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Medication{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMedicationTx(ctx, tx, id)
	if err != nil {
		return domain.Medication{}, err
	}
	if opts.Name != nil {
		if *opts.Name == "" {
			return domain.Medication{}, apperr.New(apperr.EmptyField, "name", "name cannot be cleared")
		}
		m.Name = *opts.Name
	}
	if opts.Dosage != nil {
		m.Dosage = *opts.Dosage
	}
	if opts.EndDate != nil {
		if opts.EndDate.String() < m.StartDate.String() {
			return domain.Medication{}, apperr.New(apperr.InvalidRange, "end_date", "end date precedes start date")
		}
		m.EndDate = opts.EndDate
	}
	m.UpdatedAt = e.now().UTC()
	if err := e.Repo.UpdateMedication(ctx, tx, m); err != nil {
		return domain.Medication{}, err
	}
	if err := e.Audit.Append(ctx, tx, "medication.updated", "medication", m.ID, audit.EventPayload{"name": m.Name}); err != nil {
		return domain.Medication{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Medication{}, err
	}
	return m, nil
}

// DeactivateMedication ends the medication and disables its schedules in the
// same transaction, keeping the enabled-implies-active rule intact. Records
// are retained.
func (e Engine) DeactivateMedication(ctx context.Context, id string, endDate *zoneclock.CivilDate) (domain.Medication, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Medication{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMedicationTx(ctx, tx, id)
	if err != nil {
		return domain.Medication{}, err
	}
	if !m.Active {
		return domain.Medication{}, apperr.New(apperr.BusinessRuleViolation, "active", "medication is already inactive")
	}
	now := e.now().UTC()
	if endDate == nil {
		civil, err := zoneclock.ToCivil(now, "UTC")
		if err != nil {
			return domain.Medication{}, err
		}
		d := civil.Date()
		endDate = &d
	}
	if endDate.String() < m.StartDate.String() {
		return domain.Medication{}, apperr.New(apperr.InvalidRange, "end_date", "end date precedes start date")
	}
	m.Active = false
	m.EndDate = endDate
	m.UpdatedAt = now
	if err := e.Repo.UpdateMedication(ctx, tx, m); err != nil {
		return domain.Medication{}, err
	}

	scheds, err := e.Repo.ListEnabledSchedulesTx(ctx, tx)
	if err != nil {
		return domain.Medication{}, err
	}
	for _, s := range scheds {
		if s.MedicationID != m.ID {
			continue
		}
		s.Enabled = false
		s.UpdatedAt = now
		if err := e.Repo.UpdateSchedule(ctx, tx, s); err != nil {
			return domain.Medication{}, err
		}
	}
	if err := e.Audit.Append(ctx, tx, "medication.deactivated", "medication", m.ID, audit.EventPayload{"end_date": endDate.String()}); err != nil {
		return domain.Medication{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Medication{}, err
	}
	return m, nil
}

// ScheduleCreateOptions are parameters for adding a recurrence rule.
type ScheduleCreateOptions struct {
	MedicationID  string
	Kind          domain.ScheduleKind
	ReferenceZone string
	TimeOfDay     zoneclock.CivilTime
	DayMask       domain.DayMask
	Interval      time.Duration
	Anchor        *time.Time
	Enabled       bool
}

func (e Engine) CreateSchedule(ctx context.Context, opts ScheduleCreateOptions) (domain.Schedule, error) {
	zone, err := zoneclock.Canonical(opts.ReferenceZone)
	if err != nil {
		return domain.Schedule{}, err
	}
	now := e.now().UTC()
	s := domain.Schedule{
		ID:            newID(),
		MedicationID:  opts.MedicationID,
		Kind:          opts.Kind,
		ReferenceZone: zone,
		TimeOfDay:     opts.TimeOfDay,
		DayMask:       opts.DayMask,
		Interval:      opts.Interval,
		Anchor:        opts.Anchor,
		Enabled:       opts.Enabled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Schedule{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMedicationTx(ctx, tx, opts.MedicationID)
	if err != nil {
		return domain.Schedule{}, err
	}
	if err := schedule.Validate(s, m.Active); err != nil {
		return domain.Schedule{}, err
	}
	if err := e.Repo.InsertSchedule(ctx, tx, s); err != nil {
		return domain.Schedule{}, apperr.Wrap(apperr.SaveFailed, err, "insert schedule")
	}
	if err := e.Audit.Append(ctx, tx, "schedule.created", "schedule", s.ID, audit.EventPayload{
		"medication_id": s.MedicationID,
		"kind":          string(s.Kind),
		"zone":          s.ReferenceZone,
	}); err != nil {
		return domain.Schedule{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Schedule{}, err
	}
	return s, nil
}

// ScheduleUpdateOptions carry optional field updates; nil means unchanged.
type ScheduleUpdateOptions struct {
	ReferenceZone *string
	TimeOfDay     *zoneclock.CivilTime
	DayMask       *domain.DayMask
	Interval      *time.Duration
	Anchor        *time.Time
}

func (e Engine) UpdateSchedule(ctx context.Context, id string, opts ScheduleUpdateOptions) (domain.Schedule, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Schedule{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetScheduleTx(ctx, tx, id)
	if err != nil {
		return domain.Schedule{}, err
	}
	if opts.ReferenceZone != nil {
		zone, err := zoneclock.Canonical(*opts.ReferenceZone)
		if err != nil {
			return domain.Schedule{}, err
		}
		s.ReferenceZone = zone
	}
	if opts.TimeOfDay != nil {
		s.TimeOfDay = *opts.TimeOfDay
	}
	if opts.DayMask != nil {
		s.DayMask = *opts.DayMask
	}
	if opts.Interval != nil {
		s.Interval = *opts.Interval
	}
	if opts.Anchor != nil {
		s.Anchor = opts.Anchor
	}
	m, err := e.Repo.GetMedicationTx(ctx, tx, s.MedicationID)
	if err != nil {
		return domain.Schedule{}, err
	}
	if err := schedule.Validate(s, m.Active); err != nil {
		return domain.Schedule{}, err
	}
	s.UpdatedAt = e.now().UTC()
	if err := e.Repo.UpdateSchedule(ctx, tx, s); err != nil {
		return domain.Schedule{}, err
	}
	if err := e.Audit.Append(ctx, tx, "schedule.updated", "schedule", s.ID, audit.EventPayload{"zone": s.ReferenceZone}); err != nil {
		return domain.Schedule{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Schedule{}, err
	}
	return s, nil
}

func (e Engine) SetScheduleEnabled(ctx context.Context, id string, enabled bool) (domain.Schedule, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Schedule{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetScheduleTx(ctx, tx, id)
	if err != nil {
		return domain.Schedule{}, err
	}
	if enabled {
		m, err := e.Repo.GetMedicationTx(ctx, tx, s.MedicationID)
		if err != nil {
			return domain.Schedule{}, err
		}
		if !m.Active {
			return domain.Schedule{}, apperr.New(apperr.BusinessRuleViolation, "enabled", "schedule cannot be enabled while its medication is inactive")
		}
	}
	if s.Enabled == enabled {
		return s, nil
	}
	s.Enabled = enabled
	s.UpdatedAt = e.now().UTC()
	if err := e.Repo.UpdateSchedule(ctx, tx, s); err != nil {
		return domain.Schedule{}, err
	}
	evt := "schedule.disabled"
	if enabled {
		evt = "schedule.enabled"
	}
	if err := e.Audit.Append(ctx, tx, evt, "schedule", s.ID, nil); err != nil {
		return domain.Schedule{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Schedule{}, err
	}
	return s, nil
}

// NextDose returns the schedule's first occurrence strictly after the query
// instant, or nil when none exists.
func (e Engine) NextDose(ctx context.Context, scheduleID string, after *time.Time) (*time.Time, error) {
	s, err := e.Repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	at := e.now().UTC()
	if after != nil {
		at = *after
	}
	return schedule.NextOccurrence(s, at)
}
