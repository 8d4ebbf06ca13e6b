package repo

import (
	"context"
	"database/sql"

	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
)

const transitionCols = `id,previous_zone,new_zone,occurred_at,detection,user_confirmed,created_at`

func (r Repo) InsertTransitionEvent(ctx context.Context, tx *sql.Tx, e domain.TransitionEvent) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO transition_events(`+transitionCols+`) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.PreviousZone, e.NewZone, fmtTime(e.OccurredAt), string(e.Detection),
		boolToInt(e.UserConfirmed), fmtTime(e.CreatedAt))
	return err
}

func scanTransitionEvent(scan func(dest ...any) error) (domain.TransitionEvent, error) {
	var e domain.TransitionEvent
	var occurredAt, detection, createdAt string
	var confirmed int
	err := scan(&e.ID, &e.PreviousZone, &e.NewZone, &occurredAt, &detection, &confirmed, &createdAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if e.OccurredAt, err = parseTime(occurredAt); err != nil {
		return e, err
	}
	e.Detection = domain.DetectionMethod(detection)
	e.UserConfirmed = confirmed != 0
	e.CreatedAt, err = parseTime(createdAt)
	return e, err
}

func (r Repo) GetTransitionEvent(ctx context.Context, id string) (domain.TransitionEvent, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+transitionCols+` FROM transition_events WHERE id=?`, id)
	return scanTransitionEvent(row.Scan)
}

func (r Repo) GetTransitionEventTx(ctx context.Context, tx *sql.Tx, id string) (domain.TransitionEvent, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+transitionCols+` FROM transition_events WHERE id=?`, id)
	return scanTransitionEvent(row.Scan)
}

func (r Repo) ListTransitionEvents(ctx context.Context, limit int) ([]domain.TransitionEvent, error) {
	query := `SELECT ` + transitionCols + ` FROM transition_events ORDER BY occurred_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TransitionEvent
	for rows.Next() {
		e, err := scanTransitionEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestTransitionEvent returns the most recently occurred event, or nil
// when none has been recorded yet.
func (r Repo) LatestTransitionEvent(ctx context.Context) (*domain.TransitionEvent, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+transitionCols+` FROM transition_events ORDER BY occurred_at DESC, id DESC LIMIT 1`)
	e, err := scanTransitionEvent(row.Scan)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpsertPendingTransition writes the single candidate slot. A newer
// detection overwrites an older unconfirmed one.
func (r Repo) UpsertPendingTransition(ctx context.Context, tx *sql.Tx, p domain.PendingTransition) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO pending_transition(slot,previous_zone,new_zone,occurred_at,detection,detected_at) VALUES (1,?,?,?,?,?)
ON CONFLICT(slot) DO UPDATE SET previous_zone=excluded.previous_zone, new_zone=excluded.new_zone, occurred_at=excluded.occurred_at, detection=excluded.detection, detected_at=excluded.detected_at`,
		p.PreviousZone, p.NewZone, fmtTime(p.OccurredAt), string(p.Detection), fmtTime(p.DetectedAt))
	return err
}

func scanPendingTransition(scan func(dest ...any) error) (*domain.PendingTransition, error) {
	var p domain.PendingTransition
	var occurredAt, detection, detectedAt string
	err := scan(&p.PreviousZone, &p.NewZone, &occurredAt, &detection, &detectedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.OccurredAt, err = parseTime(occurredAt); err != nil {
		return nil, err
	}
	p.Detection = domain.DetectionMethod(detection)
	if p.DetectedAt, err = parseTime(detectedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r Repo) GetPendingTransition(ctx context.Context) (*domain.PendingTransition, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT previous_zone,new_zone,occurred_at,detection,detected_at FROM pending_transition WHERE slot=1`)
	return scanPendingTransition(row.Scan)
}

func (r Repo) GetPendingTransitionTx(ctx context.Context, tx *sql.Tx) (*domain.PendingTransition, error) {
	row := tx.QueryRowContext(ctx, `SELECT previous_zone,new_zone,occurred_at,detection,detected_at FROM pending_transition WHERE slot=1`)
	return scanPendingTransition(row.Scan)
}

func (r Repo) DeletePendingTransition(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM pending_transition WHERE slot=1`)
	return err
}

const adjustmentCols = `id,event_id,schedule_id,strategy,old_zone,new_zone,old_hour,old_minute,new_hour,new_minute,step,step_count,effective_date,created_at`

func (r Repo) InsertAdjustment(ctx context.Context, tx *sql.Tx, a domain.ScheduleAdjustment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO schedule_adjustments(`+adjustmentCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.EventID, a.ScheduleID, string(a.Strategy), a.OldZone, a.NewZone,
		a.OldTime.Hour, a.OldTime.Minute, a.NewTime.Hour, a.NewTime.Minute,
		a.Step, a.StepCount, fmtDatePtr(a.EffectiveDate), fmtTime(a.CreatedAt))
	return err
}

func scanAdjustment(scan func(dest ...any) error) (domain.ScheduleAdjustment, error) {
	var a domain.ScheduleAdjustment
	var strategy, createdAt string
	var effectiveDate sql.NullString
	err := scan(&a.ID, &a.EventID, &a.ScheduleID, &strategy, &a.OldZone, &a.NewZone,
		&a.OldTime.Hour, &a.OldTime.Minute, &a.NewTime.Hour, &a.NewTime.Minute,
		&a.Step, &a.StepCount, &effectiveDate, &createdAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Strategy = domain.AdjustmentStrategy(strategy)
	if a.EffectiveDate, err = parseDateNull(effectiveDate); err != nil {
		return a, err
	}
	a.CreatedAt, err = parseTime(createdAt)
	return a, err
}

func (r Repo) ListAdjustmentsByEvent(ctx context.Context, eventID string) ([]domain.ScheduleAdjustment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+adjustmentCols+` FROM schedule_adjustments WHERE event_id=? ORDER BY schedule_id ASC, step ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScheduleAdjustment
	for rows.Next() {
		a, err := scanAdjustment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) ListAdjustmentsBySchedule(ctx context.Context, scheduleID string) ([]domain.ScheduleAdjustment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+adjustmentCols+` FROM schedule_adjustments WHERE schedule_id=? ORDER BY created_at DESC, step ASC`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScheduleAdjustment
	for rows.Next() {
		a, err := scanAdjustment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
