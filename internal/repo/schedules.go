package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
)

const scheduleCols = `id,medication_id,kind,reference_zone,hour,minute,day_mask,interval_secs,anchor,enabled,created_at,updated_at`

func (r Repo) InsertSchedule(ctx context.Context, tx *sql.Tx, s domain.Schedule) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO schedules(`+scheduleCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.MedicationID, string(s.Kind), s.ReferenceZone, s.TimeOfDay.Hour, s.TimeOfDay.Minute,
		int(s.DayMask), int64(s.Interval/time.Second), fmtTimePtr(s.Anchor), boolToInt(s.Enabled),
		fmtTime(s.CreatedAt), fmtTime(s.UpdatedAt))
	return err
}

func (r Repo) UpdateSchedule(ctx context.Context, tx *sql.Tx, s domain.Schedule) error {
	res, err := tx.ExecContext(ctx, `UPDATE schedules SET kind=?, reference_zone=?, hour=?, minute=?, day_mask=?, interval_secs=?, anchor=?, enabled=?, updated_at=? WHERE id=?`,
		string(s.Kind), s.ReferenceZone, s.TimeOfDay.Hour, s.TimeOfDay.Minute, int(s.DayMask),
		int64(s.Interval/time.Second), fmtTimePtr(s.Anchor), boolToInt(s.Enabled), fmtTime(s.UpdatedAt), s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSchedule(scan func(dest ...any) error) (domain.Schedule, error) {
	var s domain.Schedule
	var kind, createdAt, updatedAt string
	var anchor sql.NullString
	var dayMask int
	var intervalSecs int64
	var enabled int
	err := scan(&s.ID, &s.MedicationID, &kind, &s.ReferenceZone, &s.TimeOfDay.Hour, &s.TimeOfDay.Minute,
		&dayMask, &intervalSecs, &anchor, &enabled, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Kind = domain.ScheduleKind(kind)
	s.DayMask = domain.DayMask(dayMask)
	s.Interval = time.Duration(intervalSecs) * time.Second
	s.Enabled = enabled != 0
	if s.Anchor, err = parseTimeNull(anchor); err != nil {
		return s, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return s, err
	}
	s.UpdatedAt, err = parseTime(updatedAt)
	return s, err
}

func (r Repo) GetSchedule(ctx context.Context, id string) (domain.Schedule, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id=?`, id)
	return scanSchedule(row.Scan)
}

func (r Repo) GetScheduleTx(ctx context.Context, tx *sql.Tx, id string) (domain.Schedule, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id=?`, id)
	return scanSchedule(row.Scan)
}

type ScheduleFilters struct {
	MedicationID string
	Kind         string
	EnabledOnly  bool
	Limit        int
}

func (r Repo) ListSchedules(ctx context.Context, f ScheduleFilters) ([]domain.Schedule, error) {
	var clauses []string
	var args []any
	if f.MedicationID != "" {
		clauses = append(clauses, "medication_id=?")
		args = append(args, f.MedicationID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.EnabledOnly {
		clauses = append(clauses, "enabled=1")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + scheduleCols + ` FROM schedules ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ListEnabledSchedulesTx returns enabled schedules inside the caller's
// transaction, used when proposing and applying adjustments.
func (r Repo) ListEnabledSchedulesTx(ctx context.Context, tx *sql.Tx) ([]domain.Schedule, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE enabled=1 ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
