package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

const doseCols = `id,schedule_id,medication_id,scheduled_at,dose_date,taken_at,status,recorded_zone,note,event_id,created_at,updated_at`

func (r Repo) InsertDose(ctx context.Context, tx *sql.Tx, d domain.DoseRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO dose_records(`+doseCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, nullableStringPtr(d.ScheduleID), d.MedicationID, fmtTimePtr(d.ScheduledAt), fmtDatePtr(d.DoseDate),
		fmtTimePtr(d.TakenAt), string(d.Status), d.RecordedZone, nullable(d.Note), nullableStringPtr(d.EventID),
		fmtTime(d.CreatedAt), fmtTime(d.UpdatedAt))
	return err
}

// UpdateDose rewrites the mutable fields. ScheduledAt, DoseDate and the
// schedule linkage are fixed at creation and stay untouched.
func (r Repo) UpdateDose(ctx context.Context, tx *sql.Tx, d domain.DoseRecord) error {
	res, err := tx.ExecContext(ctx, `UPDATE dose_records SET taken_at=?, status=?, recorded_zone=?, note=?, event_id=?, updated_at=? WHERE id=?`,
		fmtTimePtr(d.TakenAt), string(d.Status), d.RecordedZone, nullable(d.Note), nullableStringPtr(d.EventID),
		fmtTime(d.UpdatedAt), d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDose(scan func(dest ...any) error) (domain.DoseRecord, error) {
	var d domain.DoseRecord
	var scheduleID, scheduledAt, doseDate, takenAt, note, eventID sql.NullString
	var status, createdAt, updatedAt string
	err := scan(&d.ID, &scheduleID, &d.MedicationID, &scheduledAt, &doseDate, &takenAt, &status,
		&d.RecordedZone, &note, &eventID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if scheduleID.Valid {
		d.ScheduleID = &scheduleID.String
	}
	if d.ScheduledAt, err = parseTimeNull(scheduledAt); err != nil {
		return d, err
	}
	if d.DoseDate, err = parseDateNull(doseDate); err != nil {
		return d, err
	}
	if d.TakenAt, err = parseTimeNull(takenAt); err != nil {
		return d, err
	}
	d.Status = domain.DoseStatus(status)
	if note.Valid {
		d.Note = note.String
	}
	if eventID.Valid {
		d.EventID = &eventID.String
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return d, err
	}
	d.UpdatedAt, err = parseTime(updatedAt)
	return d, err
}

func (r Repo) GetDose(ctx context.Context, id string) (domain.DoseRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+doseCols+` FROM dose_records WHERE id=?`, id)
	return scanDose(row.Scan)
}

func (r Repo) GetDoseTx(ctx context.Context, tx *sql.Tx, id string) (domain.DoseRecord, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+doseCols+` FROM dose_records WHERE id=?`, id)
	return scanDose(row.Scan)
}

type DoseFilters struct {
	ScheduleID   string
	MedicationID string
	Status       string
	From         *time.Time
	To           *time.Time
	Limit        int
}

func (r Repo) ListDoses(ctx context.Context, f DoseFilters) ([]domain.DoseRecord, error) {
	var clauses []string
	var args []any
	if f.ScheduleID != "" {
		clauses = append(clauses, "schedule_id=?")
		args = append(args, f.ScheduleID)
	}
	if f.MedicationID != "" {
		clauses = append(clauses, "medication_id=?")
		args = append(args, f.MedicationID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		clauses = append(clauses, "scheduled_at>=?")
		args = append(args, fmtTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "scheduled_at<=?")
		args = append(args, fmtTime(*f.To))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + doseCols + ` FROM dose_records ` + where + ` ORDER BY COALESCE(scheduled_at, created_at) DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DoseRecord
	for rows.Next() {
		d, err := scanDose(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// HasDoseForDate reports whether a record already exists for the schedule's
// occurrence on the given civil date. Generation keys on the civil date so
// a zone change between runs cannot duplicate the occurrence.
func (r Repo) HasDoseForDate(ctx context.Context, tx *sql.Tx, scheduleID string, date zoneclock.CivilDate) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM dose_records WHERE schedule_id=? AND dose_date=? LIMIT 1`,
		scheduleID, date.String())
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// HasDoseAt is the interval-kind counterpart, keyed on the exact instant.
func (r Repo) HasDoseAt(ctx context.Context, tx *sql.Tx, scheduleID string, at time.Time) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM dose_records WHERE schedule_id=? AND scheduled_at=? LIMIT 1`,
		scheduleID, fmtTime(at))
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// ListScheduledDosesBetweenTx returns records scheduled inside the closed
// window [from, to], whatever their resolution status. Ad-hoc logs carry no
// scheduled instant and never match.
func (r Repo) ListScheduledDosesBetweenTx(ctx context.Context, tx *sql.Tx, from, to time.Time) ([]domain.DoseRecord, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+doseCols+` FROM dose_records WHERE scheduled_at>=? AND scheduled_at<=? ORDER BY scheduled_at ASC, id ASC`,
		fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DoseRecord
	for rows.Next() {
		d, err := scanDose(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) SetDoseEvent(ctx context.Context, tx *sql.Tx, doseID, eventID string, updatedAt time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE dose_records SET event_id=?, updated_at=? WHERE id=?`,
		eventID, fmtTime(updatedAt), doseID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneDosesBefore deletes resolved records scheduled before the cutoff.
// Pending records survive regardless of age.
func (r Repo) PruneDosesBefore(ctx context.Context, tx *sql.Tx, cutoff time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM dose_records WHERE status!='pending' AND COALESCE(scheduled_at, taken_at, created_at) < ?`,
		fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
