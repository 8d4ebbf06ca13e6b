package repo

import (
	"context"
	"database/sql"

	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

const medicationCols = `id,name,dosage,active,start_date,end_date,created_at,updated_at`

func (r Repo) InsertMedication(ctx context.Context, tx *sql.Tx, m domain.Medication) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO medications(`+medicationCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.Name, nullable(m.Dosage), boolToInt(m.Active), m.StartDate.String(), fmtDatePtr(m.EndDate),
		fmtTime(m.CreatedAt), fmtTime(m.UpdatedAt))
	return err
}

func (r Repo) UpdateMedication(ctx context.Context, tx *sql.Tx, m domain.Medication) error {
	res, err := tx.ExecContext(ctx, `UPDATE medications SET name=?, dosage=?, active=?, start_date=?, end_date=?, updated_at=? WHERE id=?`,
		m.Name, nullable(m.Dosage), boolToInt(m.Active), m.StartDate.String(), fmtDatePtr(m.EndDate),
		fmtTime(m.UpdatedAt), m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMedication(scan func(dest ...any) error) (domain.Medication, error) {
	var m domain.Medication
	var dosage, endDate sql.NullString
	var active int
	var startDate, createdAt, updatedAt string
	err := scan(&m.ID, &m.Name, &dosage, &active, &startDate, &endDate, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if dosage.Valid {
		m.Dosage = dosage.String
	}
	m.Active = active != 0
	if m.StartDate, err = zoneclock.ParseCivilDate(startDate); err != nil {
		return m, err
	}
	if m.EndDate, err = parseDateNull(endDate); err != nil {
		return m, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return m, err
	}
	m.UpdatedAt, err = parseTime(updatedAt)
	return m, err
}

func (r Repo) GetMedication(ctx context.Context, id string) (domain.Medication, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+medicationCols+` FROM medications WHERE id=?`, id)
	return scanMedication(row.Scan)
}

func (r Repo) GetMedicationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Medication, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+medicationCols+` FROM medications WHERE id=?`, id)
	return scanMedication(row.Scan)
}

type MedicationFilters struct {
	ActiveOnly bool
	Limit      int
}

func (r Repo) ListMedications(ctx context.Context, f MedicationFilters) ([]domain.Medication, error) {
	query := `SELECT ` + medicationCols + ` FROM medications`
	var args []any
	if f.ActiveOnly {
		query += ` WHERE active=1`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Medication
	for rows.Next() {
		m, err := scanMedication(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
