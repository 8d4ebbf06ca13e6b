package repo

import (
	"database/sql"
	"errors"
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// Instants and civil values are stored as TEXT: RFC3339 UTC for instants,
// YYYY-MM-DD for civil dates.

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTimeNull(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func fmtDatePtr(d *zoneclock.CivilDate) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseDateNull(ns sql.NullString) (*zoneclock.CivilDate, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := zoneclock.ParseCivilDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
