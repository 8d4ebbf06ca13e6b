package engine

import (
	"context"
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/apperr"
	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/repo"
	"github.com/TrXuk/open-medtracker-sub000/internal/schedule"
)

// AdherenceReport summarizes scheduled doses within a window. Ad-hoc logs
// have no scheduled instant and do not count toward the rate.
type AdherenceReport struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Total   int       `json:"total"`
	Taken   int       `json:"taken"`
	Missed  int       `json:"missed"`
	Skipped int       `json:"skipped"`
	Pending int       `json:"pending"`
	Rate    float64   `json:"rate"`
}

func (e Engine) Adherence(ctx context.Context, from, to time.Time, medicationID string) (AdherenceReport, error) {
	if to.Before(from) {
		return AdherenceReport{}, apperr.New(apperr.InvalidRange, "range", "end precedes start")
	}
	records, err := e.Repo.ListDoses(ctx, repo.DoseFilters{
		MedicationID: medicationID,
		From:         &from,
		To:           &to,
	})
	if err != nil {
		return AdherenceReport{}, err
	}
	rep := AdherenceReport{From: from, To: to}
	for _, r := range records {
		if r.ScheduledAt == nil {
			continue
		}
		rep.Total++
		switch r.Status {
		case domain.DoseTaken:
			rep.Taken++
		case domain.DoseMissed:
			rep.Missed++
		case domain.DoseSkipped:
			rep.Skipped++
		case domain.DosePending:
			rep.Pending++
		}
	}
	rep.Rate = schedule.Adherence(records, from, to)
	return rep, nil
}

// OverdueDoses lists pending records whose scheduled instant has passed.
func (e Engine) OverdueDoses(ctx context.Context) ([]domain.DoseRecord, error) {
	records, err := e.Repo.ListDoses(ctx, repo.DoseFilters{Status: string(domain.DosePending)})
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	var out []domain.DoseRecord
	for _, r := range records {
		if schedule.Overdue(r, now) {
			out = append(out, r)
		}
	}
	return out, nil
}
