package server

import (
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/engine"
)

// Wire representations. Civil dates are YYYY-MM-DD strings and civil times
// HH:MM strings; instants are RFC3339.

type MedicationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Dosage    string    `json:"dosage,omitempty"`
	Active    bool      `json:"active"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func medicationResponse(m domain.Medication) MedicationResponse {
	out := MedicationResponse{
		ID:        m.ID,
		Name:      m.Name,
		Dosage:    m.Dosage,
		Active:    m.Active,
		StartDate: m.StartDate.String(),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.EndDate != nil {
		out.EndDate = m.EndDate.String()
	}
	return out
}

func mapMedications(items []domain.Medication) []MedicationResponse {
	out := make([]MedicationResponse, 0, len(items))
	for _, m := range items {
		out = append(out, medicationResponse(m))
	}
	return out
}

type ScheduleResponse struct {
	ID            string     `json:"id"`
	MedicationID  string     `json:"medication_id"`
	Kind          string     `json:"kind"`
	ReferenceZone string     `json:"reference_zone"`
	TimeOfDay     string     `json:"time_of_day,omitempty"`
	Days          []string   `json:"days,omitempty"`
	IntervalSecs  int64      `json:"interval_secs,omitempty"`
	Anchor        *time.Time `json:"anchor,omitempty"`
	Enabled       bool       `json:"enabled"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func scheduleResponse(s domain.Schedule) ScheduleResponse {
	out := ScheduleResponse{
		ID:            s.ID,
		MedicationID:  s.MedicationID,
		Kind:          string(s.Kind),
		ReferenceZone: s.ReferenceZone,
		Anchor:        s.Anchor,
		Enabled:       s.Enabled,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.Kind == domain.ScheduleTimeOfDay {
		out.TimeOfDay = s.TimeOfDay.String()
		for _, d := range s.DayMask.Days() {
			out.Days = append(out.Days, d.String())
		}
	}
	if s.Kind == domain.ScheduleInterval {
		out.IntervalSecs = int64(s.Interval / time.Second)
	}
	return out
}

func mapSchedules(items []domain.Schedule) []ScheduleResponse {
	out := make([]ScheduleResponse, 0, len(items))
	for _, s := range items {
		out = append(out, scheduleResponse(s))
	}
	return out
}

type DoseResponse struct {
	ID           string     `json:"id"`
	ScheduleID   string     `json:"schedule_id,omitempty"`
	MedicationID string     `json:"medication_id"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	DoseDate     string     `json:"dose_date,omitempty"`
	TakenAt      *time.Time `json:"taken_at,omitempty"`
	Status       string     `json:"status"`
	RecordedZone string     `json:"recorded_zone"`
	Note         string     `json:"note,omitempty"`
	EventID      string     `json:"event_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func doseResponse(d domain.DoseRecord) DoseResponse {
	out := DoseResponse{
		ID:           d.ID,
		MedicationID: d.MedicationID,
		ScheduledAt:  d.ScheduledAt,
		TakenAt:      d.TakenAt,
		Status:       string(d.Status),
		RecordedZone: d.RecordedZone,
		Note:         d.Note,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.ScheduleID != nil {
		out.ScheduleID = *d.ScheduleID
	}
	if d.DoseDate != nil {
		out.DoseDate = d.DoseDate.String()
	}
	if d.EventID != nil {
		out.EventID = *d.EventID
	}
	return out
}

func mapDoses(items []domain.DoseRecord) []DoseResponse {
	out := make([]DoseResponse, 0, len(items))
	for _, d := range items {
		out = append(out, doseResponse(d))
	}
	return out
}

type TransitionResponse struct {
	ID            string    `json:"id"`
	PreviousZone  string    `json:"previous_zone"`
	NewZone       string    `json:"new_zone"`
	OccurredAt    time.Time `json:"occurred_at"`
	Detection     string    `json:"detection"`
	UserConfirmed bool      `json:"user_confirmed"`
	CreatedAt     time.Time `json:"created_at"`
}

func transitionResponse(e domain.TransitionEvent) TransitionResponse {
	return TransitionResponse{
		ID:            e.ID,
		PreviousZone:  e.PreviousZone,
		NewZone:       e.NewZone,
		OccurredAt:    e.OccurredAt,
		Detection:     string(e.Detection),
		UserConfirmed: e.UserConfirmed,
		CreatedAt:     e.CreatedAt,
	}
}

func mapTransitions(items []domain.TransitionEvent) []TransitionResponse {
	out := make([]TransitionResponse, 0, len(items))
	for _, e := range items {
		out = append(out, transitionResponse(e))
	}
	return out
}

type PendingTransitionResponse struct {
	PreviousZone string    `json:"previous_zone"`
	NewZone      string    `json:"new_zone"`
	OccurredAt   time.Time `json:"occurred_at"`
	Detection    string    `json:"detection"`
	DetectedAt   time.Time `json:"detected_at"`
}

func pendingResponse(p domain.PendingTransition) PendingTransitionResponse {
	return PendingTransitionResponse{
		PreviousZone: p.PreviousZone,
		NewZone:      p.NewZone,
		OccurredAt:   p.OccurredAt,
		Detection:    string(p.Detection),
		DetectedAt:   p.DetectedAt,
	}
}

type AdjustmentResponse struct {
	ID            string    `json:"id,omitempty"`
	EventID       string    `json:"event_id"`
	ScheduleID    string    `json:"schedule_id"`
	Strategy      string    `json:"strategy"`
	OldZone       string    `json:"old_zone"`
	NewZone       string    `json:"new_zone"`
	OldTime       string    `json:"old_time"`
	NewTime       string    `json:"new_time"`
	Step          int       `json:"step"`
	StepCount     int       `json:"step_count"`
	EffectiveDate string    `json:"effective_date,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

func adjustmentResponse(a domain.ScheduleAdjustment) AdjustmentResponse {
	out := AdjustmentResponse{
		ID:         a.ID,
		EventID:    a.EventID,
		ScheduleID: a.ScheduleID,
		Strategy:   string(a.Strategy),
		OldZone:    a.OldZone,
		NewZone:    a.NewZone,
		OldTime:    a.OldTime.String(),
		NewTime:    a.NewTime.String(),
		Step:       a.Step,
		StepCount:  a.StepCount,
		CreatedAt:  a.CreatedAt,
	}
	if a.EffectiveDate != nil {
		out.EffectiveDate = a.EffectiveDate.String()
	}
	return out
}

func mapAdjustments(items []domain.ScheduleAdjustment) []AdjustmentResponse {
	out := make([]AdjustmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, adjustmentResponse(a))
	}
	return out
}

type EventResponse struct {
	ID         int64     `json:"id"`
	TS         time.Time `json:"ts"`
	Type       string    `json:"type"`
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id,omitempty"`
	Payload    string    `json:"payload,omitempty"`
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, EventResponse{
			ID: e.ID, TS: e.TS, Type: e.Type, EntityKind: e.EntityKind, EntityID: e.EntityID, Payload: e.Payload,
		})
	}
	return out
}

type AdherenceResponse struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Total   int       `json:"total"`
	Taken   int       `json:"taken"`
	Missed  int       `json:"missed"`
	Skipped int       `json:"skipped"`
	Pending int       `json:"pending"`
	Rate    float64   `json:"rate"`
}

func adherenceResponse(r engine.AdherenceReport) AdherenceResponse {
	return AdherenceResponse{
		From: r.From, To: r.To, Total: r.Total, Taken: r.Taken,
		Missed: r.Missed, Skipped: r.Skipped, Pending: r.Pending, Rate: r.Rate,
	}
}
