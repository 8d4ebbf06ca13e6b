// Package medtracksdk is a minimal HTTP client for the Medtrack API.
package medtracksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a Medtrack API server. BasePath defaults to /v1.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Medication is the API medication model.
type Medication struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Active    bool   `json:"active"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
}

// Schedule is the API schedule model. TimeOfDay is HH:MM in ReferenceZone.
type Schedule struct {
	ID            string   `json:"id"`
	MedicationID  string   `json:"medication_id"`
	Kind          string   `json:"kind"`
	ReferenceZone string   `json:"reference_zone"`
	TimeOfDay     string   `json:"time_of_day,omitempty"`
	Days          []string `json:"days,omitempty"`
	IntervalSecs  int64    `json:"interval_secs,omitempty"`
	Enabled       bool     `json:"enabled"`
}

// Dose is the API dose record model.
type Dose struct {
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
}

// Transition is a confirmed zone-change event.
type Transition struct {
	ID            string    `json:"id"`
	PreviousZone  string    `json:"previous_zone"`
	NewZone       string    `json:"new_zone"`
	OccurredAt    time.Time `json:"occurred_at"`
	Detection     string    `json:"detection"`
	UserConfirmed bool      `json:"user_confirmed"`
}

// Adjustment is one step of a schedule re-anchoring plan.
type Adjustment struct {
	ID            string `json:"id,omitempty"`
	EventID       string `json:"event_id"`
	ScheduleID    string `json:"schedule_id"`
	Strategy      string `json:"strategy"`
	OldZone       string `json:"old_zone"`
	NewZone       string `json:"new_zone"`
	OldTime       string `json:"old_time"`
	NewTime       string `json:"new_time"`
	Step          int    `json:"step"`
	StepCount     int    `json:"step_count"`
	EffectiveDate string `json:"effective_date,omitempty"`
}

// Adherence is the adherence report for a window.
type Adherence struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Total   int       `json:"total"`
	Taken   int       `json:"taken"`
	Missed  int       `json:"missed"`
	Skipped int       `json:"skipped"`
	Pending int       `json:"pending"`
	Rate    float64   `json:"rate"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateMedication registers a medication. startDate is YYYY-MM-DD.
func (c *Client) CreateMedication(ctx context.Context, name, dosage, startDate string) (Medication, error) {
	body := map[string]any{
		"name":       name,
		"dosage":     dosage,
		"start_date": startDate,
	}
	var resp Medication
	err := c.do(ctx, http.MethodPost, "medications", body, &resp)
	return resp, err
}

// Medications lists medications.
func (c *Client) Medications(ctx context.Context, activeOnly bool) ([]Medication, error) {
	endpoint := "medications"
	if activeOnly {
		endpoint += "?active=true"
	}
	var resp []Medication
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateSchedule adds a time-of-day schedule. timeOfDay is HH:MM and days
// may be nil for every day.
func (c *Client) CreateSchedule(ctx context.Context, medicationID, zone, timeOfDay string, days []string) (Schedule, error) {
	body := map[string]any{
		"medication_id":  medicationID,
		"kind":           "time_of_day",
		"reference_zone": zone,
		"time_of_day":    timeOfDay,
		"days":           days,
	}
	var resp Schedule
	err := c.do(ctx, http.MethodPost, "schedules", body, &resp)
	return resp, err
}

// GenerateDoses materializes dose records for an inclusive date range.
func (c *Client) GenerateDoses(ctx context.Context, from, to string) ([]Dose, error) {
	body := map[string]any{"from": from, "to": to}
	var resp []Dose
	err := c.do(ctx, http.MethodPost, "doses/generate", body, &resp)
	return resp, err
}

// Doses lists dose records, optionally filtered by status.
func (c *Client) Doses(ctx context.Context, status string, limit int) ([]Dose, error) {
	endpoint := "doses"
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Dose
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// TakeDose marks a dose taken. takenAt may be nil for now.
func (c *Client) TakeDose(ctx context.Context, id string, takenAt *time.Time, zone, note string) (Dose, error) {
	body := map[string]any{"zone": zone, "note": note}
	if takenAt != nil {
		body["taken_at"] = takenAt.Format(time.RFC3339)
	}
	var resp Dose
	endpoint := fmt.Sprintf("doses/%s/take", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// RecordTransition records a confirmed zone change.
func (c *Client) RecordTransition(ctx context.Context, previousZone, newZone string, occurredAt time.Time) (Transition, error) {
	body := map[string]any{
		"previous_zone": previousZone,
		"new_zone":      newZone,
		"occurred_at":   occurredAt.Format(time.RFC3339),
	}
	var resp Transition
	err := c.do(ctx, http.MethodPost, "transitions", body, &resp)
	return resp, err
}

// ProposeAdjustments previews re-anchoring an event's schedules without
// writing anything.
func (c *Client) ProposeAdjustments(ctx context.Context, eventID, strategy string) ([]Adjustment, error) {
	body := map[string]any{"strategy": strategy}
	var resp []Adjustment
	endpoint := fmt.Sprintf("transitions/%s/propose", url.PathEscape(eventID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ApplyAdjustments re-anchors an event's schedules.
func (c *Client) ApplyAdjustments(ctx context.Context, eventID, strategy string) ([]Adjustment, error) {
	body := map[string]any{"strategy": strategy}
	var resp []Adjustment
	endpoint := fmt.Sprintf("transitions/%s/apply", url.PathEscape(eventID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AdherenceReport returns adherence over [from, to].
func (c *Client) AdherenceReport(ctx context.Context, from, to time.Time, medicationID string) (Adherence, error) {
	q := url.Values{}
	q.Set("from", from.Format(time.RFC3339))
	q.Set("to", to.Format(time.RFC3339))
	if medicationID != "" {
		q.Set("medication_id", medicationID)
	}
	var resp Adherence
	err := c.do(ctx, http.MethodGet, "reports/adherence?"+q.Encode(), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + c.path() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) path() string {
	if c.BasePath == "" {
		return "/v1"
	}
	return "/" + strings.Trim(c.BasePath, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
