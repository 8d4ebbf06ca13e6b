package domain

import (
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/apperr"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

// ScheduleKind is the closed set of recurrence kinds.
type ScheduleKind string

const (
	ScheduleTimeOfDay ScheduleKind = "time_of_day"
	ScheduleInterval  ScheduleKind = "interval"
	ScheduleAsNeeded  ScheduleKind = "as_needed"
)

func ParseScheduleKind(s string) (ScheduleKind, error) {
	switch ScheduleKind(s) {
	case ScheduleTimeOfDay, ScheduleInterval, ScheduleAsNeeded:
		return ScheduleKind(s), nil
	}
	return "", apperr.Newf(apperr.InvalidValue, "kind", "unknown schedule kind %q", s)
}

// DoseStatus is the closed set of dose states.
type DoseStatus string

const (
	DosePending DoseStatus = "pending"
	DoseTaken   DoseStatus = "taken"
	DoseMissed  DoseStatus = "missed"
	DoseSkipped DoseStatus = "skipped"
)

func ParseDoseStatus(s string) (DoseStatus, error) {
	switch DoseStatus(s) {
	case DosePending, DoseTaken, DoseMissed, DoseSkipped:
		return DoseStatus(s), nil
	}
	return "", apperr.Newf(apperr.InvalidValue, "status", "unknown dose status %q", s)
}

// DetectionMethod records how a zone change was noticed.
type DetectionMethod string

const (
	DetectionAutomatic DetectionMethod = "automatic"
	DetectionManual    DetectionMethod = "manual"
	DetectionLocation  DetectionMethod = "location"
)

func ParseDetectionMethod(s string) (DetectionMethod, error) {
	switch DetectionMethod(s) {
	case DetectionAutomatic, DetectionManual, DetectionLocation:
		return DetectionMethod(s), nil
	}
	return "", apperr.Newf(apperr.InvalidValue, "detection", "unknown detection method %q", s)
}

// AdjustmentStrategy is the closed set of re-anchoring strategies.
type AdjustmentStrategy string

const (
	KeepLocalTime    AdjustmentStrategy = "keep_local_time"
	KeepAbsoluteTime AdjustmentStrategy = "keep_absolute_time"
	GradualShift     AdjustmentStrategy = "gradual_shift"
	CustomShift      AdjustmentStrategy = "custom"
)

func ParseAdjustmentStrategy(s string) (AdjustmentStrategy, error) {
	switch AdjustmentStrategy(s) {
	case KeepLocalTime, KeepAbsoluteTime, GradualShift, CustomShift:
		return AdjustmentStrategy(s), nil
	}
	return "", apperr.Newf(apperr.InvalidValue, "strategy", "unknown adjustment strategy %q", s)
}

// DayMask flags the weekdays a schedule applies on: bit 0 is Sunday through
// bit 6 Saturday. Zero means no day selected and is invalid.
type DayMask uint8

const DayMaskAll DayMask = 0x7F

func DayMaskOf(days ...time.Weekday) DayMask {
	var m DayMask
	for _, d := range days {
		m |= 1 << uint(d)
	}
	return m
}

func (m DayMask) On(d time.Weekday) bool { return m&(1<<uint(d)) != 0 }

func (m DayMask) Validate() error {
	if m == 0 {
		return apperr.New(apperr.BusinessRuleViolation, "day_mask", "at least one day must be selected")
	}
	if m > DayMaskAll {
		return apperr.Newf(apperr.InvalidRange, "day_mask", "%d out of range 1-127", m)
	}
	return nil
}

func (m DayMask) Days() []time.Weekday {
	var days []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if m.On(d) {
			days = append(days, d)
		}
	}
	return days
}

// Medication identifies one drug being tracked. Deactivation sets the end
// date; rows are never deleted.
type Medication struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Dosage    string               `json:"dosage,omitempty"`
	Active    bool                 `json:"active"`
	StartDate zoneclock.CivilDate  `json:"start_date"`
	EndDate   *zoneclock.CivilDate `json:"end_date,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Schedule is one recurrence rule of a medication. Clock values are civil
// times in ReferenceZone; Anchor and Interval drive interval schedules.
type Schedule struct {
	ID            string              `json:"id"`
	MedicationID  string              `json:"medication_id"`
	Kind          ScheduleKind        `json:"kind"`
	ReferenceZone string              `json:"reference_zone"`
	TimeOfDay     zoneclock.CivilTime `json:"time_of_day"`
	DayMask       DayMask             `json:"day_mask"`
	Interval      time.Duration       `json:"interval,omitempty"`
	Anchor        *time.Time          `json:"anchor,omitempty"`
	Enabled       bool                `json:"enabled"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// DoseRecord is one planned or logged intake. ScheduledAt never changes
// after creation; status updates move it through the dose state machine.
type DoseRecord struct {
	ID           string               `json:"id"`
	ScheduleID   *string              `json:"schedule_id,omitempty"`
	MedicationID string               `json:"medication_id"`
	ScheduledAt  *time.Time           `json:"scheduled_at,omitempty"`
	DoseDate     *zoneclock.CivilDate `json:"dose_date,omitempty"`
	TakenAt      *time.Time           `json:"taken_at,omitempty"`
	Status       DoseStatus           `json:"status"`
	RecordedZone string               `json:"recorded_zone"`
	Note         string               `json:"note,omitempty"`
	EventID      *string              `json:"event_id,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Event is one row of the append-only audit trail.
type Event struct {
	ID         int64     `json:"id"`
	TS         time.Time `json:"ts"`
	Type       string    `json:"type"`
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id,omitempty"`
	Payload    string    `json:"payload,omitempty"`
}

// TransitionEvent records one confirmed zone change. Events are immutable;
// a wrong one is superseded by a later event, never edited.
type TransitionEvent struct {
	ID            string          `json:"id"`
	PreviousZone  string          `json:"previous_zone"`
	NewZone       string          `json:"new_zone"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Detection     DetectionMethod `json:"detection"`
	UserConfirmed bool            `json:"user_confirmed"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PendingTransition is the single unconfirmed detection candidate. A newer
// detection replaces it; confirming or discarding clears it.
type PendingTransition struct {
	PreviousZone string          `json:"previous_zone"`
	NewZone      string          `json:"new_zone"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Detection    DetectionMethod `json:"detection"`
	DetectedAt   time.Time       `json:"detected_at"`
}

// ScheduleAdjustment is the append-only audit row for one re-anchoring of
// one schedule under one event. Gradual shifts write one row per step.
type ScheduleAdjustment struct {
	ID            string               `json:"id"`
	EventID       string               `json:"event_id"`
	ScheduleID    string               `json:"schedule_id"`
	Strategy      AdjustmentStrategy   `json:"strategy"`
	OldZone       string               `json:"old_zone"`
	NewZone       string               `json:"new_zone"`
	OldTime       zoneclock.CivilTime  `json:"old_time"`
	NewTime       zoneclock.CivilTime  `json:"new_time"`
	Step          int                  `json:"step"`
	StepCount     int                  `json:"step_count"`
	EffectiveDate *zoneclock.CivilDate `json:"effective_date,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}
