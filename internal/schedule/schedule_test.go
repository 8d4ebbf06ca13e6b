package schedule_test

import (
	"testing"
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/schedule"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

func timeOfDaySchedule(zone string, hour, minute int, mask domain.DayMask) domain.Schedule {
	return domain.Schedule{
		ID:            "sched-1",
		MedicationID:  "med-1",
		Kind:          domain.ScheduleTimeOfDay,
		ReferenceZone: zone,
		TimeOfDay:     zoneclock.CivilTime{Hour: hour, Minute: minute},
		DayMask:       mask,
		Enabled:       true,
	}
}

func TestValidate(t *testing.T) {
	s := timeOfDaySchedule("America/New_York", 8, 0, domain.DayMaskAll)
	if err := schedule.Validate(s, true); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
	s.DayMask = 0
	if err := schedule.Validate(s, true); err == nil {
		t.Fatalf("empty day mask accepted")
	}
	s.DayMask = domain.DayMaskAll
	s.ReferenceZone = "Nope/Nowhere"
	if err := schedule.Validate(s, true); err == nil {
		t.Fatalf("unknown zone accepted")
	}
	s.ReferenceZone = "America/New_York"
	if err := schedule.Validate(s, false); err == nil {
		t.Fatalf("enabled schedule on inactive medication accepted")
	}
	iv := domain.Schedule{
		MedicationID:  "med-1",
		Kind:          domain.ScheduleInterval,
		ReferenceZone: "UTC",
		Interval:      8 * time.Hour,
	}
	if err := schedule.Validate(iv, true); err == nil {
		t.Fatalf("interval schedule without anchor accepted")
	}
}

func TestNextOccurrenceStrictlyAfter(t *testing.T) {
	s := timeOfDaySchedule("UTC", 8, 0, domain.DayMaskAll)
	at := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)

	next, err := schedule.NextOccurrence(s, at)
	if err != nil {
		t.Fatal(err)
	}
	// The 08:00 occurrence at the query instant itself must not count.
	want := time.Date(2024, 6, 11, 8, 0, 0, 0, time.UTC)
	if next == nil || !next.Equal(want) {
		t.Fatalf("expected %s, got %v", want, next)
	}
}

func TestNextOccurrenceDayMask(t *testing.T) {
	// Mondays only; query from a Monday after the dose time.
	s := timeOfDaySchedule("UTC", 9, 0, domain.DayMaskOf(time.Monday))
	at := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC) // Monday

	next, err := schedule.NextOccurrence(s, at)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 6, 17, 9, 0, 0, 0, time.UTC)
	if next == nil || !next.Equal(want) {
		t.Fatalf("expected next Monday %s, got %v", want, next)
	}
}

func TestNextOccurrenceDisabledAndAsNeeded(t *testing.T) {
	s := timeOfDaySchedule("UTC", 8, 0, domain.DayMaskAll)
	s.Enabled = false
	next, err := schedule.NextOccurrence(s, time.Now())
	if err != nil || next != nil {
		t.Fatalf("disabled schedule must yield nil, got %v %v", next, err)
	}
	an := domain.Schedule{Kind: domain.ScheduleAsNeeded, MedicationID: "med-1", ReferenceZone: "UTC", Enabled: true}
	next, err = schedule.NextOccurrence(an, time.Now())
	if err != nil || next != nil {
		t.Fatalf("as-needed schedule must yield nil, got %v %v", next, err)
	}
}

func TestNextOccurrenceAcrossSpringForward(t *testing.T) {
	// 08:00 New York resolves to 13:00 UTC in EST and 12:00 UTC in EDT.
	s := timeOfDaySchedule("America/New_York", 8, 0, domain.DayMaskAll)
	at := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC) // before the US transition

	next, err := schedule.NextOccurrence(s, at)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	if next == nil || !next.Equal(want) {
		t.Fatalf("expected %s, got %v", want, next)
	}
}

func TestScheduledInstantInGap(t *testing.T) {
	// 02:30 does not exist on the US spring-forward date; the dose still
	// lands exactly once, shifted forward.
	s := timeOfDaySchedule("America/New_York", 2, 30, domain.DayMaskAll)
	date := zoneclock.CivilDate{Year: 2024, Month: time.March, Day: 10}

	instant, res, err := schedule.ScheduledInstant(s, date)
	if err != nil {
		t.Fatal(err)
	}
	if res != zoneclock.ResolvedGapShifted {
		t.Fatalf("expected gap_shifted, got %s", res)
	}
	civil, err := zoneclock.ToCivil(instant, "America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	if civil.Hour != 3 || civil.Minute != 30 {
		t.Fatalf("expected 03:30 local, got %02d:%02d", civil.Hour, civil.Minute)
	}
}

func TestIntervalOccurrences(t *testing.T) {
	anchor := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := domain.Schedule{
		ID:            "sched-iv",
		MedicationID:  "med-1",
		Kind:          domain.ScheduleInterval,
		ReferenceZone: "UTC",
		Interval:      8 * time.Hour,
		Anchor:        &anchor,
		Enabled:       true,
	}

	// Query before the anchor lands on the anchor itself.
	next, err := schedule.NextOccurrence(s, anchor.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || !next.Equal(anchor) {
		t.Fatalf("expected anchor, got %v", next)
	}

	// Query after the anchor steps by whole intervals.
	next, err = schedule.NextOccurrence(s, anchor.Add(9*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || !next.Equal(anchor.Add(16*time.Hour)) {
		t.Fatalf("expected anchor+16h, got %v", next)
	}

	occ, err := schedule.OccurrencesWithin(s, anchor, anchor.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	// (from, to] excludes the anchor itself and includes the 24h mark.
	if len(occ) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(occ))
	}
	if !occ[0].Equal(anchor.Add(8*time.Hour)) || !occ[2].Equal(anchor.Add(24*time.Hour)) {
		t.Fatalf("unexpected occurrence bounds: %v", occ)
	}
}

func TestAdherence(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(5 * 24 * time.Hour)
	mk := func(offset time.Duration, status domain.DoseStatus) domain.DoseRecord {
		at := from.Add(offset)
		return domain.DoseRecord{ScheduledAt: &at, Status: status}
	}
	records := []domain.DoseRecord{
		mk(1*time.Hour, domain.DoseTaken),
		mk(25*time.Hour, domain.DoseTaken),
		mk(49*time.Hour, domain.DoseMissed),
		mk(73*time.Hour, domain.DoseSkipped),
		mk(97*time.Hour, domain.DosePending),
		mk(-time.Hour, domain.DoseTaken), // outside window
		{Status: domain.DoseTaken},       // as-needed log, no scheduled instant
	}
	if got := schedule.Adherence(records, from, to); got != 0.4 {
		t.Fatalf("expected rate 0.4, got %v", got)
	}
	if got := schedule.Adherence(nil, from, to); got != 0 {
		t.Fatalf("empty set must yield 0, got %v", got)
	}
}

func TestOverdue(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	if !schedule.Overdue(domain.DoseRecord{Status: domain.DosePending, ScheduledAt: &past}, now) {
		t.Fatalf("past pending dose must be overdue")
	}
	if schedule.Overdue(domain.DoseRecord{Status: domain.DosePending, ScheduledAt: &future}, now) {
		t.Fatalf("future dose must not be overdue")
	}
	if schedule.Overdue(domain.DoseRecord{Status: domain.DoseTaken, ScheduledAt: &past}, now) {
		t.Fatalf("resolved dose must not be overdue")
	}
}
