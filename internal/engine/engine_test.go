package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/apperr"
	"github.com/TrXuk/open-medtracker-sub000/internal/config"
	"github.com/TrXuk/open-medtracker-sub000/internal/db"
	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/engine"
	"github.com/TrXuk/open-medtracker-sub000/internal/migrate"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return testNow }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) seedMedication(t *testing.T) domain.Medication {
	t.Helper()
	m, err := env.Engine.CreateMedication(env.Ctx, engine.MedicationCreateOptions{
		Name:      "Levothyroxine",
		Dosage:    "50mcg",
		StartDate: zoneclock.CivilDate{Year: 2024, Month: time.January, Day: 1},
	})
	if err != nil {
		t.Fatalf("create medication: %v", err)
	}
	return m
}

func (env testEnv) seedDailySchedule(t *testing.T, medicationID, zone string, hour int) domain.Schedule {
	t.Helper()
	s, err := env.Engine.CreateSchedule(env.Ctx, engine.ScheduleCreateOptions{
		MedicationID:  medicationID,
		Kind:          domain.ScheduleTimeOfDay,
		ReferenceZone: zone,
		TimeOfDay:     zoneclock.CivilTime{Hour: hour},
		DayMask:       domain.DayMaskAll,
		Enabled:       true,
	})
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	return s
}

func date(y int, mo time.Month, d int) zoneclock.CivilDate {
	return zoneclock.CivilDate{Year: y, Month: mo, Day: d}
}

func TestGenerateDosesIdempotent(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMedication(t)
	env.seedDailySchedule(t, m.ID, "UTC", 8)

	created, err := env.Engine.GenerateDoses(env.Ctx, date(2024, 6, 16), date(2024, 6, 18))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 doses, got %d", len(created))
	}
	want := time.Date(2024, 6, 16, 8, 0, 0, 0, time.UTC)
	if !created[0].ScheduledAt.Equal(want) {
		t.Fatalf("first dose at %v, want %v", created[0].ScheduledAt, want)
	}

	// A second run over the same range creates nothing.
	again, err := env.Engine.GenerateDoses(env.Ctx, date(2024, 6, 16), date(2024, 6, 18))
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected idempotent run, got %d new doses", len(again))
	}

	// Extending the range only fills the new day.
	more, err := env.Engine.GenerateDoses(env.Ctx, date(2024, 6, 16), date(2024, 6, 19))
	if err != nil {
		t.Fatal(err)
	}
	if len(more) != 1 {
		t.Fatalf("expected 1 new dose, got %d", len(more))
	}
}

func TestGenerateDosesRejectsBackwardRange(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GenerateDoses(env.Ctx, date(2024, 6, 18), date(2024, 6, 16))
	if !apperr.Is(err, apperr.InvalidRange) {
		t.Fatalf("expected invalid_range, got %v", err)
	}
}

func TestGenerateIntervalDoses(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMedication(t)
	anchor := time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC)
	_, err := env.Engine.CreateSchedule(env.Ctx, engine.ScheduleCreateOptions{
		MedicationID:  m.ID,
		Kind:          domain.ScheduleInterval,
		ReferenceZone: "UTC",
		Interval:      8 * time.Hour,
		Anchor:        &anchor,
		Enabled:       true,
	})
	if err != nil {
		t.Fatalf("create interval schedule: %v", err)
	}

	created, err := env.Engine.GenerateDoses(env.Ctx, date(2024, 6, 16), date(2024, 6, 16))
	if err != nil {
		t.Fatal(err)
	}
	// Anchor day yields 00:00, 08:00 and 16:00; midnight of the next day
	// belongs to the next date.
	if len(created) != 3 {
		t.Fatalf("expected 3 doses, got %d", len(created))
	}
	if !created[0].ScheduledAt.Equal(anchor) {
		t.Fatalf("first occurrence %v, want anchor", created[0].ScheduledAt)
	}

	again, err := env.Engine.GenerateDoses(env.Ctx, date(2024, 6, 16), date(2024, 6, 16))
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("interval generation not idempotent: %d new doses", len(again))
	}
}

func TestDoseStateMachine(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMedication(t)
	env.seedDailySchedule(t, m.ID, "UTC", 8)

	created, err := env.Engine.GenerateDoses(env.Ctx, date(2024, 6, 14), date(2024, 6, 14))
	if err != nil || len(created) != 1 {
		t.Fatalf("generate: %v (%d doses)", err, len(created))
	}
	id := created[0].ID

	// pending -> missed -> taken is the correction path.
	d, err := env.Engine.MarkMissed(env.Ctx, id, "")
	if err != nil || d.Status != domain.DoseMissed {
		t.Fatalf("mark missed: %v", err)
	}
	d, err = env.Engine.MarkTaken(env.Ctx, id, nil, "", "late but taken")
	if err != nil || d.Status != domain.DoseTaken {
		t.Fatalf("correct to taken: %v", err)
	}
	if d.TakenAt == nil || !d.TakenAt.Equal(testNow) {
		t.Fatalf("taken_at not defaulted to now: %v", d.TakenAt)
	}

	// taken -> skipped is not a legal move.
	_, err = env.Engine.MarkSkipped(env.Ctx, id, "")
	if !apperr.Is(err, apperr.BusinessRuleViolation) {
		t.Fatalf("expected business rule violation, got %v", err)
	}

	// Reset returns to pending and clears intake state.
	d, err = env.Engine.ResetDose(env.Ctx, id)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if d.Status != domain.DosePending || d.TakenAt != nil || d.Note != "" {
		t.Fatalf("reset left residue: %+v", d)
	}
	_, err = env.Engine.ResetDose(env.Ctx, id)
	if !apperr.Is(err, apperr.BusinessRuleViolation) {
		t.Fatalf("expected reject of already-pending reset, got %v", err)
	}
}

func TestMarkTakenTolerances(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMedication(t)
	env.seedDailySchedule(t, m.ID, "UTC", 8)

	created, err := env.Engine.GenerateDoses(env.Ctx, date(2024, 6, 14), date(2024, 6, 14))
	if err != nil || len(created) != 1 {
		t.Fatalf("generate: %v", err)
	}
	id := created[0].ID

	// Beyond the future tolerance.
	future := testNow.Add(2 * time.Hour)
	_, err = env.Engine.MarkTaken(env.Ctx, id, &future, "", "")
	if !apperr.Is(err, apperr.InvalidDate) {
		t.Fatalf("expected invalid_date for future taken_at, got %v", err)
	}

	// More than the backfill window before the scheduled instant.
	tooOld := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	_, err = env.Engine.MarkTaken(env.Ctx, id, &tooOld, "", "")
	if !apperr.Is(err, apperr.InvalidRange) {
		t.Fatalf("expected invalid_range for backfill, got %v", err)
	}

	// Within both bounds, with an alias zone that must canonicalize.
	at := time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC)
	d, err := env.Engine.MarkTaken(env.Ctx, id, &at, "US/Eastern", "")
	if err != nil {
		t.Fatalf("mark taken: %v", err)
	}
	if d.RecordedZone != "America/New_York" {
		t.Fatalf("zone not canonicalized: %s", d.RecordedZone)
	}
}

func TestMarkMissedBeforeDue(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMedication(t)
	env.seedDailySchedule(t, m.ID, "UTC", 8)

	// A dose scheduled for tomorrow can be declared missed ahead of time.
	created, err := env.Engine.GenerateDoses(env.Ctx, date(2024, 6, 16), date(2024, 6, 16))
	if err != nil || len(created) != 1 {
		t.Fatalf("generate: %v", err)
	}
	d, err := env.Engine.MarkMissed(env.Ctx, created[0].ID, "overnight flight")
	if err != nil {
		t.Fatalf("mark missed ahead of schedule: %v", err)
	}
	if d.Status != domain.DoseMissed || d.Note != "overnight flight" {
		t.Fatalf("unexpected record: %+v", d)
	}

	// A resolved ad-hoc log cannot be missed.
	logged, err := env.Engine.LogAsNeededDose(env.Ctx, m.ID, nil, "UTC", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.MarkMissed(env.Ctx, logged.ID, ""); !apperr.Is(err, apperr.BusinessRuleViolation) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestLogAsNeededDose(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMedication(t)

	d, err := env.Engine.LogAsNeededDose(env.Ctx, m.ID, nil, "Europe/London", "headache")
	if err != nil {
		t.Fatalf("log dose: %v", err)
	}
	if d.Status != domain.DoseTaken || d.ScheduleID != nil || d.ScheduledAt != nil {
		t.Fatalf("unexpected log record: %+v", d)
	}

	// An ad-hoc log has no pending state to return to.
	_, err = env.Engine.ResetDose(env.Ctx, d.ID)
	if !apperr.Is(err, apperr.BusinessRuleViolation) {
		t.Fatalf("expected reset rejection, got %v", err)
	}

	// Zone is mandatory for ad-hoc logs.
	_, err = env.Engine.LogAsNeededDose(env.Ctx, m.ID, nil, "", "")
	if !apperr.Is(err, apperr.EmptyField) {
		t.Fatalf("expected empty zone rejection, got %v", err)
	}

	// Inactive medication cannot be logged against.
	if _, err := env.Engine.DeactivateMedication(env.Ctx, m.ID, nil); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err = env.Engine.LogAsNeededDose(env.Ctx, m.ID, nil, "Europe/London", "")
	if !apperr.Is(err, apperr.BusinessRuleViolation) {
		t.Fatalf("expected inactive rejection, got %v", err)
	}
}

func TestDeactivateDisablesSchedules(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMedication(t)
	s := env.seedDailySchedule(t, m.ID, "UTC", 8)

	if _, err := env.Engine.DeactivateMedication(env.Ctx, m.ID, nil); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, err := env.Engine.Repo.GetSchedule(env.Ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled {
		t.Fatalf("schedule still enabled after deactivation")
	}
	// Re-enabling against an inactive medication is rejected.
	_, err = env.Engine.SetScheduleEnabled(env.Ctx, s.ID, true)
	if !apperr.Is(err, apperr.BusinessRuleViolation) {
		t.Fatalf("expected enable rejection, got %v", err)
	}
	// Deactivating twice is rejected.
	_, err = env.Engine.DeactivateMedication(env.Ctx, m.ID, nil)
	if !apperr.Is(err, apperr.BusinessRuleViolation) {
		t.Fatalf("expected already-inactive rejection, got %v", err)
	}
}

func TestPendingTransitionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	// Equivalent identifiers record nothing.
	p, err := env.Engine.DetectTransition(env.Ctx, "US/Eastern", "America/New_York", time.Time{}, domain.DetectionManual)
	if err != nil || p != nil {
		t.Fatalf("alias pair must be a no-op: %v %v", p, err)
	}

	first := testNow.Add(-2 * time.Hour)
	p, err = env.Engine.DetectTransition(env.Ctx, "America/New_York", "Europe/London", first, domain.DetectionAutomatic)
	if err != nil || p == nil {
		t.Fatalf("detect: %v", err)
	}

	// The same pair seen again keeps the earliest occurrence instant.
	p, err = env.Engine.DetectTransition(env.Ctx, "America/New_York", "Europe/London", testNow, domain.DetectionAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	if !p.OccurredAt.Equal(first) {
		t.Fatalf("coalesce lost earliest instant: %v", p.OccurredAt)
	}

	// A different pair replaces the slot.
	p, err = env.Engine.DetectTransition(env.Ctx, "Europe/London", "Asia/Tokyo", testNow, domain.DetectionAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	if p.PreviousZone != "Europe/London" || p.NewZone != "Asia/Tokyo" {
		t.Fatalf("slot not replaced: %+v", p)
	}

	evt, err := env.Engine.ConfirmPending(env.Ctx)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !evt.UserConfirmed || evt.NewZone != "Asia/Tokyo" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	got, err := env.Engine.PendingTransition(env.Ctx)
	if err != nil || got != nil {
		t.Fatalf("slot not cleared: %v %v", got, err)
	}
	_, err = env.Engine.ConfirmPending(env.Ctx)
	if !apperr.Is(err, apperr.BusinessRuleViolation) {
		t.Fatalf("expected empty-slot rejection, got %v", err)
	}

	// Discard drops a candidate without recording an event.
	if _, err := env.Engine.DetectTransition(env.Ctx, "Asia/Tokyo", "UTC", testNow, domain.DetectionManual); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DiscardPending(env.Ctx); err != nil {
		t.Fatalf("discard: %v", err)
	}
	events, err := env.Engine.Repo.ListTransitionEvents(env.Ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one confirmed event, got %d", len(events))
	}
}

func TestRecordTransitionValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.RecordTransition(env.Ctx, engine.TransitionRecordOptions{
		PreviousZone: "US/Eastern",
		NewZone:      "America/New_York",
	})
	if !apperr.Is(err, apperr.BusinessRuleViolation) {
		t.Fatalf("expected same-zone rejection, got %v", err)
	}

	_, err = env.Engine.RecordTransition(env.Ctx, engine.TransitionRecordOptions{
		PreviousZone: "America/New_York",
		NewZone:      "Europe/London",
		OccurredAt:   testNow.Add(time.Hour),
	})
	if !apperr.Is(err, apperr.InvalidDate) {
		t.Fatalf("expected future rejection, got %v", err)
	}

	_, err = env.Engine.RecordTransition(env.Ctx, engine.TransitionRecordOptions{
		PreviousZone: "America/New_York",
		NewZone:      "Europe/London",
		OccurredAt:   testNow.AddDate(-3, 0, 0),
	})
	if !apperr.Is(err, apperr.InvalidRange) {
		t.Fatalf("expected retention rejection, got %v", err)
	}

	evt, err := env.Engine.RecordTransition(env.Ctx, engine.TransitionRecordOptions{
		PreviousZone: "America/New_York",
		NewZone:      "Europe/London",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !evt.OccurredAt.Equal(testNow) || evt.Detection != domain.DetectionManual {
		t.Fatalf("defaults not applied: %+v", evt)
	}
}

func TestApplyAdjustments(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMedication(t)
	s := env.seedDailySchedule(t, m.ID, "America/New_York", 8)

	evt, err := env.Engine.RecordTransition(env.Ctx, engine.TransitionRecordOptions{
		PreviousZone: "America/New_York",
		NewZone:      "Europe/London",
		OccurredAt:   testNow.Add(-time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Proposing writes nothing.
	proposed, err := env.Engine.ProposeAdjustments(env.Ctx, evt.ID, domain.KeepLocalTime, 0, nil)
	if err != nil || len(proposed) != 1 {
		t.Fatalf("propose: %v (%d)", err, len(proposed))
	}
	stored, err := env.Engine.Repo.ListAdjustmentsByEvent(env.Ctx, evt.ID)
	if err != nil || len(stored) != 0 {
		t.Fatalf("propose persisted rows: %v (%d)", err, len(stored))
	}

	applied, err := env.Engine.ApplyAdjustments(env.Ctx, evt.ID, domain.GradualShift, 3, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(applied) != 3 {
		t.Fatalf("expected 3 step rows, got %d", len(applied))
	}
	stored, err = env.Engine.Repo.ListAdjustmentsByEvent(env.Ctx, evt.ID)
	if err != nil || len(stored) != 3 {
		t.Fatalf("adjustments not persisted: %v (%d)", err, len(stored))
	}

	// The schedule lands on the final step: new zone, original civil time.
	got, err := env.Engine.Repo.GetSchedule(env.Ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReferenceZone != "Europe/London" {
		t.Fatalf("zone not moved: %s", got.ReferenceZone)
	}
	if got.TimeOfDay != (zoneclock.CivilTime{Hour: 8}) {
		t.Fatalf("final time wrong: %s", got.TimeOfDay)
	}
}

func TestAssociateAffectedDoses(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMedication(t)
	env.seedDailySchedule(t, m.ID, "UTC", 8)

	created, err := env.Engine.GenerateDoses(env.Ctx, date(2024, 6, 14), date(2024, 6, 16))
	if err != nil || len(created) != 3 {
		t.Fatalf("generate: %v (%d)", err, len(created))
	}

	// Resolving a dose must not exempt it from association.
	takenAt := time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC)
	if _, err := env.Engine.MarkTaken(env.Ctx, created[0].ID, &takenAt, "", ""); err != nil {
		t.Fatalf("mark taken: %v", err)
	}

	evt, err := env.Engine.RecordTransition(env.Ctx, engine.TransitionRecordOptions{
		PreviousZone: "America/New_York",
		NewZone:      "Europe/London",
		OccurredAt:   time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Window is 24h: only the June 14 and June 15 doses qualify.
	linked, err := env.Engine.AssociateAffectedDoses(env.Ctx, evt.ID)
	if err != nil {
		t.Fatalf("associate: %v", err)
	}
	if linked != 2 {
		t.Fatalf("expected 2 linked doses, got %d", linked)
	}
	taken, err := env.Engine.Repo.GetDose(env.Ctx, created[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if taken.EventID == nil || *taken.EventID != evt.ID {
		t.Fatalf("taken dose inside the window was not associated: %+v", taken)
	}

	// Re-running links nothing new.
	linked, err = env.Engine.AssociateAffectedDoses(env.Ctx, evt.ID)
	if err != nil || linked != 0 {
		t.Fatalf("expected idempotent association, got %d (%v)", linked, err)
	}

	// A nearer event takes the dose over; a farther one does not.
	nearer, err := env.Engine.RecordTransition(env.Ctx, engine.TransitionRecordOptions{
		PreviousZone: "Europe/London",
		NewZone:      "Asia/Tokyo",
		OccurredAt:   time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	linked, err = env.Engine.AssociateAffectedDoses(env.Ctx, nearer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if linked == 0 {
		t.Fatalf("nearer event should take over at least one dose")
	}
}

func TestAssociateWindowEdgesInclusive(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMedication(t)
	env.seedDailySchedule(t, m.ID, "UTC", 12)

	// Doses land exactly 24h before, on, and exactly 24h after the event.
	created, err := env.Engine.GenerateDoses(env.Ctx, date(2024, 6, 13), date(2024, 6, 15))
	if err != nil || len(created) != 3 {
		t.Fatalf("generate: %v (%d)", err, len(created))
	}
	evt, err := env.Engine.RecordTransition(env.Ctx, engine.TransitionRecordOptions{
		PreviousZone: "America/New_York",
		NewZone:      "Europe/London",
		OccurredAt:   time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	linked, err := env.Engine.AssociateAffectedDoses(env.Ctx, evt.ID)
	if err != nil {
		t.Fatalf("associate: %v", err)
	}
	if linked != 3 {
		t.Fatalf("expected both window edges included (3 doses), got %d", linked)
	}
}

func TestDateLineTransition(t *testing.T) {
	env := newTestEnv(t)

	// Auckland to Pago Pago is a 23h apparent shift across the date line;
	// it is still one zone change and must yield exactly one event.
	p, err := env.Engine.DetectTransition(env.Ctx, "Pacific/Auckland", "Pacific/Pago_Pago", testNow.Add(-time.Hour), domain.DetectionAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.NewZone != "Pacific/Pago_Pago" {
		t.Fatalf("unexpected pending candidate: %+v", p)
	}
	evt, err := env.Engine.ConfirmPending(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if evt.PreviousZone != "Pacific/Auckland" || evt.NewZone != "Pacific/Pago_Pago" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	events, err := env.Engine.Repo.ListTransitionEvents(env.Ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one recorded event, got %d", len(events))
	}
}

func TestPruneDoseHistory(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMedication(t)

	// An old resolved log falls past the two-year horizon; a recent one and
	// anything pending stay.
	old := testNow.AddDate(-3, 0, 0)
	env.Engine.Now = func() time.Time { return old }
	if _, err := env.Engine.LogAsNeededDose(env.Ctx, m.ID, nil, "UTC", "old"); err != nil {
		t.Fatalf("log old dose: %v", err)
	}
	env.Engine.Now = func() time.Time { return testNow }
	if _, err := env.Engine.LogAsNeededDose(env.Ctx, m.ID, nil, "UTC", "recent"); err != nil {
		t.Fatalf("log recent dose: %v", err)
	}
	env.seedDailySchedule(t, m.ID, "UTC", 8)
	if _, err := env.Engine.GenerateDoses(env.Ctx, date(2024, 6, 14), date(2024, 6, 14)); err != nil {
		t.Fatal(err)
	}

	n, err := env.Engine.PruneDoseHistory(env.Ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned record, got %d", n)
	}
}

func TestNextDose(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMedication(t)
	s := env.seedDailySchedule(t, m.ID, "UTC", 8)

	next, err := env.Engine.NextDose(env.Ctx, s.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 6, 16, 8, 0, 0, 0, time.UTC)
	if next == nil || !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}

	after := time.Date(2024, 6, 20, 9, 0, 0, 0, time.UTC)
	next, err = env.Engine.NextDose(env.Ctx, s.ID, &after)
	if err != nil {
		t.Fatal(err)
	}
	want = time.Date(2024, 6, 21, 8, 0, 0, 0, time.UTC)
	if next == nil || !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}
