package zoneclock_test

import (
	"errors"
	"testing"
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/apperr"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

func civil(y int, mo time.Month, d, h, mi int) zoneclock.CivilDateTime {
	return zoneclock.CivilDateTime{Year: y, Month: mo, Day: d, Hour: h, Minute: mi}
}

func TestRoundTripExact(t *testing.T) {
	c := civil(2024, time.June, 15, 8, 30)
	instant, res, err := zoneclock.ToInstant(c, "America/New_York", zoneclock.DefaultResolve)
	if err != nil {
		t.Fatalf("to instant: %v", err)
	}
	if res != zoneclock.ResolvedExact {
		t.Fatalf("expected exact resolution, got %s", res)
	}
	back, err := zoneclock.ToCivil(instant, "America/New_York")
	if err != nil {
		t.Fatalf("to civil: %v", err)
	}
	if back != c {
		t.Fatalf("round trip mismatch: %s != %s", back, c)
	}
	// June 15 EDT is UTC-4.
	if got := instant.UTC().Hour(); got != 12 {
		t.Fatalf("expected 12:30 UTC, got hour %d", got)
	}
}

func TestSpringForwardGap(t *testing.T) {
	// 02:30 on 2024-03-10 does not exist in America/New_York.
	c := civil(2024, time.March, 10, 2, 30)

	instant, res, err := zoneclock.ToInstant(c, "America/New_York", zoneclock.DefaultResolve)
	if err != nil {
		t.Fatalf("gap shift: %v", err)
	}
	if res != zoneclock.ResolvedGapShifted {
		t.Fatalf("expected gap_shifted, got %s", res)
	}
	back, err := zoneclock.ToCivil(instant, "America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	// Shifted forward by the one-hour gap.
	if back.Hour != 3 || back.Minute != 30 {
		t.Fatalf("expected 03:30, got %02d:%02d", back.Hour, back.Minute)
	}

	_, _, err = zoneclock.ToInstant(c, "America/New_York", zoneclock.Strict)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.AmbiguousOrInvalidCivilTime {
		t.Fatalf("expected ambiguous_civil_time error, got %v", err)
	}
}

func TestFallBackFold(t *testing.T) {
	// 01:30 on 2024-11-03 occurs twice in America/New_York.
	c := civil(2024, time.November, 3, 1, 30)

	early, res, err := zoneclock.ToInstant(c, "America/New_York", zoneclock.DefaultResolve)
	if err != nil {
		t.Fatalf("fold early: %v", err)
	}
	if res != zoneclock.ResolvedFoldEarly {
		t.Fatalf("expected fold_early, got %s", res)
	}

	late, res, err := zoneclock.ToInstant(c, "America/New_York", zoneclock.ResolvePolicy{Fold: zoneclock.FoldLate})
	if err != nil {
		t.Fatalf("fold late: %v", err)
	}
	if res != zoneclock.ResolvedFoldLate {
		t.Fatalf("expected fold_late, got %s", res)
	}
	if got := late.Sub(early); got != time.Hour {
		t.Fatalf("expected occurrences one hour apart, got %s", got)
	}

	_, _, err = zoneclock.ToInstant(c, "America/New_York", zoneclock.Strict)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.AmbiguousOrInvalidCivilTime {
		t.Fatalf("expected ambiguous_civil_time error, got %v", err)
	}
}

func TestUnknownZone(t *testing.T) {
	_, err := zoneclock.Canonical("Mars/Olympus_Mons")
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.UnknownZone {
		t.Fatalf("expected unknown_zone error, got %v", err)
	}
	if zoneclock.IsValidZone("") {
		t.Fatalf("empty identifier must be invalid")
	}
	_, _, err = zoneclock.ToInstant(civil(2024, 1, 1, 0, 0), "Nope/Nowhere", zoneclock.DefaultResolve)
	if !errors.As(err, &ae) || ae.Kind != apperr.UnknownZone {
		t.Fatalf("expected unknown_zone from ToInstant, got %v", err)
	}
}

func TestAliases(t *testing.T) {
	got, err := zoneclock.Canonical("US/Eastern")
	if err != nil {
		t.Fatal(err)
	}
	if got != "America/New_York" {
		t.Fatalf("US/Eastern canonicalized to %q", got)
	}
	same, err := zoneclock.Same("US/Eastern", "America/New_York")
	if err != nil || !same {
		t.Fatalf("expected US/Eastern == America/New_York: same=%v err=%v", same, err)
	}
	// Sharing an offset is not the same zone.
	same, err = zoneclock.Same("America/Phoenix", "America/Denver")
	if err != nil {
		t.Fatal(err)
	}
	if same {
		t.Fatalf("Phoenix and Denver must differ")
	}
}

func TestRegisterAliases(t *testing.T) {
	zoneclock.RegisterAliases(map[string]string{"Home": "Europe/Berlin"})
	got, err := zoneclock.Canonical("Home")
	if err != nil || got != "Europe/Berlin" {
		t.Fatalf("custom alias: got %q err %v", got, err)
	}
}

func TestOffsetDelta(t *testing.T) {
	at := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	// New York is UTC-4 and London UTC+1 in June.
	delta, err := zoneclock.OffsetDelta("America/New_York", "Europe/London", at)
	if err != nil {
		t.Fatal(err)
	}
	if delta != 5*3600 {
		t.Fatalf("expected +5h delta, got %d", delta)
	}
}

func TestCivilHelpers(t *testing.T) {
	d, err := zoneclock.ParseCivilDate("2024-03-10")
	if err != nil {
		t.Fatal(err)
	}
	if d.Weekday() != time.Sunday {
		t.Fatalf("2024-03-10 is a Sunday, got %s", d.Weekday())
	}
	if got := d.AddDays(21).String(); got != "2024-03-31" {
		t.Fatalf("add days: %s", got)
	}
	if _, err := zoneclock.ParseCivilDate("03/10/2024"); err == nil {
		t.Fatalf("expected parse error")
	}
	ct, err := zoneclock.ParseCivilTime("23:45")
	if err != nil || ct.MinuteOfDay() != 23*60+45 {
		t.Fatalf("parse civil time: %v %v", ct, err)
	}
	if got := zoneclock.CivilTimeOfMinutes(-30).String(); got != "23:30" {
		t.Fatalf("negative minutes normalize: %s", got)
	}
}
