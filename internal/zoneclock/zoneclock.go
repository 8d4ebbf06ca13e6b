// Package zoneclock converts between absolute instants and civil
// (wall-clock) time in named IANA zones, with explicit policies for the
// wall times that do not exist (DST gaps) or exist twice (DST folds).
package zoneclock

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/apperr"
)

// CivilDate is a calendar date without zone context.
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Weekday returns the day of week for the date. Weekday is a property of
// the calendar date alone, so the zone used for the computation is
// irrelevant.
func (d CivilDate) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

func (d CivilDate) AddDays(n int) CivilDate {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return CivilDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d CivilDate) IsZero() bool { return d == CivilDate{} }

func ParseCivilDate(s string) (CivilDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return CivilDate{}, apperr.Newf(apperr.InvalidDate, "date", "not a calendar date: %q", s)
	}
	return CivilDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// CivilTime is a wall-clock time of day.
type CivilTime struct {
	Hour   int
	Minute int
}

func (c CivilTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c CivilTime) MinuteOfDay() int { return c.Hour*60 + c.Minute }

func (c CivilTime) Validate() error {
	if c.Hour < 0 || c.Hour > 23 {
		return apperr.Newf(apperr.InvalidRange, "hour", "%d out of range 0-23", c.Hour)
	}
	if c.Minute < 0 || c.Minute > 59 {
		return apperr.Newf(apperr.InvalidRange, "minute", "%d out of range 0-59", c.Minute)
	}
	return nil
}

func ParseCivilTime(s string) (CivilTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return CivilTime{}, apperr.Newf(apperr.InvalidValue, "time", "not a HH:MM time: %q", s)
	}
	return CivilTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// CivilTimeOfMinutes converts a minute-of-day back into a wall-clock time,
// normalizing into [0, 1440).
func CivilTimeOfMinutes(m int) CivilTime {
	m %= 24 * 60
	if m < 0 {
		m += 24 * 60
	}
	return CivilTime{Hour: m / 60, Minute: m % 60}
}

// CivilDateTime is a full set of wall-clock fields without zone context.
type CivilDateTime struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

func (c CivilDateTime) Date() CivilDate { return CivilDate{Year: c.Year, Month: c.Month, Day: c.Day} }

func (c CivilDateTime) TimeOfDay() CivilTime { return CivilTime{Hour: c.Hour, Minute: c.Minute} }

func (c CivilDateTime) String() string {
	return fmt.Sprintf("%sT%02d:%02d:%02d", c.Date(), c.Hour, c.Minute, c.Second)
}

// Of combines a date and a time of day.
func Of(d CivilDate, t CivilTime) CivilDateTime {
	return CivilDateTime{Year: d.Year, Month: d.Month, Day: d.Day, Hour: t.Hour, Minute: t.Minute}
}

// Resolution reports which path ToInstant took for a requested civil time.
type Resolution int

const (
	// ResolvedExact means the civil time exists exactly once in the zone.
	ResolvedExact Resolution = iota
	// ResolvedGapShifted means the civil time falls in a spring-forward gap
	// and was shifted forward by the gap length.
	ResolvedGapShifted
	// ResolvedFoldEarly means the civil time occurs twice and the first
	// occurrence (earlier instant) was chosen.
	ResolvedFoldEarly
	// ResolvedFoldLate means the second occurrence was chosen.
	ResolvedFoldLate
)

func (r Resolution) String() string {
	switch r {
	case ResolvedGapShifted:
		return "gap_shifted"
	case ResolvedFoldEarly:
		return "fold_early"
	case ResolvedFoldLate:
		return "fold_late"
	default:
		return "exact"
	}
}

// GapPolicy selects how nonexistent civil times resolve.
type GapPolicy int

const (
	GapShiftForward GapPolicy = iota
	GapError
)

// FoldPolicy selects which of two occurrences an ambiguous civil time
// resolves to.
type FoldPolicy int

const (
	FoldEarly FoldPolicy = iota
	FoldLate
	FoldError
)

// ResolvePolicy controls disambiguation in ToInstant.
type ResolvePolicy struct {
	Gap  GapPolicy
	Fold FoldPolicy
}

// DefaultResolve shifts gap times forward and picks the first occurrence of
// fold times. Schedule computation always uses this policy so that every
// affected day still yields exactly one occurrence.
var DefaultResolve = ResolvePolicy{Gap: GapShiftForward, Fold: FoldEarly}

// Strict errors instead of disambiguating.
var Strict = ResolvePolicy{Gap: GapError, Fold: FoldError}

// Location resolves a canonical or aliased zone identifier to its rules.
func Location(zoneID string) (*time.Location, error) {
	id := strings.TrimSpace(zoneID)
	if id == "" {
		return nil, apperr.New(apperr.EmptyField, "zone", "zone identifier is required")
	}
	if canonical, ok := zoneAliases[id]; ok {
		id = canonical
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, apperr.Newf(apperr.UnknownZone, "zone", "unknown zone %q", zoneID)
	}
	return loc, nil
}

// IsValidZone reports whether the identifier names a zone in the catalog.
func IsValidZone(zoneID string) bool {
	_, err := Location(zoneID)
	return err == nil
}

// Canonical maps an identifier through the alias table and verifies it
// against the zone catalog. The returned name is what gets persisted.
func Canonical(zoneID string) (string, error) {
	id := strings.TrimSpace(zoneID)
	if id == "" {
		return "", apperr.New(apperr.EmptyField, "zone", "zone identifier is required")
	}
	if canonical, ok := zoneAliases[id]; ok {
		id = canonical
	}
	if _, err := time.LoadLocation(id); err != nil {
		return "", apperr.Newf(apperr.UnknownZone, "zone", "unknown zone %q", zoneID)
	}
	return id, nil
}

// Same reports whether two identifiers denote the same civil-time rules.
// Equality is decided by alias canonicalization: identifiers that merely
// share a current offset are not the same zone.
func Same(a, b string) (bool, error) {
	ca, err := Canonical(a)
	if err != nil {
		return false, err
	}
	cb, err := Canonical(b)
	if err != nil {
		return false, err
	}
	return ca == cb, nil
}

// ToCivil converts an absolute instant to the wall-clock fields observed in
// the zone at that instant.
func ToCivil(t time.Time, zoneID string) (CivilDateTime, error) {
	loc, err := Location(zoneID)
	if err != nil {
		return CivilDateTime{}, err
	}
	return civilAt(t, loc), nil
}

func civilAt(t time.Time, loc *time.Location) CivilDateTime {
	lt := t.In(loc)
	return CivilDateTime{
		Year:   lt.Year(),
		Month:  lt.Month(),
		Day:    lt.Day(),
		Hour:   lt.Hour(),
		Minute: lt.Minute(),
		Second: lt.Second(),
	}
}

// ToInstant converts wall-clock fields in a zone to the absolute instant
// they name, applying the policy when the fields fall in a gap or a fold.
//
// Candidate instants are found by reinterpreting the fields with every UTC
// offset the zone uses within a day of the requested time; IANA zones never
// transition twice inside that window, so the probe sees both sides of any
// transition.
func ToInstant(c CivilDateTime, zoneID string, pol ResolvePolicy) (time.Time, Resolution, error) {
	loc, err := Location(zoneID)
	if err != nil {
		return time.Time{}, ResolvedExact, err
	}
	utcGuess := time.Date(c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second, 0, time.UTC)

	offsets := map[int]struct{}{}
	for _, d := range []time.Duration{-24 * time.Hour, 0, 24 * time.Hour} {
		_, off := utcGuess.Add(d).In(loc).Zone()
		offsets[off] = struct{}{}
	}

	seen := map[int64]struct{}{}
	var candidates []time.Time
	for off := range offsets {
		cand := utcGuess.Add(-time.Duration(off) * time.Second)
		if civilAt(cand, loc) != c {
			continue
		}
		if _, dup := seen[cand.Unix()]; dup {
			continue
		}
		seen[cand.Unix()] = struct{}{}
		candidates = append(candidates, cand)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })

	switch len(candidates) {
	case 1:
		return candidates[0], ResolvedExact, nil
	case 0:
		if pol.Gap == GapError {
			return time.Time{}, ResolvedExact,
				apperr.Newf(apperr.AmbiguousOrInvalidCivilTime, "civil", "%s does not exist in %s", c, zoneID)
		}
		// Interpreting the fields with the pre-transition offset lands past
		// the transition, which is exactly the requested wall time shifted
		// forward by the gap length.
		before := 0
		first := true
		for off := range offsets {
			if first || off < before {
				before = off
				first = false
			}
		}
		return utcGuess.Add(-time.Duration(before) * time.Second), ResolvedGapShifted, nil
	default:
		switch pol.Fold {
		case FoldError:
			return time.Time{}, ResolvedExact,
				apperr.Newf(apperr.AmbiguousOrInvalidCivilTime, "civil", "%s occurs twice in %s", c, zoneID)
		case FoldLate:
			return candidates[len(candidates)-1], ResolvedFoldLate, nil
		default:
			return candidates[0], ResolvedFoldEarly, nil
		}
	}
}

// OffsetSeconds returns the zone's UTC offset in effect at the instant.
func OffsetSeconds(zoneID string, at time.Time) (int, error) {
	loc, err := Location(zoneID)
	if err != nil {
		return 0, err
	}
	_, off := at.In(loc).Zone()
	return off, nil
}

// OffsetDelta returns offset(to) - offset(from) in seconds at the instant.
// Around the date line combined with large offsets the magnitude can exceed
// 24 hours; callers must not assume otherwise.
func OffsetDelta(fromZone, toZone string, at time.Time) (int, error) {
	from, err := OffsetSeconds(fromZone, at)
	if err != nil {
		return 0, err
	}
	to, err := OffsetSeconds(toZone, at)
	if err != nil {
		return 0, err
	}
	return to - from, nil
}
