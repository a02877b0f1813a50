package prayer

import (
	"testing"
	"time"

	"athand/internal/model"
)

// fixedProvider returns the same six clock times for any requested day,
// anchored to the day's midnight in loc. ok=false when degenerate is set.
type fixedProvider struct {
	degenerate bool
}

func (p *fixedProvider) RawTimes(lat, lng float64, method model.CalculationMethodOption, date time.Time, loc *time.Location) (RawTimes, bool) {
	if p.degenerate {
		return RawTimes{}, false
	}
	at := func(h, m int) time.Time {
		return time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, loc)
	}
	return RawTimes{
		Fajr:    at(5, 0),
		Sunrise: at(6, 10),
		Dhuhr:   at(12, 15),
		Asr:     at(15, 40),
		Maghrib: at(18, 5),
		Isha:    at(19, 20),
	}, true
}

func utcLocation() model.LocationSelection {
	return model.LocationSelection{
		Name:       "Testville",
		Latitude:   40.7128,
		Longitude:  -74.006,
		TimezoneID: "UTC",
	}
}

func TestComputer_ScheduleOrderedAndComplete(t *testing.T) {
	c := NewComputer(&fixedProvider{})
	date := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	sched := c.Schedule(utcLocation(), model.MethodMuslimWorldLeague, date)
	if sched.Loc.String() != "UTC" {
		t.Fatalf("expected UTC schedule, got %s", sched.Loc)
	}
	if len(sched.Entries) != len(model.Kinds) {
		t.Fatalf("expected %d entries, got %d", len(model.Kinds), len(sched.Entries))
	}
	for i, e := range sched.Entries {
		if e.Kind != model.Kinds[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, model.Kinds[i], e.Kind)
		}
		if i > 0 && !sched.Entries[i-1].At.Before(e.At) {
			t.Fatalf("entries not ascending at index %d", i)
		}
	}
}

func TestComputer_DegenerateGeometryYieldsEmptySchedule(t *testing.T) {
	c := NewComputer(&fixedProvider{degenerate: true})
	date := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)

	loc := utcLocation()
	loc.Latitude = 78.22 // Svalbard; midnight sun
	sched := c.Schedule(loc, model.MethodMuslimWorldLeague, date)
	if len(sched.Entries) != 0 {
		t.Fatalf("expected empty schedule, got %d entries", len(sched.Entries))
	}
	if sched.Loc == nil || sched.Loc.String() != "UTC" {
		t.Fatalf("expected timezone preserved on empty schedule, got %v", sched.Loc)
	}
}

func TestComputer_TimezoneSoftFallback(t *testing.T) {
	c := NewComputer(&fixedProvider{})
	loc := utcLocation()
	loc.TimezoneID = "Not/AZone"

	sched := c.Schedule(loc, model.MethodMuslimWorldLeague, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if sched.Loc != time.Local {
		t.Fatalf("expected process-local fallback zone, got %v", sched.Loc)
	}
	if len(sched.Entries) != len(model.Kinds) {
		t.Fatalf("fallback zone must still yield a schedule, got %d entries", len(sched.Entries))
	}
}

func TestNextEntry_PicksFirstStrictlyAfter(t *testing.T) {
	c := NewComputer(&fixedProvider{})
	sched := c.Schedule(utcLocation(), model.MethodMuslimWorldLeague, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))

	cases := []struct {
		now  time.Time
		want model.PrayerKind
	}{
		{time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), model.KindFajr},
		{time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC), model.KindSunrise}, // strictly after
		{time.Date(2026, 3, 10, 12, 14, 59, 0, time.UTC), model.KindDhuhr},
		{time.Date(2026, 3, 10, 18, 5, 1, 0, time.UTC), model.KindIsha},
	}
	for _, tc := range cases {
		got := NextEntry(sched.Entries, tc.now, nil)
		if got == nil || got.Kind != tc.want {
			t.Fatalf("at %v: expected %s, got %+v", tc.now, tc.want, got)
		}
	}
}

func TestNextEntry_FallsBackToNextDayFirst(t *testing.T) {
	c := NewComputer(&fixedProvider{})
	today := c.Entries(utcLocation(), model.MethodMuslimWorldLeague, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	tomorrow := c.Entries(utcLocation(), model.MethodMuslimWorldLeague, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))

	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	got := NextEntry(today, now, tomorrow)
	if got == nil || got.Kind != model.KindFajr {
		t.Fatalf("expected next-day fajr, got %+v", got)
	}
	if got.At.Day() != 11 {
		t.Fatalf("expected next-day date, got %v", got.At)
	}
}

func TestNextEntry_NilWhenExhausted(t *testing.T) {
	if got := NextEntry(nil, time.Now(), nil); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
