package scheduler

import (
	"sync"
	"testing"
	"time"

	"athand/internal/model"
)

// daySchedule builds the reference day used across these tests:
// fajr 05:00, sunrise 06:10, dhuhr 12:15, asr 15:40, maghrib 18:05,
// isha 19:20, all UTC.
func daySchedule(t *testing.T, day time.Time) model.PrayerSchedule {
	t.Helper()
	at := func(h, m int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, time.UTC)
	}
	return model.PrayerSchedule{
		Loc: time.UTC,
		Entries: []model.PrayerEntry{
			model.NewPrayerEntry(model.KindFajr, at(5, 0)),
			model.NewPrayerEntry(model.KindSunrise, at(6, 10)),
			model.NewPrayerEntry(model.KindDhuhr, at(12, 15)),
			model.NewPrayerEntry(model.KindAsr, at(15, 40)),
			model.NewPrayerEntry(model.KindMaghrib, at(18, 5)),
			model.NewPrayerEntry(model.KindIsha, at(19, 20)),
		},
	}
}

type fireRecorder struct {
	mu    sync.Mutex
	fired []model.PrayerKind
}

func (r *fireRecorder) fire(entry model.PrayerEntry, _ *time.Location) {
	r.mu.Lock()
	r.fired = append(r.fired, entry.Kind)
	r.mu.Unlock()
}

func (r *fireRecorder) kinds() []model.PrayerKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.PrayerKind, len(r.fired))
	copy(out, r.fired)
	return out
}

func TestNextEligible_SelectsUpcomingFajr(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sched := daySchedule(t, day)
	s := New(func(model.PrayerEntry, *time.Location) {})

	now := time.Date(2026, 3, 10, 4, 58, 0, 0, time.UTC)
	got := s.nextEligible(sched.Entries, nil, model.DefaultAlertPreferences(), model.LeadAtTime, now)
	if got == nil || got.Kind != model.KindFajr {
		t.Fatalf("expected fajr, got %+v", got)
	}
}

func TestNextEligible_SunriseNeverSelected(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sched := daySchedule(t, day)
	s := New(func(model.PrayerEntry, *time.Location) {})

	// Just after fajr's catch-up window closed; sunrise at 06:10 is the
	// chronologically next entry but must be skipped.
	now := time.Date(2026, 3, 10, 5, 30, 0, 0, time.UTC)
	got := s.nextEligible(sched.Entries, nil, model.DefaultAlertPreferences(), model.LeadAtTime, now)
	if got == nil || got.Kind != model.KindDhuhr {
		t.Fatalf("expected dhuhr, got %+v", got)
	}
}

func TestNextEligible_DisabledKindSkipped(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sched := daySchedule(t, day)
	s := New(func(model.PrayerEntry, *time.Location) {})

	prefs := model.DefaultAlertPreferences()
	prefs.SetEnabled(model.KindFajr, false)

	now := time.Date(2026, 3, 10, 4, 58, 0, 0, time.UTC)
	got := s.nextEligible(sched.Entries, nil, prefs, model.LeadAtTime, now)
	if got == nil || got.Kind != model.KindDhuhr {
		t.Fatalf("expected dhuhr when fajr disabled, got %+v", got)
	}
}

func TestNextEligible_CatchUpWindowBoundaries(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sched := daySchedule(t, day)
	s := New(func(model.PrayerEntry, *time.Location) {})
	prefs := model.DefaultAlertPreferences()
	fajrAt := time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)

	// Exactly at the end of the catch-up window: still selected.
	now := fajrAt.Add(CatchUpWindow)
	got := s.nextEligible(sched.Entries, nil, prefs, model.LeadAtTime, now)
	if got == nil || got.Kind != model.KindFajr {
		t.Fatalf("expected fajr at window end, got %+v", got)
	}

	// One step past the window: fajr is stale, dhuhr takes over.
	now = fajrAt.Add(CatchUpWindow + time.Nanosecond)
	got = s.nextEligible(sched.Entries, nil, prefs, model.LeadAtTime, now)
	if got == nil || got.Kind != model.KindDhuhr {
		t.Fatalf("expected dhuhr past window end, got %+v", got)
	}
}

func TestNextEligible_LeadTimeShiftsWindow(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sched := daySchedule(t, day)
	s := New(func(model.PrayerEntry, *time.Location) {})
	prefs := model.DefaultAlertPreferences()

	// With a 30 minute lead, fajr's effective fire is 04:30; at 04:31 the
	// catch-up branch selects it.
	now := time.Date(2026, 3, 10, 4, 31, 0, 0, time.UTC)
	got := s.nextEligible(sched.Entries, nil, prefs, model.LeadMinutes30, now)
	if got == nil || got.Kind != model.KindFajr {
		t.Fatalf("expected fajr with lead time, got %+v", got)
	}
}

func TestNextEligible_FallsBackToNextDay(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sched := daySchedule(t, day)
	next := daySchedule(t, day.AddDate(0, 0, 1))
	s := New(func(model.PrayerEntry, *time.Location) {})

	// Well past isha; the next day's fajr is the only eligible candidate.
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	got := s.nextEligible(sched.Entries, next.Entries, model.DefaultAlertPreferences(), model.LeadAtTime, now)
	if got == nil || got.Kind != model.KindFajr {
		t.Fatalf("expected next-day fajr, got %+v", got)
	}
	if !got.At.After(now) {
		t.Fatalf("expected next-day entry after now, got %v", got.At)
	}
}

func TestNextEligible_NothingEligible(t *testing.T) {
	s := New(func(model.PrayerEntry, *time.Location) {})
	got := s.nextEligible(nil, nil, model.DefaultAlertPreferences(), model.LeadAtTime, time.Now())
	if got != nil {
		t.Fatalf("expected no candidate, got %+v", got)
	}
}

func TestScheduleNext_CatchUpFiresImmediately(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sched := daySchedule(t, day)
	rec := &fireRecorder{}
	s := New(rec.fire)
	defer s.Cancel()

	// 10 seconds after fajr: inside the 45s tolerance, so the timer is
	// armed with zero delay.
	now := time.Date(2026, 3, 10, 5, 0, 10, 0, time.UTC)
	s.ScheduleNext(sched, nil, model.DefaultAlertPreferences(), model.LeadAtTime, now)

	time.Sleep(200 * time.Millisecond)

	kinds := rec.kinds()
	if len(kinds) != 1 || kinds[0] != model.KindFajr {
		t.Fatalf("expected immediate fajr fire, got %v", kinds)
	}
	if s.Armed() {
		t.Fatal("expected scheduler idle after fire")
	}
}

func TestScheduleNext_SupersededTimerNeverFires(t *testing.T) {
	rec := &fireRecorder{}
	s := New(rec.fire)
	defer s.Cancel()

	loc := time.UTC
	now := time.Now().UTC()
	first := model.PrayerSchedule{Loc: loc, Entries: []model.PrayerEntry{
		model.NewPrayerEntry(model.KindDhuhr, now.Add(150*time.Millisecond)),
	}}
	second := model.PrayerSchedule{Loc: loc, Entries: []model.PrayerEntry{
		model.NewPrayerEntry(model.KindAsr, now.Add(100*time.Millisecond)),
	}}

	s.ScheduleNext(first, nil, model.DefaultAlertPreferences(), model.LeadAtTime, now)
	s.ScheduleNext(second, nil, model.DefaultAlertPreferences(), model.LeadAtTime, now)

	time.Sleep(400 * time.Millisecond)

	kinds := rec.kinds()
	if len(kinds) != 1 || kinds[0] != model.KindAsr {
		t.Fatalf("expected exactly one asr fire, got %v", kinds)
	}
}

func TestCancel_PreventsFire(t *testing.T) {
	rec := &fireRecorder{}
	s := New(rec.fire)

	now := time.Now().UTC()
	sched := model.PrayerSchedule{Loc: time.UTC, Entries: []model.PrayerEntry{
		model.NewPrayerEntry(model.KindMaghrib, now.Add(100*time.Millisecond)),
	}}

	s.ScheduleNext(sched, nil, model.DefaultAlertPreferences(), model.LeadAtTime, now)
	if !s.Armed() {
		t.Fatal("expected scheduler armed")
	}
	s.Cancel()
	if s.Armed() {
		t.Fatal("expected scheduler idle after cancel")
	}

	time.Sleep(300 * time.Millisecond)

	if kinds := rec.kinds(); len(kinds) != 0 {
		t.Fatalf("expected no fire after cancel, got %v", kinds)
	}
}

func TestCancel_Idempotent(t *testing.T) {
	s := New(func(model.PrayerEntry, *time.Location) {})
	s.Cancel()
	s.Cancel()
	if s.Armed() {
		t.Fatal("expected idle")
	}
}

func TestScheduleNext_NothingEligibleStaysIdle(t *testing.T) {
	rec := &fireRecorder{}
	s := New(rec.fire)

	prefs := model.AlertPreferences{} // everything disabled
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sched := daySchedule(t, day)

	s.ScheduleNext(sched, nil, prefs, model.LeadAtTime, day)
	if s.Armed() {
		t.Fatal("expected idle when nothing eligible")
	}
}
