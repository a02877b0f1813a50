// Package scheduler owns the single pending athan fire timer.
//
// It is a small state machine: Idle -> Armed -> {Fired | Cancelled} -> Idle.
// At most one pending timer exists; arming always cancels the previous one
// first. The fire callback runs at most once per arming and never after a
// cancellation.
package scheduler

import (
	"sort"
	"sync"
	"time"

	appLog "athand/internal/log"
	"athand/internal/model"
)

const (
	// ImmediateTolerance allows slightly late firing so a prayer whose
	// instant just elapsed (e.g. resume after a brief suspension) is not
	// missed.
	ImmediateTolerance = 45 * time.Second
	// CatchUpWindow bounds how late a missed fire is still honored
	// immediately instead of being dropped.
	CatchUpWindow = 120 * time.Second
)

// FireFunc receives the entry whose effective fire instant elapsed, plus the
// timezone of the schedule it was selected from.
type FireFunc func(entry model.PrayerEntry, loc *time.Location)

// Scheduler arms one cancellable one-shot timer at a time. All methods are
// safe for concurrent use; the callback is invoked outside the internal lock
// so it may re-arm the scheduler.
type Scheduler struct {
	mu        sync.Mutex
	onFire    FireFunc
	timer     *time.Timer
	gen       uint64
	tolerance time.Duration
	catchUp   time.Duration
}

// New returns an idle scheduler that invokes onFire when an armed timer
// elapses without cancellation.
func New(onFire FireFunc) *Scheduler {
	return &Scheduler{
		onFire:    onFire,
		tolerance: ImmediateTolerance,
		catchUp:   CatchUpWindow,
	}
}

// Cancel stops any armed timer and returns to Idle. Idempotent.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// Invalidate any in-flight timer callback that lost the Stop race.
	s.gen++
}

// Armed reports whether a fire timer is currently pending.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// ScheduleNext cancels any pending timer and arms the next eligible entry
// from today's schedule, falling back to the next day's entries. Entries
// whose effective fire instant (entry time minus lead) is within the
// catch-up window of now fire near-immediately. When nothing is eligible
// the scheduler stays Idle.
func (s *Scheduler) ScheduleNext(schedule model.PrayerSchedule, nextDay []model.PrayerEntry, prefs model.AlertPreferences, lead model.LeadTime, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()

	entry := s.nextEligible(schedule.Entries, nextDay, prefs, lead, now)
	if entry == nil {
		return
	}

	fireAt := model.EffectiveFire(*entry, lead)
	delay := fireAt.Sub(now)
	if delay < 0 {
		delay = 0
	}

	appLog.Debug("scheduler: armed",
		"kind", entry.Kind, "at", entry.At.Format(time.RFC3339),
		"fire", fireAt.Format(time.RFC3339), "delay", delay)

	loc := schedule.Loc
	armed := *entry
	gen := s.gen
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.gen != gen {
			// Superseded or cancelled after the timer already fired.
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.gen++
		s.mu.Unlock()
		s.onFire(armed, loc)
	})
}

// nextEligible merges today's and the next day's entries, keeps notifiable
// enabled kinds sorted ascending, and picks the catch-up candidate first,
// else the nearest future (or barely-past-within-tolerance) one.
func (s *Scheduler) nextEligible(entries, nextDay []model.PrayerEntry, prefs model.AlertPreferences, lead model.LeadTime, now time.Time) *model.PrayerEntry {
	candidates := make([]model.PrayerEntry, 0, len(entries)+len(nextDay))
	for _, e := range append(append([]model.PrayerEntry{}, entries...), nextDay...) {
		if e.Kind.Notifiable() && prefs.Enabled(e.Kind) {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].At.Before(candidates[j].At)
	})

	for i := range candidates {
		fireAt := model.EffectiveFire(candidates[i], lead)
		windowStart := fireAt.Add(-s.tolerance)
		windowEnd := fireAt.Add(s.catchUp)
		if !now.Before(windowStart) && !now.After(windowEnd) {
			return &candidates[i]
		}
	}
	for i := range candidates {
		fireAt := model.EffectiveFire(candidates[i], lead)
		if !fireAt.Before(now.Add(-s.tolerance)) {
			return &candidates[i]
		}
	}
	return nil
}
