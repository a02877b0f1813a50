// Package session coordinates the daily refresh cycle: it owns the user
// settings, the computed schedule, the fire-once ledger, and the midnight
// wake timer, and it is the only component that arms or disarms the fire
// scheduler.
package session

import (
	"context"
	"sync"
	"time"

	"athand/internal/audio"
	appLog "athand/internal/log"
	"athand/internal/model"
	"athand/internal/notify"
	"athand/internal/prayer"
	"athand/internal/scheduler"
	"athand/internal/tzres"
)

// SettingsStore persists the settings record.
type SettingsStore interface {
	Save(ctx context.Context, settings model.Settings) error
}

// Snapshot is a read-only view of the coordinator state for consumers
// (HTTP layer). Slices are copies; mutating a snapshot has no effect.
type Snapshot struct {
	Settings model.Settings
	Schedule *model.PrayerSchedule
	Tomorrow []model.PrayerEntry
	Next     *model.PrayerEntry
	Active   bool
}

// Coordinator drives schedule recomputation and exactly-once firing. All
// mutable state is guarded by one mutex; timer callbacks re-enter through
// it, so there is a single effective owner.
type Coordinator struct {
	mu sync.Mutex

	computer *prayer.Computer
	fire     *scheduler.Scheduler
	alerter  notify.Alerter
	player   audio.Player
	store    SettingsStore
	resolver tzres.Resolver

	ctx context.Context

	// nowFn is the wall clock and afterFunc the timer constructor; both
	// replaceable in tests.
	nowFn     func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer

	settings model.Settings
	schedule *model.PrayerSchedule
	tomorrow []model.PrayerEntry
	next     *model.PrayerEntry
	active   bool

	// Fire-once ledger, valid for lastDayKey's local day only.
	playedKeys map[string]struct{}
	lastDayKey string

	midnight    *time.Timer
	midnightGen uint64
}

// New builds a coordinator around already-loaded settings. resolver may be
// nil to disable coordinate-to-timezone resolution. The coordinator starts
// active; call Refresh once after construction.
func New(ctx context.Context, computer *prayer.Computer, alerter notify.Alerter, player audio.Player, store SettingsStore, resolver tzres.Resolver, settings model.Settings) *Coordinator {
	c := &Coordinator{
		computer:   computer,
		alerter:    alerter,
		player:     player,
		store:      store,
		resolver:   resolver,
		ctx:        ctx,
		nowFn:      time.Now,
		afterFunc:  time.AfterFunc,
		settings:   settings,
		active:     true,
		playedKeys: make(map[string]struct{}),
	}
	c.fire = scheduler.New(c.handleFire)
	return c
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{Settings: c.settings, Active: c.active}
	if c.settings.Location != nil {
		loc := *c.settings.Location
		snap.Settings.Location = &loc
	}
	if c.schedule != nil {
		entries := make([]model.PrayerEntry, len(c.schedule.Entries))
		copy(entries, c.schedule.Entries)
		snap.Schedule = &model.PrayerSchedule{Entries: entries, Loc: c.schedule.Loc}
	}
	if len(c.tomorrow) > 0 {
		snap.Tomorrow = make([]model.PrayerEntry, len(c.tomorrow))
		copy(snap.Tomorrow, c.tomorrow)
	}
	if c.next != nil {
		next := *c.next
		snap.Next = &next
	}
	return snap
}

// Refresh recomputes the schedule for now and re-arms timers accordingly.
// Every settings mutation and timer wake funnels through here.
func (c *Coordinator) Refresh(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked(now)
}

// Resync is the periodic drift guard hook (cron).
func (c *Coordinator) Resync() {
	c.Refresh(c.nowFn())
}

// SetActive flips the active/paused gate. The fire scheduler is only armed
// while active.
func (c *Coordinator) SetActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == active {
		return
	}
	c.active = active
	c.refreshLocked(c.nowFn())
}

// UpdateLocation replaces the saved location, kicks off timezone resolution
// when needed, and recomputes.
func (c *Coordinator) UpdateLocation(selection model.LocationSelection) {
	c.mu.Lock()
	c.settings.Location = &selection
	c.persistLocked()
	c.refreshLocked(c.nowFn())
	needResolve := c.resolver != nil && selection.HasValidCoordinates() && !selection.HasResolvedTimezone()
	c.mu.Unlock()

	if needResolve {
		go c.resolveTimezone(selection)
	}
}

// UpdateMethod replaces the calculation method and recomputes.
func (c *Coordinator) UpdateMethod(method model.CalculationMethodOption) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !method.Valid() {
		return
	}
	c.settings.Method = method
	c.persistLocked()
	c.refreshLocked(c.nowFn())
}

// SetAlertEnabled flips a per-prayer toggle and recomputes.
func (c *Coordinator) SetAlertEnabled(kind model.PrayerKind, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.Prefs.SetEnabled(kind, enabled)
	c.persistLocked()
	c.refreshLocked(c.nowFn())
}

// UpdatePreferences replaces all per-prayer toggles at once and recomputes.
func (c *Coordinator) UpdatePreferences(prefs model.AlertPreferences) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.Prefs = prefs
	c.persistLocked()
	c.refreshLocked(c.nowFn())
}

// SetLeadTime replaces the uniform lead time and recomputes.
func (c *Coordinator) SetLeadTime(lead model.LeadTime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.LeadTime = lead
	c.settings.Normalize()
	c.persistLocked()
	c.refreshLocked(c.nowFn())
}

// CompleteOnboarding marks onboarding done and recomputes.
func (c *Coordinator) CompleteOnboarding() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.OnboardingComplete = true
	c.persistLocked()
	c.refreshLocked(c.nowFn())
}

// Close cancels all pending timers and stops any playing cue.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fire.Cancel()
	c.stopMidnightLocked()
	c.alerter.CancelAll()
	c.player.Stop()
}

func (c *Coordinator) refreshLocked(now time.Time) {
	location := c.settings.Location
	if location == nil || !location.HasValidCoordinates() {
		// Terminal "no schedule" state; recoverable by the next refresh.
		c.schedule = nil
		c.tomorrow = nil
		c.next = nil
		c.fire.Cancel()
		c.alerter.CancelAll()
		fallback := time.Local
		if location != nil {
			fallback = location.Timezone()
		}
		c.rearmMidnightLocked(now, fallback)
		return
	}

	sched := c.computer.Schedule(*location, c.settings.Method, now)
	c.schedule = &sched

	// One ledger per local day, no matter how often refresh runs.
	key := dayKey(now, sched.Loc)
	if key != c.lastDayKey {
		c.playedKeys = make(map[string]struct{})
		c.lastDayKey = key
	}

	c.registerAlertsLocked(sched, now)

	if len(sched.Entries) == 0 {
		c.tomorrow = nil
		c.next = nil
		c.fire.Cancel()
		c.rearmMidnightLocked(now, sched.Loc)
		return
	}

	tomorrow := c.computer.Entries(*location, c.settings.Method, now.In(sched.Loc).AddDate(0, 0, 1))
	c.tomorrow = tomorrow
	c.next = prayer.NextEntry(sched.Entries, now, tomorrow)

	if c.active && location.HasResolvedTimezone() {
		// Entries already in the fire ledger are excluded so the post-fire
		// refresh moves straight on to the following entry.
		armable := model.PrayerSchedule{Entries: c.unplayedLocked(sched.Entries, sched.Loc), Loc: sched.Loc}
		c.fire.ScheduleNext(armable, c.unplayedLocked(tomorrow, sched.Loc), c.settings.Prefs, c.settings.LeadTime, now)
	} else {
		// Arming while paused, or before the zone is resolved, risks firing
		// against a wrong local day boundary.
		c.fire.Cancel()
	}

	c.rearmMidnightLocked(now, sched.Loc)
}

// registerAlertsLocked re-registers the best-effort external alert channel
// for every enabled upcoming entry. Failures here never affect in-process
// firing.
func (c *Coordinator) registerAlertsLocked(sched model.PrayerSchedule, now time.Time) {
	c.alerter.CancelAll()
	for _, entry := range sched.Entries {
		if !entry.Kind.Notifiable() || !c.settings.Prefs.Enabled(entry.Kind) {
			continue
		}
		fireAt := model.EffectiveFire(entry, c.settings.LeadTime)
		if fireAt.Before(now) {
			continue
		}
		c.alerter.Request(entry.Kind, fireAt, sched.Loc)
	}
}

// unplayedLocked filters out entries whose fire key is already in the
// ledger for the current day.
func (c *Coordinator) unplayedLocked(entries []model.PrayerEntry, loc *time.Location) []model.PrayerEntry {
	out := make([]model.PrayerEntry, 0, len(entries))
	for _, e := range entries {
		key := fireKey(e.Kind, model.EffectiveFire(e, c.settings.LeadTime), loc)
		if _, played := c.playedKeys[key]; played {
			continue
		}
		out = append(out, e)
	}
	return out
}

// handleFire is the fire-scheduler callback. The dedup key is committed
// before any side effect so a straggling timer racing a fresh refresh can
// never replay the cue.
func (c *Coordinator) handleFire(entry model.PrayerEntry, loc *time.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fireAt := model.EffectiveFire(entry, c.settings.LeadTime)
	key := fireKey(entry.Kind, fireAt, loc)
	if _, played := c.playedKeys[key]; played {
		appLog.Debug("session: duplicate fire discarded", "key", key)
		return
	}
	c.playedKeys[key] = struct{}{}

	appLog.Info("session: firing", "kind", entry.Kind, "at", entry.At.Format(time.RFC3339))
	c.player.Play()

	// Immediately pick and arm the following entry.
	c.refreshLocked(c.nowFn())
}

// rearmMidnightLocked replaces the midnight wake timer so the ledger resets
// and the schedule recomputes at the next local day boundary.
func (c *Coordinator) rearmMidnightLocked(now time.Time, loc *time.Location) {
	c.stopMidnightLocked()

	delay := startOfNextDay(now, loc).Sub(now)
	if delay < 0 {
		delay = 0
	}

	gen := c.midnightGen
	c.midnight = c.afterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.midnightGen != gen {
			return
		}
		appLog.Debug("session: midnight wake", "zone", loc.String())
		c.playedKeys = make(map[string]struct{})
		c.refreshLocked(c.nowFn())
	})
}

func (c *Coordinator) stopMidnightLocked() {
	if c.midnight != nil {
		c.midnight.Stop()
		c.midnight = nil
	}
	c.midnightGen++
}

// resolveTimezone runs off the coordinating context; the result is applied
// back under the lock with a staleness check against the current location.
func (c *Coordinator) resolveTimezone(target model.LocationSelection) {
	name, ok := c.resolver.Resolve(target.Latitude, target.Longitude)
	if !ok {
		// Fallback zone stays in effect.
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.settings.Location
	if current == nil || current.Latitude != target.Latitude || current.Longitude != target.Longitude {
		appLog.Debug("session: stale timezone resolution dropped", "zone", name)
		return
	}
	current.TimezoneID = name
	appLog.Info("session: timezone resolved", "zone", name, "location", current.Name)
	c.persistLocked()
	c.refreshLocked(c.nowFn())
}

func (c *Coordinator) persistLocked() {
	if c.store == nil {
		return
	}
	if err := c.store.Save(c.ctx, c.settings); err != nil {
		appLog.Error("session: settings save failed", err)
	}
}

// dayKey is the timezone-relative calendar-day identifier.
func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("20060102")
}

// fireKey dedups fires per (kind, local day of the effective fire instant).
// Using the effective instant matters: with a 30 minute lead, an 00:05
// entry fires at 23:35 the previous day and must be keyed to that day.
func fireKey(kind model.PrayerKind, effectiveFire time.Time, loc *time.Location) string {
	return string(kind) + "-" + dayKey(effectiveFire, loc)
}

func startOfNextDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}
