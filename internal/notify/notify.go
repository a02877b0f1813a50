// Package notify is the secondary, best-effort alert channel. It registers
// desktop notifications for upcoming prayers, redundant with and independent
// of the in-process fire scheduler: a failure here never affects in-process
// firing.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	appLog "athand/internal/log"
	"athand/internal/model"
)

// Alerter registers and cancels external alerts.
type Alerter interface {
	// Request schedules a best-effort alert for kind at fireAt.
	Request(kind model.PrayerKind, fireAt time.Time, loc *time.Location)
	// CancelAll drops every pending alert registration.
	CancelAll()
}

// DesktopAlerter delivers alerts through desktop notifications. Pending
// registrations are plain timers; they are not durable across restarts.
type DesktopAlerter struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDesktopAlerter returns an alerter with no pending registrations.
func NewDesktopAlerter() *DesktopAlerter {
	return &DesktopAlerter{timers: make(map[string]*time.Timer)}
}

// Request schedules a notification at fireAt. Instants already in the past
// are skipped; the in-process scheduler's catch-up policy covers those.
func (a *DesktopAlerter) Request(kind model.PrayerKind, fireAt time.Time, loc *time.Location) {
	delay := time.Until(fireAt)
	if delay < 0 {
		return
	}

	id := fmt.Sprintf("%s-%d", kind, fireAt.Unix())

	a.mu.Lock()
	defer a.mu.Unlock()
	if old, ok := a.timers[id]; ok {
		old.Stop()
	}
	a.timers[id] = time.AfterFunc(delay, func() {
		a.mu.Lock()
		delete(a.timers, id)
		a.mu.Unlock()
		deliver(kind, fireAt, loc)
	})
}

// CancelAll stops and drops all pending registrations.
func (a *DesktopAlerter) CancelAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, t := range a.timers {
		t.Stop()
		delete(a.timers, id)
	}
}

func deliver(kind model.PrayerKind, fireAt time.Time, loc *time.Location) {
	body := fmt.Sprintf("It is time for %s (%s).",
		kind.DisplayName(), fireAt.In(loc).Format("15:04"))
	if err := beeep.Notify("Prayer Time", body, ""); err != nil {
		// Best-effort channel: log and move on.
		appLog.Error("notify: delivery failed", err, "kind", kind)
	}
}
