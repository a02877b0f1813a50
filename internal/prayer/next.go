package prayer

import (
	"time"

	"athand/internal/model"
)

// NextEntry returns the first entry strictly after now, scanning entries in
// their ascending order, falling back to the next day's first entry. Returns
// nil when both lists are exhausted. Pure; safe to call repeatedly with
// different reference instants.
func NextEntry(entries []model.PrayerEntry, now time.Time, nextDay []model.PrayerEntry) *model.PrayerEntry {
	for i := range entries {
		if entries[i].At.After(now) {
			e := entries[i]
			return &e
		}
	}
	if len(nextDay) > 0 {
		e := nextDay[0]
		return &e
	}
	return nil
}
