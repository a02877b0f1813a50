package prayer

import (
	"time"

	appLog "athand/internal/log"
	"athand/internal/model"
)

// RawTimes are the six instants produced by the astronomical calculation
// for one calendar day.
type RawTimes struct {
	Fajr    time.Time
	Sunrise time.Time
	Dhuhr   time.Time
	Asr     time.Time
	Maghrib time.Time
	Isha    time.Time
}

// TimesProvider is the external astronomical calculation. It is treated as
// an opaque deterministic function; ok=false means the calculation cannot
// produce a result for the given inputs (e.g. polar day/night) and is a
// valid outcome, not an error.
type TimesProvider interface {
	RawTimes(lat, lng float64, method model.CalculationMethodOption, date time.Time, loc *time.Location) (RawTimes, bool)
}

// Computer wraps a TimesProvider and produces typed day schedules.
// It is pure given its inputs and performs no caching.
type Computer struct {
	provider TimesProvider
}

// NewComputer returns a Computer backed by the given provider.
func NewComputer(provider TimesProvider) *Computer {
	return &Computer{provider: provider}
}

// Schedule computes the ordered entries for the location's local calendar
// day containing date. When the provider cannot produce times, the returned
// schedule has an empty entry list and the same timezone; downstream code
// consumes that uniformly.
func (c *Computer) Schedule(location model.LocationSelection, method model.CalculationMethodOption, date time.Time) model.PrayerSchedule {
	loc := location.Timezone()

	raw, ok := c.provider.RawTimes(location.Latitude, location.Longitude, method, date.In(loc), loc)
	if !ok {
		appLog.Debug("prayer: no times for location",
			"name", location.Name, "lat", location.Latitude, "lng", location.Longitude)
		return model.PrayerSchedule{Entries: nil, Loc: loc}
	}

	entries := []model.PrayerEntry{
		model.NewPrayerEntry(model.KindFajr, raw.Fajr),
		model.NewPrayerEntry(model.KindSunrise, raw.Sunrise),
		model.NewPrayerEntry(model.KindDhuhr, raw.Dhuhr),
		model.NewPrayerEntry(model.KindAsr, raw.Asr),
		model.NewPrayerEntry(model.KindMaghrib, raw.Maghrib),
		model.NewPrayerEntry(model.KindIsha, raw.Isha),
	}
	return model.PrayerSchedule{Entries: entries, Loc: loc}
}

// Entries is a convenience wrapper returning only the entry list.
func (c *Computer) Entries(location model.LocationSelection, method model.CalculationMethodOption, date time.Time) []model.PrayerEntry {
	return c.Schedule(location, method, date).Entries
}
