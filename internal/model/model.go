package model

import (
	"time"

	"github.com/google/uuid"
)

// PrayerKind identifies one of the fixed daily prayer times.
// Declaration order matches the calendar order of a normal day.
type PrayerKind string

const (
	KindFajr    PrayerKind = "fajr"
	KindSunrise PrayerKind = "sunrise"
	KindDhuhr   PrayerKind = "dhuhr"
	KindAsr     PrayerKind = "asr"
	KindMaghrib PrayerKind = "maghrib"
	KindIsha    PrayerKind = "isha"
)

// Kinds lists all prayer kinds in calendar order.
var Kinds = []PrayerKind{KindFajr, KindSunrise, KindDhuhr, KindAsr, KindMaghrib, KindIsha}

// DisplayName returns the user-facing name for the kind.
func (k PrayerKind) DisplayName() string {
	switch k {
	case KindFajr:
		return "Fajr"
	case KindSunrise:
		return "Sunrise"
	case KindDhuhr:
		return "Dhuhr"
	case KindAsr:
		return "Asr"
	case KindMaghrib:
		return "Maghrib"
	case KindIsha:
		return "Isha"
	default:
		return string(k)
	}
}

// Notifiable reports whether the kind may trigger alerts.
// Sunrise is informational only and never fires.
func (k PrayerKind) Notifiable() bool {
	return k != KindSunrise
}

// PrayerEntry is a single prayer time on a concrete day.
type PrayerEntry struct {
	ID   uuid.UUID  `json:"id"`
	Kind PrayerKind `json:"kind"`
	At   time.Time  `json:"at"`
}

// NewPrayerEntry builds an entry with a fresh ID.
func NewPrayerEntry(kind PrayerKind, at time.Time) PrayerEntry {
	return PrayerEntry{ID: uuid.New(), Kind: kind, At: at}
}

// PrayerSchedule groups one day's entries with the timezone they were
// computed in. Entries are ascending by time; an empty Entries slice is a
// valid state (e.g. degenerate polar geometry).
type PrayerSchedule struct {
	Entries []PrayerEntry
	Loc     *time.Location
}

// CalculationMethodOption selects the astronomical parameter set.
type CalculationMethodOption string

const (
	MethodMuslimWorldLeague     CalculationMethodOption = "muslimWorldLeague"
	MethodEgyptian              CalculationMethodOption = "egyptian"
	MethodUmmAlQura             CalculationMethodOption = "ummAlQura"
	MethodISNA                  CalculationMethodOption = "isna"
	MethodDubai                 CalculationMethodOption = "dubai"
	MethodMoonsightingCommittee CalculationMethodOption = "moonsightingCommittee"
)

// Methods lists the supported calculation methods.
var Methods = []CalculationMethodOption{
	MethodMuslimWorldLeague,
	MethodEgyptian,
	MethodUmmAlQura,
	MethodISNA,
	MethodDubai,
	MethodMoonsightingCommittee,
}

// Valid reports whether m is one of the supported methods.
func (m CalculationMethodOption) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// DisplayName returns the human-readable method name used in settings.
func (m CalculationMethodOption) DisplayName() string {
	switch m {
	case MethodMuslimWorldLeague:
		return "Muslim World League"
	case MethodEgyptian:
		return "Egyptian"
	case MethodUmmAlQura:
		return "Umm al-Qura"
	case MethodISNA:
		return "ISNA"
	case MethodDubai:
		return "Dubai"
	case MethodMoonsightingCommittee:
		return "Moonsighting Committee"
	default:
		return string(m)
	}
}

// LocationSelection is the saved location used for time calculations.
type LocationSelection struct {
	Name              string  `json:"name"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	IsCurrentLocation bool    `json:"is_current_location"`
	// TimezoneID is the IANA zone resolved for the coordinate. Empty or
	// unloadable values fall back to the process-local zone.
	TimezoneID string `json:"timezone_id,omitempty"`
}

// HasValidCoordinates reports whether the coordinate is within bounds.
// Out-of-bounds locations produce no schedule at all.
func (l LocationSelection) HasValidCoordinates() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// HasResolvedTimezone reports whether TimezoneID names a loadable zone.
func (l LocationSelection) HasResolvedTimezone() bool {
	if l.TimezoneID == "" {
		return false
	}
	_, err := time.LoadLocation(l.TimezoneID)
	return err == nil
}

// Timezone returns the effective zone for this location. Missing or invalid
// identifiers soft-fall-back to time.Local; this is not an error state.
func (l LocationSelection) Timezone() *time.Location {
	if l.TimezoneID == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(l.TimezoneID)
	if err != nil {
		return time.Local
	}
	return loc
}

// AlertPreferences holds the per-prayer alert toggles. Sunrise has no
// toggle and is always disabled.
type AlertPreferences struct {
	Fajr    bool `json:"fajr"`
	Dhuhr   bool `json:"dhuhr"`
	Asr     bool `json:"asr"`
	Maghrib bool `json:"maghrib"`
	Isha    bool `json:"isha"`
}

// DefaultAlertPreferences enables every notifiable prayer.
func DefaultAlertPreferences() AlertPreferences {
	return AlertPreferences{Fajr: true, Dhuhr: true, Asr: true, Maghrib: true, Isha: true}
}

// Enabled reports whether alerts are on for the given kind.
func (p AlertPreferences) Enabled(kind PrayerKind) bool {
	switch kind {
	case KindFajr:
		return p.Fajr
	case KindDhuhr:
		return p.Dhuhr
	case KindAsr:
		return p.Asr
	case KindMaghrib:
		return p.Maghrib
	case KindIsha:
		return p.Isha
	default:
		return false
	}
}

// SetEnabled updates the toggle for a kind. Sunrise is ignored.
func (p *AlertPreferences) SetEnabled(kind PrayerKind, enabled bool) {
	switch kind {
	case KindFajr:
		p.Fajr = enabled
	case KindDhuhr:
		p.Dhuhr = enabled
	case KindAsr:
		p.Asr = enabled
	case KindMaghrib:
		p.Maghrib = enabled
	case KindIsha:
		p.Isha = enabled
	}
}

// LeadTime is the offset applied uniformly to all enabled prayers so the
// cue fires ahead of the actual time.
type LeadTime string

const (
	LeadAtTime    LeadTime = "atTime"
	LeadMinutes5  LeadTime = "minutes5"
	LeadMinutes10 LeadTime = "minutes10"
	LeadMinutes15 LeadTime = "minutes15"
	LeadMinutes30 LeadTime = "minutes30"
	LeadHour1     LeadTime = "hour1"
)

// LeadTimes lists the supported lead time options.
var LeadTimes = []LeadTime{LeadAtTime, LeadMinutes5, LeadMinutes10, LeadMinutes15, LeadMinutes30, LeadHour1}

// Minutes returns the offset in minutes. Unknown values behave as zero.
func (lt LeadTime) Minutes() int {
	switch lt {
	case LeadMinutes5:
		return 5
	case LeadMinutes10:
		return 10
	case LeadMinutes15:
		return 15
	case LeadMinutes30:
		return 30
	case LeadHour1:
		return 60
	default:
		return 0
	}
}

// Duration returns the offset as a time.Duration.
func (lt LeadTime) Duration() time.Duration {
	return time.Duration(lt.Minutes()) * time.Minute
}

// EffectiveFire returns the instant at which an entry actually fires,
// shifted earlier by the lead time.
func EffectiveFire(entry PrayerEntry, lead LeadTime) time.Time {
	return entry.At.Add(-lead.Duration())
}

// Settings is the persisted user settings record.
type Settings struct {
	Location           *LocationSelection      `json:"location,omitempty"`
	Method             CalculationMethodOption `json:"method"`
	Prefs              AlertPreferences        `json:"prefs"`
	LeadTime           LeadTime                `json:"lead_time"`
	OnboardingComplete bool                    `json:"onboarding_complete"`
}

// DefaultSettings returns the first-run settings.
func DefaultSettings() Settings {
	return Settings{
		Method:   MethodMuslimWorldLeague,
		Prefs:    DefaultAlertPreferences(),
		LeadTime: LeadAtTime,
	}
}

// Normalize fixes up values decoded from older or hand-edited records.
func (s *Settings) Normalize() {
	if !s.Method.Valid() {
		s.Method = MethodMuslimWorldLeague
	}
	switch s.LeadTime {
	case LeadAtTime, LeadMinutes5, LeadMinutes10, LeadMinutes15, LeadMinutes30, LeadHour1:
	default:
		s.LeadTime = LeadAtTime
	}
}
