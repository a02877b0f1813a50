// Package astro adapts the adhango astronomical library to the
// prayer.TimesProvider interface.
package astro

import (
	"math"
	"time"

	calc "github.com/mnadev/adhango/pkg/calc"
	data "github.com/mnadev/adhango/pkg/data"
	util "github.com/mnadev/adhango/pkg/util"

	appLog "athand/internal/log"
	"athand/internal/model"
	"athand/internal/prayer"
)

// Provider implements prayer.TimesProvider using adhango.
type Provider struct{}

// NewProvider returns an adhango-backed provider.
func NewProvider() *Provider {
	return &Provider{}
}

// RawTimes computes the six prayer instants for the calendar day containing
// date in loc. ok=false when the underlying calculation cannot produce a
// result for the coordinate (degenerate polar geometry).
func (p *Provider) RawTimes(lat, lng float64, method model.CalculationMethodOption, date time.Time, loc *time.Location) (prayer.RawTimes, bool) {
	coords, err := util.NewCoordinates(lat, lng)
	if err != nil {
		appLog.Debug("astro: invalid coordinates", "lat", lat, "lng", lng)
		return prayer.RawTimes{}, false
	}

	params := methodParameters(method)
	params.HighLatitudeRule = recommendedHighLatitudeRule(lat)

	components := data.NewDateComponents(date.In(loc))
	times, err := calc.NewPrayerTimes(coords, components, params)
	if err != nil {
		appLog.Debug("astro: calculation produced no result",
			"lat", lat, "lng", lng, "date", date.Format("2006-01-02"))
		return prayer.RawTimes{}, false
	}
	if err := times.SetTimeZone(loc.String()); err != nil {
		// Leave the instants in UTC; they are absolute either way.
		appLog.Debug("astro: timezone not applied", "zone", loc.String())
	}

	return prayer.RawTimes{
		Fajr:    times.Fajr,
		Sunrise: times.Sunrise,
		Dhuhr:   times.Dhuhr,
		Asr:     times.Asr,
		Maghrib: times.Maghrib,
		Isha:    times.Isha,
	}, true
}

// methodParameters maps the settings option to adhango parameters.
func methodParameters(method model.CalculationMethodOption) *calc.CalculationParameters {
	switch method {
	case model.MethodEgyptian:
		return calc.GetMethodParameters(calc.EGYPTIAN)
	case model.MethodUmmAlQura:
		return calc.GetMethodParameters(calc.UMM_AL_QURA)
	case model.MethodISNA:
		return calc.GetMethodParameters(calc.NORTH_AMERICA)
	case model.MethodDubai:
		return calc.GetMethodParameters(calc.DUBAI)
	case model.MethodMoonsightingCommittee:
		return calc.GetMethodParameters(calc.MOON_SIGHTING_COMMITTEE)
	default:
		return calc.GetMethodParameters(calc.MUSLIM_WORLD_LEAGUE)
	}
}

// recommendedHighLatitudeRule picks the night-fraction rule by latitude:
// beyond 48 degrees the seventh-of-the-night rule keeps fajr/isha sane.
func recommendedHighLatitudeRule(lat float64) calc.HighLatitudeRule {
	if math.Abs(lat) > 48 {
		return calc.SEVENTH_OF_THE_NIGHT
	}
	return calc.MIDDLE_OF_THE_NIGHT
}
