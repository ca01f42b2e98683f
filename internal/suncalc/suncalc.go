// Package suncalc computes sun events for the recorder position and decides
// whether a moment falls inside the nightly recording window.
package suncalc

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sj14/astral/pkg/astral"
)

const dateKeyLayout = "2006-01-02"

// SunEventTimes holds the sun event times of one day in the configured zone.
type SunEventTimes struct {
	CivilDawn time.Time
	Sunrise   time.Time
	Sunset    time.Time
	CivilDusk time.Time
}

// SunCalc calculates and caches sun event times per day.
type SunCalc struct {
	mu       sync.RWMutex
	observer astral.Observer
	loc      *time.Location
	cache    *cache.Cache
}

// NewSunCalc creates a calculator for the given position. Times are returned
// in loc, or time.Local when loc is nil.
func NewSunCalc(latitude, longitude float64, loc *time.Location) *SunCalc {
	if loc == nil {
		loc = time.Local
	}
	return &SunCalc{
		observer: astral.Observer{Latitude: latitude, Longitude: longitude},
		loc:      loc,
		cache:    cache.New(48*time.Hour, time.Hour),
	}
}

// SetPosition moves the observer. Cached days are dropped when it changes.
func (sc *SunCalc) SetPosition(latitude, longitude float64) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.observer.Latitude == latitude && sc.observer.Longitude == longitude {
		return
	}
	sc.observer = astral.Observer{Latitude: latitude, Longitude: longitude}
	sc.cache.Flush()
}

// Position returns the observer coordinates.
func (sc *SunCalc) Position() (latitude, longitude float64) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.observer.Latitude, sc.observer.Longitude
}

// GetSunEventTimes returns the sun events of the day containing date.
func (sc *SunCalc) GetSunEventTimes(date time.Time) (SunEventTimes, error) {
	day := date.In(sc.loc)
	key := day.Format(dateKeyLayout)

	if cached, ok := sc.cache.Get(key); ok {
		return cached.(SunEventTimes), nil
	}

	sc.mu.RLock()
	observer := sc.observer
	sc.mu.RUnlock()

	times, err := sc.calculate(observer, day)
	if err != nil {
		return SunEventTimes{}, err
	}
	sc.cache.SetDefault(key, times)
	return times, nil
}

func (sc *SunCalc) calculate(observer astral.Observer, day time.Time) (SunEventTimes, error) {
	// astral works on the UTC calendar date
	date := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, time.UTC)

	civilDawn, err := astral.Dawn(observer, date, astral.DepressionCivil)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate civil dawn: %w", err)
	}
	sunrise, err := astral.Sunrise(observer, date)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate sunrise: %w", err)
	}
	sunset, err := astral.Sunset(observer, date)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate sunset: %w", err)
	}
	civilDusk, err := astral.Dusk(observer, date, astral.DepressionCivil)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate civil dusk: %w", err)
	}

	return SunEventTimes{
		CivilDawn: civilDawn.In(sc.loc),
		Sunrise:   sunrise.In(sc.loc),
		Sunset:    sunset.In(sc.loc),
		CivilDusk: civilDusk.In(sc.loc),
	}, nil
}

// IsNight reports whether t lies between sunset+startOffset and the
// following sunrise+stopOffset.
func (sc *SunCalc) IsNight(t time.Time, startOffset, stopOffset time.Duration) (bool, error) {
	today, err := sc.GetSunEventTimes(t)
	if err != nil {
		return false, err
	}
	return !t.Before(today.Sunset.Add(startOffset)) || t.Before(today.Sunrise.Add(stopOffset)), nil
}
