package suncalc

import "time"

// Helsinki coordinates for testing
const (
	testLatitude  = 60.1699
	testLongitude = 24.9384
)

var helsinki = time.FixedZone("EEST", 3*60*60)

// newTestSunCalc creates a SunCalc instance with Helsinki coordinates.
func newTestSunCalc() *SunCalc {
	return NewSunCalc(testLatitude, testLongitude, helsinki)
}

// lateSummerDate returns a date with a real night in Helsinki.
func lateSummerDate() time.Time {
	return time.Date(2024, 8, 15, 12, 0, 0, 0, helsinki)
}
