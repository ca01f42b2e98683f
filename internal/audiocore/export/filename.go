package export

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/errors"
)

// TimeLayout is the timestamp format embedded in clip names.
const TimeLayout = "20060102T150405-0700"

// FileName holds the fields encoded in a clip file name, for example
// "wurb_20260621T221530+0200_N57.66194E12.63902_FS384_42kHz-31dB.wav".
type FileName struct {
	Prefix    string
	Time      time.Time
	Latitude  float64
	Longitude float64
	// RecType is the recording type tag, "FS" or "TE" followed by the
	// capture rate in kHz.
	RecType string
	// Peak is optional and rounded to whole kHz and dB in the name.
	Peak *audiocore.Peak
}

var fileNamePattern = regexp.MustCompile(
	`^(.+)_(\d{8}T\d{6}[+-]\d{4})_([NS])(\d+(?:\.\d+)?)_?([EW])(\d+(?:\.\d+)?)_((?:FS|TE)\d+)(?:_(\d+)kHz(-?\d+)dB)?\.wav$`)

// RecTypeTag returns the tag for recType at the capture sampleRate.
func RecTypeTag(recType string, sampleRate int) string {
	return recType + strconv.Itoa(sampleRate/1000)
}

// OutputRate is the rate written to the WAV header. Time expansion slows
// playback ten times.
func OutputRate(recType string, sampleRate int) int {
	if recType == conf.RecTypeTE {
		return sampleRate / 10
	}
	return sampleRate
}

// String renders the file name.
func (f FileName) String() string {
	var b strings.Builder
	b.WriteString(f.Prefix)
	b.WriteByte('_')
	b.WriteString(f.Time.Format(TimeLayout))
	b.WriteByte('_')
	b.WriteString(hemisphere(f.Latitude, 'N', 'S'))
	b.WriteString(hemisphere(f.Longitude, 'E', 'W'))
	b.WriteByte('_')
	b.WriteString(f.RecType)
	if f.Peak != nil {
		fmt.Fprintf(&b, "_%dkHz%ddB",
			int(math.Round(f.Peak.FrequencyHz/1000)),
			int(math.Round(f.Peak.LevelDBFS)))
	}
	b.WriteString(".wav")
	return b.String()
}

func hemisphere(deg float64, pos, neg byte) string {
	prefix := pos
	if deg < 0 {
		prefix = neg
	}
	return string(prefix) + strconv.FormatFloat(math.Abs(deg), 'f', -1, 64)
}

// ParseFileName recovers the fields of a clip file name. Directory
// components are not accepted.
func ParseFileName(name string) (FileName, error) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return FileName{}, errors.Newf("not a clip file name: %q", name).
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}

	ts, err := time.Parse(TimeLayout, m[2])
	if err != nil {
		return FileName{}, errors.New(err).
			Component(componentName).
			Category(errors.CategoryValidation).
			Context("file", name).
			Build()
	}
	// The pattern only admits valid decimals.
	lat, _ := strconv.ParseFloat(m[4], 64)
	lon, _ := strconv.ParseFloat(m[6], 64)
	if m[3] == "S" {
		lat = -lat
	}
	if m[5] == "W" {
		lon = -lon
	}

	f := FileName{
		Prefix:    m[1],
		Time:      ts,
		Latitude:  lat,
		Longitude: lon,
		RecType:   m[7],
	}
	if m[8] != "" {
		khz, _ := strconv.Atoi(m[8])
		db, _ := strconv.Atoi(m[9])
		f.Peak = &audiocore.Peak{FrequencyHz: float64(khz) * 1000, LevelDBFS: float64(db)}
	}
	return f, nil
}
