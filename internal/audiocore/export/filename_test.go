package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/errors"
)

var cest = time.FixedZone("CEST", 2*60*60)

func TestFileNameRoundTrip(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 6, 21, 22, 15, 30, 0, cest)
	f := FileName{Prefix: "wurb", Time: ts, Latitude: 57.66194, Longitude: 12.63902, RecType: "FS384"}

	name := f.String()
	assert.Equal(t, "wurb_20260621T221530+0200_N57.66194E12.63902_FS384.wav", name)

	got, err := ParseFileName(name)
	require.NoError(t, err)
	assert.Equal(t, "wurb", got.Prefix)
	assert.True(t, ts.Equal(got.Time))
	assert.Equal(t, 57.66194, got.Latitude)
	assert.Equal(t, 12.63902, got.Longitude)
	assert.Equal(t, "FS384", got.RecType)
	assert.Nil(t, got.Peak)
}

func TestFileNameVariants(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("", -3*60*60))
	tests := []struct {
		name string
		in   FileName
		want string
	}{
		{
			name: "south west",
			in:   FileName{Prefix: "wurb", Time: ts, Latitude: -33.9, Longitude: -70.25, RecType: "TE500"},
			want: "wurb_20260102T030405-0300_S33.9W70.25_TE500.wav",
		},
		{
			name: "peak suffix is rounded",
			in: FileName{Prefix: "wurb", Time: ts, Latitude: 1, Longitude: 2, RecType: "FS384",
				Peak: &audiocore.Peak{FrequencyHz: 42400, LevelDBFS: -30.6}},
			want: "wurb_20260102T030405-0300_N1E2_FS384_42kHz-31dB.wav",
		},
		{
			name: "prefix with underscore",
			in:   FileName{Prefix: "site_a", Time: ts, Latitude: 0, Longitude: 0, RecType: "FS250"},
			want: "site_a_20260102T030405-0300_N0E0_FS250.wav",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.String())

			got, err := ParseFileName(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.in.Prefix, got.Prefix)
			assert.Equal(t, tt.in.Latitude, got.Latitude)
			assert.Equal(t, tt.in.Longitude, got.Longitude)
			assert.Equal(t, tt.in.RecType, got.RecType)
			assert.True(t, tt.in.Time.Equal(got.Time))
		})
	}
}

func TestParseFileNamePeak(t *testing.T) {
	t.Parallel()

	got, err := ParseFileName("wurb_20260102T030405+0100_N57.5_E12.5_FS384_42kHz-31dB.wav")
	require.NoError(t, err)
	require.NotNil(t, got.Peak)
	assert.Equal(t, 42000.0, got.Peak.FrequencyHz)
	assert.Equal(t, -31.0, got.Peak.LevelDBFS)
	assert.Equal(t, 12.5, got.Longitude, "separator between latitude and longitude is optional")
}

func TestParseFileNameRejects(t *testing.T) {
	t.Parallel()

	for _, name := range []string{
		"",
		"notes.txt",
		"wurb_20260102T030405_N1E2_FS384.wav",
		"wurb_20260102T030405+0100_X1E2_FS384.wav",
		"wurb_20260102T030405+0100_N1E2_XX384.wav",
		"wurb_20260102T030405+0100_N1E2_FS384.flac",
	} {
		_, err := ParseFileName(name)
		require.Error(t, err, name)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation), name)
	}
}

func TestRecTypeAndOutputRate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "FS384", RecTypeTag(conf.RecTypeFS, 384000))
	assert.Equal(t, "TE500", RecTypeTag(conf.RecTypeTE, 500000))
	assert.Equal(t, 384000, OutputRate(conf.RecTypeFS, 384000))
	assert.Equal(t, 50000, OutputRate(conf.RecTypeTE, 500000))
}
