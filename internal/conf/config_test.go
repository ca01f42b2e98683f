package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/batrec/internal/errors"
)

// writeConfig writes content to a temp config.yaml and resets viper state.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "main:\n  name: field-unit\n")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "field-unit", s.Main.Name)
	assert.Equal(t, RecModeAuto, s.Recorder.Mode)
	assert.Equal(t, 6, s.Recorder.ClipLength)
	assert.InDelta(t, 1.0, s.Recorder.PreRoll, 1e-9)
	assert.Equal(t, 1200, s.Recorder.QueueSize)
	assert.Equal(t, 10*time.Second, s.Recorder.DriftThreshold)
	assert.Equal(t, 30*time.Second, s.Recorder.Watchdog)
	assert.Equal(t, []string{"Pettersson", "UltraMic"}, s.Recorder.DeviceNames)
	assert.InDelta(t, -50.0, s.Detection.Sensitivity, 1e-9)
	assert.InDelta(t, 15.0, s.Detection.MinFreq, 1e-9)
	assert.Equal(t, "wurb", s.Output.Prefix)
	assert.Equal(t, RecTypeFS, s.Output.RecType)
	assert.Equal(t, 20, s.Output.RemovableMinFree)
	assert.Equal(t, 500, s.Output.InternalMinFree)
	assert.True(t, s.Main.Log.Console.Enabled)
	assert.Same(t, s, GetSettings())
}

func TestLoadEmbeddedDefaultIsValid(t *testing.T) {
	data, err := configFiles.ReadFile("config.yaml")
	require.NoError(t, err)
	path := writeConfig(t, string(data))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, s.Scheduler.Interval)
	assert.Equal(t, "0.0.0.0:8090", s.Telemetry.Listen)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
recorder:
  mode: scheduler-auto
  cliplength: 10
  preroll: 2.5
  driftthreshold: 5s
detection:
  algorithm: none
  sensitivity: -40
output:
  rectype: TE
location:
  latitude: 57.66194
  longitude: 12.63902
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, RecModeSchedulerAuto, s.Recorder.Mode)
	assert.Equal(t, 20, s.Recorder.WindowBlocks())
	assert.Equal(t, 5, PreRollBlocks(s.Recorder.PreRoll))
	assert.Equal(t, 5*time.Second, s.Recorder.DriftThreshold)
	assert.Equal(t, AlgorithmNone, s.Detection.Algorithm)
	assert.Equal(t, RecTypeTE, s.Output.RecType)
	assert.InDelta(t, 57.66194, s.Location.Latitude, 1e-9)
}

func TestLoadInvalidReturnsValidationError(t *testing.T) {
	path := writeConfig(t, `
recorder:
  mode: sometimes
detection:
  algorithm: neural
location:
  latitude: 123
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Contains(t, err.Error(), "recorder.mode")
	assert.Contains(t, err.Error(), "detection.algorithm")
	assert.Contains(t, err.Error(), "location.latitude")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestCloneIsDeep(t *testing.T) {
	s := &Settings{}
	s.Recorder.DeviceNames = []string{"UltraMic"}
	s.Main.Log.ModuleLevels = map[string]string{"audio": "debug"}

	c := s.Clone()
	c.Recorder.DeviceNames[0] = "other"
	c.Main.Log.ModuleLevels["audio"] = "error"

	assert.Equal(t, "UltraMic", s.Recorder.DeviceNames[0])
	assert.Equal(t, "debug", s.Main.Log.ModuleLevels["audio"])
}

func TestSnapshotOmitsSecrets(t *testing.T) {
	path := writeConfig(t, "mqtt:\n  password: hunter2\n")
	s, err := Load(path)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, WriteSnapshotFile(dir, "batrec_settings.yaml", s))

	data, err := os.ReadFile(filepath.Join(dir, "batrec_settings.yaml"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")

	var back Settings
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, s.Output.Prefix, back.Output.Prefix)
	assert.Equal(t, s.Recorder.ClipLength, back.Recorder.ClipLength)
	assert.Equal(t, "hunter2", s.MQTT.Password, "original settings must not be modified")
}

func TestSaveYAMLConfigReplacesFile(t *testing.T) {
	path := writeConfig(t, "")
	s, err := Load(path)
	require.NoError(t, err)

	s.Output.Prefix = "bat1"
	require.NoError(t, SaveYAMLConfig(path, s))

	viper.Reset()
	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bat1", reloaded.Output.Prefix)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}
