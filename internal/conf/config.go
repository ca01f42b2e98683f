// Package conf provides configuration management for batrec.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/batrec/internal/errors"
	"github.com/tphakala/batrec/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// RecMode selects when the pipeline runs and whether the detector gates clips.
type RecMode string

const (
	RecModeOff           RecMode = "off"
	RecModeOn            RecMode = "on"
	RecModeAuto          RecMode = "auto"
	RecModeManual        RecMode = "manual"
	RecModeSchedulerOn   RecMode = "scheduler-on"
	RecModeSchedulerAuto RecMode = "scheduler-auto"
)

// Detection algorithms
const (
	AlgorithmNone   = "none"
	AlgorithmSimple = "simple"
	AlgorithmManual = "manual"
)

// Capture sources
const (
	SourceAuto = "auto"
	SourceM500 = "m500"
	SourceCard = "card"
)

// Recording types used in filenames
const (
	RecTypeFS = "FS"
	RecTypeTE = "TE"
)

// Settings contains all configuration options
type Settings struct {
	Debug bool `yaml:"debug"`

	Main struct {
		Name string               `yaml:"name"`
		Log  logger.LoggingConfig `yaml:"log"`
	} `yaml:"main"`

	Recorder     RecorderSettings     `yaml:"recorder"`
	Detection    DetectionSettings    `yaml:"detection"`
	Output       OutputSettings       `yaml:"output"`
	Location     LocationSettings     `yaml:"location"`
	Scheduler    SchedulerSettings    `yaml:"scheduler"`
	Telemetry    TelemetrySettings    `yaml:"telemetry"`
	MQTT         MQTTSettings         `yaml:"mqtt"`
	Notification NotificationSettings `yaml:"notification"`
}

// RecorderSettings controls capture and pipeline behaviour
type RecorderSettings struct {
	Mode           RecMode       `yaml:"mode"`
	Source         string        `yaml:"source"`
	DeviceNames    []string      `yaml:"devicenames"`
	SampleRate     int           `yaml:"samplerate"`
	ClipLength     int           `yaml:"cliplength"` // seconds
	PreRoll        float64       `yaml:"preroll"`    // seconds
	QueueSize      int           `yaml:"queuesize"`
	DriftThreshold time.Duration `yaml:"driftthreshold"`
	Watchdog       time.Duration `yaml:"watchdog"`
	RestartDelay   time.Duration `yaml:"restartdelay"`
}

// DetectionSettings controls the sound detector
type DetectionSettings struct {
	Algorithm   string  `yaml:"algorithm"`
	Sensitivity float64 `yaml:"sensitivity"` // dBFS
	MinFreq     float64 `yaml:"minfreq"`     // kHz
}

// OutputSettings controls file naming and storage selection
type OutputSettings struct {
	Prefix           string `yaml:"prefix"`
	Subdir           string `yaml:"subdir"`
	RecType          string `yaml:"rectype"`
	RemovableRoot    string `yaml:"removableroot"`
	RemovableMinFree int    `yaml:"removableminfree"` // MB
	InternalRoot     string `yaml:"internalroot"`
	InternalMinFree  int    `yaml:"internalminfree"` // MB
	FallbackDir      string `yaml:"fallbackdir"`
	Snapshot         bool   `yaml:"snapshot"`
}

// LocationSettings holds the recorder position in decimal degrees
type LocationSettings struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// SchedulerSettings controls the rec-mode scheduler loop
type SchedulerSettings struct {
	Interval    time.Duration `yaml:"interval"`
	StartOffset time.Duration `yaml:"startoffset"`
	StopOffset  time.Duration `yaml:"stopoffset"`
}

// TelemetrySettings controls the metrics endpoint and error reporting
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Sentry  struct {
		Enabled bool   `yaml:"enabled"`
		DSN     string `yaml:"dsn"`
	} `yaml:"sentry"`
}

// MQTTSettings controls status publishing
type MQTTSettings struct {
	Enabled   bool   `yaml:"enabled"`
	Broker    string `yaml:"broker"`
	Topic     string `yaml:"topic"`
	ClientID  string `yaml:"clientid"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Retain    bool   `yaml:"retain"`
	Discovery bool   `yaml:"discovery"` // publish Home Assistant discovery configs
}

// NotificationSettings controls fault push notifications
type NotificationSettings struct {
	Enabled bool     `yaml:"enabled"`
	URLs    []string `yaml:"urls"`
}

// Clone returns a deep copy, safe to hand to a pipeline run.
func (s *Settings) Clone() *Settings {
	c := *s
	c.Recorder.DeviceNames = slices.Clone(s.Recorder.DeviceNames)
	c.Notification.URLs = slices.Clone(s.Notification.URLs)
	if s.Main.Log.ModuleLevels != nil {
		c.Main.Log.ModuleLevels = make(map[string]string, len(s.Main.Log.ModuleLevels))
		for k, v := range s.Main.Log.ModuleLevels {
			c.Main.Log.ModuleLevels[k] = v
		}
	}
	if s.Main.Log.Console != nil {
		console := *s.Main.Log.Console
		c.Main.Log.Console = &console
	}
	if s.Main.Log.FileOutput != nil {
		file := *s.Main.Log.FileOutput
		c.Main.Log.FileOutput = &file
	}
	return &c
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into a validated Settings. An empty configFile
// searches the default paths and creates a default config if none exists.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings, err := unmarshalSettings()
	if err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

func unmarshalSettings() (*Settings, error) {
	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

func initViper(configFile string) error {
	setDefaultConfig()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("config_file", configFile).
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded config to dir and reads it back
func createDefaultConfig(dir string) error {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// GetSettings returns the most recently loaded settings
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Watch reloads settings when the config file changes on disk. Invalid edits
// are logged and ignored; onChange receives only validated settings.
func Watch(onChange func(*Settings)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		settingsMutex.Lock()
		settings, err := unmarshalSettings()
		if err == nil {
			settingsInstance = settings
		}
		settingsMutex.Unlock()

		if err != nil {
			GetLogger().Warn("ignoring invalid config change",
				logger.String("file", e.Name),
				logger.Error(err))
			return
		}
		GetLogger().Info("config reloaded", logger.String("file", e.Name))
		onChange(settings)
	})
	viper.WatchConfig()
}

// MarshalSnapshot renders settings as YAML for the provenance copy written next to clips.
func MarshalSnapshot(settings *Settings) ([]byte, error) {
	snapshot := settings.Clone()
	snapshot.MQTT.Password = ""
	snapshot.Telemetry.Sentry.DSN = ""
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings snapshot: %w", err)
	}
	return data, nil
}

// SaveYAMLConfig writes settings to configPath using a temp file and rename.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return writeFileAtomic(configPath, yamlData)
}

func writeFileAtomic(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName)

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("error replacing %s: %w", path, err)
	}
	return nil
}

// WriteSnapshotFile writes the settings snapshot into dir, replacing any previous copy.
func WriteSnapshotFile(dir, name string, settings *Settings) error {
	data, err := MarshalSnapshot(settings)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, name), data)
}
