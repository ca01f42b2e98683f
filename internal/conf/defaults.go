package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers defaults for every key so a partial config file is valid.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "batrec")
	viper.SetDefault("main.log.defaultlevel", "info")
	viper.SetDefault("main.log.timezone", "Local")
	viper.SetDefault("main.log.console.enabled", true)
	viper.SetDefault("main.log.console.level", "info")
	viper.SetDefault("main.log.file.enabled", false)
	viper.SetDefault("main.log.file.path", "logs/batrec.log")
	viper.SetDefault("main.log.file.level", "info")

	viper.SetDefault("recorder.mode", string(RecModeAuto))
	viper.SetDefault("recorder.source", SourceAuto)
	viper.SetDefault("recorder.devicenames", []string{"Pettersson", "UltraMic"})
	viper.SetDefault("recorder.samplerate", 384000)
	viper.SetDefault("recorder.cliplength", 6)
	viper.SetDefault("recorder.preroll", 1.0)
	viper.SetDefault("recorder.queuesize", 1200)
	viper.SetDefault("recorder.driftthreshold", 10*time.Second)
	viper.SetDefault("recorder.watchdog", 30*time.Second)
	viper.SetDefault("recorder.restartdelay", 1*time.Second)

	viper.SetDefault("detection.algorithm", AlgorithmSimple)
	viper.SetDefault("detection.sensitivity", -50.0)
	viper.SetDefault("detection.minfreq", 15.0)

	viper.SetDefault("output.prefix", "wurb")
	viper.SetDefault("output.subdir", "")
	viper.SetDefault("output.rectype", RecTypeFS)
	viper.SetDefault("output.removableroot", "/media/pi")
	viper.SetDefault("output.removableminfree", 20)
	viper.SetDefault("output.internalroot", "/home/pi")
	viper.SetDefault("output.internalminfree", 500)
	viper.SetDefault("output.fallbackdir", "wurb_files")
	viper.SetDefault("output.snapshot", true)

	viper.SetDefault("location.latitude", 0.0)
	viper.SetDefault("location.longitude", 0.0)

	viper.SetDefault("scheduler.interval", 10*time.Second)
	viper.SetDefault("scheduler.startoffset", time.Duration(0))
	viper.SetDefault("scheduler.stopoffset", time.Duration(0))

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")
	viper.SetDefault("telemetry.sentry.enabled", false)
	viper.SetDefault("telemetry.sentry.dsn", "")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "batrec")
	viper.SetDefault("mqtt.clientid", "batrec")
	viper.SetDefault("mqtt.retain", true)
	viper.SetDefault("mqtt.discovery", false)

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})
}
