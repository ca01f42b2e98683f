package record

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/batrec/internal/analysis"
	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/audiocore/export"
	"github.com/tphakala/batrec/internal/buildinfo"
	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/logger"
	"github.com/tphakala/batrec/internal/mqtt"
	"github.com/tphakala/batrec/internal/notification"
	"github.com/tphakala/batrec/internal/observability"
	obsmetrics "github.com/tphakala/batrec/internal/observability/metrics"
	"github.com/tphakala/batrec/internal/suncalc"
	"github.com/tphakala/batrec/internal/telemetry"
)

const sentryFlushTimeout = 2 * time.Second

// Command creates the record command, which runs the recorder until interrupted.
func Command(ctx *conf.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record bat calls",
		Long:  "Capture ultrasound from an M500 or sound card and write detected calls to WAV files.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(sigCtx, ctx)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("mode", "", "Rec mode: off, on, auto, manual, scheduler-on, scheduler-auto")
	cmd.Flags().String("source", "", "Capture source: auto, m500 or card")
	cmd.Flags().Bool("telemetry", false, "Enable Prometheus telemetry endpoint")
	cmd.Flags().String("listen", "", "Listen address of telemetry endpoint")

	return bindFlags(cmd.Flags(), map[string]string{
		"mode":      "recorder.mode",
		"source":    "recorder.source",
		"telemetry": "telemetry.enabled",
		"listen":    "telemetry.listen",
	})
}

// bindFlags binds each flag to its config key so that a flag given on the
// command line overrides config.yaml.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("unknown flag %s", name)
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

// Run wires the recorder services and blocks until ctx is cancelled.
func Run(ctx context.Context, appCtx *conf.Context) error {
	settings := appCtx.Settings
	log := logger.Global().Module("record")

	build := appCtx.Build
	if build == nil {
		build = &buildinfo.Context{}
		appCtx.Build = build
	}
	configDir := appCtx.ConfigDir
	if configDir == "" {
		configDir = "."
	}
	systemID, err := telemetry.LoadOrCreateSystemID(configDir)
	if err != nil {
		log.Warn("system ID unavailable", logger.Error(err))
	}
	build.SystemID = systemID
	if err := telemetry.InitSentry(settings, build.GetVersion(), systemID); err != nil {
		log.Warn("error reporting disabled", logger.Error(err))
	}
	defer telemetry.Flush(sentryFlushTimeout)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	notifier := notification.NewServiceFromSettings(&settings.Notification, metrics.Notification)
	publisher := newPublisher(settings, build.GetVersion(), metrics)

	recMetrics := &notifyingMetrics{RecorderMetrics: metrics.Recorder, notifier: notifier}
	manager := analysis.NewManager(analysis.ManagerConfig{
		Settings: settings,
		Deps: analysis.StageDeps{
			OnClip: func(ev export.ClipEvent) {
				if publisher != nil {
					publisher.PublishClip(mqtt.NewClipDTO(ev, ev.Rate, time.Now()))
				}
			},
		},
		Metrics: recMetrics,
		OnRestart: func(reason string) {
			notifier.RestartRequested(reason)
		},
	})

	sun := suncalc.NewSunCalc(settings.Location.Latitude, settings.Location.Longitude, time.Local)
	scheduler := analysis.NewScheduler(analysis.SchedulerConfig{
		Recorder: manager,
		Sun:      sun,
		Settings: manager.Settings.Get,
	})

	conf.Watch(func(s *conf.Settings) {
		if err := manager.UpdateSettings(s); err != nil {
			log.Warn("settings update rejected", logger.Error(err))
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return notifier.Run(gctx) })
	g.Go(func() error {
		watchStatus(gctx, manager, publisher, notifier)
		return nil
	})
	g.Go(func() error {
		watchManualTrigger(gctx, manager)
		return nil
	})
	if publisher != nil {
		g.Go(func() error { return publisher.Run(gctx) })
	}
	if settings.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(settings, metrics)
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	log.Info("recorder started",
		logger.String("mode", string(settings.Recorder.Mode)),
		logger.String("source", settings.Recorder.Source))

	err = g.Wait()
	log.Info("recorder stopped")
	if flushErr := logger.Global().Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	return err
}

func newPublisher(settings *conf.Settings, version string, metrics *observability.Metrics) *mqtt.Publisher {
	if !settings.MQTT.Enabled {
		return nil
	}
	cfg := mqtt.ConfigFromSettings(&settings.MQTT)
	client := mqtt.NewClient(cfg, metrics.MQTT)

	var discovery *mqtt.DiscoveryPublisher
	if settings.MQTT.Discovery {
		discovery = mqtt.NewDiscoveryPublisher(client, &mqtt.DiscoveryConfig{
			BaseTopic:  cfg.Topic,
			DeviceName: settings.Main.Name,
			NodeID:     cfg.ClientID,
			Model:      settings.Recorder.Source,
			Version:    version,
		})
	}
	return mqtt.NewPublisher(mqtt.PublisherConfig{
		Client:    client,
		BaseTopic: cfg.Topic,
		Discovery: discovery,
	})
}

// watchStatus forwards status changes to MQTT and raises a notification when
// recording fails to start.
func watchStatus(ctx context.Context, m *analysis.Manager, publisher *mqtt.Publisher, notifier *notification.Service) {
	statuses, cancel := m.Status.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case status := <-statuses:
			if publisher != nil {
				publisher.PublishStatus(mqtt.NewStatusDTO(status, m.State.Get(), m.RunID(), time.Now()))
			}
			if strings.HasPrefix(status, "Failed") {
				notifier.NoDevice(status)
			}
		}
	}
}

// notifyingMetrics raises a storage notification alongside the counter.
type notifyingMetrics struct {
	*obsmetrics.RecorderMetrics
	notifier *notification.Service
}

func (n *notifyingMetrics) StorageUnavailable() {
	n.RecorderMetrics.StorageUnavailable()
	n.notifier.StorageUnavailable(nil)
}

var _ audiocore.Metrics = (*notifyingMetrics)(nil)
