package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/batrec/cmd/devices"
	"github.com/tphakala/batrec/cmd/parse"
	"github.com/tphakala/batrec/cmd/record"
	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *conf.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "batrec",
		Short:         "Ultrasonic bat call recorder",
		Version:       ctx.Build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, ctx)

	recordCmd := record.Command(ctx)
	devicesCmd := devices.Command(ctx)
	parseCmd := parse.Command()

	rootCmd.AddCommand(recordCmd, devicesCmd, parseCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// File names can be parsed without a config.
		if cmd.Name() == parseCmd.Name() {
			return nil
		}
		return initialize(ctx)
	}

	return rootCmd
}

// initialize loads the configuration and installs the global logger.
func initialize(ctx *conf.Context) error {
	settings, err := conf.Load(ctx.ConfigFile)
	if err != nil {
		return err
	}
	if viper.GetBool("debug") {
		settings.Debug = true
		settings.Main.Log.DefaultLevel = "debug"
		if settings.Main.Log.Console != nil {
			settings.Main.Log.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Main.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	ctx.Settings = settings
	if used := viper.ConfigFileUsed(); used != "" {
		ctx.ConfigDir = filepath.Dir(used)
	}
	logger.Global().Module("main").Info("configuration loaded",
		logger.String("config_file", viper.ConfigFileUsed()),
		logger.String("version", ctx.Build.GetVersion()))
	return nil
}

func setupFlags(rootCmd *cobra.Command, ctx *conf.Context) {
	rootCmd.PersistentFlags().StringVarP(&ctx.ConfigFile, "config", "c", "", "Path to config.yaml (default: search ~/.config/batrec, /etc/batrec, .)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding debug flag: %v", err))
	}
}
