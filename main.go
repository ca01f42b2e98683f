package main

import (
	"fmt"
	"os"

	"github.com/tphakala/batrec/cmd"
	"github.com/tphakala/batrec/internal/buildinfo"
	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/logger"
)

// Set by the build, e.g. -ldflags "-X main.version=1.2.0".
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	ctx := &conf.Context{
		Build: &buildinfo.Context{
			Version:   version,
			BuildDate: buildDate,
		},
	}

	rootCmd := cmd.RootCommand(ctx)
	err := rootCmd.Execute()
	_ = logger.Global().Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
