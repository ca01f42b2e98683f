package conf

import "github.com/tphakala/batrec/internal/buildinfo"

// Context carries the loaded settings and build information to commands.
// Settings is nil until the root command has loaded the configuration.
type Context struct {
	Settings   *Settings
	ConfigFile string
	// ConfigDir is the directory holding the loaded config file.
	ConfigDir string
	Build     *buildinfo.Context
}
