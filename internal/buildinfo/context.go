// Package buildinfo contains build-time metadata kept apart from user configuration
package buildinfo

import "fmt"

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string

	// SystemID is the anonymous station identifier used for error reports.
	// It is filled in at startup, not at build time.
	SystemID string
}

// GetVersion returns the version, or "dev" for local builds
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return "dev"
	}
	return c.Version
}

// String renders the version line shown by --version
func (c *Context) String() string {
	if c == nil || c.BuildDate == "" || c.BuildDate == "unknown" {
		return c.GetVersion()
	}
	return fmt.Sprintf("%s (built %s)", c.GetVersion(), c.BuildDate)
}
