//go:build windows

package diskmanager

import (
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/batrec/internal/errors"
)

// IsMountPoint reports whether path is a volume root listed by the system.
func IsMountPoint(path string) (bool, error) {
	parts, err := disk.Partitions(false)
	if err != nil {
		return false, errors.New(err).
			Component(componentName).
			Category(errors.CategoryStorage).
			Context("operation", "list_partitions").
			Build()
	}
	clean := filepath.Clean(path)
	for _, p := range parts {
		if filepath.Clean(p.Mountpoint) == clean {
			return true, nil
		}
	}
	return false, nil
}
