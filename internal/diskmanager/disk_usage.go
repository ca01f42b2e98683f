// Package diskmanager reports free space and mount points for recording targets.
package diskmanager

import (
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/batrec/internal/errors"
)

const componentName = "diskmanager"

// MB is the unit of the free-space floors.
const MB = 1 << 20

// DiskSpaceInfo holds detailed disk space information.
type DiskSpaceInfo struct {
	TotalBytes uint64
	UsedBytes  uint64
	FreeBytes  uint64
}

// GetDetailedDiskUsage returns the space of the filesystem containing path.
// FreeBytes is the space available to unprivileged users.
func GetDetailedDiskUsage(path string) (DiskSpaceInfo, error) {
	start := time.Now()
	usage, err := disk.Usage(path)
	if err != nil {
		return DiskSpaceInfo{}, errors.New(err).
			Component(componentName).
			Category(errors.CategoryStorage).
			Context("path", path).
			Timing("disk_usage_check", time.Since(start)).
			Build()
	}
	return DiskSpaceInfo{
		TotalBytes: usage.Total,
		UsedBytes:  usage.Used,
		FreeBytes:  usage.Free,
	}, nil
}

// GetAvailableSpace returns the free bytes on the filesystem containing path.
func GetAvailableSpace(path string) (uint64, error) {
	info, err := GetDetailedDiskUsage(path)
	if err != nil {
		return 0, err
	}
	return info.FreeBytes, nil
}

// ListSubdirs returns the directories directly below root, sorted by name.
// A missing root yields an empty list.
func ListSubdirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("path", root).
			Build()
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	slices.Sort(dirs)
	return dirs, nil
}
