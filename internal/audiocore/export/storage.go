package export

import (
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/diskmanager"
	"github.com/tphakala/batrec/internal/errors"
	"github.com/tphakala/batrec/internal/logger"
)

const (
	componentName = "export"

	targetCacheKey = "target"
	// targetCacheTTL bounds how long a storage decision is reused between clips.
	targetCacheTTL = 10 * time.Second
)

// ErrNoStorage is returned when no target directory has enough free space.
var ErrNoStorage = errors.NewStd("no storage target with enough free space")

// StorageProbe inspects the filesystem. Tests substitute a fake.
type StorageProbe interface {
	Subdirs(root string) ([]string, error)
	IsMountPoint(path string) (bool, error)
	FreeBytes(path string) (uint64, error)
	Exists(path string) bool
}

type diskProbe struct{}

func (diskProbe) Subdirs(root string) ([]string, error)  { return diskmanager.ListSubdirs(root) }
func (diskProbe) IsMountPoint(path string) (bool, error) { return diskmanager.IsMountPoint(path) }
func (diskProbe) FreeBytes(path string) (uint64, error)  { return diskmanager.GetAvailableSpace(path) }

func (diskProbe) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DiskProbe returns the probe backed by the real filesystem.
func DiskProbe() StorageProbe { return diskProbe{} }

// StoragePolicy lists the candidate roots in priority order.
type StoragePolicy struct {
	// RemovableRoot holds one directory per removable medium, e.g. /media/pi.
	RemovableRoot    string
	RemovableMinFree uint64
	// InternalRoot is used when no removable medium qualifies.
	InternalRoot    string
	InternalMinFree uint64
	// FallbackDir is the data directory name under InternalRoot, and the
	// relative target when InternalRoot does not exist.
	FallbackDir string
	Subdir      string
}

// PolicyFromSettings converts output settings to a policy.
func PolicyFromSettings(o *conf.OutputSettings) StoragePolicy {
	return StoragePolicy{
		RemovableRoot:    o.RemovableRoot,
		RemovableMinFree: uint64(o.RemovableMinFree) * diskmanager.MB,
		InternalRoot:     o.InternalRoot,
		InternalMinFree:  uint64(o.InternalMinFree) * diskmanager.MB,
		FallbackDir:      o.FallbackDir,
		Subdir:           o.Subdir,
	}
}

// StorageSelector picks the clip target directory.
type StorageSelector struct {
	policy StoragePolicy
	probe  StorageProbe
	cache  *cache.Cache
	log    logger.Logger
}

// NewStorageSelector creates a selector. A nil probe uses the real filesystem.
func NewStorageSelector(policy StoragePolicy, probe StorageProbe) *StorageSelector {
	if probe == nil {
		probe = diskProbe{}
	}
	return &StorageSelector{
		policy: policy,
		probe:  probe,
		cache:  cache.New(targetCacheTTL, time.Minute),
		log:    GetLogger().Module("storage"),
	}
}

// cachedTarget is a storage decision. mount is the removable medium holding
// dir, empty for internal storage.
type cachedTarget struct {
	dir   string
	mount string
}

// Target returns the directory for the next clip. Removable media are tried
// first in name order, then internal storage. If the internal root exists
// but is short on space the result is a storage error. A cached removable
// target is only reused while its medium is still mounted.
func (s *StorageSelector) Target() (string, error) {
	if v, ok := s.cache.Get(targetCacheKey); ok {
		t := v.(cachedTarget)
		if t.mount == "" || s.stillMounted(t.mount) {
			return t.dir, nil
		}
		s.log.Info("removable medium gone, selecting storage again",
			logger.String("mount", t.mount))
		s.Invalidate()
	}
	t, err := s.resolve()
	if err != nil {
		return "", err
	}
	s.cache.SetDefault(targetCacheKey, t)
	return t.dir, nil
}

// Invalidate drops the cached decision, e.g. after a write failed.
func (s *StorageSelector) Invalidate() {
	s.cache.Delete(targetCacheKey)
}

func (s *StorageSelector) stillMounted(mount string) bool {
	mounted, err := s.probe.IsMountPoint(mount)
	return err == nil && mounted
}

func (s *StorageSelector) resolve() (cachedTarget, error) {
	p := s.policy

	if p.RemovableRoot != "" {
		mounts, err := s.probe.Subdirs(p.RemovableRoot)
		if err != nil {
			s.log.Debug("cannot list removable media", logger.Error(err))
		}
		for _, m := range mounts {
			// The directory may exist without a medium attached.
			if !s.stillMounted(m) {
				continue
			}
			free, err := s.probe.FreeBytes(m)
			if err != nil || free < p.RemovableMinFree {
				s.log.Debug("removable medium skipped",
					logger.String("mount", m),
					logger.Uint64("free_bytes", free))
				continue
			}
			return cachedTarget{dir: filepath.Join(m, p.Subdir), mount: m}, nil
		}
	}

	if p.InternalRoot != "" && s.probe.Exists(p.InternalRoot) {
		free, err := s.probe.FreeBytes(p.InternalRoot)
		if err != nil {
			return cachedTarget{}, err
		}
		if free < p.InternalMinFree {
			return cachedTarget{}, errors.New(ErrNoStorage).
				Component(componentName).
				Category(errors.CategoryStorage).
				Context("path", p.InternalRoot).
				Context("free_bytes", free).
				Context("min_free_bytes", p.InternalMinFree).
				Build()
		}
		return cachedTarget{dir: filepath.Join(p.InternalRoot, p.FallbackDir, p.Subdir)}, nil
	}

	return cachedTarget{dir: filepath.Join(p.FallbackDir, p.Subdir)}, nil
}
