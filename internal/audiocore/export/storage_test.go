package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/batrec/internal/diskmanager"
	"github.com/tphakala/batrec/internal/errors"
)

type fakeProbe struct {
	subdirs map[string][]string
	mounts  map[string]bool
	free    map[string]uint64
	exists  map[string]bool
}

func (p *fakeProbe) Subdirs(root string) ([]string, error)  { return p.subdirs[root], nil }
func (p *fakeProbe) IsMountPoint(path string) (bool, error) { return p.mounts[path], nil }
func (p *fakeProbe) FreeBytes(path string) (uint64, error)  { return p.free[path], nil }
func (p *fakeProbe) Exists(path string) bool                { return p.exists[path] }

func testPolicy() StoragePolicy {
	return StoragePolicy{
		RemovableRoot:    "/media/pi",
		RemovableMinFree: 20 * diskmanager.MB,
		InternalRoot:     "/home/pi",
		InternalMinFree:  500 * diskmanager.MB,
		FallbackDir:      "wurb_files",
		Subdir:           "site1",
	}
}

func TestStorageSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		probe   *fakeProbe
		want    string
		wantErr bool
	}{
		{
			name: "first usable removable medium",
			probe: &fakeProbe{
				subdirs: map[string][]string{"/media/pi": {"/media/pi/a", "/media/pi/b", "/media/pi/c"}},
				mounts:  map[string]bool{"/media/pi/b": true, "/media/pi/c": true},
				free:    map[string]uint64{"/media/pi/b": 10 * diskmanager.MB, "/media/pi/c": 30 * diskmanager.MB},
				exists:  map[string]bool{"/home/pi": true},
			},
			want: filepath.Join("/media/pi/c", "site1"),
		},
		{
			name: "internal storage",
			probe: &fakeProbe{
				free:   map[string]uint64{"/home/pi": 600 * diskmanager.MB},
				exists: map[string]bool{"/home/pi": true},
			},
			want: filepath.Join("/home/pi", "wurb_files", "site1"),
		},
		{
			name: "internal storage full",
			probe: &fakeProbe{
				free:   map[string]uint64{"/home/pi": 400 * diskmanager.MB},
				exists: map[string]bool{"/home/pi": true},
			},
			wantErr: true,
		},
		{
			name:  "local directory off device",
			probe: &fakeProbe{},
			want:  filepath.Join("wurb_files", "site1"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStorageSelector(testPolicy(), tt.probe).Target()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrNoStorage)
				assert.True(t, errors.IsCategory(err, errors.CategoryStorage))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStorageDecisionIsCached(t *testing.T) {
	t.Parallel()

	probe := &fakeProbe{
		free:   map[string]uint64{"/home/pi": 600 * diskmanager.MB},
		exists: map[string]bool{"/home/pi": true},
	}
	sel := NewStorageSelector(testPolicy(), probe)

	first, err := sel.Target()
	require.NoError(t, err)

	probe.free["/home/pi"] = 0
	cached, err := sel.Target()
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	sel.Invalidate()
	_, err = sel.Target()
	assert.ErrorIs(t, err, ErrNoStorage)
}

func TestStorageReselectsWhenMediumRemoved(t *testing.T) {
	t.Parallel()

	probe := &fakeProbe{
		subdirs: map[string][]string{"/media/pi": {"/media/pi/stick"}},
		mounts:  map[string]bool{"/media/pi/stick": true},
		free: map[string]uint64{
			"/media/pi/stick": 100 * diskmanager.MB,
			"/home/pi":        100 * diskmanager.MB,
		},
		exists: map[string]bool{"/home/pi": true},
	}
	sel := NewStorageSelector(testPolicy(), probe)

	first, err := sel.Target()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/media/pi/stick", "site1"), first)

	// Pulled within the cache lifetime; internal storage is below its floor.
	probe.mounts["/media/pi/stick"] = false
	_, err = sel.Target()
	require.ErrorIs(t, err, ErrNoStorage)

	probe.free["/home/pi"] = 600 * diskmanager.MB
	second, err := sel.Target()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/pi", "wurb_files", "site1"), second)
}
