package diskmanager

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/batrec/internal/errors"
)

func TestGetDetailedDiskUsage(t *testing.T) {
	t.Parallel()

	info, err := GetDetailedDiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, info.TotalBytes)
	assert.LessOrEqual(t, info.FreeBytes, info.TotalBytes)

	free, err := GetAvailableSpace(t.TempDir())
	require.NoError(t, err)
	assert.LessOrEqual(t, free, info.TotalBytes)
}

func TestGetDetailedDiskUsageMissingPath(t *testing.T) {
	t.Parallel()

	_, err := GetDetailedDiskUsage(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryStorage))
}

func TestListSubdirs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, d := range []string{"usb1", "SD_CARD", "usb0"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, d), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "file.txt"), nil, 0o644))

	dirs, err := ListSubdirs(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "SD_CARD"),
		filepath.Join(root, "usb0"),
		filepath.Join(root, "usb1"),
	}, dirs)

	dirs, err = ListSubdirs(filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.Empty(t, dirs)
}

func TestIsMountPoint(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("unix mount semantics")
	}

	mounted, err := IsMountPoint("/")
	require.NoError(t, err)
	assert.True(t, mounted)

	dir := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.Mkdir(dir, 0o755))
	mounted, err = IsMountPoint(dir)
	require.NoError(t, err)
	assert.False(t, mounted)

	_, err = IsMountPoint(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
