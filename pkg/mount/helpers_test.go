package mount

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func requireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("test requires root privileges")
	}
}

// canonicalTempDir returns a temp dir without host symlinks in its path, so
// results can be compared with what ValidateSource returns.
func canonicalTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

// unmountOnCleanup lazily detaches target when the test ends.
func unmountOnCleanup(t *testing.T, target string) {
	t.Cleanup(func() {
		_ = unix.Unmount(target, unix.MNT_DETACH)
	})
}

// makeSquashfs builds an image holding a single file_in_squashfs_image entry.
func makeSquashfs(t *testing.T) string {
	t.Helper()
	mksquashfs, err := exec.LookPath("mksquashfs")
	if err != nil {
		t.Skip("mksquashfs is not installed")
	}

	dir := t.TempDir()
	content := filepath.Join(dir, "content")
	require.NoError(t, os.Mkdir(content, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(content, "file_in_squashfs_image"), []byte("squash"), 0o644))

	image := filepath.Join(dir, "test_image.squashfs")
	out, err := exec.Command(mksquashfs, content, image, "-noappend", "-quiet").CombinedOutput()
	require.NoError(t, err, string(out))
	return image
}
