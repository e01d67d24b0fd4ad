package provision

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/moby/sys/mountinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	er "mountkit/errors"
	"mountkit/pkg/device"
	"mountkit/pkg/mount"
	"mountkit/pkg/types"
)

func requireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("test requires root privileges")
	}
}

func newTestRunner(t *testing.T) (*Runner, string) {
	t.Helper()
	bundle, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	rootfs := filepath.Join(bundle, "rootfs")
	require.NoError(t, os.Mkdir(rootfs, 0o755))
	return NewRunner(rootfs, types.CurrentIdentity()), bundle
}

func detachOnCleanup(t *testing.T, target string) {
	t.Cleanup(func() { _ = unix.Unmount(target, unix.MNT_DETACH) })
}

func TestDevicesRejectsAllBeforeMounting(t *testing.T) {
	r, bundle := newTestRunner(t)

	dms, err := r.Devices(context.Background(), []string{
		filepath.Join(bundle, "missing"),
		"/dev/null:relative",
	})
	require.Error(t, err)
	assert.Nil(t, dms)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)

	entries, err := os.ReadDir(r.Rootfs)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBindInvalidSource(t *testing.T) {
	r, bundle := newTestRunner(t)
	_, err := r.Bind(context.Background(), filepath.Join(bundle, "missing"), "/data", false)
	assert.True(t, er.IsValidation(err))
}

func TestBind(t *testing.T) {
	requireRoot(t)
	r, bundle := newTestRunner(t)
	source := filepath.Join(bundle, "data")
	require.NoError(t, os.Mkdir(source, 0o755))

	m, err := r.Bind(context.Background(), source, "/srv/data", true)
	require.NoError(t, err)
	detachOnCleanup(t, m.HostDestination())
	assert.Equal(t, mount.Mounted, m.State())
	assert.ErrorIs(t, os.WriteFile(filepath.Join(m.HostDestination(), "file"), nil, 0o644), unix.EROFS)
}

func TestDevices(t *testing.T) {
	requireRoot(t)
	r, bundle := newTestRunner(t)
	r.DefaultAccess, _ = device.NewAccess("r")

	dev := filepath.Join(bundle, "dev0")
	require.NoError(t, unix.Mknod(dev, unix.S_IFCHR|0o666, int(unix.Mkdev(511, 511))))

	dms, err := r.Devices(context.Background(), []string{dev + ":/dev/dev0"})
	require.NoError(t, err)
	require.Len(t, dms, 1)
	detachOnCleanup(t, dms[0].HostDestination())

	assert.Equal(t, "r", dms[0].Access().String())
	mounted, err := mountinfo.Mounted(filepath.Join(r.Rootfs, "dev/dev0"))
	require.NoError(t, err)
	assert.True(t, mounted)
}

func TestDevicesCanceled(t *testing.T) {
	requireRoot(t)
	r, bundle := newTestRunner(t)
	dev := filepath.Join(bundle, "dev0")
	require.NoError(t, unix.Mknod(dev, unix.S_IFCHR|0o666, int(unix.Mkdev(511, 511))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dms, err := r.Devices(ctx, []string{dev})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dms)
}

func TestSquashfs(t *testing.T) {
	requireRoot(t)
	mksquashfs, err := exec.LookPath("mksquashfs")
	if err != nil {
		t.Skip("mksquashfs is not installed")
	}

	r, bundle := newTestRunner(t)
	content := filepath.Join(bundle, "content")
	require.NoError(t, os.Mkdir(content, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(content, "file_in_squashfs_image"), nil, 0o644))
	image := filepath.Join(bundle, "image.squashfs")
	out, err := exec.Command(mksquashfs, content, image, "-noappend", "-quiet").CombinedOutput()
	require.NoError(t, err, string(out))

	target, err := r.Squashfs(context.Background(), image, "/opt/image")
	require.NoError(t, err)
	detachOnCleanup(t, target)
	assert.Equal(t, filepath.Join(r.Rootfs, "opt/image"), target)
	assert.FileExists(t, filepath.Join(target, "file_in_squashfs_image"))

	require.NoError(t, mount.Unmount(target))
}
