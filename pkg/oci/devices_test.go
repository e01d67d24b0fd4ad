package oci

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"mountkit/pkg/device"
	"mountkit/pkg/mount"
	"mountkit/pkg/types"
)

func testRootfs(t *testing.T) (string, string) {
	t.Helper()
	bundle, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	rootfs := filepath.Join(bundle, "rootfs")
	require.NoError(t, os.Mkdir(rootfs, 0o755))
	return bundle, rootfs
}

func TestSpecMount(t *testing.T) {
	bundle, rootfs := testRootfs(t)
	source := filepath.Join(bundle, "data")
	require.NoError(t, os.Mkdir(source, 0o755))

	m, err := mount.NewMount(source, "/data", unix.MS_RDONLY|unix.MS_NODEV, rootfs, types.CurrentIdentity())
	require.NoError(t, err)

	sm := SpecMount(m)
	assert.Equal(t, "/data", sm.Destination)
	assert.Equal(t, source, sm.Source)
	assert.Equal(t, "bind", sm.Type)
	assert.Equal(t, []string{"rbind", "rprivate", "ro", "nodev"}, sm.Options)

	m, err = mount.NewMount(source, "/data", 0, rootfs, types.CurrentIdentity())
	require.NoError(t, err)
	assert.Equal(t, []string{"rbind", "rprivate"}, SpecMount(m).Options)

	m, err = mount.NewMount(source, "/data", unix.MS_NOSYMFOLLOW|unix.MS_NOATIME, rootfs, types.CurrentIdentity())
	require.NoError(t, err)
	assert.Equal(t, []string{"rbind", "rprivate", "nosymfollow", "noatime"}, SpecMount(m).Options)
}

func TestDevices(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("test requires root privileges")
	}

	bundle, rootfs := testRootfs(t)
	dev := filepath.Join(bundle, "dev0")
	require.NoError(t, unix.Mknod(dev, unix.S_IFBLK|0o640, int(unix.Mkdev(477, 488))))

	dm, err := device.NewParser(rootfs, types.CurrentIdentity()).ParseDeviceRequest(dev + ":/dev/sdz:rw")
	require.NoError(t, err)

	devices, rules, err := Devices([]*device.DeviceMount{dm})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Len(t, rules, 1)

	d := devices[0]
	assert.Equal(t, "/dev/sdz", d.Path)
	assert.Equal(t, "b", d.Type)
	assert.Equal(t, int64(477), d.Major)
	assert.Equal(t, int64(488), d.Minor)
	require.NotNil(t, d.FileMode)
	assert.Equal(t, os.FileMode(0o640), *d.FileMode&os.ModePerm)
	require.NotNil(t, d.UID)
	assert.Equal(t, uint32(0), *d.UID)

	r := rules[0]
	assert.True(t, r.Allow)
	assert.Equal(t, "b", r.Type)
	assert.Equal(t, int64(477), *r.Major)
	assert.Equal(t, int64(488), *r.Minor)
	assert.Equal(t, "rw", r.Access)
}
