package mount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	er "mountkit/errors"
)

func TestValidateSource(t *testing.T) {
	dir := canonicalTempDir(t)

	t.Run("empty source", func(t *testing.T) {
		_, err := ValidateSource("")
		require.Error(t, err)
		assert.True(t, er.IsValidation(err))
	})

	t.Run("non existing source", func(t *testing.T) {
		_, err := ValidateSource(filepath.Join(dir, "mount_source_1"))
		require.Error(t, err)
		assert.True(t, er.IsValidation(err))
	})

	t.Run("existing source is canonicalized on the host", func(t *testing.T) {
		source := filepath.Join(dir, "mount_source_2")
		require.NoError(t, os.Mkdir(source, 0o755))
		require.NoError(t, os.Symlink(source, filepath.Join(dir, "link")))

		resolved, err := ValidateSource(filepath.Join(dir, "link"))
		require.NoError(t, err)
		assert.Equal(t, source, resolved)
	})
}

func TestValidateDestination(t *testing.T) {
	bundle := canonicalTempDir(t)
	rootfs := filepath.Join(bundle, "rootfs")
	require.NoError(t, os.MkdirAll(filepath.Join(rootfs, "etc"), 0o755))

	t.Run("empty destination", func(t *testing.T) {
		_, err := ValidateDestination("", rootfs)
		require.Error(t, err)
		assert.True(t, er.IsValidation(err))
	})

	t.Run("missing rootfs", func(t *testing.T) {
		_, err := ValidateDestination("/etc", filepath.Join(bundle, "missing"))
		require.Error(t, err)
		assert.True(t, er.IsValidation(err))
	})

	t.Run("relative rootfs", func(t *testing.T) {
		_, err := ValidateDestination("/etc", "rootfs")
		assert.True(t, er.IsValidation(err))
	})

	t.Run("non existing mount point", func(t *testing.T) {
		dest, err := ValidateDestination("/nonExistingMountPoint", rootfs)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(rootfs, "nonExistingMountPoint"), dest)
	})

	t.Run("existing mount point", func(t *testing.T) {
		dest, err := ValidateDestination("/etc", rootfs)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(rootfs, "etc"), dest)
	})

	t.Run("symlink to the host root stays in rootfs", func(t *testing.T) {
		require.NoError(t, os.Symlink("/", filepath.Join(rootfs, "escape")))
		require.NoError(t, os.Symlink("../../../../..", filepath.Join(rootfs, "etc", "up")))

		dest, err := ValidateDestination("/escape/etc/passwd", rootfs)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(rootfs, "etc/passwd"), dest)

		dest, err = ValidateDestination("/etc/up/tmp", rootfs)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(rootfs, "tmp"), dest)
	})
}

func TestValidateDestinationOtherDevice(t *testing.T) {
	requireRoot(t)

	rootfs := filepath.Join(canonicalTempDir(t), "rootfs")
	otherDevice := filepath.Join(rootfs, "otherDevice")
	require.NoError(t, os.MkdirAll(otherDevice, 0o755))
	require.NoError(t, unix.Mount("tmpfs", otherDevice, "tmpfs", 0, ""))
	unmountOnCleanup(t, otherDevice)

	_, err := ValidateDestination("/otherDevice", rootfs)
	require.Error(t, err)
	assert.True(t, er.IsValidation(err))

	// below the foreign mount, even when the target does not exist yet
	_, err = ValidateDestination("/otherDevice/nested", rootfs)
	assert.True(t, er.IsValidation(err))

	// siblings are unaffected
	_, err = ValidateDestination("/sibling", rootfs)
	assert.NoError(t, err)
}

func TestValidateDestinationLoopMountedImage(t *testing.T) {
	requireRoot(t)
	image := makeSquashfs(t)

	rootfs := filepath.Join(canonicalTempDir(t), "rootfs")
	otherDevice := filepath.Join(rootfs, "otherDevice")
	require.NoError(t, os.MkdirAll(otherDevice, 0o755))
	require.NoError(t, LoopMountSquashfs(image, otherDevice))
	unmountOnCleanup(t, otherDevice)

	_, err := ValidateDestination("/otherDevice", rootfs)
	require.Error(t, err)
	assert.True(t, er.IsValidation(err))
}
