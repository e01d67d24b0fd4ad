package mount

import (
	"errors"
	"os"
	"path/filepath"

	er "mountkit/errors"
	log "mountkit/logger"
	"mountkit/pkg/rootfs"
	"mountkit/pkg/utils"
)

// ValidateSource returns the canonical host path of a mount source.
func ValidateSource(path string) (string, error) {
	if path == "" {
		return "", er.ValidationErrorf("mount source is empty")
	}

	resolved, err := utils.ResolvePath(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", er.WrapValidation(err, "mount source %s does not exist", path)
		}
		return "", er.WrapValidation(err, "cannot resolve mount source %s", path)
	}
	return resolved, nil
}

// ValidateDestination resolves destination inside rootfs and returns the host
// path the mount must target. The destination may not exist yet, but the
// closest existing path must live on the same filesystem as rootfs: anything
// else means another filesystem is already mounted there.
func ValidateDestination(destination, rootfsDir string) (string, error) {
	_, hostPath, err := validateDestination(destination, rootfsDir)
	return hostPath, err
}

// validateDestination also returns the resolved rootfs-relative path.
func validateDestination(destination, rootfsDir string) (string, string, error) {
	if destination == "" {
		return "", "", er.ValidationErrorf("mount destination is empty")
	}
	if !filepath.IsAbs(rootfsDir) {
		return "", "", er.ValidationErrorf("rootfs %s is not an absolute path", rootfsDir)
	}
	rootfsDir = filepath.Clean(rootfsDir)
	if !utils.IsDir(rootfsDir) {
		return "", "", er.ValidationErrorf("rootfs %s is not an existing directory", rootfsDir)
	}

	resolved, err := rootfs.ResolveWithinRootfs(rootfsDir, destination)
	if err != nil {
		return "", "", er.Wrapf(err, "resolving mount destination %s", destination)
	}
	hostPath := filepath.Join(rootfsDir, resolved)
	if !utils.IsWithin(rootfsDir, hostPath) {
		return "", "", er.ValidationErrorf("mount destination %s escapes rootfs %s", destination, rootfsDir)
	}

	rootfsDev, err := utils.DeviceID(rootfsDir)
	if err != nil {
		return "", "", er.WrapValidation(err, "cannot stat rootfs %s", rootfsDir)
	}
	existing := utils.NearestExisting(hostPath)
	destDev, err := utils.DeviceID(existing)
	if err != nil {
		return "", "", er.WrapValidation(err, "cannot stat mount destination %s", existing)
	}
	if destDev != rootfsDev {
		return "", "", er.ValidationErrorf("mount destination %s is on another device than rootfs %s (%d != %d)",
			resolved, rootfsDir, destDev, rootfsDev)
	}

	log.WithField("rootfs", rootfsDir).Debugf("validated mount destination %s -> %s", destination, hostPath)
	return resolved, hostPath, nil
}
