// Package rootfs resolves paths as a process chrooted into a rootfs would see
// them, without ever leaving the rootfs on the host.
package rootfs

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sys/unix"

	defs "mountkit/definitions"
	er "mountkit/errors"
	log "mountkit/logger"
)

var maxSymlinks atomic.Int32

func init() {
	maxSymlinks.Store(defs.DefaultMaxSymlinks)
}

// SetMaxSymlinks changes how many symlinks a single resolution may expand.
// Values below 1 restore the default.
func SetMaxSymlinks(n int) {
	if n < 1 {
		n = defs.DefaultMaxSymlinks
	}
	maxSymlinks.Store(int32(n))
}

func MaxSymlinks() int {
	return int(maxSymlinks.Load())
}

// ResolveWithinRootfs resolves every symlink in path as if rootfs were "/".
// Absolute link targets restart at the rootfs root, relative ones continue
// from the directory holding the link, and ".." never climbs above the root.
// Components that do not exist are kept verbatim. The result is absolute,
// clean and relative to rootfs.
func ResolveWithinRootfs(rootfs, path string) (string, error) {
	limit := MaxSymlinks()
	resolved := "/"
	pending := components(path)
	expanded := 0

	for len(pending) > 0 {
		name := pending[0]
		pending = pending[1:]

		switch name {
		case "", ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, name)
		hostPath := filepath.Join(rootfs, next)
		fi, err := os.Lstat(hostPath)
		if err != nil {
			if os.IsNotExist(err) || isNotDir(err) {
				resolved = next
				continue
			}
			return "", er.WrapValidation(err, "cannot inspect %s in rootfs %s", next, rootfs)
		}
		if fi.Mode()&os.ModeSymlink == 0 {
			resolved = next
			continue
		}

		expanded++
		if expanded > limit {
			return "", er.WrapValidation(unix.ELOOP, "too many levels of symbolic links resolving %s in rootfs %s", path, rootfs)
		}
		target, err := os.Readlink(hostPath)
		if err != nil {
			return "", er.WrapValidation(err, "cannot read symlink %s in rootfs %s", next, rootfs)
		}
		log.Debugf("rootfs %s: %s -> %s", rootfs, next, target)

		if filepath.IsAbs(target) {
			resolved = "/"
		}
		pending = append(components(target), pending...)
	}

	return resolved, nil
}

func components(path string) []string {
	return strings.Split(path, "/")
}

func isNotDir(err error) bool {
	if pe, ok := err.(*os.PathError); ok {
		return pe.Err == unix.ENOTDIR
	}
	return false
}
