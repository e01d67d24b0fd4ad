package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

func IsRegular(path string) bool {
	stat, err := os.Stat(path)
	if err != nil {
		return false
	}
	return stat.Mode().IsRegular()
}

func IsDir(path string) bool {
	stat, err := os.Stat(path)
	if err != nil {
		return false
	}
	return stat.IsDir()
}

// return absolute and non-link path on the host
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path must be specified")
	}

	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(absolute)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file does not exist: %s: %w", absolute, os.ErrNotExist)
		}

		return "", err
	}

	return resolved, nil
}

// DeviceID returns the st_dev of the filesystem holding path.
func DeviceID(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	return uint64(st.Dev), nil
}

// NearestExisting walks up from path and returns the first path that exists.
// "/" always exists.
func NearestExisting(path string) string {
	cur := filepath.Clean(path)
	for {
		if _, err := os.Lstat(cur); err == nil {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return cur
		}
		cur = parent
	}
}

// getAllParentPaths returns all the parent directories of a path, including itself but excluding root directory "/".
// For example, "/foo/bar/biz" returns {"/foo", "/foo/bar", "/foo/bar/biz"}
func getAllParentPaths(path string) []string {
	if path == "/" || path == "." {
		return []string{}
	}

	paths := []string{filepath.Clean(path)}
	cur := path
	var parent string
	for cur != "/" && cur != "." {
		parent = filepath.Dir(cur)
		paths = append([]string{parent}, paths...)
		cur = parent
	}
	// remove the "/" or "." from the return result
	return paths[1:]
}

// MkdirAllWithInheritedOwner creates a directory named path, along with any necessary parents.
// It creates the missing directories with the ownership of the last existing parent.
// The path needs to be absolute and the method doesn't handle symlink.
func MkdirAllWithInheritedOwner(path string, perm os.FileMode) error {
	if len(path) == 0 {
		return fmt.Errorf("path cannot be empty")
	}

	// By default, use the uid and gid of the calling process.
	var uid = os.Getuid()
	var gid = os.Getgid()

	paths := getAllParentPaths(path)
	for _, curPath := range paths {
		info, err := os.Stat(curPath)

		if err != nil {
			if err = os.Mkdir(curPath, perm); err != nil && !os.IsExist(err) {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			if err = syscall.Chown(curPath, uid, gid); err != nil {
				return fmt.Errorf("failed to change ownership: %w", err)
			}
			continue
		}

		if !info.IsDir() {
			return &os.PathError{Op: "mkdir", Path: curPath, Err: syscall.ENOTDIR}
		}
		if stat, ok := info.Sys().(*syscall.Stat_t); ok {
			uid = int(stat.Uid)
			gid = int(stat.Gid)
		} else {
			return fmt.Errorf("failed to retrieve UID and GID for path: %s", curPath)
		}
	}
	return nil
}

// EnsureFileWithInheritedOwner creates an empty file at path if nothing exists
// there yet, creating parents like MkdirAllWithInheritedOwner. The file takes
// the ownership of its parent directory.
func EnsureFileWithInheritedOwner(path string, perm os.FileMode, dirPerm os.FileMode) error {
	if _, err := os.Lstat(path); err == nil {
		return nil
	}

	parent := filepath.Dir(path)
	if err := MkdirAllWithInheritedOwner(parent, dirPerm); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	info, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if err := syscall.Chown(path, int(stat.Uid), int(stat.Gid)); err != nil {
			return fmt.Errorf("failed to change ownership: %w", err)
		}
	}
	return nil
}
