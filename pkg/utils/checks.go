package utils

import (
	"errors"
	"os"
	"path/filepath"
)

func FileExist(path string) bool {
	_, err := os.Lstat(path)
	return !errors.Is(err, os.ErrNotExist)
}

// IsWithin reports whether path is root itself or lies below it. Both paths
// must be clean and absolute.
func IsWithin(root, path string) bool {
	if root == "/" {
		return filepath.IsAbs(path)
	}
	return path == root || (len(path) > len(root) && path[:len(root)] == root && path[len(root)] == '/')
}
