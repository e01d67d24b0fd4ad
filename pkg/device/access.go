// Package device parses device requests and bind mounts device special files
// into a container rootfs.
package device

import (
	"strings"

	er "mountkit/errors"
)

// Access is a cgroup-style device permission set over read, write and mknod.
type Access struct {
	read  bool
	write bool
	mknod bool
}

// NewAccess parses a permission string such as "rwm" or "wr". Every
// character must be one of r, w or m and may appear at most once.
func NewAccess(s string) (Access, error) {
	var a Access
	if s == "" {
		return a, er.ParseErrorf("device access is empty")
	}
	if len(s) > 3 {
		return a, er.ParseErrorf("device access %q has more than 3 characters", s)
	}

	for _, c := range s {
		var flag *bool
		switch c {
		case 'r':
			flag = &a.read
		case 'w':
			flag = &a.write
		case 'm':
			flag = &a.mknod
		default:
			return Access{}, er.ParseErrorf("device access %q contains invalid character %q", s, c)
		}
		if *flag {
			return Access{}, er.ParseErrorf("device access %q repeats %q", s, c)
		}
		*flag = true
	}
	return a, nil
}

// String renders the set in r, w, m order.
func (a Access) String() string {
	var sb strings.Builder
	if a.read {
		sb.WriteByte('r')
	}
	if a.write {
		sb.WriteByte('w')
	}
	if a.mknod {
		sb.WriteByte('m')
	}
	return sb.String()
}

func (a Access) Read() bool  { return a.read }
func (a Access) Write() bool { return a.write }
func (a Access) Mknod() bool { return a.mknod }

// IsZero reports whether no permission is set. Only the zero value is.
func (a Access) IsZero() bool { return !a.read && !a.write && !a.mknod }
