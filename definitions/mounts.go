package defs

const (
	ServiceName = "mountkit"

	// DefaultDeviceAccess is granted to device requests that name no access.
	DefaultDeviceAccess = "rwm"

	// DefaultMaxSymlinks matches the kernel's ELOOP limit for a single lookup.
	DefaultMaxSymlinks = 40

	SquashfsType = "squashfs"
)
