package device

import (
	"golang.org/x/sys/unix"

	er "mountkit/errors"
	log "mountkit/logger"
	"mountkit/pkg/mount"
)

// DeviceMount is a Mount whose source is a character or block special file.
// Bind mounting the node carries its type and numbers to the destination, so
// PerformMount is the plain bind mount of the embedded Mount.
type DeviceMount struct {
	*mount.Mount

	access Access
	kind   byte
	major  uint32
	minor  uint32
}

// NewDeviceMount takes over m. It fails with a validation error unless the
// source of m is a device special file.
func NewDeviceMount(m *mount.Mount, access Access) (*DeviceMount, error) {
	if m == nil {
		return nil, er.ValidationErrorf("device mount without a mount")
	}

	var st unix.Stat_t
	if err := unix.Stat(m.Source(), &st); err != nil {
		return nil, er.WrapValidation(err, "cannot stat device %s", m.Source())
	}

	var kind byte
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFCHR:
		kind = 'c'
	case unix.S_IFBLK:
		kind = 'b'
	default:
		return nil, er.ValidationErrorf("%s is not a character or block device", m.Source())
	}

	dm := &DeviceMount{
		Mount:  m,
		access: access,
		kind:   kind,
		major:  unix.Major(uint64(st.Rdev)), //nolint:unconvert
		minor:  unix.Minor(uint64(st.Rdev)), //nolint:unconvert
	}
	log.WithField("device", m.Source()).Debugf("device %c %d:%d access %s", dm.kind, dm.major, dm.minor, access)
	return dm, nil
}

// Type is 'c' for character and 'b' for block devices.
func (d *DeviceMount) Type() byte { return d.kind }

func (d *DeviceMount) Major() uint32 { return d.major }

func (d *DeviceMount) Minor() uint32 { return d.minor }

func (d *DeviceMount) Access() Access { return d.access }
