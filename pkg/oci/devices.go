// Package oci renders validated mounts as OCI runtime-spec entries.
package oci

import (
	"os"

	"github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"

	er "mountkit/errors"
	"mountkit/pkg/device"
	"mountkit/pkg/mount"
)

// LinuxDevice describes dm as a linux.devices entry. Mode and owner are taken
// from the host node.
func LinuxDevice(dm *device.DeviceMount) (specs.LinuxDevice, error) {
	var st unix.Stat_t
	if err := unix.Stat(dm.Source(), &st); err != nil {
		return specs.LinuxDevice{}, er.WrapValidation(err, "cannot stat device %s", dm.Source())
	}
	mode := os.FileMode(st.Mode &^ unix.S_IFMT)
	uid, gid := st.Uid, st.Gid

	return specs.LinuxDevice{
		Path:     dm.Destination(),
		Type:     string(dm.Type()),
		Major:    int64(dm.Major()),
		Minor:    int64(dm.Minor()),
		FileMode: &mode,
		UID:      &uid,
		GID:      &gid,
	}, nil
}

// DeviceCgroupRule allows the access of dm in the device cgroup.
func DeviceCgroupRule(dm *device.DeviceMount) specs.LinuxDeviceCgroup {
	major, minor := int64(dm.Major()), int64(dm.Minor())
	return specs.LinuxDeviceCgroup{
		Allow:  true,
		Type:   string(dm.Type()),
		Major:  &major,
		Minor:  &minor,
		Access: dm.Access().String(),
	}
}

// SpecMount describes m as a recursive private bind mount.
func SpecMount(m *mount.Mount) specs.Mount {
	options := []string{"rbind", "rprivate"}
	for _, o := range []struct {
		flag uintptr
		name string
	}{
		{unix.MS_RDONLY, "ro"},
		{unix.MS_NOSUID, "nosuid"},
		{unix.MS_NODEV, "nodev"},
		{unix.MS_NOEXEC, "noexec"},
		{unix.MS_NOSYMFOLLOW, "nosymfollow"},
		{unix.MS_NOATIME, "noatime"},
		{unix.MS_NODIRATIME, "nodiratime"},
		{unix.MS_RELATIME, "relatime"},
		{unix.MS_STRICTATIME, "strictatime"},
	} {
		if m.Flags()&o.flag != 0 {
			options = append(options, o.name)
		}
	}
	return specs.Mount{
		Destination: m.Destination(),
		Type:        "bind",
		Source:      m.Source(),
		Options:     options,
	}
}

// Devices renders dms as the devices and device cgroup rules of an OCI runtime config.
func Devices(dms []*device.DeviceMount) ([]specs.LinuxDevice, []specs.LinuxDeviceCgroup, error) {
	devices := make([]specs.LinuxDevice, 0, len(dms))
	rules := make([]specs.LinuxDeviceCgroup, 0, len(dms))
	for _, dm := range dms {
		d, err := LinuxDevice(dm)
		if err != nil {
			return nil, nil, err
		}
		devices = append(devices, d)
		rules = append(rules, DeviceCgroupRule(dm))
	}
	return devices, rules, nil
}
