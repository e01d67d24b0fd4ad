package mount

import (
	cmount "github.com/containerd/containerd/mount"
	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"

	defs "mountkit/definitions"
	er "mountkit/errors"
	log "mountkit/logger"
)

const atimeFlags = unix.MS_NOATIME | unix.MS_NODIRATIME | unix.MS_RELATIME | unix.MS_STRICTATIME

// Per-mount flags a bind remount can change.
const remountFlags = unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC |
	unix.MS_NOSYMFOLLOW | atimeFlags

// bind mounts are always recursive and private, so those bits are accepted
// and implied
const supportedFlags = remountFlags | unix.MS_BIND | unix.MS_REC | unix.MS_PRIVATE

// CheckFlags rejects flags a bind mount cannot honour, such as superblock
// flags like MS_SYNCHRONOUS.
func CheckFlags(flags uintptr) error {
	if unsupported := flags &^ supportedFlags; unsupported != 0 {
		return er.ValidationErrorf("mount flags %#x not supported for bind mounts", unsupported)
	}
	return nil
}

// BindMount makes from visible at to. The mount is recursive and private.
// Read-only and the other per-mount flags in extraFlags are applied by a
// second remount pass, since the kernel ignores them on the initial bind.
func BindMount(from, to string, extraFlags uintptr) error {
	if err := CheckFlags(extraFlags); err != nil {
		return err
	}
	entry := log.WithField("from", from).WithField("to", to)

	if err := unix.Mount(from, to, "bind", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return er.SyscallError("bind mount", from+" -> "+to, err)
	}
	// propagation cannot be combined with MS_BIND in one call
	if err := unix.Mount("", to, "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		detach(to)
		return er.SyscallError("make private", to, err)
	}

	if flags := extraFlags & remountFlags; flags != 0 {
		flags |= lockedFlags(to, flags&atimeFlags == 0)
		if err := unix.Mount(from, to, "bind", unix.MS_REMOUNT|unix.MS_BIND|flags, ""); err != nil {
			detach(to)
			return er.SyscallError("remount", to, err)
		}
	}

	entry.Debugf("bind mounted with flags %#x", extraFlags)
	return nil
}

// detach drops a half configured bind mount.
func detach(target string) {
	if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
		log.WithError(err).Warnf("failed to detach %s", target)
	}
}

// lockedFlags returns the flags already set on the mount holding path.
// Remounting without them fails with EPERM inside user namespaces. The atime
// mode is carried over only when the caller picks none.
func lockedFlags(path string, keepAtime bool) uintptr {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0
	}
	locked := map[int64]uintptr{
		unix.ST_RDONLY: unix.MS_RDONLY,
		unix.ST_NOSUID: unix.MS_NOSUID,
		unix.ST_NODEV:  unix.MS_NODEV,
		unix.ST_NOEXEC: unix.MS_NOEXEC,
	}
	if keepAtime {
		locked[unix.ST_NOATIME] = unix.MS_NOATIME
		locked[unix.ST_NODIRATIME] = unix.MS_NODIRATIME
		locked[unix.ST_RELATIME] = unix.MS_RELATIME
	}
	var flags uintptr
	for stFlag, msFlag := range locked {
		if int64(st.Flags)&stFlag != 0 {
			flags |= msFlag
		}
	}
	return flags
}

// LoopMountSquashfs attaches image to a free loop device and mounts it
// read-only at mountPoint.
func LoopMountSquashfs(image, mountPoint string) error {
	m := &cmount.Mount{
		Type:    defs.SquashfsType,
		Source:  image,
		Options: []string{"loop", "ro", "nosuid", "nodev"},
	}
	if err := m.Mount(mountPoint); err != nil {
		return er.SyscallError("loop mount", image+" -> "+mountPoint, err)
	}
	log.Debugf("loop mounted squashfs %s at %s", image, mountPoint)
	return nil
}

// Unmount detaches every mount stacked on target. Paths that are not mount
// points are left alone.
func Unmount(target string) error {
	mounted, err := mountinfo.Mounted(target)
	if err != nil {
		return er.SyscallError("inspect mounts of", target, err)
	}
	if !mounted {
		return nil
	}
	if err := cmount.UnmountAll(target, 0); err != nil {
		return er.SyscallError("unmount", target, err)
	}
	log.Debugf("unmounted %s", target)
	return nil
}
