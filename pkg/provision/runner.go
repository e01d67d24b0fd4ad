// Package provision executes mount requests against one rootfs in order.
package provision

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sys/unix"

	defs "mountkit/definitions"
	er "mountkit/errors"
	log "mountkit/logger"
	"mountkit/pkg/device"
	"mountkit/pkg/mount"
	"mountkit/pkg/tracer"
	"mountkit/pkg/types"
	"mountkit/pkg/utils"
)

// Runner performs requests sequentially and stops at the first failure.
// Mounts already performed stay in place; unmounting is up to the caller.
type Runner struct {
	Rootfs   string
	Identity types.UserIdentity
	// DefaultAccess applies to device requests without access. The zero
	// value keeps the parser default.
	DefaultAccess device.Access
}

func NewRunner(rootfs string, identity types.UserIdentity) *Runner {
	return &Runner{Rootfs: rootfs, Identity: identity}
}

func (r *Runner) parser() *device.Parser {
	p := device.NewParser(r.Rootfs, r.Identity)
	p.SetDefaultAccess(r.DefaultAccess)
	return p
}

// ParseDevices validates all device requests without mounting anything.
func (r *Runner) ParseDevices(ctx context.Context, requests []string) (_ []*device.DeviceMount, err error) {
	_, span := tracer.Start(ctx, "provision.parse_devices",
		attribute.String("rootfs", r.Rootfs),
		attribute.StringSlice("requests", requests))
	defer func() { tracer.End(span, err) }()

	return r.parser().ParseDeviceRequests(requests)
}

// Devices validates every request first, then mounts them in order.
func (r *Runner) Devices(ctx context.Context, requests []string) (_ []*device.DeviceMount, err error) {
	ctx, span := tracer.Start(ctx, "provision.devices", attribute.String("rootfs", r.Rootfs))
	defer func() { tracer.End(span, err) }()

	dms, err := r.ParseDevices(ctx, requests)
	if err != nil {
		return nil, err
	}
	for i, dm := range dms {
		if err := ctx.Err(); err != nil {
			return dms[:i], err
		}
		if err := r.perform(ctx, dm.Mount, "provision.device",
			attribute.String("type", string(dm.Type())),
			attribute.Int64("major", int64(dm.Major())),
			attribute.Int64("minor", int64(dm.Minor())),
			attribute.String("access", dm.Access().String())); err != nil {
			return dms[:i], err
		}
	}
	log.WithField("rootfs", r.Rootfs).Infof("%d device(s) mounted", len(dms))
	return dms, nil
}

// Bind mounts source at destination inside the rootfs.
func (r *Runner) Bind(ctx context.Context, source, destination string, readonly bool) (*mount.Mount, error) {
	var flags uintptr
	if readonly {
		flags |= unix.MS_RDONLY
	}
	m, err := mount.NewMount(source, destination, flags, r.Rootfs, r.Identity)
	if err != nil {
		return nil, err
	}
	if err := r.perform(ctx, m, "provision.bind", attribute.Bool("readonly", readonly)); err != nil {
		return nil, err
	}
	return m, nil
}

// Squashfs loop mounts image at mountPoint inside the rootfs. The mount point
// is validated like a bind destination and created when missing.
func (r *Runner) Squashfs(ctx context.Context, image, mountPoint string) (_ string, err error) {
	_, span := tracer.Start(ctx, "provision.squashfs",
		attribute.String("image", image),
		attribute.String("mount_point", mountPoint))
	defer func() { tracer.End(span, err) }()

	source, err := mount.ValidateSource(image)
	if err != nil {
		return "", err
	}
	target, err := mount.ValidateDestination(mountPoint, r.Rootfs)
	if err != nil {
		return "", err
	}
	if err := utils.MkdirAllWithInheritedOwner(target, defs.DirMode); err != nil {
		return "", er.SyscallError("create mount point", target, err)
	}
	if err := mount.LoopMountSquashfs(source, target); err != nil {
		return "", er.Wrapf(err, "squashfs %s", image)
	}
	log.WithField("rootfs", r.Rootfs).Infof("squashfs %s mounted at %s", source, mountPoint)
	return target, nil
}

func (r *Runner) perform(ctx context.Context, m *mount.Mount, name string, attrs ...attribute.KeyValue) (err error) {
	attrs = append(attrs,
		attribute.String("source", m.Source()),
		attribute.String("destination", m.Destination()))
	_, span := tracer.Start(ctx, name, attrs...)
	defer func() { tracer.End(span, err) }()

	return m.PerformMount()
}
