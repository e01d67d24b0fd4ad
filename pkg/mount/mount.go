// Package mount validates bind mount requests against a container rootfs and
// performs them.
package mount

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	defs "mountkit/definitions"
	er "mountkit/errors"
	log "mountkit/logger"
	"mountkit/pkg/types"
	"mountkit/pkg/utils"
)

// State of a Mount. The only transition is Validated -> Mounted.
type State int

const (
	Validated State = iota
	Mounted
)

func (s State) String() string {
	switch s {
	case Validated:
		return "validated"
	case Mounted:
		return "mounted"
	default:
		return "unknown"
	}
}

// noCopy makes go vet's copylocks check reject copies of the embedding struct.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Mount is a validated bind mount of a host path into a rootfs. It is only
// obtained from NewMount and handled by pointer: it stands for one mount
// operation, not a reusable description. Performing it does not tie the
// kernel mount to the value; unmounting is up to the caller.
type Mount struct {
	noCopy noCopy

	source          string
	destination     string
	hostDestination string
	flags           uintptr
	rootfs          string
	identity        types.UserIdentity
	state           State
}

// NewMount validates source on the host and destination inside rootfsDir.
// destination is interpreted relative to the rootfs root.
func NewMount(source, destination string, flags uintptr, rootfsDir string, identity types.UserIdentity) (*Mount, error) {
	if err := CheckFlags(flags); err != nil {
		return nil, err
	}
	resolvedSource, err := ValidateSource(source)
	if err != nil {
		return nil, err
	}
	resolvedDestination, hostDestination, err := validateDestination(destination, rootfsDir)
	if err != nil {
		return nil, err
	}

	m := &Mount{
		source:          resolvedSource,
		destination:     resolvedDestination,
		hostDestination: hostDestination,
		flags:           flags,
		rootfs:          filepath.Clean(rootfsDir),
		identity:        identity,
		state:           Validated,
	}
	log.WithFields(m.fields()).Debug("mount request validated")
	return m, nil
}

// PerformMount creates the mount point if needed and bind mounts the source
// onto it. Calling it twice stacks a second mount.
func (m *Mount) PerformMount() error {
	if err := m.ensureMountPoint(); err != nil {
		return err
	}
	if err := BindMount(m.source, m.hostDestination, m.flags); err != nil {
		return er.Wrapf(err, "mounting %s into rootfs %s", m.source, m.rootfs)
	}
	m.state = Mounted
	log.WithFields(m.fields()).Info("mount performed")
	return nil
}

// the mount point mirrors the source: a directory for directories, an empty
// file for everything else (regular files, device nodes, sockets)
func (m *Mount) ensureMountPoint() error {
	fi, err := os.Stat(m.source)
	if err != nil {
		return er.WrapValidation(err, "mount source %s disappeared", m.source)
	}
	if fi.IsDir() {
		err = utils.MkdirAllWithInheritedOwner(m.hostDestination, defs.DirMode)
	} else {
		err = utils.EnsureFileWithInheritedOwner(m.hostDestination, defs.FileMode, defs.DirMode)
	}
	if err != nil {
		return er.SyscallError("create mount point", m.hostDestination, err)
	}
	return nil
}

// Source is the canonical host path being mounted.
func (m *Mount) Source() string { return m.source }

// Destination is the resolved mount point, relative to the rootfs root.
func (m *Mount) Destination() string { return m.destination }

// HostDestination is the resolved mount point as a host path.
func (m *Mount) HostDestination() string { return m.hostDestination }

func (m *Mount) Flags() uintptr { return m.flags }

func (m *Mount) Rootfs() string { return m.rootfs }

func (m *Mount) Identity() types.UserIdentity { return m.identity }

func (m *Mount) State() State { return m.state }

func (m *Mount) fields() logrus.Fields {
	return logrus.Fields{
		"source":      m.source,
		"destination": m.destination,
		"rootfs":      m.rootfs,
		"flags":       m.flags,
		"identity":    m.identity.String(),
	}
}
