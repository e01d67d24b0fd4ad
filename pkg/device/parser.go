package device

import (
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"

	defs "mountkit/definitions"
	er "mountkit/errors"
	log "mountkit/logger"
	"mountkit/pkg/mount"
	"mountkit/pkg/types"
)

// Flags of every device bind mount.
const deviceMountFlags = unix.MS_REC | unix.MS_PRIVATE

// Parser turns device requests of the form
//
//	SOURCE[:DESTINATION][:ACCESS]
//
// into validated device mounts inside one rootfs.
type Parser struct {
	rootfs        string
	identity      types.UserIdentity
	defaultAccess Access
}

func NewParser(rootfs string, identity types.UserIdentity) *Parser {
	access, _ := NewAccess(defs.DefaultDeviceAccess)
	return &Parser{
		rootfs:        rootfs,
		identity:      identity,
		defaultAccess: access,
	}
}

// SetDefaultAccess changes the access given to requests without one.
// The zero Access is ignored.
func (p *Parser) SetDefaultAccess(a Access) {
	if a.IsZero() {
		return
	}
	p.defaultAccess = a
}

// ParseDeviceRequest parses request and validates the resulting mount.
// Grammar errors are parse errors. A missing source, a source that is no
// device, or a destination on another filesystem are validation errors.
func (p *Parser) ParseDeviceRequest(request string) (*DeviceMount, error) {
	source, destination, access, err := p.split(request)
	if err != nil {
		return nil, err
	}

	m, err := mount.NewMount(source, destination, deviceMountFlags, p.rootfs, p.identity)
	if err != nil {
		return nil, er.Wrapf(err, "device request %q", request)
	}
	dm, err := NewDeviceMount(m, access)
	if err != nil {
		return nil, er.Wrapf(err, "device request %q", request)
	}
	return dm, nil
}

// ParseDeviceRequests parses all requests and reports every failure at once.
// No mount is returned unless all requests are valid.
func (p *Parser) ParseDeviceRequests(requests []string) ([]*DeviceMount, error) {
	var result *multierror.Error
	mounts := make([]*DeviceMount, 0, len(requests))
	for _, request := range requests {
		dm, err := p.ParseDeviceRequest(request)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		mounts = append(mounts, dm)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return mounts, nil
}

func (p *Parser) split(request string) (source, destination string, access Access, err error) {
	if request == "" {
		return "", "", Access{}, er.ParseErrorf("device request is empty")
	}

	tokens := strings.Split(request, ":")
	if len(tokens) > 3 {
		return "", "", Access{}, er.ParseErrorf("device request %q has too many tokens", request)
	}
	for _, token := range tokens {
		if token == "" {
			return "", "", Access{}, er.ParseErrorf("device request %q has an empty field", request)
		}
	}

	source = tokens[0]
	destination = source
	access = p.defaultAccess
	switch len(tokens) {
	case 2:
		if a, aerr := NewAccess(tokens[1]); aerr == nil {
			access = a
		} else {
			destination = tokens[1]
		}
	case 3:
		destination = tokens[1]
		if access, err = NewAccess(tokens[2]); err != nil {
			return "", "", Access{}, er.Wrapf(err, "device request %q", request)
		}
	}

	if !filepath.IsAbs(source) {
		return "", "", Access{}, er.ParseErrorf("device source %q is not an absolute path", source)
	}
	if !filepath.IsAbs(destination) {
		return "", "", Access{}, er.ParseErrorf("device destination %q is not an absolute path", destination)
	}

	log.Debugf("device request %q: source=%s destination=%s access=%s", request, source, destination, access)
	return source, destination, access, nil
}
