package device

import "errors"

// Errors returned by the registry and repositories. Check with errors.Is.
var (
	ErrDeviceNotFound = errors.New("device: not found")
	ErrDeviceExists   = errors.New("device: already exists")

	ErrInvalidDevice       = errors.New("device: invalid")
	ErrInvalidName         = errors.New("device: invalid name")
	ErrInvalidSlug         = errors.New("device: invalid slug")
	ErrInvalidDomain       = errors.New("device: invalid domain")
	ErrInvalidProtocol     = errors.New("device: invalid protocol")
	ErrInvalidDeviceType   = errors.New("device: invalid type")
	ErrInvalidCapability   = errors.New("device: invalid capability")
	ErrInvalidAddress      = errors.New("device: invalid address")
	ErrInvalidState        = errors.New("device: invalid state")
	ErrInvalidHealthStatus = errors.New("device: invalid health status")
)
