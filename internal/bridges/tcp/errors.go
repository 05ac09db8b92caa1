package tcp

import "errors"

// Sentinel errors for the TCP Connected bridge.
//
// Errors raised by a Session or Gateway are never wrapped by Light or Setup;
// compare them directly or with errors.Is.
var (
	// ErrMissingHost is returned when the platform config has no gateway host.
	ErrMissingHost = errors.New("tcp: host is required")

	// ErrMissingAccessToken is returned when the platform config has no access token.
	ErrMissingAccessToken = errors.New("tcp: access_token is required")

	// ErrUnauthorized is returned by the simulator when the access token does not match.
	ErrUnauthorized = errors.New("tcp: access token rejected")

	// ErrDeviceNotFound is returned when a command targets an unknown light.
	ErrDeviceNotFound = errors.New("tcp: device not found")

	// ErrInvalidBrightness is returned when a hub brightness is outside 0-255.
	ErrInvalidBrightness = errors.New("tcp: brightness must be 0-255")
)
