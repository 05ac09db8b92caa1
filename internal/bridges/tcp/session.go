package tcp

import "context"

// Opener establishes an authenticated session with a TCP Connected gateway.
//
// The vendor library (or Simulator) implements this. The bridge never sees
// the wire protocol; everything below this interface is opaque.
type Opener interface {
	Open(ctx context.Context, host, accessToken string) (Session, error)
}

// Session is a live connection to one TCP Connected gateway.
//
// A single Session is shared by every Light created from one Setup call.
// UpdateState pulls fresh state for all devices on the gateway; device
// accessors return whatever the last UpdateState fetched.
type Session interface {
	// Rooms enumerates the rooms configured on the gateway.
	Rooms(ctx context.Context) ([]Room, error)

	// Gateway returns the command surface for devices on this session.
	Gateway() Gateway

	// UpdateState fetches the latest state for every device.
	UpdateState(ctx context.Context) error
}

// Room groups devices on the gateway. Rooms are only used during discovery.
type Room interface {
	Name() string
	Devices(ctx context.Context) ([]Device, error)
}

// Device is the vendor's handle to one bulb. Values reflect the last
// Session.UpdateState call.
type Device interface {
	// ID is the gateway's device identifier (stable across restarts).
	ID() string
	Name() string
	IsOn() bool
	// Brightness is the device level, 0-100.
	Brightness() int
}

// Gateway issues commands to devices.
type Gateway interface {
	TurnOnDevice(ctx context.Context, device Device) error
	TurnOffDevice(ctx context.Context, device Device) error
	// SetDeviceLevel sets brightness on the device scale (0-100).
	SetDeviceLevel(ctx context.Context, device Device, level int) error
}
