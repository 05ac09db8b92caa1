package tcp

import "context"

// Feature is a bit set of optional light capabilities.
type Feature uint32

const (
	// FeatureBrightness indicates the light can be dimmed.
	FeatureBrightness Feature = 1 << iota
)

// Has reports whether f includes every bit in other.
func (f Feature) Has(other Feature) bool {
	return f&other == other
}

// Light adapts one TCP Connected bulb to the Gray Logic light model.
//
// Properties reflect the last Refresh, not live state: the gateway has no
// push channel, so callers must Refresh before reading Name, IsOn or
// Brightness if they need current values.
//
// Light holds no state of its own and adds no locking. Errors from the
// session or gateway are returned exactly as received.
type Light struct {
	session Session
	device  Device
}

// NewLight binds a device handle to the session it was discovered on.
func NewLight(session Session, device Device) *Light {
	return &Light{session: session, device: device}
}

// ID returns the gateway device identifier.
func (l *Light) ID() string {
	return l.device.ID()
}

// Session returns the shared session this light was discovered on.
func (l *Light) Session() Session {
	return l.session
}

// Device returns the underlying vendor handle.
func (l *Light) Device() Device {
	return l.device
}

// SupportedFeatures always reports brightness control.
func (l *Light) SupportedFeatures() Feature {
	return FeatureBrightness
}

// Name returns the device name from the gateway.
func (l *Light) Name() string {
	return l.device.Name()
}

// IsOn reports the power state seen at the last refresh.
func (l *Light) IsOn() bool {
	return l.device.IsOn()
}

// Brightness returns the hub brightness (0-255) seen at the last refresh.
func (l *Light) Brightness() int {
	return ToHubLevel(l.device.Brightness())
}

// TurnOnOption customises TurnOn.
type TurnOnOption func(*turnOnParams)

type turnOnParams struct {
	brightness int
}

// WithBrightness sets the target hub brightness (0-255) for TurnOn.
func WithBrightness(brightness int) TurnOnOption {
	return func(p *turnOnParams) {
		p.brightness = brightness
	}
}

// TurnOn powers the light on and sets its level.
//
// Without WithBrightness the light goes to full brightness. The gateway
// receives two calls in order: power on, then set level. If powering on
// fails the level is not sent.
func (l *Light) TurnOn(ctx context.Context, opts ...TurnOnOption) error {
	params := turnOnParams{brightness: MaxHubLevel}
	for _, opt := range opts {
		opt(&params)
	}

	level := ToDeviceLevel(params.brightness)
	gw := l.session.Gateway()

	if err := gw.TurnOnDevice(ctx, l.device); err != nil {
		return err
	}
	return gw.SetDeviceLevel(ctx, l.device, level)
}

// TurnOff powers the light off. The level is left untouched.
func (l *Light) TurnOff(ctx context.Context) error {
	return l.session.Gateway().TurnOffDevice(ctx, l.device)
}

// Refresh asks the shared session to fetch state for every device on the
// gateway, this one included.
func (l *Light) Refresh(ctx context.Context) error {
	return l.session.UpdateState(ctx)
}
