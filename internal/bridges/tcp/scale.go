package tcp

// Brightness ranges on either side of the bridge.
const (
	// MaxHubLevel is the top of the hub brightness scale (0-255).
	MaxHubLevel = 255

	// MaxDeviceLevel is the top of the TCP Connected level scale (0-100).
	MaxDeviceLevel = 100
)

// ToDeviceLevel converts a hub brightness (0-255) to a TCP Connected level (0-100).
//
// The result is truncated, not rounded: ToDeviceLevel(128) == 50.
// Values outside 0-255 are converted with the same formula and not clamped.
func ToDeviceLevel(hubLevel int) int {
	return hubLevel * MaxDeviceLevel / MaxHubLevel
}

// ToHubLevel converts a TCP Connected level (0-100) to a hub brightness (0-255).
//
// The result is truncated, so a round trip through ToDeviceLevel can drift
// downwards: ToHubLevel(ToDeviceLevel(128)) == 127. Both ends of the range
// round-trip exactly.
func ToHubLevel(deviceLevel int) int {
	return deviceLevel * MaxHubLevel / MaxDeviceLevel
}
