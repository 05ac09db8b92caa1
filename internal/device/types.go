package device

import "time"

// Device is a light record in the registry. Mirrors the devices table in
// migrations/20260301_090000_light_devices.up.sql.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	Type     DeviceType `json:"type"`
	Domain   Domain     `json:"domain"`
	Protocol Protocol   `json:"protocol"`

	// Address locates the bulb on its gateway, e.g. {"gateway_device_id": "216438"}.
	Address Address `json:"address"`

	Capabilities []Capability `json:"capabilities"`

	// State is the last refreshed state, e.g. {"on": true, "brightness": 127}.
	State          State      `json:"state"`
	StateUpdatedAt *time.Time `json:"state_updated_at,omitempty"`

	HealthStatus   HealthStatus `json:"health_status"`
	HealthLastSeen *time.Time   `json:"health_last_seen,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns a copy sharing no maps or slices with d, so cached
// records cannot be mutated through values handed to callers.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Address = deepCopyMap(d.Address)
	cpy.State = deepCopyMap(d.State)
	if d.Capabilities != nil {
		cpy.Capabilities = append([]Capability(nil), d.Capabilities...)
	}
	return &cpy
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// Address holds protocol-specific addressing as a JSON map.
type Address map[string]any

// AddressKeyGatewayDevice is the Address key holding the gateway's device ID.
const AddressKeyGatewayDevice = "gateway_device_id"

// State holds the current device state as a JSON map.
type State map[string]any

// Domain is the functional area a device belongs to.
type Domain string

const DomainLighting Domain = "lighting"

// Protocol is the communication protocol for a device.
type Protocol string

const ProtocolTCPConnected Protocol = "tcp_connected"

// DeviceType is the specific kind of device.
type DeviceType string //nolint:revive // device.DeviceType reads better than device.Type

const (
	DeviceTypeLightSwitch DeviceType = "light_switch"
	DeviceTypeLightDimmer DeviceType = "light_dimmer"
)

// Capability is something a device can do.
type Capability string

const (
	CapOnOff Capability = "on_off"
	CapDim   Capability = "dim"
)

// HealthStatus is the device health state.
type HealthStatus string

const (
	HealthStatusOnline   HealthStatus = "online"
	HealthStatusOffline  HealthStatus = "offline"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusUnknown  HealthStatus = "unknown"
)

// AllHealthStatuses returns all valid health status values.
func AllHealthStatuses() []HealthStatus {
	return []HealthStatus{
		HealthStatusOnline, HealthStatusOffline, HealthStatusDegraded, HealthStatusUnknown,
	}
}
