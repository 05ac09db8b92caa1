package device

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxNameLength = 100
	maxSlugLength = 50
	slugPattern   = `^[a-z0-9]+(?:-[a-z0-9]+)*$`

	maxAddressKeys    = 10
	maxStateKeys      = 20
	maxStringValueLen = 256
)

var slugRegex = regexp.MustCompile(slugPattern)

var (
	validDeviceTypes = map[DeviceType]struct{}{
		DeviceTypeLightSwitch: {},
		DeviceTypeLightDimmer: {},
	}
	validCapabilities = map[Capability]struct{}{
		CapOnOff: {},
		CapDim:   {},
	}
	validHealthStatus = make(map[HealthStatus]struct{}, len(AllHealthStatuses()))
)

func init() {
	for _, s := range AllHealthStatuses() {
		validHealthStatus[s] = struct{}{}
	}
}

// GenerateID returns a new random device ID.
func GenerateID() string {
	return uuid.NewString()
}

// GenerateSlug derives a URL-safe slug from a name: "Living Room Lamp"
// becomes "living-room-lamp". Falls back to "light" when nothing remains.
func GenerateSlug(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		return "light"
	}
	return slug
}

// SuffixSlug appends a slug derived from suffix to base, shortening base
// so the result stays within the slug length limit.
func SuffixSlug(base, suffix string) string {
	tail := GenerateSlug(suffix)
	room := maxSlugLength - len(tail) - 1
	if room <= 0 {
		return strings.TrimRight(tail[:min(len(tail), maxSlugLength)], "-")
	}
	if len(base) > room {
		base = base[:room]
	}
	base = strings.TrimRight(base, "-")
	if base == "" {
		return tail
	}
	return base + "-" + tail
}

// FitName trims a name and shortens it to the maximum name length without
// splitting a UTF-8 sequence.
func FitName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) <= maxNameLength {
		return name
	}
	cut := maxNameLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return strings.TrimSpace(name[:cut])
}

// ValidateDevice returns the first validation failure found in d.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if d.Slug != "" {
		if err := ValidateSlug(d.Slug); err != nil {
			return err
		}
	}
	if _, ok := validDeviceTypes[d.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceType, d.Type)
	}
	if d.Domain != DomainLighting {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, d.Domain)
	}
	if d.Protocol != ProtocolTCPConnected {
		return fmt.Errorf("%w: %q", ErrInvalidProtocol, d.Protocol)
	}
	if err := ValidateAddress(d.Address); err != nil {
		return err
	}
	for _, c := range d.Capabilities {
		if _, ok := validCapabilities[c]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidCapability, c)
		}
	}
	if err := ValidateState(d.State); err != nil {
		return err
	}
	if d.HealthStatus != "" {
		if err := ValidateHealthStatus(d.HealthStatus); err != nil {
			return err
		}
	}
	return nil
}

// ValidateName checks a device name is non-blank and not too long.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSlug checks slug format.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug cannot be empty", ErrInvalidSlug)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("%w: slug must be lowercase alphanumeric with hyphens", ErrInvalidSlug)
	}
	return nil
}

// ValidateAddress requires a non-empty gateway device ID.
func ValidateAddress(addr Address) error {
	if len(addr) == 0 {
		return fmt.Errorf("%w: address is required", ErrInvalidAddress)
	}
	if len(addr) > maxAddressKeys {
		return fmt.Errorf("%w: address exceeds max keys (%d)", ErrInvalidAddress, maxAddressKeys)
	}
	v, ok := addr[AddressKeyGatewayDevice].(string)
	if !ok || v == "" {
		return fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidAddress, AddressKeyGatewayDevice)
	}
	if len(v) > maxStringValueLen {
		return fmt.Errorf("%w: %s too long", ErrInvalidAddress, AddressKeyGatewayDevice)
	}
	return nil
}

// ValidateState bounds the state map and checks brightness when present.
func ValidateState(state State) error {
	if len(state) > maxStateKeys {
		return fmt.Errorf("%w: state exceeds max keys (%d)", ErrInvalidState, maxStateKeys)
	}
	for k, v := range state {
		if len(k) > maxStringValueLen {
			return fmt.Errorf("%w: state key too long", ErrInvalidState)
		}
		if s, ok := v.(string); ok && len(s) > maxStringValueLen {
			return fmt.Errorf("%w: %s value too long", ErrInvalidState, k)
		}
	}

	raw, ok := state["brightness"]
	if !ok {
		return nil
	}
	var level float64
	switch v := raw.(type) {
	case int:
		level = float64(v)
	case float64:
		level = v
	default:
		return fmt.Errorf("%w: brightness must be a number", ErrInvalidState)
	}
	if level < 0 || level > 255 {
		return fmt.Errorf("%w: brightness %v out of range 0-255", ErrInvalidState, raw)
	}
	return nil
}

// ValidateHealthStatus checks status is one of AllHealthStatuses.
func ValidateHealthStatus(status HealthStatus) error {
	if _, ok := validHealthStatus[status]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidHealthStatus, status)
}
