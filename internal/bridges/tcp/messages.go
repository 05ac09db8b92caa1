package tcp

import (
	"fmt"
	"time"
)

// MQTT message types exchanged between Gray Logic Core and the TCP Connected bridge.
// Topics follow the flat bridge scheme graylogic/{category}/tcp/{address}, where
// address is the gateway device ID.

// Protocol is the protocol identifier used in topics, registry records and messages.
const Protocol = "tcp"

// TopicPrefix is the base topic for all Gray Logic messages.
const TopicPrefix = "graylogic"

// Commands understood by the bridge.
const (
	CommandOn  = "on"
	CommandOff = "off"
	CommandDim = "dim"
)

// CommandMessage is sent from Core to the bridge.
// Topic: graylogic/command/tcp/{address}
type CommandMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`

	// Command is one of "on", "off" or "dim".
	Command string `json:"command"`

	// Parameters holds {"brightness": 0-255} for "on" (optional) and "dim" (required).
	Parameters map[string]any `json:"parameters,omitempty"`

	Source string `json:"source,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
)

// Ack error codes.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/tcp/{address}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError describes why a command failed.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage carries the state of one light after a refresh.
// Topic: graylogic/state/tcp/{address} (retained)
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Protocol  string         `json:"protocol"`
	Address   string         `json:"address"`
}

// HealthStatus is the bridge health reported on the health topic.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published periodically and on lifecycle changes.
// Topic: graylogic/health/tcp (retained)
type HealthMessage struct {
	Bridge         string       `json:"bridge"`
	Timestamp      time.Time    `json:"timestamp"`
	Status         HealthStatus `json:"status"`
	Version        string       `json:"version,omitempty"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	DevicesManaged int          `json:"devices_managed"`
	LastPoll       *time.Time   `json:"last_poll,omitempty"`
	Reason         string       `json:"reason,omitempty"`
}

// NewAckMessage builds a successful acknowledgement.
func NewAckMessage(cmd CommandMessage, address string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    AckAccepted,
		Protocol:  Protocol,
		Address:   address,
	}
}

// NewAckError builds a failed acknowledgement.
func NewAckError(cmd CommandMessage, address, code, message string) AckMessage {
	ack := NewAckMessage(cmd, address)
	ack.Status = AckFailed
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage builds a state message for one light.
func NewStateMessage(deviceID, address string, state LightState) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		State: map[string]any{
			"on":         state.On,
			"brightness": state.Brightness,
		},
		Protocol: Protocol,
		Address:  address,
	}
}

// NewLWTMessage is the health message the broker publishes if the bridge
// disappears without a clean shutdown.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// CommandTopic returns the command topic for a device address.
func CommandTopic(address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, address)
}

// CommandSubscribeTopic matches commands for every device on this bridge.
func CommandSubscribeTopic() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}

// AckTopic returns the acknowledgement topic for a device address.
func AckTopic(address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, address)
}

// StateTopic returns the state topic for a device address.
func StateTopic(address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, address)
}

// HealthTopic returns the bridge health topic.
func HealthTopic() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// DeviceID maps a gateway device ID to the Gray Logic registry ID.
func DeviceID(address string) string {
	return Protocol + "-" + address
}
