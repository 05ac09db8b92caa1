// Package audit records who did what through the API and lists it back.
package audit

import (
	"context"
	"time"
)

// Actions recorded by the API.
const (
	ActionLogin        = "login"
	ActionLoginFailed  = "login_failed"
	ActionLightCommand = "light_command"
	ActionRefresh      = "refresh"
)

// SourceAPI marks entries written by the HTTP API.
const SourceAPI = "api"

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry is one audit record. DeviceID and Username are empty when not
// applicable, for example a failed login for an unknown user has no device.
type Entry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	DeviceID  string         `json:"device_id,omitempty"`
	Username  string         `json:"username,omitempty"`
	Source    string         `json:"source"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter selects entries. Empty fields match everything.
type Filter struct {
	Action   string
	DeviceID string
	Username string
	Limit    int // default 50, max 200
	Offset   int
}

// Page is one page of List results, newest first.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores audit entries.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) (*Page, error)
}
