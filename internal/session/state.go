package session

import (
	"fmt"

	"github.com/srg/omronble/internal/measurement"
	"github.com/srg/omronble/internal/racp"
	"github.com/srg/omronble/internal/registry"
)

// ConnectionState is the lifecycle step of the single managed connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	ConnectionFailed
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ConnectionFailed:
		return "connection failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON and YAML.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is an immutable copy of everything the manager exposes.
// Slices are freshly allocated for every snapshot and must not be modified.
type Snapshot struct {
	Devices      []registry.DiscoveredDevice `json:"devices"`
	State        ConnectionState             `json:"state"`
	DeviceID     string                      `json:"device_id,omitempty"`
	SessionID    string                      `json:"session_id,omitempty"`
	Scanning     bool                        `json:"scanning"`
	Measurements []measurement.Measurement   `json:"-"`
	RACP         *racp.Status                `json:"racp,omitempty"`
	ActivityLog  []string                    `json:"activity_log"`

	// LastError is the most recent scan or connection failure.
	LastError string `json:"last_error,omitempty"`
}

// SyncFinished reports whether record retrieval has ended for the current
// connection, either because the procedure finished or the link is gone.
func (s Snapshot) SyncFinished() bool {
	switch s.State {
	case Connecting:
		return false
	case Connected:
		return s.RACP != nil && (s.RACP.Complete || s.RACP.Halted)
	default:
		return true
	}
}
