package device

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff, Msg: "bluetooth is turned off"}
)

// Operation errors
var (
	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// TransportError wraps a failure reported by the BLE transport for a single operation
// (scan, connect, discover, subscribe, write, disconnect).
type TransportError struct {
	Op  string
	ID  string
	Err error
}

func (e *TransportError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.ID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// Advertisement is a single advertising report as delivered by the transport.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	Connectable() bool
	RSSI() int
	Addr() string
}

// Scanner represents a BLE adapter capable of scanning for advertisements.
// Scanning stops when ctx is done.
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Transport is the BLE capability consumed by the session layer.
type Transport interface {
	Scanner
	Connect(ctx context.Context, id string, opts *ConnectOptions) (Peripheral, error)
}

// Peripheral is a connected remote device.
type Peripheral interface {
	ID() string
	DiscoverCharacteristics(ctx context.Context) ([]Characteristic, error)
	Subscribe(c Characteristic, handler func([]byte)) (Subscription, error)
	Write(c Characteristic, data []byte) error
	Disconnect() error

	// Disconnected is closed when the link goes away for any reason.
	Disconnected() <-chan struct{}
}

// Characteristic identifies a discovered GATT characteristic.
type Characteristic interface {
	UUID() string        // normalized
	ServiceUUID() string // normalized
	Properties() Property
}

// Subscription is a live notification or indication registration.
type Subscription interface {
	Characteristic() Characteristic
	Unsubscribe() error
}

// ConnectOptions defines BLE connection options
type ConnectOptions struct {
	ConnectTimeout time.Duration
	MTU            int // requested ATT MTU, 0 leaves the platform default
}
