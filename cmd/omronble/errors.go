package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
	"github.com/srg/omronble/internal/device"
	"github.com/srg/omronble/internal/measurement"
	"github.com/srg/omronble/internal/omron"
	"github.com/srg/omronble/internal/permission"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the link dropped before record retrieval finished.
	ErrConnectionLost = errors.New("connection lost")

	// ErrSyncTimeout indicates record retrieval did not finish within --timeout.
	ErrSyncTimeout = errors.New("sync timed out")
)

// FormatUserError turns internal errors into a message a user can act on.
func FormatUserError(err error) string {
	var decodeErr *measurement.DecodeError
	var advErr *omron.DecodeError

	switch {
	case device.IsConnectionState(err, device.BluetoothOff):
		return "Bluetooth is turned off; turn it on and try again"
	case device.IsConnectionState(err, device.NotInitialized):
		return "the Bluetooth adapter is not ready yet; try again"
	case errors.Is(err, permission.ErrDenied):
		return fmt.Sprintf("Bluetooth access was denied (%v)", err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "too many failed connection attempts; wait a moment and try again"
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("Bluetooth is not supported here: %v", err)
	case errors.Is(err, ErrSyncTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%v (is the device still in transfer mode?)", err)
	case errors.As(err, &decodeErr), errors.As(err, &advErr):
		return fmt.Sprintf("could not decode payload: %v", err)
	}
	return err.Error()
}
