package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/omronble/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Transport implements device.Transport on top of a go-ble host device.
// The host device is opened lazily on first use and shared by scanning and connections.
type Transport struct {
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

// NewTransport creates a go-ble backed transport.
func NewTransport(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{logger: logger}
}

func (t *Transport) device() (ble.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev != nil {
		return t.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		t.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, NormalizeError(err)
	}
	t.dev = dev
	return dev, nil
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement.
// Cancellation of ctx is a normal stop and returns nil.
func (t *Transport) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	dev, err := t.device()
	if err != nil {
		return &device.TransportError{Op: "scan", Err: err}
	}

	err = dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
	if err != nil && ctx.Err() == nil {
		return &device.TransportError{Op: "scan", Err: NormalizeError(err)}
	}
	return nil
}

// Connect dials the peripheral, negotiates the MTU when requested and returns the live link.
func (t *Transport) Connect(ctx context.Context, id string, opts *device.ConnectOptions) (device.Peripheral, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &device.TransportError{Op: "connect", Err: fmt.Errorf("device address is empty")}
	}
	if opts == nil {
		opts = &device.ConnectOptions{}
	}

	dev, err := t.device()
	if err != nil {
		return nil, &device.TransportError{Op: "connect", ID: id, Err: err}
	}

	connCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	t.logger.WithFields(logrus.Fields{
		"address": id,
		"timeout": opts.ConnectTimeout,
	}).Debug("Dialing BLE device...")

	client, err := dev.Dial(connCtx, ble.NewAddr(id))
	if err != nil {
		if connCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", device.ErrTimeout, err)
		}
		return nil, &device.TransportError{Op: "connect", ID: id, Err: NormalizeError(err)}
	}

	if opts.MTU > 0 {
		txMTU, mtuErr := client.ExchangeMTU(opts.MTU)
		if mtuErr != nil {
			// Some host stacks negotiate the MTU themselves and reject explicit exchange.
			t.logger.WithFields(logrus.Fields{
				"address": id,
				"mtu":     opts.MTU,
				"error":   mtuErr,
			}).Debug("MTU exchange not performed")
		} else {
			t.logger.WithFields(logrus.Fields{
				"address": id,
				"tx_mtu":  txMTU,
			}).Debug("MTU negotiated")
		}
	}

	t.logger.WithField("address", id).Info("BLE device connected")
	return newPeripheral(id, client, t.logger), nil
}
