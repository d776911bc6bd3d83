package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/omronble/internal/device"
)

// BLECharacteristic wraps a discovered *ble.Characteristic.
type BLECharacteristic struct {
	uuid        string
	serviceUUID string
	props       device.Property
	char        *ble.Characteristic
}

func (c *BLECharacteristic) UUID() string                { return c.uuid }
func (c *BLECharacteristic) ServiceUUID() string         { return c.serviceUUID }
func (c *BLECharacteristic) Properties() device.Property { return c.props }

// BLEPeripheral implements device.Peripheral over a ble.Client.
type BLEPeripheral struct {
	id     string
	client ble.Client
	logger *logrus.Logger

	closeOnce    sync.Once
	disconnected chan struct{}
}

func newPeripheral(id string, client ble.Client, logger *logrus.Logger) *BLEPeripheral {
	p := &BLEPeripheral{
		id:           id,
		client:       client,
		logger:       logger,
		disconnected: make(chan struct{}),
	}

	// Forward host-stack link loss when the client reports it.
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		go func() {
			select {
			case <-dc.Disconnected():
				p.logger.WithField("address", id).Debug("Host stack reported disconnection")
				p.markDisconnected()
			case <-p.disconnected:
			}
		}()
	} else {
		logger.Debug("Client does not support Disconnected() channel")
	}
	return p
}

func (p *BLEPeripheral) ID() string { return p.id }

func (p *BLEPeripheral) Disconnected() <-chan struct{} { return p.disconnected }

func (p *BLEPeripheral) markDisconnected() {
	p.closeOnce.Do(func() { close(p.disconnected) })
}

// DiscoverCharacteristics discovers the full GATT profile and flattens it.
// ble.Client has no context support, so ctx only bounds the wait.
func (p *BLEPeripheral) DiscoverCharacteristics(ctx context.Context) ([]device.Characteristic, error) {
	type result struct {
		profile *ble.Profile
		err     error
	}
	done := make(chan result, 1)
	go func() {
		profile, err := p.client.DiscoverProfile(true)
		done <- result{profile, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		return nil, &device.TransportError{Op: "discover", ID: p.id, Err: ctx.Err()}
	}
	if r.err != nil {
		return nil, &device.TransportError{Op: "discover", ID: p.id, Err: NormalizeError(r.err)}
	}

	var chars []device.Characteristic
	for _, svc := range r.profile.Services {
		svcUUID := device.NormalizeUUID(svc.UUID.String())
		for _, c := range svc.Characteristics {
			chars = append(chars, &BLECharacteristic{
				uuid:        device.NormalizeUUID(c.UUID.String()),
				serviceUUID: svcUUID,
				props:       NewProperties(c.Property),
				char:        c,
			})
		}
	}

	p.logger.WithFields(logrus.Fields{
		"address":         p.id,
		"services":        len(r.profile.Services),
		"characteristics": len(chars),
	}).Debug("Profile discovered")
	return chars, nil
}

func (p *BLEPeripheral) unwrap(c device.Characteristic) (*BLECharacteristic, error) {
	bc, ok := c.(*BLECharacteristic)
	if !ok || bc.char == nil {
		return nil, fmt.Errorf("%w: characteristic %s was not discovered by this transport", device.ErrUnsupported, c.UUID())
	}
	return bc, nil
}

// Subscribe enables notifications, or indications when the characteristic only offers those.
func (p *BLEPeripheral) Subscribe(c device.Characteristic, handler func([]byte)) (device.Subscription, error) {
	bc, err := p.unwrap(c)
	if err != nil {
		return nil, &device.TransportError{Op: "subscribe", ID: p.id, Err: err}
	}

	ind := bc.props.PrefersIndication()
	err = p.client.Subscribe(bc.char, ind, func(data []byte) {
		handler(append([]byte(nil), data...))
	})
	if err != nil {
		return nil, &device.TransportError{Op: "subscribe", ID: p.id, Err: NormalizeError(err)}
	}

	p.logger.WithFields(logrus.Fields{
		"address":   p.id,
		"char_uuid": bc.uuid,
		"indicate":  ind,
	}).Debug("Subscribed to characteristic")
	return &bleSubscription{peripheral: p, char: bc, indicate: ind}, nil
}

// Write performs a write with response.
func (p *BLEPeripheral) Write(c device.Characteristic, data []byte) error {
	bc, err := p.unwrap(c)
	if err != nil {
		return &device.TransportError{Op: "write", ID: p.id, Err: err}
	}
	if err := p.client.WriteCharacteristic(bc.char, data, false); err != nil {
		return &device.TransportError{Op: "write", ID: p.id, Err: NormalizeError(err)}
	}
	return nil
}

// Disconnect cancels the link. Calls after the first one are no-ops.
func (p *BLEPeripheral) Disconnect() error {
	select {
	case <-p.disconnected:
		return nil
	default:
	}
	defer p.markDisconnected()

	if err := p.client.CancelConnection(); err != nil {
		return &device.TransportError{Op: "disconnect", ID: p.id, Err: NormalizeError(err)}
	}
	p.logger.WithField("address", p.id).Info("BLE device disconnected")
	return nil
}

type bleSubscription struct {
	peripheral *BLEPeripheral
	char       *BLECharacteristic
	indicate   bool
}

func (s *bleSubscription) Characteristic() device.Characteristic { return s.char }

func (s *bleSubscription) Unsubscribe() error {
	if err := s.peripheral.client.Unsubscribe(s.char.char, s.indicate); err != nil {
		return &device.TransportError{Op: "unsubscribe", ID: s.peripheral.id, Err: NormalizeError(err)}
	}
	return nil
}
