package testutils

import (
	"context"
	"sync"

	"github.com/srg/omronble/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a testify mock of device.Transport.
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	args := m.Called(ctx, allowDup, handler)
	return args.Error(0)
}

func (m *MockTransport) Connect(ctx context.Context, id string, opts *device.ConnectOptions) (device.Peripheral, error) {
	args := m.Called(ctx, id, opts)
	p, _ := args.Get(0).(device.Peripheral)
	return p, args.Error(1)
}

// MockCharacteristic is a static device.Characteristic.
type MockCharacteristic struct {
	uuid    string
	service string
	props   device.Property
}

// NewCharacteristic creates a characteristic with a normalized UUID.
func NewCharacteristic(uuid, service string, props device.Property) *MockCharacteristic {
	return &MockCharacteristic{
		uuid:    device.NormalizeUUID(uuid),
		service: device.NormalizeUUID(service),
		props:   props,
	}
}

func (c *MockCharacteristic) UUID() string                { return c.uuid }
func (c *MockCharacteristic) ServiceUUID() string         { return c.service }
func (c *MockCharacteristic) Properties() device.Property { return c.props }

// MockPeripheral is a testify mock of device.Peripheral that also keeps the
// handlers registered through Subscribe so tests can push notifications.
//
// Expectations use the method names of device.Peripheral; Subscribe returns
// only an error and Unsubscribe is keyed by characteristic UUID:
//
//	p.On("Subscribe", mock.Anything, mock.Anything).Return(nil)
//	p.On("Unsubscribe", "2a35").Return(errors.New("gone"))
type MockPeripheral struct {
	mock.Mock

	id string

	mu       sync.Mutex
	handlers map[string]func([]byte)

	linkOnce sync.Once
	link     chan struct{}
}

// NewMockPeripheral creates a peripheral with the given ID and no expectations.
func NewMockPeripheral(id string) *MockPeripheral {
	return &MockPeripheral{
		id:       id,
		handlers: make(map[string]func([]byte)),
		link:     make(chan struct{}),
	}
}

func (p *MockPeripheral) ID() string { return p.id }

func (p *MockPeripheral) DiscoverCharacteristics(ctx context.Context) ([]device.Characteristic, error) {
	args := p.Called(ctx)
	chars, _ := args.Get(0).([]device.Characteristic)
	return chars, args.Error(1)
}

func (p *MockPeripheral) Subscribe(c device.Characteristic, handler func([]byte)) (device.Subscription, error) {
	if err := p.Called(c, handler).Error(0); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.handlers[c.UUID()] = handler
	p.mu.Unlock()
	return &mockSubscription{peripheral: p, char: c}, nil
}

func (p *MockPeripheral) Write(c device.Characteristic, data []byte) error {
	return p.Called(c, data).Error(0)
}

func (p *MockPeripheral) Disconnect() error {
	err := p.Called().Error(0)
	p.DropLink()
	return err
}

func (p *MockPeripheral) Disconnected() <-chan struct{} { return p.link }

// DropLink simulates loss of the radio link.
func (p *MockPeripheral) DropLink() {
	p.linkOnce.Do(func() { close(p.link) })
}

// Notify delivers data to the handler subscribed on the characteristic UUID.
// It reports whether a handler was subscribed.
func (p *MockPeripheral) Notify(uuid string, data []byte) bool {
	p.mu.Lock()
	h, ok := p.handlers[device.NormalizeUUID(uuid)]
	p.mu.Unlock()
	if ok {
		h(data)
	}
	return ok
}

// Subscribed reports whether the characteristic currently has a handler.
func (p *MockPeripheral) Subscribed(uuid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.handlers[device.NormalizeUUID(uuid)]
	return ok
}

type mockSubscription struct {
	peripheral *MockPeripheral
	char       device.Characteristic
}

func (s *mockSubscription) Characteristic() device.Characteristic { return s.char }

func (s *mockSubscription) Unsubscribe() error {
	err := s.peripheral.MethodCalled("Unsubscribe", s.char.UUID()).Error(0)
	s.peripheral.mu.Lock()
	delete(s.peripheral.handlers, s.char.UUID())
	s.peripheral.mu.Unlock()
	return err
}
