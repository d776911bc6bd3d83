package testutils

import (
	"encoding/binary"
	"sync"

	"github.com/srg/omronble/internal/device"
	"github.com/srg/omronble/internal/racp"
	"github.com/stretchr/testify/mock"
)

const serviceBloodPressure = "1810"

// PeripheralBuilder configures a MockPeripheral that behaves like an Omron
// monitor: it exposes measurement characteristics and answers RACP requests
// by streaming stored records.
type PeripheralBuilder struct {
	id      string
	chars   []device.Characteristic
	records map[string][][]byte
	order   []string

	discoverErr    error
	subscribeErr   map[string]error
	unsubscribeErr map[string]error
	writeErr       error
	disconnectErr  error
	disconnectGate <-chan struct{}
	rejectBulk     *racp.ResponseValue
	silentRACP     bool
}

// NewPeripheralBuilder starts a peripheral with no characteristics.
func NewPeripheralBuilder(id string) *PeripheralBuilder {
	return &PeripheralBuilder{
		id:             id,
		records:        make(map[string][][]byte),
		subscribeErr:   make(map[string]error),
		unsubscribeErr: make(map[string]error),
	}
}

// WithCharacteristic adds a characteristic in the blood pressure service.
func (b *PeripheralBuilder) WithCharacteristic(uuid string, props device.Property) *PeripheralBuilder {
	b.chars = append(b.chars, NewCharacteristic(uuid, serviceBloodPressure, props))
	return b
}

// WithRACP adds the record access control point.
func (b *PeripheralBuilder) WithRACP() *PeripheralBuilder {
	return b.WithCharacteristic(device.CharacteristicRACP, device.PropWrite|device.PropIndicate)
}

// WithRecords queues stored records the device streams on uuid during bulk transfer.
func (b *PeripheralBuilder) WithRecords(uuid string, payloads ...[]byte) *PeripheralBuilder {
	uuid = device.NormalizeUUID(uuid)
	if _, ok := b.records[uuid]; !ok {
		b.order = append(b.order, uuid)
	}
	b.records[uuid] = append(b.records[uuid], payloads...)
	return b
}

// WithDiscoverError makes discovery fail.
func (b *PeripheralBuilder) WithDiscoverError(err error) *PeripheralBuilder {
	b.discoverErr = err
	return b
}

// WithSubscribeError makes subscribing to uuid fail.
func (b *PeripheralBuilder) WithSubscribeError(uuid string, err error) *PeripheralBuilder {
	b.subscribeErr[device.NormalizeUUID(uuid)] = err
	return b
}

// WithUnsubscribeError makes releasing the subscription on uuid fail.
func (b *PeripheralBuilder) WithUnsubscribeError(uuid string, err error) *PeripheralBuilder {
	b.unsubscribeErr[device.NormalizeUUID(uuid)] = err
	return b
}

// WithDisconnectError makes Disconnect report err. The link still drops.
func (b *PeripheralBuilder) WithDisconnectError(err error) *PeripheralBuilder {
	b.disconnectErr = err
	return b
}

// WithDisconnectGate makes Disconnect block until gate is closed.
func (b *PeripheralBuilder) WithDisconnectGate(gate <-chan struct{}) *PeripheralBuilder {
	b.disconnectGate = gate
	return b
}

// WithWriteError makes every control point write fail.
func (b *PeripheralBuilder) WithWriteError(err error) *PeripheralBuilder {
	b.writeErr = err
	return b
}

// WithBulkResponse answers the bulk request with value instead of streaming records.
func (b *PeripheralBuilder) WithBulkResponse(value racp.ResponseValue) *PeripheralBuilder {
	b.rejectBulk = &value
	return b
}

// WithSilentRACP accepts control point writes but never indicates.
func (b *PeripheralBuilder) WithSilentRACP() *PeripheralBuilder {
	b.silentRACP = true
	return b
}

// Build returns the peripheral with expectations for every Peripheral method.
// Device responses are delivered from a separate goroutine, the way a BLE
// stack delivers them.
func (b *PeripheralBuilder) Build() *MockPeripheral {
	p := NewMockPeripheral(b.id)

	if b.discoverErr != nil {
		p.On("DiscoverCharacteristics", mock.Anything).Return(nil, b.discoverErr)
	} else {
		p.On("DiscoverCharacteristics", mock.Anything).Return(b.chars, nil)
	}

	for uuid, err := range b.subscribeErr {
		p.On("Subscribe", mock.MatchedBy(func(c device.Characteristic) bool { return c.UUID() == uuid }), mock.Anything).Return(err)
	}
	p.On("Subscribe", mock.Anything, mock.Anything).Return(nil)
	for uuid, err := range b.unsubscribeErr {
		p.On("Unsubscribe", uuid).Return(err)
	}
	p.On("Unsubscribe", mock.Anything).Return(nil)
	p.On("Disconnect").Return(b.disconnectErr).Run(func(mock.Arguments) {
		if b.disconnectGate != nil {
			<-b.disconnectGate
		}
	})

	var mu sync.Mutex
	p.On("Write", mock.Anything, mock.Anything).Return(b.writeErr).Run(func(args mock.Arguments) {
		if b.writeErr != nil || b.silentRACP {
			return
		}
		data := append([]byte(nil), args.Get(1).([]byte)...)
		go func() {
			mu.Lock()
			defer mu.Unlock()
			b.respond(p, data)
		}()
	})
	return p
}

func (b *PeripheralBuilder) total() int {
	n := 0
	for _, recs := range b.records {
		n += len(recs)
	}
	return n
}

func (b *PeripheralBuilder) respond(p *MockPeripheral, req []byte) {
	if len(req) == 0 {
		return
	}
	switch racp.Opcode(req[0]) {
	case racp.OpReportNumberOfStoredRecords:
		p.Notify(device.CharacteristicRACP, CountFrame(uint16(b.total())))

	case racp.OpReportStoredRecords:
		value := racp.ResponseSuccess
		if b.rejectBulk != nil {
			value = *b.rejectBulk
		} else {
			for _, uuid := range b.order {
				for _, rec := range b.records[uuid] {
					p.Notify(uuid, rec)
				}
			}
		}
		p.Notify(device.CharacteristicRACP, ResponseFrame(racp.OpReportStoredRecords, value))
	}
}

// ResponseFrame encodes a RESPONSE_CODE indication.
func ResponseFrame(op racp.Opcode, value racp.ResponseValue) []byte {
	return []byte{byte(racp.OpResponseCode), byte(racp.OperatorNull), byte(op), byte(value)}
}

// CountFrame encodes a NUMBER_OF_STORED_RECORDS_RESPONSE indication.
func CountFrame(n uint16) []byte {
	frame := []byte{byte(racp.OpNumberOfStoredRecordsResponse), byte(racp.OperatorNull)}
	return binary.LittleEndian.AppendUint16(frame, n)
}
