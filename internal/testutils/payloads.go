package testutils

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/srg/omronble/internal/measurement"
)

// BloodPressurePayload builds a blood pressure characteristic value.
type BloodPressurePayload struct {
	flags uint8
	buf   []byte
	tail  []byte
}

// NewBloodPressurePayload starts a payload with whole mmHg values.
func NewBloodPressurePayload(systolic, diastolic, mean int16) *BloodPressurePayload {
	p := &BloodPressurePayload{}
	p.buf = appendSFloat(p.buf, systolic)
	p.buf = appendSFloat(p.buf, diastolic)
	p.buf = appendSFloat(p.buf, mean)
	return p
}

func (p *BloodPressurePayload) WithTimestamp(t time.Time) *BloodPressurePayload {
	p.flags |= 1 << 1
	p.buf = append(p.buf, DateTime(t)...)
	return p
}

func (p *BloodPressurePayload) WithPulse(bpm int16) *BloodPressurePayload {
	p.flags |= 1 << 2
	p.tail = appendSFloat(p.tail, bpm)
	return p
}

func (p *BloodPressurePayload) WithUserID(id uint8) *BloodPressurePayload {
	p.flags |= 1 << 3
	p.tail = append(p.tail, id)
	return p
}

func (p *BloodPressurePayload) WithStatus(status measurement.MeasurementStatus) *BloodPressurePayload {
	p.flags |= 1 << 4
	p.tail = binary.LittleEndian.AppendUint16(p.tail, uint16(status))
	return p
}

// Build emits flags, pressures, timestamp then the optional tail fields in
// the order they were added. Add pulse before user ID before status.
func (p *BloodPressurePayload) Build() []byte {
	out := append([]byte{p.flags}, p.buf...)
	return append(out, p.tail...)
}

// WeightPayload encodes kilograms at 0.005 kg resolution, with an optional timestamp.
func WeightPayload(kg float64, at *time.Time) []byte {
	var flags uint8
	if at != nil {
		flags |= 1 << 1
	}
	out := binary.LittleEndian.AppendUint16([]byte{flags}, uint16(math.Round(kg*200)))
	if at != nil {
		out = append(out, DateTime(*at)...)
	}
	return out
}

// TemperaturePayload encodes an IEEE float32 reading in the given scale.
func TemperaturePayload(value float32, celsius bool, at *time.Time) []byte {
	var flags uint8
	if celsius {
		flags |= 1 << 0
	}
	if at != nil {
		flags |= 1 << 1
	}
	out := binary.LittleEndian.AppendUint32([]byte{flags}, math.Float32bits(value))
	if at != nil {
		out = append(out, DateTime(*at)...)
	}
	return out
}

// BodyCompositionPayload encodes body fat and muscle mass in tenths. Nil omits the field.
func BodyCompositionPayload(fatTenths, muscleTenths *uint16) []byte {
	var flags uint16
	var body []byte
	if fatTenths != nil {
		flags |= 1 << 1
		body = binary.LittleEndian.AppendUint16(body, *fatTenths)
	}
	if muscleTenths != nil {
		flags |= 1 << 5
		body = binary.LittleEndian.AppendUint16(body, *muscleTenths)
	}
	return append(binary.LittleEndian.AppendUint16(nil, flags), body...)
}

// DateTime encodes t as a 7-byte GATT Date Time.
func DateTime(t time.Time) []byte {
	out := binary.LittleEndian.AppendUint16(nil, uint16(t.Year()))
	return append(out, byte(t.Month()), byte(t.Day()), byte(t.Hour()), byte(t.Minute()), byte(t.Second()))
}

func appendSFloat(b []byte, v int16) []byte {
	return binary.LittleEndian.AppendUint16(b, measurement.EncodeSFloat(v, 0))
}
