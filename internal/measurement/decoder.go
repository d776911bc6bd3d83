package measurement

import (
	"time"

	"github.com/srg/omronble/internal/device"
)

// Decoder turns characteristic payloads into measurements.
// The zero value uses the wall clock and the local time zone.
type Decoder struct {
	// Now supplies the capture time used when a payload carries no timestamp.
	Now func() time.Time

	// Location is the zone device timestamps are interpreted in.
	Location *time.Location
}

var defaultDecoder Decoder

// Decode decodes a payload with the default Decoder.
func Decode(characteristicUUID string, payload []byte) (Measurement, error) {
	return defaultDecoder.Decode(characteristicUUID, payload)
}

// CanDecode reports whether the characteristic has a decoder.
func CanDecode(characteristicUUID string) bool {
	return device.IsMeasurementCharacteristic(characteristicUUID)
}

// Decode dispatches on the characteristic UUID. Trailing bytes are ignored.
func (d Decoder) Decode(characteristicUUID string, payload []byte) (Measurement, error) {
	uuid := device.NormalizeUUID(characteristicUUID)
	r := &reader{char: uuid, buf: payload}

	switch uuid {
	case device.CharacteristicBloodPressure:
		return d.bloodPressure(r, false)
	case device.CharacteristicOmronSpotCheck:
		return d.bloodPressure(r, true)
	case device.CharacteristicWeight:
		return d.weight(r)
	case device.CharacteristicTemperature:
		return d.temperature(r)
	case device.CharacteristicBodyComposition:
		return d.bodyComposition(r)
	}
	return nil, &DecodeError{Characteristic: characteristicUUID, Err: ErrUnknownCharacteristic}
}

func (d Decoder) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Decoder) location() *time.Location {
	if d.Location != nil {
		return d.Location
	}
	return time.Local
}

// timestamp reads the optional date-time when present is set, else returns capture time.
func (d Decoder) timestamp(r *reader, present bool) (Timestamp, error) {
	if present {
		t, ok, err := r.dateTime(d.location())
		if err != nil {
			return Timestamp{}, err
		}
		if ok {
			return Timestamp{Time: t, FromDevice: true}, nil
		}
	}
	return Timestamp{Time: d.now()}, nil
}

const (
	bpFlagTimestamp = 1 << 1
	bpFlagPulse     = 1 << 2
	bpFlagUserID    = 1 << 3
	bpFlagStatus    = 1 << 4
)

func (d Decoder) bloodPressure(r *reader, spotCheck bool) (Measurement, error) {
	flags, err := r.uint8("flags")
	if err != nil {
		return nil, err
	}

	m := &BloodPressure{SpotCheck: spotCheck}
	if m.Systolic, err = r.sfloat("systolic"); err != nil {
		return nil, err
	}
	if m.Diastolic, err = r.sfloat("diastolic"); err != nil {
		return nil, err
	}
	if m.MeanArterialPressure, err = r.sfloat("mean arterial pressure"); err != nil {
		return nil, err
	}
	if m.Timestamp, err = d.timestamp(r, flags&bpFlagTimestamp != 0); err != nil {
		return nil, err
	}
	if flags&bpFlagPulse != 0 {
		pulse, err := r.sfloat("pulse")
		if err != nil {
			return nil, err
		}
		m.Pulse = &pulse
	}
	if flags&bpFlagUserID != 0 {
		id, err := r.uint8("user id")
		if err != nil {
			return nil, err
		}
		m.UserID = &id
	}
	if flags&bpFlagStatus != 0 {
		status, err := r.uint16("measurement status")
		if err != nil {
			return nil, err
		}
		s := MeasurementStatus(status)
		m.Status = &s
	}
	return m, nil
}

const (
	weightFlagTimestamp = 1 << 1
	weightFlagUserID    = 1 << 2
)

func (d Decoder) weight(r *reader) (Measurement, error) {
	flags, err := r.uint8("flags")
	if err != nil {
		return nil, err
	}
	raw, err := r.uint16("weight")
	if err != nil {
		return nil, err
	}

	// Resolution is 0.005 kg.
	m := &Weight{Kilograms: float64(raw) / 200}
	if m.Timestamp, err = d.timestamp(r, flags&weightFlagTimestamp != 0); err != nil {
		return nil, err
	}
	if flags&weightFlagUserID != 0 {
		id, err := r.uint8("user id")
		if err != nil {
			return nil, err
		}
		m.UserID = &id
	}
	return m, nil
}

const (
	tempFlagCelsius   = 1 << 0
	tempFlagTimestamp = 1 << 1
)

func (d Decoder) temperature(r *reader) (Measurement, error) {
	flags, err := r.uint8("flags")
	if err != nil {
		return nil, err
	}
	raw, err := r.float32("temperature")
	if err != nil {
		return nil, err
	}

	m := &Temperature{Celsius: raw}
	if flags&tempFlagCelsius == 0 {
		m.Celsius = (raw - 32) * 5 / 9
		m.ReportedFahrenheit = true
	}
	if m.Timestamp, err = d.timestamp(r, flags&tempFlagTimestamp != 0); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	bodyFlagFat    = 1 << 1
	bodyFlagMuscle = 1 << 5
)

func (d Decoder) bodyComposition(r *reader) (Measurement, error) {
	flags, err := r.uint16("flags")
	if err != nil {
		return nil, err
	}

	m := &BodyComposition{Timestamp: Timestamp{Time: d.now()}}
	if flags&bodyFlagFat != 0 {
		raw, err := r.uint16("body fat")
		if err != nil {
			return nil, err
		}
		v := float64(raw) / 10
		m.BodyFatPercent = &v
	}
	if flags&bodyFlagMuscle != 0 {
		raw, err := r.uint16("muscle mass")
		if err != nil {
			return nil, err
		}
		v := float64(raw) / 10
		m.MuscleMassKg = &v
	}
	return m, nil
}
