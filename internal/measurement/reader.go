package measurement

import (
	"encoding/binary"
	"math"
	"time"
)

// reader consumes a payload left to right and reports failures with their offset.
type reader struct {
	char string
	buf  []byte
	off  int
}

func (r *reader) fail(field string, err error) error {
	return &DecodeError{Characteristic: r.char, Offset: r.off, Field: field, Err: err}
}

func (r *reader) take(field string, n int) ([]byte, error) {
	if len(r.buf)-r.off < n {
		return nil, r.fail(field, ErrTruncated)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) uint8(field string) (uint8, error) {
	b, err := r.take(field, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16(field string) (uint16, error) {
	b, err := r.take(field, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) sfloat(field string) (float64, error) {
	v, err := r.uint16(field)
	if err != nil {
		return 0, err
	}
	return SFloat(v), nil
}

func (r *reader) float32(field string) (float64, error) {
	b, err := r.take(field, 4)
	if err != nil {
		return 0, err
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
}

// dateTime reads the 7-byte GATT Date Time. A zero year, month or day means the
// device does not know the date; ok is false and the caller falls back to capture time.
func (r *reader) dateTime(loc *time.Location) (t time.Time, ok bool, err error) {
	start := r.off
	b, err := r.take("timestamp", 7)
	if err != nil {
		return time.Time{}, false, err
	}

	year := int(binary.LittleEndian.Uint16(b[0:2]))
	month, day, hour, minute, second := int(b[2]), int(b[3]), int(b[4]), int(b[5]), int(b[6])
	if year == 0 || month == 0 || day == 0 {
		return time.Time{}, false, nil
	}
	if month > 12 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false, &DecodeError{Characteristic: r.char, Offset: start, Field: "timestamp", Err: ErrInvalidField}
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, loc), true, nil
}
