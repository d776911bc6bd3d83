package measurement

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a payload ends before a declared field.
	ErrTruncated = errors.New("truncated payload")

	// ErrUnknownCharacteristic is returned for characteristics without a decoder.
	ErrUnknownCharacteristic = errors.New("unknown characteristic")

	// ErrInvalidField is returned for fields outside their valid range.
	ErrInvalidField = errors.New("invalid field")
)

// DecodeError reports a payload that could not be decoded.
type DecodeError struct {
	Characteristic string
	Offset         int
	Field          string
	Err            error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s: %v", e.Characteristic, e.Err)
	}
	return fmt.Sprintf("decode %s: %s at offset %d: %v", e.Characteristic, e.Field, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
