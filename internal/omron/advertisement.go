// Package omron decodes the manufacturer-specific advertising data broadcast by
// Omron health devices.
//
// Layout (little-endian):
//   - Bytes 0-1: Company ID (0x020E)
//   - Byte 2:    Data type (0x01 = health device profile)
//   - Byte 3:    Flags (bit3 pairable, bit2 time not configured, bits0-1 users-1)
//   - Then, per user: uint16 last sequence number, uint8 number of records
package omron

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/srg/omronble/internal/device"
)

const (
	// CompanyID is the Bluetooth SIG company identifier assigned to Omron Healthcare.
	CompanyID uint16 = 0x020E

	// ProfileType marks the health device advertising layout.
	ProfileType byte = 0x01

	// MaxUsers is the largest user count the flags byte can express.
	MaxUsers = 4

	headerSize   = 4
	userSlotSize = 3
)

const (
	flagUsersMask         byte = 0x03
	flagTimeNotConfigured byte = 1 << 2
	flagPairable          byte = 1 << 3
)

var (
	// ErrNotOmron is returned for payloads that do not carry the Omron health prefix.
	ErrNotOmron = errors.New("not an Omron health advertisement")

	// ErrTruncated is returned when the payload ends before a declared field.
	ErrTruncated = errors.New("truncated advertisement")
)

// DecodeError describes where an Omron advertisement stopped making sense.
type DecodeError struct {
	Offset int
	Need   int
	Have   int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("omron advertisement: %v at offset %d (need %d bytes, have %d)", e.Err, e.Offset, e.Need, e.Have)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// UserSlot is the per-user record summary from one advertisement.
type UserSlot struct {
	Index              int    `json:"index"` // 1-based
	LastSequenceNumber uint16 `json:"last_sequence_number"`
	NumberOfRecords    uint8  `json:"number_of_records"`
}

// Advertisement is a decoded Omron health advertisement.
type Advertisement struct {
	Pairable          bool       `json:"pairable"`
	TimeNotConfigured bool       `json:"time_not_configured"`
	Users             []UserSlot `json:"users"`
}

// NumberOfUsers returns the number of user slots the device advertises.
func (a *Advertisement) NumberOfUsers() int {
	return len(a.Users)
}

// VendorID implements device.VendorInfo.
func (a *Advertisement) VendorID() uint16 { return CompanyID }

// VendorName implements device.VendorInfo.
func (a *Advertisement) VendorName() string { return "Omron Healthcare" }

// isOmron reports whether the payload carries the Omron health prefix.
func isOmron(data []byte) bool {
	return len(data) >= 3 && binary.LittleEndian.Uint16(data[0:2]) == CompanyID && data[2] == ProfileType
}

// DecodeAdvertisement decodes manufacturer data into an Advertisement.
// Bytes after the last user slot are ignored.
func DecodeAdvertisement(data []byte) (*Advertisement, error) {
	if !isOmron(data) {
		return nil, ErrNotOmron
	}
	if len(data) < headerSize {
		return nil, &DecodeError{Offset: 3, Need: 1, Have: 0, Err: ErrTruncated}
	}

	flags := data[3]
	users := int(flags&flagUsersMask) + 1
	need := users * userSlotSize
	if have := len(data) - headerSize; have < need {
		return nil, &DecodeError{Offset: headerSize, Need: need, Have: have, Err: ErrTruncated}
	}

	adv := &Advertisement{
		Pairable:          flags&flagPairable != 0,
		TimeNotConfigured: flags&flagTimeNotConfigured != 0,
		Users:             make([]UserSlot, users),
	}
	for i := range adv.Users {
		off := headerSize + i*userSlotSize
		adv.Users[i] = UserSlot{
			Index:              i + 1,
			LastSequenceNumber: binary.LittleEndian.Uint16(data[off : off+2]),
			NumberOfRecords:    data[off+2],
		}
	}
	return adv, nil
}

// EncodeAdvertisement produces the manufacturer data DecodeAdvertisement accepts.
// It fails when the advertisement has no users or more than MaxUsers.
func EncodeAdvertisement(adv *Advertisement) ([]byte, error) {
	n := len(adv.Users)
	if n < 1 || n > MaxUsers {
		return nil, fmt.Errorf("omron advertisement: user count %d out of range [1,%d]", n, MaxUsers)
	}

	flags := byte(n - 1)
	if adv.Pairable {
		flags |= flagPairable
	}
	if adv.TimeNotConfigured {
		flags |= flagTimeNotConfigured
	}

	out := make([]byte, headerSize, headerSize+n*userSlotSize)
	binary.LittleEndian.PutUint16(out[0:2], CompanyID)
	out[2] = ProfileType
	out[3] = flags
	for _, u := range adv.Users {
		out = binary.LittleEndian.AppendUint16(out, u.LastSequenceNumber)
		out = append(out, u.NumberOfRecords)
	}
	return out, nil
}

func init() {
	device.RegisterManufacturerDataParser(CompanyID, func(data []byte) (interface{}, error) {
		adv, err := DecodeAdvertisement(data)
		if errors.Is(err, ErrNotOmron) {
			// Omron company ID with a different data type.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return adv, nil
	})
}
