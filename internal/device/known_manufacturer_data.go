package device

import (
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	// UnknownCompanyID is a sentinel value indicating the company ID should be
	// extracted from the raw manufacturer data (first 2 bytes, little-endian).
	UnknownCompanyID uint16 = 0
)

// ManufacturerDataParser parses company-specific manufacturer data.
// The parser receives the full payload including the company ID prefix.
type ManufacturerDataParser func([]byte) (interface{}, error)

// VendorInfo allows parsed manufacturer data to expose vendor information.
type VendorInfo interface {
	VendorID() uint16
	VendorName() string
}

var (
	manufacturerDataMu      sync.RWMutex
	manufacturerDataParsers = map[uint16]ManufacturerDataParser{}
)

// RegisterManufacturerDataParser installs the parser for a company ID,
// replacing any previous registration. Vendor packages call it from init.
func RegisterManufacturerDataParser(companyID uint16, parser ManufacturerDataParser) {
	manufacturerDataMu.Lock()
	defer manufacturerDataMu.Unlock()
	manufacturerDataParsers[companyID] = parser
}

// ParseManufacturerData parses BLE manufacturer data for a specific company.
//
// If companyID is UnknownCompanyID the company ID is taken from the first
// 2 bytes of rawData (little-endian, the BLE convention).
//
// Returns (nil, nil) for company IDs without a registered parser.
func ParseManufacturerData(companyID uint16, rawData []byte) (interface{}, error) {
	id := companyID
	if companyID == UnknownCompanyID {
		if len(rawData) < 2 {
			return nil, fmt.Errorf("manufacturer data too short: %d bytes", len(rawData))
		}
		id = binary.LittleEndian.Uint16(rawData[0:2])
	}

	manufacturerDataMu.RLock()
	parser, exists := manufacturerDataParsers[id]
	manufacturerDataMu.RUnlock()
	if !exists {
		return nil, nil
	}

	return parser(rawData)
}

// IsParsableManufacturerData returns true if a parser exists for the company ID
func IsParsableManufacturerData(companyID uint16) bool {
	manufacturerDataMu.RLock()
	defer manufacturerDataMu.RUnlock()
	_, exists := manufacturerDataParsers[companyID]
	return exists
}
