package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/omronble/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement interface
type BLEAdvertisement struct {
	adv ble.Advertisement
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper
func NewBLEAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string { return a.adv.LocalName() }
func (a *BLEAdvertisement) Connectable() bool { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int         { return a.adv.RSSI() }
func (a *BLEAdvertisement) Addr() string      { return a.adv.Addr().String() }

// ManufacturerData returns a copy; some host stacks reuse the report buffer.
func (a *BLEAdvertisement) ManufacturerData() []byte {
	md := a.adv.ManufacturerData()
	if md == nil {
		return nil
	}
	return append([]byte(nil), md...)
}

// Unwrap returns the underlying ble.Advertisement for internal use within goble package
func (a *BLEAdvertisement) Unwrap() ble.Advertisement {
	return a.adv
}
