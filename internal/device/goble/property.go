package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/omronble/internal/device"
)

var propertyMapping = []struct {
	ble ble.Property
	dev device.Property
}{
	{ble.CharBroadcast, device.PropBroadcast},
	{ble.CharRead, device.PropRead},
	{ble.CharWriteNR, device.PropWriteWithoutResponse},
	{ble.CharWrite, device.PropWrite},
	{ble.CharNotify, device.PropNotify},
	{ble.CharIndicate, device.PropIndicate},
	{ble.CharSignedWrite, device.PropSignedWrite},
	{ble.CharExtended, device.PropExtended},
}

// NewProperties converts ble.Property bit flags to device.Property.
func NewProperties(p ble.Property) device.Property {
	var out device.Property
	for _, m := range propertyMapping {
		if p&m.ble != 0 {
			out |= m.dev
		}
	}
	return out
}
