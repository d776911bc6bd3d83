package testutils

import (
	"github.com/srg/omronble/internal/device"
	"github.com/srg/omronble/internal/omron"
)

// Advertisement is a plain device.Advertisement for tests.
type Advertisement struct {
	Name      string
	Data      []byte
	IsConnect bool
	Strength  int
	Address   string
}

func (a *Advertisement) LocalName() string        { return a.Name }
func (a *Advertisement) ManufacturerData() []byte { return a.Data }
func (a *Advertisement) Connectable() bool        { return a.IsConnect }
func (a *Advertisement) RSSI() int                { return a.Strength }
func (a *Advertisement) Addr() string             { return a.Address }

// AdvertisementBuilder assembles advertisements with a fluent API.
type AdvertisementBuilder struct {
	adv Advertisement
	err error
}

// NewAdvertisementBuilder starts from a connectable device at -60 dBm.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: Advertisement{
		Address:   "00:00:00:00:00:01",
		Strength:  -60,
		IsConnect: true,
	}}
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Strength = rssi
	return b
}

func (b *AdvertisementBuilder) WithConnectable(connectable bool) *AdvertisementBuilder {
	b.adv.IsConnect = connectable
	return b
}

// WithManufacturerData sets the raw payload, company ID included.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.Data = append([]byte(nil), data...)
	return b
}

// WithOmron encodes an Omron payload for the given user slots.
func (b *AdvertisementBuilder) WithOmron(pairable, timeNotConfigured bool, users ...omron.UserSlot) *AdvertisementBuilder {
	data, err := omron.EncodeAdvertisement(&omron.Advertisement{
		Pairable:          pairable,
		TimeNotConfigured: timeNotConfigured,
		Users:             users,
	})
	if err != nil {
		b.err = err
		return b
	}
	b.adv.Data = data
	return b
}

// Build returns the advertisement. It panics if WithOmron was given an
// unencodable user list.
func (b *AdvertisementBuilder) Build() device.Advertisement {
	if b.err != nil {
		panic(b.err)
	}
	adv := b.adv
	return &adv
}
