package device

import "strings"

// Property is a bit set of GATT characteristic properties.
type Property uint8

const (
	PropBroadcast Property = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtended
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtended, "extended"},
}

// Has reports whether every bit of q is set.
func (p Property) Has(q Property) bool {
	return p&q == q
}

// CanSubscribe reports whether the characteristic delivers notifications or indications.
func (p Property) CanSubscribe() bool {
	return p&(PropNotify|PropIndicate) != 0
}

// PrefersIndication reports whether a subscription should use indications.
// Notifications win when both are offered.
func (p Property) PrefersIndication() bool {
	return p.Has(PropIndicate) && !p.Has(PropNotify)
}

func (p Property) String() string {
	var names []string
	for _, pn := range propertyNames {
		if p.Has(pn.p) {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, ",")
}
