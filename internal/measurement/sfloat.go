package measurement

import "math"

// IEEE-11073 reserved SFLOAT mantissas.
const (
	sfloatNaN         = 0x07FF
	sfloatNRes        = 0x0800
	sfloatPositiveInf = 0x07FE
	sfloatNegativeInf = 0x0802
	sfloatReserved    = 0x0801
)

// SFloat decodes a 16-bit IEEE-11073 SFLOAT: a 4-bit signed exponent in the
// high nibble and a 12-bit signed mantissa, value = mantissa * 10^exponent.
// Reserved mantissas decode to NaN or an infinity.
func SFloat(raw uint16) float64 {
	switch raw & 0x0FFF {
	case sfloatNaN, sfloatNRes, sfloatReserved:
		return math.NaN()
	case sfloatPositiveInf:
		return math.Inf(1)
	case sfloatNegativeInf:
		return math.Inf(-1)
	}

	mantissa := int32(raw & 0x0FFF)
	if mantissa >= 0x0800 {
		mantissa -= 0x1000
	}
	exponent := int32(raw >> 12)
	if exponent >= 0x8 {
		exponent -= 0x10
	}

	// Dividing keeps results such as 1200e-1 exact.
	if exponent < 0 {
		return float64(mantissa) / math.Pow10(int(-exponent))
	}
	return float64(mantissa) * math.Pow10(int(exponent))
}

// EncodeSFloat is the inverse of SFloat for values representable with
// exponent 0 or the given negative exponent. It is used by tools and tests.
func EncodeSFloat(mantissa int16, exponent int8) uint16 {
	return uint16(exponent&0x0F)<<12 | uint16(mantissa)&0x0FFF
}
