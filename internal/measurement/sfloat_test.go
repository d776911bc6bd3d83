package measurement

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSFloat(t *testing.T) {
	tests := []struct {
		name string
		raw  uint16
		want float64
	}{
		{"positive mantissa zero exponent", 0x0960, 2400},
		{"systolic 120 as 1200e-1", 0xF4B0, 120},
		{"negative mantissa", 0x0F9C, -100},
		{"positive exponent", 0x2005, 500},
		{"negative exponent -2", 0xE07B, 1.23},
		{"zero", 0x0000, 0},
		{"most negative mantissa", 0x0803 | 0x1000, -20450},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SFloat(tt.raw), 1e-9)
		})
	}
}

func TestSFloat_ReservedValues(t *testing.T) {
	assert.True(t, math.IsNaN(SFloat(0x07FF)))
	assert.True(t, math.IsNaN(SFloat(0x0800)))
	assert.True(t, math.IsNaN(SFloat(0x0801)))
	assert.True(t, math.IsInf(SFloat(0x07FE), 1))
	assert.True(t, math.IsInf(SFloat(0x0802), -1))
}

func TestEncodeSFloat(t *testing.T) {
	assert.Equal(t, uint16(0xF4B0), EncodeSFloat(1200, -1))
	assert.Equal(t, uint16(0x0960), EncodeSFloat(2400, 0))
	assert.InDelta(t, -7.5, SFloat(EncodeSFloat(-75, -1)), 1e-9)
}
