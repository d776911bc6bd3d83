package measurement_test

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/srg/omronble/internal/measurement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type DecoderTestSuite struct {
	suite.Suite
	captured time.Time
	decoder  measurement.Decoder
}

func (s *DecoderTestSuite) SetupTest() {
	s.captured = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	s.decoder = measurement.Decoder{
		Now:      func() time.Time { return s.captured },
		Location: time.UTC,
	}
}

func dateTime(year int, month, day, hour, minute, second byte) []byte {
	b := binary.LittleEndian.AppendUint16(nil, uint16(year))
	return append(b, month, day, hour, minute, second)
}

func le16(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func (s *DecoderTestSuite) TestBloodPressure_AllOptionalFields() {
	payload := concat(
		[]byte{0x1E}, // timestamp, pulse, user id, status
		le16(0xF4B0), le16(0xF320), le16(0xF3B6),
		dateTime(2025, 12, 31, 23, 59, 58),
		le16(0x0048),
		[]byte{0x02},
		le16(0x0004),
	)

	m, err := s.decoder.Decode("2A35", payload)
	s.Require().NoError(err)

	bp, ok := m.(*measurement.BloodPressure)
	s.Require().True(ok)
	s.InDelta(120, bp.Systolic, 1e-9)
	s.InDelta(80, bp.Diastolic, 1e-9)
	s.InDelta(95, bp.MeanArterialPressure, 1e-9)
	s.Require().NotNil(bp.Pulse)
	s.InDelta(72, *bp.Pulse, 1e-9)
	s.Require().NotNil(bp.UserID)
	s.Equal(uint8(2), *bp.UserID)
	s.Require().NotNil(bp.Status)
	s.Equal(measurement.StatusIrregularPulse, *bp.Status)
	s.True(bp.FromDevice)
	s.Equal(time.Date(2025, 12, 31, 23, 59, 58, 0, time.UTC), bp.TakenAt())
	s.Equal(measurement.UnitMmHg, bp.Unit())
	s.False(bp.SpotCheck)
}

func (s *DecoderTestSuite) TestBloodPressure_NoOptionalFields() {
	payload := concat([]byte{0x00}, le16(0x0078), le16(0x0050), le16(0x005F))

	m, err := s.decoder.Decode("00002a35-0000-1000-8000-00805f9b34fb", payload)
	s.Require().NoError(err)

	bp := m.(*measurement.BloodPressure)
	s.InDelta(120, bp.Systolic, 1e-9)
	s.Nil(bp.Pulse, "pulse MUST be absent when its flag is clear")
	s.Nil(bp.UserID)
	s.Nil(bp.Status)
	s.False(bp.FromDevice)
	s.Equal(s.captured, bp.TakenAt())
}

func (s *DecoderTestSuite) TestBloodPressure_SpotCheckCharacteristic() {
	payload := concat([]byte{0x04}, le16(0x0078), le16(0x0050), le16(0x005F), le16(0x0040))

	m, err := s.decoder.Decode("b305b680-aee7-11e1-a730-0002a5d5c51b", payload)
	s.Require().NoError(err)

	bp := m.(*measurement.BloodPressure)
	s.True(bp.SpotCheck)
	s.Require().NotNil(bp.Pulse)
	s.InDelta(64, *bp.Pulse, 1e-9)
}

func (s *DecoderTestSuite) TestBloodPressure_Truncated() {
	tests := map[string][]byte{
		"empty":             nil,
		"missing diastolic": concat([]byte{0x00}, le16(0x0078)),
		"missing timestamp": concat([]byte{0x02}, le16(0x0078), le16(0x0050), le16(0x005F), []byte{0xE9, 0x07}),
		"missing pulse":     concat([]byte{0x04}, le16(0x0078), le16(0x0050), le16(0x005F)),
	}
	for name, payload := range tests {
		s.Run(name, func() {
			m, err := s.decoder.Decode("2a35", payload)
			s.Nil(m)
			s.ErrorIs(err, measurement.ErrTruncated)
			var derr *measurement.DecodeError
			s.Require().ErrorAs(err, &derr)
			s.Equal("2a35", derr.Characteristic)
		})
	}
}

func (s *DecoderTestSuite) TestTimestamp_UnknownDateFallsBackToCaptureTime() {
	payload := concat([]byte{0x02}, le16(0x0078), le16(0x0050), le16(0x005F), dateTime(0, 0, 0, 0, 0, 0))

	m, err := s.decoder.Decode("2a35", payload)
	s.Require().NoError(err)
	s.Equal(s.captured, m.TakenAt())
}

func (s *DecoderTestSuite) TestTimestamp_InvalidMonth() {
	payload := concat([]byte{0x02}, le16(0x0078), le16(0x0050), le16(0x005F), dateTime(2025, 13, 1, 0, 0, 0))

	_, err := s.decoder.Decode("2a35", payload)
	s.ErrorIs(err, measurement.ErrInvalidField)
}

func (s *DecoderTestSuite) TestWeight() {
	m, err := s.decoder.Decode("2a9d", concat([]byte{0x00}, le16(14500)))
	s.Require().NoError(err)

	w := m.(*measurement.Weight)
	s.InDelta(72.5, w.Kilograms, 1e-9)
	s.Equal(measurement.UnitKg, w.Unit())
	s.Equal(s.captured, w.TakenAt())
	s.Nil(w.UserID)
}

func (s *DecoderTestSuite) TestWeight_TimestampAndUser() {
	payload := concat([]byte{0x06}, le16(16000), dateTime(2024, 2, 29, 7, 30, 0), []byte{0x01})

	m, err := s.decoder.Decode("2a9d", payload)
	s.Require().NoError(err)

	w := m.(*measurement.Weight)
	s.InDelta(80, w.Kilograms, 1e-9)
	s.Equal(time.Date(2024, 2, 29, 7, 30, 0, 0, time.UTC), w.TakenAt())
	s.Require().NotNil(w.UserID)
	s.Equal(uint8(1), *w.UserID)
}

func float32LE(v float32) []byte {
	return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))
}

func (s *DecoderTestSuite) TestTemperature_FahrenheitConverted() {
	m, err := s.decoder.Decode("2a1c", concat([]byte{0x00}, float32LE(98.6)))
	s.Require().NoError(err)

	temp := m.(*measurement.Temperature)
	s.InDelta(37.0, temp.Celsius, 0.1)
	s.True(temp.ReportedFahrenheit)
	s.Equal(measurement.UnitCelsius, temp.Unit())
}

func (s *DecoderTestSuite) TestTemperature_CelsiusWithTimestamp() {
	payload := concat([]byte{0x03}, float32LE(36.6), dateTime(2025, 6, 1, 8, 0, 0))

	m, err := s.decoder.Decode("2a1c", payload)
	s.Require().NoError(err)

	temp := m.(*measurement.Temperature)
	s.InDelta(36.6, temp.Celsius, 1e-5)
	s.False(temp.ReportedFahrenheit)
	s.True(temp.FromDevice)
}

func (s *DecoderTestSuite) TestBodyComposition() {
	tests := []struct {
		name    string
		payload []byte
		fat     *float64
		muscle  *float64
	}{
		{"fat only", concat(le16(0x0002), le16(215)), ptr(21.5), nil},
		{"muscle only", concat(le16(0x0020), le16(312)), nil, ptr(31.2)},
		{"both in bit order", concat(le16(0x0022), le16(180), le16(405)), ptr(18.0), ptr(40.5)},
		{"neither", le16(0x0000), nil, nil},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			m, err := s.decoder.Decode("2a9c", tt.payload)
			s.Require().NoError(err)

			bc := m.(*measurement.BodyComposition)
			s.Equal(s.captured, bc.TakenAt())
			if tt.fat == nil {
				s.Nil(bc.BodyFatPercent)
			} else {
				s.Require().NotNil(bc.BodyFatPercent)
				s.InDelta(*tt.fat, *bc.BodyFatPercent, 1e-9)
			}
			if tt.muscle == nil {
				s.Nil(bc.MuscleMassKg)
			} else {
				s.Require().NotNil(bc.MuscleMassKg)
				s.InDelta(*tt.muscle, *bc.MuscleMassKg, 1e-9)
			}
		})
	}
}

func (s *DecoderTestSuite) TestBodyComposition_TruncatedMuscle() {
	_, err := s.decoder.Decode("2a9c", concat(le16(0x0022), le16(180)))
	s.ErrorIs(err, measurement.ErrTruncated)
}

func (s *DecoderTestSuite) TestUnknownCharacteristic() {
	_, err := s.decoder.Decode("2a37", []byte{0x00, 0x48})
	s.ErrorIs(err, measurement.ErrUnknownCharacteristic)
	s.False(measurement.CanDecode("2a52"))
	s.True(measurement.CanDecode("2A9C"))
}

func ptr(v float64) *float64 { return &v }

func TestDecoderTestSuite(t *testing.T) {
	suite.Run(t, new(DecoderTestSuite))
}

type kindCollector struct{ kinds []measurement.Kind }

func (k *kindCollector) VisitBloodPressure(m *measurement.BloodPressure) {
	k.kinds = append(k.kinds, m.Kind())
}
func (k *kindCollector) VisitWeight(m *measurement.Weight) { k.kinds = append(k.kinds, m.Kind()) }
func (k *kindCollector) VisitTemperature(m *measurement.Temperature) {
	k.kinds = append(k.kinds, m.Kind())
}
func (k *kindCollector) VisitBodyComposition(m *measurement.BodyComposition) {
	k.kinds = append(k.kinds, m.Kind())
}

func TestVisitorCoversAllVariants(t *testing.T) {
	all := []measurement.Measurement{
		&measurement.BloodPressure{}, &measurement.Weight{}, &measurement.Temperature{}, &measurement.BodyComposition{},
	}
	c := &kindCollector{}
	for _, m := range all {
		m.Accept(c)
	}
	assert.Equal(t, []measurement.Kind{
		measurement.KindBloodPressure, measurement.KindWeight, measurement.KindTemperature, measurement.KindBodyComposition,
	}, c.kinds)
}

func TestFields(t *testing.T) {
	pulse := 72.0
	bp := &measurement.BloodPressure{
		Timestamp: measurement.Timestamp{Time: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), FromDevice: true},
		Systolic:  120, Diastolic: 80, MeanArterialPressure: math.NaN(), Pulse: &pulse,
	}

	f := measurement.Fields(bp)
	var keys []string
	for pair := f.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	assert.Equal(t, []string{"kind", "taken_at", "device_time", "systolic", "diastolic", "mean_arterial_pressure", "pulse", "unit"}, keys)

	v, _ := f.Get("mean_arterial_pressure")
	assert.Nil(t, v, "non-finite values MUST render as nil")
	v, _ = f.Get("taken_at")
	assert.Equal(t, "2025-01-02T03:04:05Z", v)

	_, err := f.MarshalJSON()
	require.NoError(t, err)
}

func TestSummary(t *testing.T) {
	pulse, fat := 70.0, 21.5
	var user uint8 = 2

	cases := []struct {
		name string
		m    measurement.Measurement
		want string
	}{
		{"blood pressure", &measurement.BloodPressure{Systolic: 120, Diastolic: 80, Pulse: &pulse, UserID: &user}, "blood pressure 120/80 mmHg, pulse 70, user 2"},
		{"weight", &measurement.Weight{Kilograms: 72.5}, "weight 72.5 kg"},
		{"temperature", &measurement.Temperature{Celsius: 36.98}, "temperature 37.0 °C"},
		{"body fat only", &measurement.BodyComposition{BodyFatPercent: &fat}, "body fat 21.5%"},
		{"empty body composition", &measurement.BodyComposition{}, "body composition (empty)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, measurement.Summary(tc.m))
		})
	}
}
