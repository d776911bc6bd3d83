// Package measurement decodes GATT health profile payloads (blood pressure,
// weight, temperature and body composition) into typed measurements.
package measurement

import "time"

// Kind names a measurement variant.
type Kind string

const (
	KindBloodPressure   Kind = "blood_pressure"
	KindWeight          Kind = "weight"
	KindTemperature     Kind = "temperature"
	KindBodyComposition Kind = "body_composition"
)

// Unit is the unit a measurement's primary value is expressed in.
type Unit string

const (
	UnitMmHg    Unit = "mmHg"
	UnitKg      Unit = "kg"
	UnitCelsius Unit = "°C"
	UnitPercent Unit = "%"
)

// Measurement is one decoded reading. The set of implementations is closed;
// use Accept with a Visitor to handle every variant.
type Measurement interface {
	Kind() Kind
	Unit() Unit
	TakenAt() time.Time

	// PrimaryValue is the headline number: systolic pressure, weight, temperature or body fat.
	PrimaryValue() float64

	Accept(v Visitor)

	sealed()
}

// Visitor handles every measurement variant.
type Visitor interface {
	VisitBloodPressure(m *BloodPressure)
	VisitWeight(m *Weight)
	VisitTemperature(m *Temperature)
	VisitBodyComposition(m *BodyComposition)
}

// Timestamp is when a reading was taken and whether the device reported it.
type Timestamp struct {
	Time       time.Time
	FromDevice bool
}

// MeasurementStatus is the raw blood pressure measurement status bit field.
type MeasurementStatus uint16

const (
	StatusBodyMovement     MeasurementStatus = 1 << 0
	StatusCuffFitLoose     MeasurementStatus = 1 << 1
	StatusIrregularPulse   MeasurementStatus = 1 << 2
	StatusImproperPosition MeasurementStatus = 1 << 5
)

// BloodPressure is a blood pressure reading in mmHg.
type BloodPressure struct {
	Timestamp
	Systolic             float64
	Diastolic            float64
	MeanArterialPressure float64
	Pulse                *float64 // beats per minute
	UserID               *uint8
	Status               *MeasurementStatus

	// SpotCheck is set for readings from the vendor spot-check characteristic.
	SpotCheck bool
}

// Weight is a body weight reading in kilograms.
type Weight struct {
	Timestamp
	Kilograms float64
	UserID    *uint8
}

// Temperature is a body temperature reading, always stored in Celsius.
type Temperature struct {
	Timestamp
	Celsius float64

	// ReportedFahrenheit is set when the device sent the value in Fahrenheit.
	ReportedFahrenheit bool
}

// BodyComposition is a body composition reading.
type BodyComposition struct {
	Timestamp
	BodyFatPercent *float64
	MuscleMassKg   *float64
}

func (*BloodPressure) Kind() Kind   { return KindBloodPressure }
func (*Weight) Kind() Kind          { return KindWeight }
func (*Temperature) Kind() Kind     { return KindTemperature }
func (*BodyComposition) Kind() Kind { return KindBodyComposition }

func (*BloodPressure) Unit() Unit   { return UnitMmHg }
func (*Weight) Unit() Unit          { return UnitKg }
func (*Temperature) Unit() Unit     { return UnitCelsius }
func (*BodyComposition) Unit() Unit { return UnitPercent }

func (t Timestamp) TakenAt() time.Time { return t.Time }

func (m *BloodPressure) PrimaryValue() float64 { return m.Systolic }
func (m *Weight) PrimaryValue() float64        { return m.Kilograms }
func (m *Temperature) PrimaryValue() float64   { return m.Celsius }

func (m *BodyComposition) PrimaryValue() float64 {
	switch {
	case m.BodyFatPercent != nil:
		return *m.BodyFatPercent
	case m.MuscleMassKg != nil:
		return *m.MuscleMassKg
	}
	return 0
}

func (m *BloodPressure) Accept(v Visitor)   { v.VisitBloodPressure(m) }
func (m *Weight) Accept(v Visitor)          { v.VisitWeight(m) }
func (m *Temperature) Accept(v Visitor)     { v.VisitTemperature(m) }
func (m *BodyComposition) Accept(v Visitor) { v.VisitBodyComposition(m) }

func (*BloodPressure) sealed()   {}
func (*Weight) sealed()          {}
func (*Temperature) sealed()     {}
func (*BodyComposition) sealed() {}
