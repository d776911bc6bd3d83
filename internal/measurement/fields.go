package measurement

import (
	"math"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Fields renders a measurement as an ordered field map for display and
// serialization. Absent optional fields are omitted; non-finite values are nil.
func Fields(m Measurement) *orderedmap.OrderedMap[string, any] {
	f := &fieldsVisitor{om: orderedmap.New[string, any]()}
	f.om.Set("kind", string(m.Kind()))
	f.om.Set("taken_at", m.TakenAt().Format(time.RFC3339))
	m.Accept(f)
	f.om.Set("unit", string(m.Unit()))
	return f.om
}

type fieldsVisitor struct {
	om *orderedmap.OrderedMap[string, any]
}

func finite(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func (f *fieldsVisitor) deviceTime(ts Timestamp) {
	f.om.Set("device_time", ts.FromDevice)
}

func (f *fieldsVisitor) VisitBloodPressure(m *BloodPressure) {
	f.deviceTime(m.Timestamp)
	f.om.Set("systolic", finite(m.Systolic))
	f.om.Set("diastolic", finite(m.Diastolic))
	f.om.Set("mean_arterial_pressure", finite(m.MeanArterialPressure))
	if m.Pulse != nil {
		f.om.Set("pulse", finite(*m.Pulse))
	}
	if m.UserID != nil {
		f.om.Set("user_id", *m.UserID)
	}
	if m.Status != nil {
		f.om.Set("status", uint16(*m.Status))
	}
	if m.SpotCheck {
		f.om.Set("spot_check", true)
	}
}

func (f *fieldsVisitor) VisitWeight(m *Weight) {
	f.deviceTime(m.Timestamp)
	f.om.Set("weight", m.Kilograms)
	if m.UserID != nil {
		f.om.Set("user_id", *m.UserID)
	}
}

func (f *fieldsVisitor) VisitTemperature(m *Temperature) {
	f.deviceTime(m.Timestamp)
	f.om.Set("temperature", finite(m.Celsius))
	if m.ReportedFahrenheit {
		f.om.Set("reported_fahrenheit", true)
	}
}

func (f *fieldsVisitor) VisitBodyComposition(m *BodyComposition) {
	f.deviceTime(m.Timestamp)
	if m.BodyFatPercent != nil {
		f.om.Set("body_fat", *m.BodyFatPercent)
	}
	if m.MuscleMassKg != nil {
		f.om.Set("muscle_mass_kg", *m.MuscleMassKg)
	}
}
