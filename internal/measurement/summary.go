package measurement

import (
	"fmt"
	"strconv"
	"strings"
)

// Summary renders a measurement as one human-readable line, for example
// "blood pressure 120/80 mmHg, pulse 70".
func Summary(m Measurement) string {
	s := &summaryVisitor{}
	m.Accept(s)
	return strings.Join(s.parts, ", ")
}

type summaryVisitor struct {
	parts []string
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (s *summaryVisitor) add(format string, args ...any) {
	s.parts = append(s.parts, fmt.Sprintf(format, args...))
}

func (s *summaryVisitor) VisitBloodPressure(m *BloodPressure) {
	s.add("blood pressure %s/%s %s", num(m.Systolic), num(m.Diastolic), UnitMmHg)
	if m.Pulse != nil {
		s.add("pulse %s", num(*m.Pulse))
	}
	if m.UserID != nil {
		s.add("user %d", *m.UserID)
	}
}

func (s *summaryVisitor) VisitWeight(m *Weight) {
	s.add("weight %s %s", num(m.Kilograms), UnitKg)
	if m.UserID != nil {
		s.add("user %d", *m.UserID)
	}
}

func (s *summaryVisitor) VisitTemperature(m *Temperature) {
	s.add("temperature %.1f %s", m.Celsius, UnitCelsius)
}

func (s *summaryVisitor) VisitBodyComposition(m *BodyComposition) {
	if m.BodyFatPercent == nil && m.MuscleMassKg == nil {
		s.add("body composition (empty)")
		return
	}
	if m.BodyFatPercent != nil {
		s.add("body fat %s%s", num(*m.BodyFatPercent), UnitPercent)
	}
	if m.MuscleMassKg != nil {
		s.add("muscle mass %s %s", num(*m.MuscleMassKg), UnitKg)
	}
}
