package main

import (
	"errors"
	"testing"

	"github.com/srg/omronble/internal/measurement"
	"github.com/srg/omronble/internal/omron"
	"github.com/srg/omronble/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const (
	// Pairable, clock set, two users: user 1 at sequence 5 with 3 records, user 2 empty.
	omronAdvHex = "0e 02 01 09 05 00 03 00 00 00"

	// 120/80 mmHg, MAP 93, taken 2025-06-01 08:30:00.
	bloodPressureHex = "02 78 00 50 00 5d 00 e9 07 06 01 08 1e 00"
)

type DecodeTestSuite struct {
	CommandTestSuite
}

func TestDecodeTestSuite(t *testing.T) {
	suite.Run(t, new(DecodeTestSuite))
}

func (s *DecodeTestSuite) TestHelp() {
	out, err := s.ExecuteCommand("decode", "--help")
	s.Require().NoError(err)
	s.Contains(out, "Decode captured bytes without a device")
	s.Contains(out, "body-composition")
	s.Contains(out, "--tz")
}

func (s *DecodeTestSuite) TestAdvertisementTable() {
	out, err := s.ExecuteCommand("decode", "adv", omronAdvHex)
	s.Require().NoError(err)

	testutils.AssertText(s.T(), out, `
vendor: Omron Healthcare
company_id: 0x020E
pairable: yes
time_not_configured: no
number_of_users: 2

USER LAST SEQUENCE RECORDS
1 5 3
2 0 0
`, testutils.WithCollapsedSpaces())
}

func (s *DecodeTestSuite) TestAdvertisementJSON() {
	out, err := s.ExecuteCommand("decode", "adv", "0x0e020105050003000000", "-f", "json")
	s.Require().NoError(err)

	testutils.AssertJSON(s.T(), out, `{
		"vendor": "Omron Healthcare",
		"company_id": "0x020E",
		"pairable": false,
		"time_not_configured": true,
		"number_of_users": 2,
		"users": [
			{"index": 1, "last_sequence_number": 5, "number_of_records": 3},
			{"index": 2, "last_sequence_number": 0, "number_of_records": 0}
		]
	}`)
}

func (s *DecodeTestSuite) TestAdvertisementRejected() {
	tests := []struct {
		name string
		hex  string
		want error
	}{
		{"other vendor", "4c 00 02 15", omron.ErrNotOmron},
		{"truncated user slot", "0e 02 01 01 0c 00 03", omron.ErrTruncated},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.ExecuteCommand("decode", "adv", tt.hex)
			s.Require().Error(err)
			s.ErrorIs(err, tt.want)
		})
	}
}

func (s *DecodeTestSuite) TestBloodPressureJSON() {
	out, err := s.ExecuteCommand("decode", "bp", bloodPressureHex, "--tz", "UTC", "-f", "json")
	s.Require().NoError(err)

	testutils.AssertJSON(s.T(), out, `{
		"kind": "blood_pressure",
		"taken_at": "2025-06-01T08:30:00Z",
		"device_time": true,
		"systolic": 120,
		"diastolic": 80,
		"mean_arterial_pressure": 93,
		"unit": "mmHg"
	}`)
}

func (s *DecodeTestSuite) TestBloodPressureTable() {
	out, err := s.ExecuteCommand("decode", "2A35", bloodPressureHex, "--tz", "UTC")
	s.Require().NoError(err)

	testutils.AssertText(s.T(), out, `
blood pressure 120/80 mmHg

kind: blood_pressure
taken_at: 2025-06-01T08:30:00Z
device_time: yes
systolic: 120
diastolic: 80
mean_arterial_pressure: 93
unit: mmHg
`, testutils.WithCollapsedSpaces())
}

func (s *DecodeTestSuite) TestWeightWithoutTimestamp() {
	out, err := s.ExecuteCommand("decode", "weight", "00a438", "-f", "json")
	s.Require().NoError(err)

	testutils.AssertJSON(s.T(), out, `{
		"kind": "weight",
		"taken_at": "<<ANY>>",
		"device_time": false,
		"weight": 72.5,
		"unit": "kg"
	}`)
}

func (s *DecodeTestSuite) TestTruncatedPayload() {
	_, err := s.ExecuteCommand("decode", "bp", "02 78 00")
	s.Require().Error(err)
	s.ErrorIs(err, measurement.ErrTruncated)

	var decodeErr *measurement.DecodeError
	s.Require().True(errors.As(err, &decodeErr))
	s.Equal("diastolic", decodeErr.Field)
	s.Contains(FormatUserError(err), "could not decode payload")
}

func (s *DecodeTestSuite) TestArgumentErrors() {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown characteristic", []string{"decode", "heart-rate", "00"}, `unknown characteristic "heart-rate"`},
		{"non measurement uuid", []string{"decode", "2a52", "00"}, `unknown characteristic "2a52"`},
		{"bad hex", []string{"decode", "bp", "zz"}, "invalid hex payload"},
		{"bad format", []string{"decode", "bp", "00", "-f", "xml"}, "invalid format 'xml': must be one of [table json]"},
		{"bad zone", []string{"decode", "bp", "00", "--tz", "Mars/Olympus"}, "invalid time zone"},
		{"missing payload", []string{"decode", "bp"}, "accepts 2 arg(s)"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.ExecuteCommand(tt.args...)
			s.Require().Error(err)
			s.Contains(err.Error(), tt.want)
		})
	}
}

func TestParseHex(t *testing.T) {
	for _, in := range []string{"0e0201", "0E 02 01", "0e:02:01", "0x0e-02-01", " 0e0201 "} {
		got, err := parseHex(in)
		if err != nil {
			t.Fatalf("parseHex(%q): %v", in, err)
		}
		if string(got) != "\x0e\x02\x01" {
			t.Errorf("parseHex(%q) = % x", in, got)
		}
	}
}
