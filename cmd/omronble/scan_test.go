package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/omronble/internal/device"
	"github.com/srg/omronble/internal/omron"
	"github.com/srg/omronble/internal/permission"
	"github.com/srg/omronble/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type ScanTestSuite struct {
	CommandTestSuite
}

func TestScanTestSuite(t *testing.T) {
	suite.Run(t, new(ScanTestSuite))
}

// expectScan makes the mock transport report advs and then advertise
// nothing until the scan is cancelled.
func (s *ScanTestSuite) expectScan(advs ...device.Advertisement) {
	s.Transport.On("Scan", mock.Anything, true, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			handler := args.Get(2).(func(device.Advertisement))
			for _, adv := range advs {
				handler(adv)
			}
			<-ctx.Done()
		}).
		Return(nil)
}

func (s *ScanTestSuite) nearbyDevices() []device.Advertisement {
	return []device.Advertisement{
		testutils.NewAdvertisementBuilder().
			WithAddress(TestDeviceAddress1).
			WithName("BLEsmart_0001").
			WithOmron(true, false,
				omron.UserSlot{Index: 1, LastSequenceNumber: 7, NumberOfRecords: 3},
				omron.UserSlot{Index: 2}).
			Build(),
		testutils.NewAdvertisementBuilder().
			WithAddress(TestDeviceAddress2).
			WithRSSI(-72).
			WithOmron(false, true, omron.UserSlot{Index: 1, NumberOfRecords: 1}).
			Build(),
		// Not an Omron device
		testutils.NewAdvertisementBuilder().
			WithAddress("00:00:00:00:00:03").
			WithName("Headphones").
			WithManufacturerData([]byte{0x4c, 0x00, 0x02, 0x15}).
			Build(),
	}
}

func (s *ScanTestSuite) TestHelp() {
	out, err := s.ExecuteCommand("scan", "--help")
	s.Require().NoError(err)
	s.Contains(out, "Scan for Omron Bluetooth Low Energy health devices")
	s.Contains(out, "--duration")
	s.Contains(out, "--format")
}

func (s *ScanTestSuite) TestTable() {
	s.expectScan(s.nearbyDevices()...)

	out, err := s.ExecuteCommand("scan", "-d", "100ms")
	s.Require().NoError(err)

	testutils.AssertText(s.T(), out, `
NAME ADDRESS RSSI PAIRABLE CLOCK RECORDS
BLEsmart_0001 00:00:00:00:00:01 -60 dBm yes set 1:3 2:0
(unknown) 00:00:00:00:00:02 -72 dBm no not set 1:1
`, testutils.WithCollapsedSpaces())
	s.Transport.AssertNumberOfCalls(s.T(), "Scan", 1)
}

func (s *ScanTestSuite) TestJSON() {
	s.expectScan(s.nearbyDevices()[:1]...)

	out, err := s.ExecuteCommand("scan", "-d", "100ms", "--format", "json")
	s.Require().NoError(err)

	testutils.AssertJSON(s.T(), out, `[
		{
			"id": "00:00:00:00:00:01",
			"name": "BLEsmart_0001",
			"rssi": -60,
			"connectable": true,
			"pairable": true,
			"time_not_configured": false,
			"number_of_users": 2,
			"users": [
				{"index": 1, "last_sequence_number": 7, "number_of_records": 3},
				{"index": 2, "last_sequence_number": 0, "number_of_records": 0}
			],
			"first_seen": "<<ANY>>",
			"last_seen": "<<ANY>>"
		}
	]`)
}

func (s *ScanTestSuite) TestNothingFound() {
	s.expectScan()

	out, err := s.ExecuteCommand("scan", "-d", "50ms")
	s.Require().NoError(err)
	testutils.AssertText(s.T(), out, "No Omron devices discovered")

	out, err = s.ExecuteCommand("scan", "-d", "50ms", "-f", "json")
	s.Require().NoError(err)
	testutils.AssertJSON(s.T(), out, `[]`)
}

func (s *ScanTestSuite) TestBlockList() {
	s.expectScan(s.nearbyDevices()...)

	out, err := s.ExecuteCommand("scan", "-d", "100ms", "--block", TestDeviceAddress2)
	s.Require().NoError(err)
	s.Contains(out, TestDeviceAddress1)
	s.NotContains(out, TestDeviceAddress2)
}

func (s *ScanTestSuite) TestAllowList() {
	s.expectScan(s.nearbyDevices()...)

	out, err := s.ExecuteCommand("scan", "-d", "100ms", "--allow", TestDeviceAddress2)
	s.Require().NoError(err)
	s.NotContains(out, TestDeviceAddress1)
	s.Contains(out, TestDeviceAddress2)
}

func (s *ScanTestSuite) TestTransportFailure() {
	s.Transport.On("Scan", mock.Anything, true, mock.Anything).Return(device.ErrBluetoothOff)

	_, err := s.ExecuteCommand("scan", "-d", "1s")
	s.Require().Error(err)
	s.Contains(err.Error(), "Scan failed")
	s.Contains(err.Error(), "bluetooth is turned off")
}

func (s *ScanTestSuite) TestPermissionDenied() {
	newPermission = func(*logrus.Logger) permission.Requester {
		return permission.RequesterFunc(func(context.Context) error {
			return fmt.Errorf("adapter unavailable: %w", permission.ErrDenied)
		})
	}

	_, err := s.ExecuteCommand("scan", "-d", "1s")
	s.Require().Error(err)
	s.ErrorIs(err, permission.ErrDenied)
	s.Contains(FormatUserError(err), "Bluetooth access was denied")
	s.Transport.AssertNotCalled(s.T(), "Scan", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ScanTestSuite) TestFlagValidation() {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"format", []string{"scan", "--format=invalid"}, "invalid format 'invalid': must be one of [table json]"},
		{"duration", []string{"scan", "-d", "0s"}, "invalid duration 0s: must be > 0"},
		{"positional", []string{"scan", "extra"}, `unknown command "extra"`},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.ExecuteCommand(tt.args...)
			s.Require().Error(err)
			s.Contains(err.Error(), tt.want)
		})
	}
	s.Transport.AssertNotCalled(s.T(), "Scan", mock.Anything, mock.Anything, mock.Anything)
}
