package main

import (
	"bytes"

	"github.com/sirupsen/logrus"
	"github.com/srg/omronble/internal/device"
	"github.com/srg/omronble/internal/permission"
	"github.com/srg/omronble/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent mock device identification
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
)

// CommandTestSuite replaces the BLE transport and the permission prompt with
// mocks and runs commands against a fresh command tree.
// All cmd/omronble test suites embed it.
type CommandTestSuite struct {
	suite.Suite

	Transport *testutils.MockTransport
	Stderr    *bytes.Buffer

	origTransport  func(*logrus.Logger) device.Transport
	origPermission func(*logrus.Logger) permission.Requester
}

func (s *CommandTestSuite) SetupTest() {
	s.Transport = &testutils.MockTransport{}
	s.Stderr = new(bytes.Buffer)

	s.origTransport = newTransport
	s.origPermission = newPermission
	newTransport = func(*logrus.Logger) device.Transport { return s.Transport }
	newPermission = func(*logrus.Logger) permission.Requester { return permission.Noop{} }
}

func (s *CommandTestSuite) TearDownTest() {
	newTransport = s.origTransport
	newPermission = s.origPermission
}

// ExecuteCommand runs the CLI with args and returns what it wrote to stdout.
// Stderr is kept in s.Stderr.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	cmd := newRootCmd()
	stdout := new(bytes.Buffer)
	s.Stderr.Reset()
	cmd.SetOut(stdout)
	cmd.SetErr(s.Stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}
