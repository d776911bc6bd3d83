// Package device defines the Bluetooth Low Energy capability consumed by the
// health-device core: scanning, connecting, characteristic discovery,
// subscriptions and control point writes.
//
// The package also hosts:
//   - the connection error taxonomy shared by transports and the session layer
//   - UUID normalization used for characteristic dispatch
//   - a registry of manufacturer-data parsers keyed by company identifier
//
// Production transports live in sub-packages (see device/goble); tests use the
// testify mocks in internal/testutils.
package device
