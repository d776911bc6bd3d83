//go:build !linux

package permission

import "github.com/sirupsen/logrus"

// Default returns a requester that grants immediately. CoreBluetooth prompts
// for consent on first use of the radio.
func Default(_ *logrus.Logger) Requester {
	return Noop{}
}
