package permission

import (
	"context"
	"fmt"
	"slices"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

const (
	bluezBus     = "org.bluez"
	adapterIface = "org.bluez.Adapter1"
	propsIface   = "org.freedesktop.DBus.Properties"
)

// BlueZ powers on the adapter over the system bus when it is off.
type BlueZ struct {
	Adapter string // e.g. "hci0"
	Logger  *logrus.Logger
}

// Default returns the BlueZ requester for hci0.
func Default(logger *logrus.Logger) Requester {
	return &BlueZ{Adapter: "hci0", Logger: logger}
}

func adapterPath(adapter string) dbus.ObjectPath {
	if adapter == "" {
		adapter = "hci0"
	}
	return dbus.ObjectPath("/org/bluez/" + adapter)
}

func (b *BlueZ) logger() *logrus.Logger {
	if b.Logger == nil {
		return logrus.StandardLogger()
	}
	return b.Logger
}

func (b *BlueZ) Request(ctx context.Context) error {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	var names []string
	if err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return fmt.Errorf("list bus names: %w", err)
	}
	if !slices.Contains(names, bluezBus) {
		return fmt.Errorf("%w: org.bluez not found on system bus", ErrDenied)
	}

	path := adapterPath(b.Adapter)
	obj := conn.Object(bluezBus, path)

	var powered dbus.Variant
	if err := obj.CallWithContext(ctx, propsIface+".Get", 0, adapterIface, "Powered").Store(&powered); err != nil {
		return fmt.Errorf("%w: read %s power state: %v", ErrDenied, path, err)
	}
	if on, _ := powered.Value().(bool); on {
		return nil
	}

	b.logger().WithField("adapter", path).Info("Powering on Bluetooth adapter")
	if err := obj.CallWithContext(ctx, propsIface+".Set", 0, adapterIface, "Powered", dbus.MakeVariant(true)).Err; err != nil {
		return fmt.Errorf("%w: power on %s: %v", ErrDenied, path, err)
	}
	return nil
}
