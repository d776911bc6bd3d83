package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/omronble/internal/device"
	"github.com/srg/omronble/internal/registry"
)

// StartScan asks for permission on first use, clears the registry and scans
// for up to the configured scan timeout. It returns once the scan is running;
// scan failures surface in the snapshot and the activity log.
// A scan already in progress is restarted.
func (m *Manager) StartScan(ctx context.Context) error {
	if err := m.permission.Request(ctx); err != nil {
		m.logger.WithError(err).Error("Bluetooth permission not granted")
		m.activity("Bluetooth permission not granted: %v", err)
		return fmt.Errorf("scan permission: %w", err)
	}
	return m.call(func() { m.startScan(ctx) })
}

// StopScan cancels a running scan. It is a no-op when not scanning.
func (m *Manager) StopScan() {
	_ = m.call(m.stopScan)
}

func (m *Manager) stopScan() {
	if m.st.scanCancel != nil {
		m.st.scanCancel()
		m.st.scanCancel = nil
	}
}

func (m *Manager) startScan(ctx context.Context) {
	m.stopScan()
	m.registry.Clear()

	m.st.scanGen++
	gen := m.st.scanGen
	scanCtx, cancel := context.WithTimeout(ctx, m.opts.scanTimeout)
	m.st.scanCancel = cancel
	m.st.scanning = true
	m.st.lastError = ""

	m.logger.WithField("timeout", m.opts.scanTimeout).Info("Starting BLE scan...")
	m.activity("Scanning for Omron devices")
	m.publish()

	handler := func(adv device.Advertisement) {
		m.post(func() { m.onAdvertisement(gen, adv) })
	}
	m.worker("scan", func() {
		err := m.transport.Scan(scanCtx, m.opts.allowDuplicates, handler)
		cancel()
		m.post(func() { m.onScanStopped(gen, err) })
	})
}

func (m *Manager) onAdvertisement(gen uint64, adv device.Advertisement) {
	if gen != m.st.scanGen || !m.st.scanning {
		return
	}
	_, ev, _ := m.registry.Observe(adv)
	if ev == registry.EventNew || ev == registry.EventUpdated {
		m.publish()
	}
}

func (m *Manager) onScanStopped(gen uint64, err error) {
	if gen != m.st.scanGen {
		return
	}
	m.st.scanning = false
	m.st.scanCancel = nil

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		m.fail("Scan failed", transportError("scan", "", err))
	} else {
		n := m.registry.Len()
		m.logger.WithField("device_count", n).Info("BLE scan completed")
		m.activity("Scan finished, %d device(s) found", n)
	}
	m.publish()
}

