package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/srg/omronble/internal/device"
	"github.com/srg/omronble/internal/measurement"
)

var errConnectAborted = errors.New("connection attempt aborted")

// Connect establishes the connection, subscribes to every measurement
// characteristic and starts record retrieval. It returns once the
// subscriptions are in place or the attempt failed. Failures leave the
// manager in ConnectionFailed and are not retried.
func (m *Manager) Connect(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("connect: empty device id")
	}

	result := make(chan error, 1)
	var err error
	if cerr := m.call(func() { err = m.beginConnect(ctx, id, result) }); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return ErrClosed
	}
}

func (m *Manager) beginConnect(ctx context.Context, id string, result chan error) error {
	if m.st.conn == Connecting || m.st.conn == Connected {
		return fmt.Errorf("connect %s: %w", id, device.ErrAlreadyConnected)
	}

	m.stopScan()
	m.release(m.logReleaseError)
	m.st.measurements = nil
	m.st.racp = nil

	m.st.gen++
	gen := m.st.gen
	m.st.conn = Connecting
	m.st.deviceID = id
	m.st.sessionID = uuid.NewString()
	m.st.lastError = ""
	m.st.pending = result

	connCtx, cancel := context.WithCancel(m.ctx)
	m.st.connCancel = cancel

	m.logger.WithFields(logrus.Fields{
		"device":  id,
		"session": m.st.sessionID,
		"mtu":     m.opts.mtu,
	}).Info("Connecting to device...")
	m.activity("Connecting to %s", m.displayName(id))
	m.publish()

	opts := &device.ConnectOptions{ConnectTimeout: m.opts.connectTimeout, MTU: m.opts.mtu}
	m.worker("connect", func() {
		dialCtx, dialCancel := context.WithCancel(ctx)
		stop := context.AfterFunc(connCtx, dialCancel)
		p, err := m.breaker.Execute(func() (device.Peripheral, error) {
			return m.transport.Connect(dialCtx, id, opts)
		})
		stop()
		dialCancel()

		if !m.post(func() { m.onConnected(gen, connCtx, p, err) }) && p != nil {
			_ = p.Disconnect()
		}
	})
	return nil
}

func (m *Manager) displayName(id string) string {
	if d, ok := m.registry.Get(id); ok && d.Name != "" {
		return fmt.Sprintf("%s (%s)", d.Name, id)
	}
	return id
}

func (m *Manager) finishConnect(err error) {
	if m.st.pending != nil {
		m.st.pending <- err
		m.st.pending = nil
	}
}

func (m *Manager) onConnected(gen uint64, connCtx context.Context, p device.Peripheral, err error) {
	if gen != m.st.gen {
		if p != nil {
			m.worker("disconnect-stale", func() { _ = p.Disconnect() })
		}
		return
	}

	id := m.st.deviceID
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("connect %s: circuit open: %w", id, err)
		} else {
			err = transportError("connect", id, err)
		}
		m.connectFailed("Connection failed", err)
		return
	}

	m.st.conn = Connected
	m.st.peripheral = p
	m.logger.WithFields(logrus.Fields{"device": id, "session": m.st.sessionID}).Info("Connected")
	m.activity("Connected to %s", m.displayName(id))
	m.publish()

	m.watchLink(gen, connCtx, p)
	m.worker("discover", func() {
		ctx, cancel := context.WithTimeout(connCtx, m.opts.connectTimeout)
		defer cancel()
		chars, err := p.DiscoverCharacteristics(ctx)
		m.post(func() { m.onDiscovered(gen, chars, err) })
	})
}

// connectFailed abandons the attempt. Acquired resources are released in
// the background and the state stays ConnectionFailed.
func (m *Manager) connectFailed(msg string, err error) {
	m.fail(msg, err)
	m.st.conn = ConnectionFailed
	m.st.gen++
	m.release(m.logReleaseError)
	m.publish()
	m.finishConnect(err)
}

func (m *Manager) watchLink(gen uint64, ctx context.Context, p device.Peripheral) {
	m.worker("link-watch", func() {
		select {
		case <-p.Disconnected():
			m.post(func() { m.onLinkLost(gen) })
		case <-ctx.Done():
		}
	})
}

func (m *Manager) onLinkLost(gen uint64) {
	if gen != m.st.gen {
		return
	}
	m.logger.WithFields(logrus.Fields{"device": m.st.deviceID, "session": m.st.sessionID}).Warn("Connection lost")
	m.activity("Connection to %s lost", m.st.deviceID)
	m.teardown(nil)
}

func (m *Manager) onDiscovered(gen uint64, chars []device.Characteristic, err error) {
	if gen != m.st.gen {
		return
	}
	id := m.st.deviceID
	if err != nil {
		m.connectFailed("Service discovery failed", transportError("discover", id, err))
		return
	}

	var targets []device.Characteristic
	var controlPoint device.Characteristic
	for _, c := range chars {
		uuid := c.UUID()
		switch {
		case uuid == device.CharacteristicRACP:
			if controlPoint != nil {
				continue
			}
			if !c.Properties().CanSubscribe() {
				m.logger.WithField("properties", c.Properties().String()).Warn("Control point does not indicate, record access disabled")
				continue
			}
			controlPoint = c
			targets = append(targets, c)
		case measurement.CanDecode(uuid):
			if !c.Properties().CanSubscribe() {
				m.logger.WithField("characteristic", charLabel(uuid)).Debug("Skipping characteristic without notify or indicate")
				continue
			}
			targets = append(targets, c)
		}
	}

	m.logger.WithFields(logrus.Fields{
		"device":        id,
		"discovered":    len(chars),
		"subscriptions": len(targets),
		"racp":          controlPoint != nil,
	}).Debug("Discovery complete")
	if len(targets) == 0 {
		m.activity("No measurement characteristics found on %s", id)
	}

	p := m.st.peripheral
	m.worker("subscribe", func() {
		subs, err := m.subscribeAll(gen, p, targets)
		if !m.post(func() { m.onSubscribed(gen, subs, controlPoint, err) }) {
			m.unsubscribeAll(subs)
		}
	})
}

// subscribeAll runs off the actor. On failure it returns the subscriptions
// acquired so far so that they are released with the connection.
func (m *Manager) subscribeAll(gen uint64, p device.Peripheral, chars []device.Characteristic) ([]device.Subscription, error) {
	subs := make([]device.Subscription, 0, len(chars))
	for _, c := range chars {
		uuid := c.UUID()
		sub, err := p.Subscribe(c, func(data []byte) {
			m.post(func() { m.onValue(gen, uuid, data) })
		})
		if err != nil {
			return subs, transportError("subscribe", p.ID(), fmt.Errorf("%s: %w", charLabel(uuid), err))
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (m *Manager) onSubscribed(gen uint64, subs []device.Subscription, controlPoint device.Characteristic, err error) {
	if gen != m.st.gen {
		m.worker("unsubscribe-stale", func() { m.unsubscribeAll(subs) })
		return
	}
	m.st.subs = subs
	if err != nil {
		m.connectFailed("Subscription failed", err)
		return
	}

	m.st.controlPoint = controlPoint
	m.logger.WithFields(logrus.Fields{"device": m.st.deviceID, "subscriptions": len(subs)}).Info("Subscribed to measurements")
	m.startRecordAccess(gen)
	m.publish()
	m.finishConnect(nil)
}

// Disconnect releases every subscription, disconnects the transport and
// settles in Disconnected even when the transport reports an error, which
// is returned. Calling it while already disconnected is a no-op.
func (m *Manager) Disconnect() error {
	reply := make(chan error, 1)
	if err := m.call(func() { m.teardown(reply) }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-m.ctx.Done():
		return ErrClosed
	}
}

// teardown ends the current connection. reply, when non-nil, receives the
// transport disconnect error once the state is Disconnected. Callers that
// arrive while a teardown is running wait for that teardown.
func (m *Manager) teardown(reply chan<- error) {
	if reply != nil {
		m.st.waiters = append(m.st.waiters, reply)
	}
	if m.st.tearingDown {
		return
	}
	if m.st.conn == Disconnected && m.st.peripheral == nil && len(m.st.subs) == 0 {
		m.answerWaiters(nil)
		return
	}

	m.st.tearingDown = true
	m.st.gen++
	id := m.st.deviceID
	m.finishConnect(fmt.Errorf("connect %s: %w", id, errConnectAborted))

	m.release(func(err error) {
		m.st.tearingDown = false
		m.st.conn = Disconnected
		m.st.measurements = nil
		m.st.racp = nil
		m.st.controlPoint = nil
		m.st.deviceID, m.st.sessionID = "", ""

		if err != nil {
			err = transportError("disconnect", id, err)
			m.logger.WithError(err).Warn("Transport disconnect failed")
			m.activity("Disconnect from %s reported: %v", id, err)
		}
		m.logger.WithField("device", id).Info("Disconnected")
		m.activity("Disconnected from %s", id)
		m.publish()
		m.answerWaiters(err)
	})
}

func (m *Manager) answerWaiters(err error) {
	for _, w := range m.st.waiters {
		w <- err
	}
	m.st.waiters = nil
}

// release detaches the peripheral and its subscriptions and frees them off
// the actor. Unsubscribe failures are logged and never stop the disconnect.
// done runs on the actor with the transport disconnect error.
func (m *Manager) release(done func(error)) {
	p, subs := m.st.peripheral, m.st.subs
	m.st.peripheral, m.st.subs, m.st.controlPoint = nil, nil, nil
	if m.st.connCancel != nil {
		m.st.connCancel()
		m.st.connCancel = nil
	}
	if p == nil && len(subs) == 0 {
		done(nil)
		return
	}

	m.worker("release", func() {
		err := m.detach(p, subs)
		m.post(func() { done(err) })
	})
}

// detach unsubscribes and disconnects p. A transport that does not answer
// within the connect timeout is abandoned and reported as device.ErrTimeout.
func (m *Manager) detach(p device.Peripheral, subs []device.Subscription) error {
	result := make(chan error, 1)
	m.worker("detach", func() {
		m.unsubscribeAll(subs)
		var err error
		if p != nil {
			err = p.Disconnect()
		}
		result <- err
	})

	timer := time.NewTimer(m.opts.connectTimeout)
	defer timer.Stop()
	select {
	case err := <-result:
		return err
	case <-timer.C:
		m.logger.WithField("timeout", m.opts.connectTimeout).Warn("Transport did not release the connection in time")
		return fmt.Errorf("release after %s: %w", m.opts.connectTimeout, device.ErrTimeout)
	case <-m.ctx.Done():
		return ErrClosed
	}
}

func (m *Manager) unsubscribeAll(subs []device.Subscription) {
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			name := charLabel(sub.Characteristic().UUID())
			m.logger.WithFields(logrus.Fields{
				"characteristic": name,
				"error":          err,
			}).Warn("Unsubscribe failed")
			m.activity("Unsubscribe from %s failed: %v", name, err)
		}
	}
}

func (m *Manager) logReleaseError(err error) {
	if err != nil {
		m.logger.WithError(err).Warn("Transport disconnect failed while releasing connection")
	}
}
