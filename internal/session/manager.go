// Package session owns the lifecycle of the single BLE connection: scanning,
// connecting, subscribing to measurement characteristics and running the
// record access procedure.
//
// Manager is a single-writer actor. Every state change runs as a closure on
// one goroutine; transport callbacks and the results of blocking transport
// calls are posted to it. Results carry the connection generation they were
// started under and are dropped when the generation has moved on.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/srg/omronble/internal/activitylog"
	"github.com/srg/omronble/internal/device"
	"github.com/srg/omronble/internal/groutine"
	"github.com/srg/omronble/internal/measurement"
	"github.com/srg/omronble/internal/permission"
	"github.com/srg/omronble/internal/racp"
	"github.com/srg/omronble/internal/registry"
	"github.com/srg/omronble/internal/ringchan"
)

// ErrClosed is returned by operations on a closed Manager.
var ErrClosed = errors.New("session manager closed")

const inboxSize = 256

// state is owned by the actor goroutine.
type state struct {
	conn      ConnectionState
	deviceID  string
	sessionID string
	gen       uint64
	lastError string

	peripheral   device.Peripheral
	subs         []device.Subscription
	controlPoint device.Characteristic
	connCancel   context.CancelFunc
	pending      chan error
	tearingDown  bool
	waiters      []chan<- error

	racp         *racp.Session
	measurements []measurement.Measurement

	scanning   bool
	scanGen    uint64
	scanCancel context.CancelFunc
}

// Manager coordinates one transport. Create it with NewManager and release
// it with Close.
type Manager struct {
	transport  device.Transport
	opts       options
	logger     *logrus.Logger
	log        *activitylog.Log
	registry   *registry.Registry
	permission permission.Requester
	breaker    *gobreaker.CircuitBreaker[device.Peripheral]

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan func()
	done   <-chan struct{}

	st        state
	observers map[uint64]*ringchan.RingChannel[Snapshot]
	nextObs   uint64

	snap      atomic.Pointer[Snapshot]
	closeOnce sync.Once
}

// NewManager starts the actor.
func NewManager(transport device.Transport, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}
	if o.log == nil {
		o.log = activitylog.New(activitylog.DefaultSize)
	}
	if o.observerBuffer <= 0 {
		o.observerBuffer = 1
	}
	if o.connectTimeout <= 0 {
		o.connectTimeout = defaultOptions().connectTimeout
	}

	m := &Manager{
		transport:  transport,
		opts:       o,
		logger:     o.logger,
		log:        o.log,
		registry:   registry.New(o.logger, o.log, o.registryOpts...),
		permission: permission.Once(o.permission),
		inbox:      make(chan func(), inboxSize),
		observers:  make(map[uint64]*ringchan.RingChannel[Snapshot]),
	}
	m.breaker = newConnectBreaker(o.breakerFailures, o.breakerCooldown, m.logger)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.snap.Store(&Snapshot{State: Disconnected})
	m.done = groutine.Go(m.ctx, "session-actor", m.logger, func(ctx context.Context) {
		defer m.cancel()
		m.run(ctx)
	})
	return m
}

func newConnectBreaker(maxFailures uint32, cooldown time.Duration, logger *logrus.Logger) *gobreaker.CircuitBreaker[device.Peripheral] {
	return gobreaker.NewCircuitBreaker[device.Peripheral](gobreaker.Settings{
		Name:        "connect",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

func (m *Manager) run(ctx context.Context) {
	for {
		select {
		case fn := <-m.inbox:
			m.dispatch(fn)
		case <-ctx.Done():
			return
		}
	}
}

// dispatch runs one closure. A panic is logged and the actor keeps serving.
func (m *Manager) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Session handler panicked")
		}
	}()
	fn()
}

// post queues fn on the actor. It reports false once the manager is closed.
func (m *Manager) post(fn func()) bool {
	select {
	case m.inbox <- fn:
		return true
	case <-m.ctx.Done():
		return false
	}
}

// call runs fn on the actor and waits for it.
func (m *Manager) call(fn func()) error {
	done := make(chan struct{})
	if !m.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-m.ctx.Done():
		return ErrClosed
	}
}

// worker runs a blocking transport call off the actor.
func (m *Manager) worker(name string, fn func()) {
	groutine.Go(m.ctx, name, m.logger, func(context.Context) { fn() })
}

// activity records a user-visible event.
func (m *Manager) activity(format string, args ...any) {
	m.log.Addf(format, args...)
}

// publish refreshes the snapshot and notifies observers. Runs on the actor.
func (m *Manager) publish() {
	snap := &Snapshot{
		Devices:      m.registry.Devices(),
		State:        m.st.conn,
		DeviceID:     m.st.deviceID,
		SessionID:    m.st.sessionID,
		Scanning:     m.st.scanning,
		Measurements: append([]measurement.Measurement(nil), m.st.measurements...),
		ActivityLog:  m.log.Lines(),
		LastError:    m.st.lastError,
	}
	if m.st.racp != nil {
		status := m.st.racp.Status()
		snap.RACP = &status
	}
	m.snap.Store(snap)
	for _, obs := range m.observers {
		obs.Send(*snap)
	}
}

// Snapshot returns the latest published state.
func (m *Manager) Snapshot() Snapshot {
	return *m.snap.Load()
}

// State returns the connection state.
func (m *Manager) State() ConnectionState {
	return m.snap.Load().State
}

// Devices returns discovered devices in first-seen order.
func (m *Manager) Devices() []registry.DiscoveredDevice {
	return m.snap.Load().Devices
}

// Measurements returns the measurements accumulated on the current connection.
func (m *Manager) Measurements() []measurement.Measurement {
	return m.snap.Load().Measurements
}

// ActivityLog returns the rendered activity log, oldest first.
func (m *Manager) ActivityLog() []string {
	return m.log.Lines()
}

// Subscribe returns a channel that receives the current snapshot and then
// every change. A slow reader loses the oldest snapshots, never the latest.
// cancel closes the channel.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	ch := ringchan.New[Snapshot](m.opts.observerBuffer)
	var id uint64
	err := m.call(func() {
		m.nextObs++
		id = m.nextObs
		m.observers[id] = ch
		ch.Send(*m.snap.Load())
	})
	if err != nil {
		ch.Close()
		return ch.C(), func() {}
	}

	var once sync.Once
	return ch.C(), func() {
		once.Do(func() {
			if !m.post(func() {
				delete(m.observers, id)
				ch.Close()
				metrics := ch.GetMetrics()
				m.logger.WithFields(logrus.Fields{
					"observer":    id,
					"written":     metrics.Written,
					"overwritten": metrics.Overwritten,
				}).Debug("Observer unsubscribed")
			}) {
				ch.Close()
			}
		})
	}
}

// Close disconnects, stops scanning and stops the actor. Observer channels are closed.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		err = m.Disconnect()
		if errors.Is(err, ErrClosed) {
			err = nil
		}
		m.StopScan()

		m.cancel()
		<-m.done
		for id, obs := range m.observers {
			obs.Close()
			delete(m.observers, id)
		}
	})
	return err
}

func transportError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var te *device.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &device.TransportError{Op: op, ID: id, Err: err}
}

// fail records err as the latest failure in the log and the snapshot.
func (m *Manager) fail(msg string, err error) {
	m.logger.WithFields(logrus.Fields{
		"device":  m.st.deviceID,
		"session": m.st.sessionID,
		"error":   err,
	}).Error(msg)
	m.st.lastError = fmt.Sprintf("%s: %v", msg, err)
	m.activity("%s", m.st.lastError)
}
