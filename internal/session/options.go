package session

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/omronble/internal/activitylog"
	"github.com/srg/omronble/internal/measurement"
	"github.com/srg/omronble/internal/permission"
	"github.com/srg/omronble/internal/registry"
	"github.com/srg/omronble/pkg/config"
)

type options struct {
	logger          *logrus.Logger
	log             *activitylog.Log
	permission      permission.Requester
	decoder         measurement.Decoder
	registryOpts    []registry.Option
	scanTimeout     time.Duration
	connectTimeout  time.Duration
	mtu             int
	allowDuplicates bool
	observerBuffer  int
	breakerFailures uint32
	breakerCooldown time.Duration
}

func defaultOptions() options {
	cfg := config.DefaultConfig()
	return options{
		scanTimeout:     cfg.ScanTimeout,
		connectTimeout:  cfg.ConnectTimeout,
		mtu:             cfg.MTU,
		allowDuplicates: cfg.AllowDuplicates,
		observerBuffer:  cfg.ObserverBuffer,
		breakerFailures: cfg.Breaker.MaxFailures,
		breakerCooldown: cfg.Breaker.Cooldown,
	}
}

// Option configures a Manager.
type Option func(*options)

// WithLogger sets the logger. The default is logrus.New().
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithActivityLog shares an activity log with the caller.
func WithActivityLog(log *activitylog.Log) Option {
	return func(o *options) { o.log = log }
}

// WithPermission sets the collaborator asked before the first scan.
func WithPermission(r permission.Requester) Option {
	return func(o *options) { o.permission = r }
}

// WithDecoder overrides the measurement decoder, typically its clock.
func WithDecoder(d measurement.Decoder) Option {
	return func(o *options) { o.decoder = d }
}

// WithRegistryOptions passes options to the device registry.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(o *options) { o.registryOpts = append(o.registryOpts, opts...) }
}

// WithScanTimeout bounds every scan.
func WithScanTimeout(d time.Duration) Option {
	return func(o *options) { o.scanTimeout = d }
}

// WithConnectOptions sets the connect timeout and the requested ATT MTU.
func WithConnectOptions(timeout time.Duration, mtu int) Option {
	return func(o *options) {
		o.connectTimeout = timeout
		o.mtu = mtu
	}
}

// WithAllowDuplicates controls whether the radio reports repeated advertisements.
func WithAllowDuplicates(allow bool) Option {
	return func(o *options) { o.allowDuplicates = allow }
}

// WithObserverBuffer sets how many snapshots a slow observer may lag behind.
func WithObserverBuffer(n int) Option {
	return func(o *options) { o.observerBuffer = n }
}

// WithBreaker opens the connect circuit after maxFailures consecutive
// failures and keeps it open for cooldown.
func WithBreaker(maxFailures uint32, cooldown time.Duration) Option {
	return func(o *options) {
		o.breakerFailures = maxFailures
		o.breakerCooldown = cooldown
	}
}

// FromConfig maps configuration onto manager options.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithScanTimeout(cfg.ScanTimeout),
		WithConnectOptions(cfg.ConnectTimeout, cfg.MTU),
		WithAllowDuplicates(cfg.AllowDuplicates),
		WithObserverBuffer(cfg.ObserverBuffer),
		WithBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Cooldown),
		WithRegistryOptions(registry.WithDecodeLogRate(cfg.DecodeLogRate, cfg.DecodeLogBurst)),
		WithActivityLog(activitylog.New(cfg.ActivityLogSize)),
	}
}
