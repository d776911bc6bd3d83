// Package registry keeps the deduplicated table of Omron devices seen while scanning.
package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/omronble/internal/activitylog"
	"github.com/srg/omronble/internal/device"
	"github.com/srg/omronble/internal/omron"
	"golang.org/x/time/rate"
)

// EventType tells what an advertisement did to the registry
type EventType int

const (
	EventIgnored EventType = iota // not an Omron health advertisement
	EventRejected                 // Omron prefix but malformed payload
	EventNew
	EventUpdated
)

func (e EventType) String() string {
	switch e {
	case EventIgnored:
		return "ignored"
	case EventRejected:
		return "rejected"
	case EventNew:
		return "new"
	case EventUpdated:
		return "updated"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// DiscoveredDevice is an Omron device as last advertised.
// Values are immutable snapshots.
type DiscoveredDevice struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	RSSI              int              `json:"rssi"`
	Connectable       bool             `json:"connectable"`
	Pairable          bool             `json:"pairable"`
	TimeNotConfigured bool             `json:"time_not_configured"`
	NumberOfUsers     int              `json:"number_of_users"`
	Users             []omron.UserSlot `json:"users"`
	FirstSeen         time.Time        `json:"first_seen"`
	LastSeen          time.Time        `json:"last_seen"`

	order uint64
}

// Registry is safe for concurrent reads; Observe and Clear are expected to
// be called from a single goroutine.
type Registry struct {
	devices *hashmap.Map[string, DiscoveredDevice]
	seq     atomic.Uint64

	logger  *logrus.Logger
	log     *activitylog.Log
	limiter *rate.Limiter
	now     func() time.Time

	allowList map[string]bool
	blockList map[string]bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for sighting timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithDecodeLogRate limits decode-failure entries in the activity log to
// perSecond with the given burst. Failures are always logged to the logger.
func WithDecodeLogRate(perSecond float64, burst int) Option {
	return func(r *Registry) { r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithAllowList restricts the registry to the given device IDs.
func WithAllowList(ids ...string) Option {
	return func(r *Registry) {
		r.allowList = make(map[string]bool, len(ids))
		for _, id := range ids {
			r.allowList[id] = true
		}
	}
}

// WithBlockList excludes the given device IDs.
func WithBlockList(ids ...string) Option {
	return func(r *Registry) {
		r.blockList = make(map[string]bool, len(ids))
		for _, id := range ids {
			r.blockList[id] = true
		}
	}
}

// New creates an empty registry. log may be nil.
func New(logger *logrus.Logger, log *activitylog.Log, opts ...Option) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Registry{
		devices: hashmap.New[string, DiscoveredDevice](),
		logger:  logger,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(1), 5),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) included(id string) bool {
	if r.blockList[id] {
		return false
	}
	return len(r.allowList) == 0 || r.allowList[id]
}

// decode extracts the Omron advertisement through the manufacturer-data registry.
func decode(md []byte) (*omron.Advertisement, error) {
	if len(md) < 2 || !device.IsParsableManufacturerData(binary.LittleEndian.Uint16(md[0:2])) {
		return nil, omron.ErrNotOmron
	}
	v, err := device.ParseManufacturerData(device.UnknownCompanyID, md)
	if err != nil {
		return nil, err
	}
	adv, ok := v.(*omron.Advertisement)
	if !ok {
		return nil, omron.ErrNotOmron
	}
	return adv, nil
}

// Observe records an advertisement. A malformed Omron payload returns a
// DecodeError with EventRejected and leaves any existing entry untouched.
func (r *Registry) Observe(adv device.Advertisement) (DiscoveredDevice, EventType, error) {
	id := adv.Addr()
	if !r.included(id) {
		return DiscoveredDevice{}, EventIgnored, nil
	}

	decoded, err := decode(adv.ManufacturerData())
	if errors.Is(err, omron.ErrNotOmron) {
		return DiscoveredDevice{}, EventIgnored, nil
	}
	if err != nil {
		r.rejected(id, adv.LocalName(), err)
		return DiscoveredDevice{}, EventRejected, err
	}

	now := r.now()
	next := DiscoveredDevice{
		ID:                id,
		Name:              adv.LocalName(),
		RSSI:              adv.RSSI(),
		Connectable:       adv.Connectable(),
		Pairable:          decoded.Pairable,
		TimeNotConfigured: decoded.TimeNotConfigured,
		NumberOfUsers:     decoded.NumberOfUsers(),
		Users:             decoded.Users,
		FirstSeen:         now,
		LastSeen:          now,
	}

	prev, existing := r.devices.Get(id)
	if existing {
		next.FirstSeen = prev.FirstSeen
		next.order = prev.order
		// Scan responses often carry the name while advertising packets do not.
		if next.Name == "" {
			next.Name = prev.Name
		}
		r.devices.Set(id, next)
		return next, EventUpdated, nil
	}

	next.order = r.seq.Add(1)
	r.devices.Set(id, next)

	r.logger.WithFields(logrus.Fields{
		"device":  next.Name,
		"address": id,
		"rssi":    next.RSSI,
		"users":   next.NumberOfUsers,
	}).Info("Discovered Omron device")
	if r.log != nil {
		r.log.Addf("Discovered %s (%s), %d user(s)", displayName(next), id, next.NumberOfUsers)
	}
	return next, EventNew, nil
}

func (r *Registry) rejected(id, name string, err error) {
	r.logger.WithFields(logrus.Fields{
		"address": id,
		"device":  name,
		"error":   err,
	}).Warn("Dropping malformed Omron advertisement")
	if r.log != nil && r.limiter.Allow() {
		r.log.Addf("Malformed advertisement from %s: %v", id, err)
	}
}

func displayName(d DiscoveredDevice) string {
	if d.Name == "" {
		return "unnamed device"
	}
	return d.Name
}

// Get returns the device with the given ID.
func (r *Registry) Get(id string) (DiscoveredDevice, bool) {
	return r.devices.Get(id)
}

// Devices returns every device in first-seen order.
func (r *Registry) Devices() []DiscoveredDevice {
	devs := make([]DiscoveredDevice, 0, r.devices.Len())
	r.devices.Range(func(_ string, d DiscoveredDevice) bool {
		devs = append(devs, d)
		return true
	})
	sort.Slice(devs, func(i, j int) bool { return devs[i].order < devs[j].order })
	return devs
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	return r.devices.Len()
}

// Clear removes every device.
func (r *Registry) Clear() {
	var ids []string
	r.devices.Range(func(id string, _ DiscoveredDevice) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		r.devices.Del(id)
	}
}
