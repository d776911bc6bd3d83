package registry_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/omronble/internal/activitylog"
	"github.com/srg/omronble/internal/omron"
	"github.com/srg/omronble/internal/registry"
	"github.com/srg/omronble/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RegistryTestSuite struct {
	suite.Suite

	now   time.Time
	hook  *logtest.Hook
	log   *activitylog.Log
	reg   *registry.Registry
	oneBP omron.UserSlot
}

func (s *RegistryTestSuite) SetupTest() {
	s.now = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	logger, hook := testutils.NewTestLogger()
	s.hook = hook
	s.log = activitylog.New(16)
	s.oneBP = omron.UserSlot{Index: 1, LastSequenceNumber: 12, NumberOfRecords: 3}
	s.reg = registry.New(logger, s.log, registry.WithClock(func() time.Time { return s.now }))
}

func (s *RegistryTestSuite) omronAdv(addr, name string) *testutils.AdvertisementBuilder {
	return testutils.NewAdvertisementBuilder().WithAddress(addr).WithName(name).WithOmron(true, false, s.oneBP)
}

func (s *RegistryTestSuite) TestNewDevice() {
	dev, ev, err := s.reg.Observe(s.omronAdv("aa", "BLEsmart_0000").WithRSSI(-42).Build())
	s.Require().NoError(err)
	s.Equal(registry.EventNew, ev)

	s.Equal("aa", dev.ID)
	s.Equal("BLEsmart_0000", dev.Name)
	s.Equal(-42, dev.RSSI)
	s.True(dev.Pairable)
	s.False(dev.TimeNotConfigured)
	s.Equal(1, dev.NumberOfUsers)
	s.Equal([]omron.UserSlot{s.oneBP}, dev.Users)
	s.Equal(s.now, dev.FirstSeen)
	s.Equal(s.now, dev.LastSeen)

	s.Equal(1, s.reg.Len())
	s.Require().NotNil(s.hook.LastEntry())
	s.Equal(logrus.InfoLevel, s.hook.LastEntry().Level)
	s.Require().Equal(1, s.log.Len())
	s.Contains(s.log.Lines()[0], "Discovered BLEsmart_0000 (aa), 1 user(s)")
}

func (s *RegistryTestSuite) TestUpdateKeepsFirstSeenAndName() {
	_, _, err := s.reg.Observe(s.omronAdv("aa", "BLEsmart_0000").Build())
	s.Require().NoError(err)

	first := s.now
	s.now = s.now.Add(5 * time.Second)
	dev, ev, err := s.reg.Observe(testutils.NewAdvertisementBuilder().
		WithAddress("aa").
		WithRSSI(-80).
		WithOmron(false, true, s.oneBP, omron.UserSlot{Index: 2}).
		Build())
	s.Require().NoError(err)
	s.Equal(registry.EventUpdated, ev)

	s.Equal("BLEsmart_0000", dev.Name, "empty name keeps the previous one")
	s.Equal(-80, dev.RSSI)
	s.False(dev.Pairable)
	s.True(dev.TimeNotConfigured)
	s.Equal(2, dev.NumberOfUsers)
	s.Equal(first, dev.FirstSeen)
	s.Equal(s.now, dev.LastSeen)
	s.Equal(1, s.reg.Len())
	s.Equal(1, s.log.Len(), "updates are not announced")
}

func (s *RegistryTestSuite) TestNewNameReplacesOld() {
	_, _, _ = s.reg.Observe(s.omronAdv("aa", "old").Build())
	dev, _, err := s.reg.Observe(s.omronAdv("aa", "new").Build())
	s.Require().NoError(err)
	s.Equal("new", dev.Name)
}

func (s *RegistryTestSuite) TestNonOmronIgnored() {
	cases := map[string][]byte{
		"no manufacturer data": nil,
		"other company":        {0x4C, 0x00, 0x02, 0x15},
		"omron other profile":  {0x0E, 0x02, 0x02, 0x00, 0x01, 0x00, 0x01},
		"too short for prefix": {0x0E},
	}
	for name, data := range cases {
		s.Run(name, func() {
			_, ev, err := s.reg.Observe(testutils.NewAdvertisementBuilder().WithManufacturerData(data).Build())
			s.NoError(err)
			s.Equal(registry.EventIgnored, ev)
		})
	}
	s.Equal(0, s.reg.Len())
	s.Equal(0, s.log.Len())
}

func (s *RegistryTestSuite) TestTruncatedRejected() {
	// Two users declared, one slot present.
	truncated := []byte{0x0E, 0x02, 0x01, 0x01, 0x0C, 0x00, 0x03}
	_, ev, err := s.reg.Observe(testutils.NewAdvertisementBuilder().WithAddress("bb").WithManufacturerData(truncated).Build())

	s.Equal(registry.EventRejected, ev)
	s.Require().Error(err)
	s.True(errors.Is(err, omron.ErrTruncated))
	var decErr *omron.DecodeError
	s.Require().ErrorAs(err, &decErr)
	s.Equal(6, decErr.Need)
	s.Equal(3, decErr.Have)

	_, ok := s.reg.Get("bb")
	s.False(ok)
	s.Equal(logrus.WarnLevel, s.hook.LastEntry().Level)
	s.Require().Equal(1, s.log.Len())
	s.Contains(s.log.Lines()[0], "Malformed advertisement from bb")
}

func (s *RegistryTestSuite) TestMalformedSightingKeepsExistingEntry() {
	before, _, err := s.reg.Observe(s.omronAdv("aa", "BLEsmart_0000").Build())
	s.Require().NoError(err)

	s.now = s.now.Add(time.Minute)
	_, ev, err := s.reg.Observe(testutils.NewAdvertisementBuilder().WithAddress("aa").WithManufacturerData([]byte{0x0E, 0x02, 0x01}).Build())
	s.Equal(registry.EventRejected, ev)
	s.ErrorIs(err, omron.ErrTruncated)

	after, ok := s.reg.Get("aa")
	s.Require().True(ok)
	s.Equal(before, after)
}

func (s *RegistryTestSuite) TestDevicesInFirstSeenOrder() {
	for _, id := range []string{"cc", "aa", "bb"} {
		_, _, err := s.reg.Observe(s.omronAdv(id, strings.ToUpper(id)).Build())
		s.Require().NoError(err)
		s.now = s.now.Add(time.Second)
	}
	// Re-sighting does not move a device.
	_, _, _ = s.reg.Observe(s.omronAdv("cc", "CC").Build())

	var ids []string
	for _, d := range s.reg.Devices() {
		ids = append(ids, d.ID)
	}
	s.Equal([]string{"cc", "aa", "bb"}, ids)
}

func (s *RegistryTestSuite) TestClear() {
	_, _, _ = s.reg.Observe(s.omronAdv("aa", "A").Build())
	_, _, _ = s.reg.Observe(s.omronAdv("bb", "B").Build())
	s.Require().Equal(2, s.reg.Len())

	s.reg.Clear()
	s.Equal(0, s.reg.Len())
	s.Empty(s.reg.Devices())

	_, ev, _ := s.reg.Observe(s.omronAdv("aa", "A").Build())
	s.Equal(registry.EventNew, ev)
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func TestAllowAndBlockLists(t *testing.T) {
	logger, _ := testutils.NewTestLogger()
	slot := omron.UserSlot{Index: 1}
	adv := func(id string) *testutils.Advertisement {
		return testutils.NewAdvertisementBuilder().WithAddress(id).WithOmron(false, false, slot).Build().(*testutils.Advertisement)
	}

	reg := registry.New(logger, nil, registry.WithAllowList("aa", "bb"), registry.WithBlockList("bb"))
	_, ev, _ := reg.Observe(adv("aa"))
	assert.Equal(t, registry.EventNew, ev)
	_, ev, _ = reg.Observe(adv("bb"))
	assert.Equal(t, registry.EventIgnored, ev)
	_, ev, _ = reg.Observe(adv("cc"))
	assert.Equal(t, registry.EventIgnored, ev)
	assert.Equal(t, 1, reg.Len())
}

func TestDecodeFailuresAreRateLimitedInActivityLog(t *testing.T) {
	logger, hook := testutils.NewTestLogger()
	log := activitylog.New(16)
	reg := registry.New(logger, log, registry.WithDecodeLogRate(0, 2))

	bad := testutils.NewAdvertisementBuilder().WithManufacturerData([]byte{0x0E, 0x02, 0x01}).Build()
	for range 5 {
		_, ev, err := reg.Observe(bad)
		require.Error(t, err)
		assert.Equal(t, registry.EventRejected, ev)
	}

	assert.Equal(t, 2, log.Len())
	assert.Len(t, hook.AllEntries(), 5, "every failure reaches the logger")
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "ignored", registry.EventIgnored.String())
	assert.Equal(t, "rejected", registry.EventRejected.String())
	assert.Equal(t, "new", registry.EventNew.String())
	assert.Equal(t, "updated", registry.EventUpdated.String())
	assert.Equal(t, "event(9)", registry.EventType(9).String())
}
