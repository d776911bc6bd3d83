package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingT struct {
	errors []string
}

func (r *recordingT) Helper() {}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestAssertText(t *testing.T) {
	t.Run("trailing whitespace and outer blank lines are ignored", func(t *testing.T) {
		rt := &recordingT{}
		assert.True(t, AssertText(rt, "\nID   NAME  \nabc  BP\n\n", "ID   NAME\nabc  BP"))
		assert.Empty(t, rt.errors)
	})

	t.Run("collapsed spaces ignore column widths", func(t *testing.T) {
		rt := &recordingT{}
		assert.True(t, AssertText(rt, "ID      NAME\nabc     BP", "ID NAME\nabc BP", WithCollapsedSpaces()))
	})

	t.Run("mismatch reports a unified diff", func(t *testing.T) {
		rt := &recordingT{}
		assert.False(t, AssertText(rt, "systolic 120", "systolic 121"))
		require.Len(t, rt.errors, 1)
		assert.Contains(t, rt.errors[0], "-systolic 121")
		assert.Contains(t, rt.errors[0], "+systolic 120")
	})

	t.Run("colors mark whitespace", func(t *testing.T) {
		diff := TextDiff("a b", "a  b", TextOptions{Colors: true})
		assert.Contains(t, diff, "a·b")
	})
}

func TestAssertJSON(t *testing.T) {
	t.Run("key order does not matter", func(t *testing.T) {
		rt := &recordingT{}
		assert.True(t, AssertJSON(rt, `{"b":1,"a":2}`, `{"a":2,"b":1}`))
	})

	t.Run("any value placeholder requires presence", func(t *testing.T) {
		rt := &recordingT{}
		assert.True(t, AssertJSON(rt, `{"id":"x","taken_at":"2024-01-01T00:00:00Z"}`, `{"id":"x","taken_at":"<<ANY>>"}`))
		assert.False(t, AssertJSON(rt, `{"id":"x"}`, `{"id":"x","taken_at":"<<ANY>>"}`))
	})

	t.Run("extra keys", func(t *testing.T) {
		rt := &recordingT{}
		assert.False(t, AssertJSON(rt, `{"a":1,"b":2}`, `{"a":1}`))
		assert.True(t, AssertJSON(rt, `{"a":1,"b":2}`, `{"a":1}`, WithIgnoreExtraKeys()))
	})

	t.Run("ignored fields at any depth", func(t *testing.T) {
		rt := &recordingT{}
		actual := `[{"id":"a","last_seen":"t1"},{"id":"b","last_seen":"t2"}]`
		assert.True(t, AssertJSON(rt, actual, `[{"id":"a"},{"id":"b"}]`, WithIgnoredFields("last_seen")))
		assert.Empty(t, rt.errors)
	})

	t.Run("invalid json", func(t *testing.T) {
		rt := &recordingT{}
		assert.False(t, AssertJSON(rt, `{`, `{}`))
		require.Len(t, rt.errors, 1)
		assert.Contains(t, rt.errors[0], "actual")
	})
}

func TestPeripheralBuilderStreamsRecords(t *testing.T) {
	bp := NewBloodPressurePayload(120, 80, 93).WithPulse(70).Build()
	p := NewPeripheralBuilder("dev").
		WithCharacteristic("2a35", 0x20).
		WithRACP().
		WithRecords("2a35", bp, bp).
		Build()

	chars, err := p.DiscoverCharacteristics(t.Context())
	require.NoError(t, err)
	require.Len(t, chars, 2)

	got := make(chan []byte, 8)
	for _, c := range chars {
		_, err := p.Subscribe(c, func(b []byte) { got <- b })
		require.NoError(t, err)
	}

	require.NoError(t, p.Write(chars[1], []byte{0x04, 0x01}))
	assert.Equal(t, CountFrame(2), <-got)

	require.NoError(t, p.Write(chars[1], []byte{0x01, 0x01}))
	assert.Equal(t, bp, <-got)
	assert.Equal(t, bp, <-got)
	assert.Equal(t, ResponseFrame(0x01, 0x01), <-got)
}
