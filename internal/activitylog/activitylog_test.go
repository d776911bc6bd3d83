package activitylog

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_KeepsNewestEntries(t *testing.T) {
	l := New(3)
	for i := 0; i < 5; i++ {
		l.Addf("event %d", i)
	}

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "event 2", entries[0].Message)
	assert.Equal(t, "event 4", entries[2].Message)
	assert.Equal(t, int64(5), l.GetMetrics().Written)
	assert.GreaterOrEqual(t, l.GetMetrics().Overwritten, int64(2))
}

func TestLog_EntriesAreTimestamped(t *testing.T) {
	l := New(2)
	l.now = func() time.Time { return time.Date(2026, 1, 1, 12, 34, 56, 0, time.UTC) }
	l.Add("connected")

	assert.Equal(t, []string{"12:34:56 connected"}, l.Lines())
}

func TestLog_ClearAndDefaultSize(t *testing.T) {
	l := New(0)
	assert.Equal(t, DefaultSize, l.size)

	l.Add("a")
	l.Add("b")
	assert.Equal(t, 2, l.Len())
	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Entries())
}

func TestLog_ConcurrentWriters(t *testing.T) {
	l := New(1000)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Add(fmt.Sprintf("w%d-%d", w, i))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int64(400), l.GetMetrics().Written)
	assert.Equal(t, 400, l.Len())
}
