package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannel_OverwritesOldest(t *testing.T) {
	rc := New[int](3)
	for i := 0; i < 10; i++ {
		rc.Send(i)
	}
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{7, 8, 9}, got)

	m := rc.GetMetrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
}

func TestRingChannel_SendReportsDrop(t *testing.T) {
	rc := New[string](1)
	assert.False(t, rc.Send("a"))
	assert.True(t, rc.Send("b"))
	assert.Len(t, rc.C(), 1)

	v, ok := <-rc.C()
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestRingChannel_SendAfterCloseIsNoop(t *testing.T) {
	rc := New[int](2)
	rc.Send(1)
	rc.Close()
	rc.Close()

	assert.NotPanics(t, func() { rc.Send(2) })

	v, ok := <-rc.C()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = <-rc.C()
	assert.False(t, ok)
	assert.Equal(t, int64(1), rc.GetMetrics().Written)
}

func TestRingChannel_ConcurrentProducersNeverBlock(t *testing.T) {
	rc := New[int](4)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rc.Send(i)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, rc.C(), 4)
	assert.Equal(t, int64(800), rc.GetMetrics().Written)
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
