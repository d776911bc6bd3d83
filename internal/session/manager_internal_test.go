package session

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/omronble/internal/testutils"
)

func TestActorSurvivesPanickingHandler(t *testing.T) {
	logger, hook := testutils.NewTestLogger()
	m := NewManager(&testutils.MockTransport{}, WithLogger(logger))
	defer func() { _ = m.Close() }()

	err := m.call(func() { panic("handler failure") })
	require.NoError(t, err, "the caller is released even when the handler panics")

	done := make(chan error, 1)
	go func() { done <- m.Disconnect() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("actor stopped serving after a panic")
	}
	assert.Equal(t, Disconnected, m.State())

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "Session handler panicked" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestCallFailsOnceActorExits(t *testing.T) {
	logger, _ := testutils.NewTestLogger()
	m := NewManager(&testutils.MockTransport{}, WithLogger(logger))
	m.cancel()
	<-m.done

	assert.ErrorIs(t, m.call(func() {}), ErrClosed)
	assert.ErrorIs(t, m.Disconnect(), ErrClosed)
}
