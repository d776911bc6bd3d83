package testutils

import (
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// NewTestLogger returns a debug-level logger that discards output and
// records entries in the returned hook.
func NewTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
