// Package permission acquires whatever the platform requires before the
// radio may scan: adapter power, user consent, or nothing at all.
package permission

import (
	"context"
	"errors"
	"sync"
)

// ErrDenied is returned when the platform refuses access to the adapter.
var ErrDenied = errors.New("bluetooth permission denied")

// Requester acquires scan permission. Request may block on user interaction.
type Requester interface {
	Request(ctx context.Context) error
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(ctx context.Context) error

func (f RequesterFunc) Request(ctx context.Context) error { return f(ctx) }

// Noop grants permission immediately.
type Noop struct{}

func (Noop) Request(context.Context) error { return nil }

// Once wraps r so that it is asked until it first succeeds and never again
// after that. Concurrent callers wait for the request in progress.
func Once(r Requester) Requester {
	if r == nil {
		r = Noop{}
	}
	return &once{inner: r}
}

type once struct {
	mu      sync.Mutex
	inner   Requester
	granted bool
}

func (o *once) Request(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.granted {
		return nil
	}
	if err := o.inner.Request(ctx); err != nil {
		return err
	}
	o.granted = true
	return nil
}
