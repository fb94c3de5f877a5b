// =============================================================================
// shutdown.go - Shared Shutdown State
// =============================================================================
//
// The console has exactly one asynchronous trigger besides the user: an
// interrupt (SIGINT/SIGTERM). Both the interrupt and the "exit" command end
// the program by requesting shutdown on a single Shutdown value that every
// loop consults at its boundaries and every blocking wait selects on.
//
// =============================================================================

package main

import (
	"context"
	"sync"
	"sync/atomic"
)

// Shutdown is a set-once flag that can also be waited on.
//
// GO CONCEPT: Closing a Channel as a Broadcast
// --------------------------------------------
// Receiving from a closed channel never blocks, so closing a channel wakes
// every goroutine that is waiting on it at once. context.Context uses the
// same trick for Done(). Wrapping the close in sync.Once makes Request safe
// to call any number of times from any goroutine; closing a channel twice
// would panic.
//
// Compare with Python: threading.Event is the closest equivalent:
// event.set() is idempotent and event.wait() blocks until it is set.
type Shutdown struct {
	once      sync.Once
	requested atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewShutdown returns a Shutdown that has not been requested.
func NewShutdown() *Shutdown {
	ctx, cancel := context.WithCancel(context.Background())
	return &Shutdown{ctx: ctx, cancel: cancel}
}

// Request sets the flag. It reports true only for the call that actually
// set it.
func (s *Shutdown) Request() bool {
	first := false
	s.once.Do(func() {
		s.requested.Store(true)
		s.cancel()
		first = true
	})
	return first
}

// Requested reports whether shutdown has been requested.
func (s *Shutdown) Requested() bool {
	return s.requested.Load()
}

// Done is closed once shutdown is requested.
func (s *Shutdown) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context is canceled once shutdown is requested. Pass it to blocking
// network calls so they return promptly.
func (s *Shutdown) Context() context.Context {
	return s.ctx
}
