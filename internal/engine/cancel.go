package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// StopReason records why a request was stopped.
type StopReason int32

const (
	StopNone StopReason = iota
	// StopUser is an explicit caller cancellation.
	StopUser
	// StopMemoryPressure comes from a system low-memory signal.
	StopMemoryPressure
)

// Control is the request-scoped cancellation handle. It carries a
// cooperative flag checked by the loop at the top of every step, and a
// synchronous path that force-stops the attached Session.
type Control struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc

	stopped atomic.Bool
	reason  atomic.Int32

	mu      sync.Mutex
	session *Session
}

// NewControl derives a cancellable request context from parent.
func NewControl(parent context.Context) *Control {
	ctx, cancel := context.WithCancel(parent)
	return &Control{ID: uuid.NewString(), ctx: ctx, cancel: cancel}
}

// Context is cancelled when Stop runs or the parent is done.
func (c *Control) Context() context.Context { return c.ctx }

// Attach binds s so that Stop can reclaim it. If Stop already ran, s is
// force-stopped immediately.
func (c *Control) Attach(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	if c.stopped.Load() {
		s.ForceStop()
	}
}

// Detach unbinds s once the request no longer owns it.
func (c *Control) Detach(s *Session) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
}

// Stop raises the flag, cancels the context and frees the attached session
// before returning. Only the first reason is kept.
func (c *Control) Stop(reason StopReason) {
	c.reason.CompareAndSwap(int32(StopNone), int32(reason))
	c.stopped.Store(true)
	c.cancel()
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s != nil {
		s.ForceStop()
	}
}

// Stopped reports whether Stop has been called.
func (c *Control) Stopped() bool { return c.stopped.Load() }

// Reason returns the first stop reason, or StopNone.
func (c *Control) Reason() StopReason { return StopReason(c.reason.Load()) }

// Err returns the interruption error matching the stop reason, or nil.
func (c *Control) Err() error {
	if !c.Stopped() {
		return nil
	}
	if c.Reason() == StopMemoryPressure {
		return newError(KindOutOfMemory, "process is running out of memory, close other apps and try again", nil)
	}
	return newError(KindInterrupted, "generation interrupted", nil)
}

// Release frees the context resources. Call when the request ends.
func (c *Control) Release() { c.cancel() }

type controlKey struct{}

// WithControl returns a context carrying c, for collaborators that only see
// a context.
func WithControl(ctx context.Context, c *Control) context.Context {
	return context.WithValue(ctx, controlKey{}, c)
}

// ControlFrom returns the Control stored by WithControl, or nil.
func ControlFrom(ctx context.Context) *Control {
	c, _ := ctx.Value(controlKey{}).(*Control)
	return c
}
