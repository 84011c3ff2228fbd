package manager

import (
	"context"
	"time"

	"structd/internal/engine"
)

// beginGeneration reserves a queue slot and then the single in-flight slot.
// Returns a release func to be deferred.
func (m *Manager) beginGeneration(ctx context.Context) (func(), error) {
	m.mu.RLock()
	closed := m.state == StateClosed
	m.mu.RUnlock()
	if closed {
		return func() {}, tooBusyError{reason: "shutting down"}
	}

	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, engine.ErrInterrupted(err)
	}

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	select {
	case m.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, engine.ErrInterrupted(ctx.Err())
	case <-timer.C:
		m.metrics.rejected.Inc()
		return func() {}, tooBusyError{reason: "queue full"}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-m.queueCh
		}
	}()
	if err := ctx.Err(); err != nil {
		return func() {}, engine.ErrInterrupted(err)
	}
	// The in-flight wait shares the same deadline as the queue wait.
	select {
	case m.genCh <- struct{}{}:
		acquired = true
		return func() { <-m.genCh; <-m.queueCh }, nil
	case <-ctx.Done():
		return func() {}, engine.ErrInterrupted(ctx.Err())
	case <-timer.C:
		m.metrics.rejected.Inc()
		return func() {}, tooBusyError{reason: "timed out waiting for the generation slot"}
	}
}
