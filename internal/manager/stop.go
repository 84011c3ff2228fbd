package manager

import "structd/internal/engine"

// Stop cancels the in-flight request, if any. Local resources of that
// request are freed before Stop returns; for raw requests that means
// waiting until the adapter session has been closed. It reports whether a request was
// stopped.
func (m *Manager) Stop() bool {
	return m.stop(engine.StopUser, "stop")
}

// MemoryPressure reacts to a system low-memory signal: the in-flight request
// is stopped and reported as OutOfMemory, and an idle cached model is
// released. It reports whether a request was stopped.
func (m *Manager) MemoryPressure() bool {
	stopped := m.stop(engine.StopMemoryPressure, "memory_pressure")
	if !stopped && m.releaseIdleModel() {
		m.log.Info().Str("model", m.model.ID).Msg("released idle model on memory pressure")
	}
	return stopped
}

func (m *Manager) stop(reason engine.StopReason, name string) bool {
	m.mu.RLock()
	ctl := m.active
	done := m.sessionDone
	m.mu.RUnlock()
	if ctl == nil {
		return false
	}
	ctl.Stop(reason)
	if done != nil {
		<-done
	}
	m.metrics.stops.WithLabelValues(name).Inc()
	m.log.Info().Str("request_id", ctl.ID).Str("reason", name).Msg("request stopped")
	m.events.Publish(Event{Name: name, ModelID: m.model.ID, RequestID: ctl.ID})
	return true
}
