package manager

import (
	"time"

	"structd/pkg/types"
)

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	loaded := m.modelLoaded()
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := types.StatusResponse{
		State:         string(m.state),
		Model:         m.model.ID,
		ModelLoaded:   loaded,
		Generating:    m.active != nil,
		QueueLen:      len(m.queueCh),
		MaxQueueDepth: cap(m.queueCh),
		Device: types.DeviceStatus{
			MemoryMB:    m.dev.MemoryMB,
			Accelerated: m.dev.Accelerated,
			Unified:     m.dev.Unified,
			Name:        m.dev.Name,
		},
		CloudConfigured: m.cloud.Configured(),
		RequestsTotal:   m.requests,
		RetriesTotal:    m.retries,
		InterruptsTotal: m.interrupts,
		LastError:       m.err,
		UptimeSeconds:   int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix:  time.Now().Unix(),
	}
	if d := m.lastSizing; d != nil {
		resp.LastSizing = &types.SizingStatus{
			ContextLength: d.ContextLength,
			Threads:       d.Threads,
			GPULayers:     d.GPULayers,
			Tier:          string(d.Tier),
		}
	}
	return resp
}
