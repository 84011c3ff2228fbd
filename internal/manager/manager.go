package manager

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"structd/internal/backend"
	"structd/internal/cloud"
	"structd/internal/device"
	"structd/internal/engine"
	"structd/pkg/types"
)

// State represents the lifecycle state of the manager.
type State string

const (
	StateReady      State = "ready"
	StateGenerating State = "generating"
	StateError      State = "error"
	StateClosed     State = "closed"
)

type Manager struct {
	log  zerolog.Logger
	b    backend.Backend
	dev  device.Capability
	orch *engine.Orchestrator

	registry     []types.Model
	model        types.Model
	cloud        *cloud.Client
	adapter      InferenceAdapter
	grammar      string
	bundleRoot   string
	systemPrompt string

	events  EventPublisher
	metrics *generationMetrics

	// Queue config
	maxQueueDepth int
	maxWait       time.Duration
	queueCh       chan struct{} // buffered: queue slots
	genCh         chan struct{} // size 1: single in-flight generation

	// loadMu guards the cached model. Model is only called by a request
	// holding genCh, which lets MemoryPressure release an idle model safely.
	loadMu sync.Mutex
	loaded *engine.Model
	loads  uint64

	mu         sync.RWMutex
	state      State
	err        string
	active     *engine.Control
	// sessionDone is closed once the active raw request has closed its
	// adapter session. Adapters whose native state cannot be freed from
	// another goroutine rely on Stop waiting for it.
	sessionDone chan struct{}
	lastSizing *engine.SizingDecision
	requests   uint64
	retries    uint64
	interrupts uint64
	startTime  time.Time
}

// Ready reports whether the manager can serve at least one backend: a
// selected local model or a configured cloud endpoint.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateError || m.state == StateClosed {
		return false
	}
	return strings.TrimSpace(m.model.Path) != "" || m.cloud.Configured()
}

func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// return a shallow copy to avoid external mutation
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// Orchestrator exposes the engine used for structured generation.
func (m *Manager) Orchestrator() *engine.Orchestrator { return m.orch }

// Close stops any in-flight request and releases the cached model.
func (m *Manager) Close() error {
	m.Stop()
	m.loadMu.Lock()
	if m.loaded != nil {
		m.loaded.Close()
		m.loaded = nil
	}
	m.loadMu.Unlock()
	m.mu.Lock()
	m.state = StateClosed
	m.mu.Unlock()
	return nil
}

// Model implements engine.ModelProvider. The model is loaded lazily, kept
// for subsequent requests and reloaded when a force stop released it or the
// requested offload changed.
func (m *Manager) Model(ctx context.Context, gpuLayers int) (*engine.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.ErrInterrupted(err)
	}
	if strings.TrimSpace(m.model.Path) == "" {
		return nil, &engine.Error{Kind: engine.KindModelLoadFailed, Msg: "no local model configured", Err: ErrModelNotFound(m.model.ID)}
	}
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if m.loaded != nil && !m.loaded.Closed() && m.loaded.GPULayers() == gpuLayers {
		return m.loaded, nil
	}
	if m.loaded != nil {
		m.loaded.Close()
		m.loaded = nil
	}
	start := time.Now()
	mdl, err := engine.LoadModel(m.b, m.model.Path, backend.ModelParams{GPULayers: gpuLayers, UseMmap: true})
	if err != nil {
		m.setErr(err)
		m.events.Publish(Event{Name: "model_load_failed", ModelID: m.model.ID, Fields: map[string]any{"error": err.Error()}})
		return nil, err
	}
	m.loaded = mdl
	m.loads++
	m.metrics.modelLoads.Inc()
	m.log.Info().Str("model", m.model.ID).Int("gpu_layers", gpuLayers).Dur("took", time.Since(start)).Msg("model loaded")
	m.events.Publish(Event{Name: "model_loaded", ModelID: m.model.ID, Fields: map[string]any{"gpu_layers": gpuLayers}})
	return mdl, nil
}

// releaseIdleModel frees the cached model when no generation holds the
// in-flight slot. It reports whether a model was released.
func (m *Manager) releaseIdleModel() bool {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if m.loaded == nil || len(m.genCh) > 0 {
		return false
	}
	m.loaded.Close()
	m.loaded = nil
	m.events.Publish(Event{Name: "model_released", ModelID: m.model.ID})
	return true
}

func (m *Manager) modelLoaded() bool {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	return m.loaded != nil && !m.loaded.Closed()
}

func (m *Manager) recordSizing(d engine.SizingDecision) {
	m.mu.Lock()
	m.lastSizing = &d
	m.mu.Unlock()
}

func (m *Manager) setErr(err error) {
	m.mu.Lock()
	m.err = err.Error()
	m.mu.Unlock()
}
