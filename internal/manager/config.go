package manager

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"structd/internal/backend"
	"structd/internal/cloud"
	"structd/internal/device"
	"structd/internal/engine"
	"structd/internal/registry"
	"structd/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultGrammar       = "steps"
)

// Raw adapter names accepted in ManagerConfig.RawAdapter.
const (
	RawAdapterEngine = "engine"
	RawAdapterLlama  = "llama"
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Backend  backend.Backend
	Registry []types.Model
	// Model selects a registry entry by id, file name or path. Empty picks
	// the only registered model.
	Model  string
	Device device.Capability
	Sizing engine.SizingConfig
	// Orchestrator tunes retries, chat template and sampling. OnSized is
	// owned by the manager and overwritten.
	Orchestrator engine.OrchestratorConfig
	Cloud        *cloud.Client

	Grammar      string
	BundleRoot   string
	SystemPrompt string
	// RawAdapter picks the free-text runtime: "engine" (default) or "llama".
	RawAdapter string

	MaxQueueDepth int
	MaxWait       time.Duration

	Events  EventPublisher
	Logger  *zerolog.Logger
	Metrics prometheus.Registerer
}

// NewWithConfig constructs a Manager from ManagerConfig. Model selection
// errors are not fatal: the manager starts and reports the problem through
// Status and SanityCheck so cloud-only deployments keep working.
func NewWithConfig(cfg ManagerConfig) (*Manager, error) {
	if cfg.Backend == nil {
		return nil, errors.New("manager: backend is required")
	}
	sizing, err := engine.NewSizingPolicy(cfg.Sizing)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		b:            cfg.Backend,
		registry:     cfg.Registry,
		dev:          cfg.Device,
		cloud:        cfg.Cloud,
		grammar:      cfg.Grammar,
		bundleRoot:   cfg.BundleRoot,
		systemPrompt: cfg.SystemPrompt,
		events:       cfg.Events,
		state:        StateReady,
		startTime:    time.Now(),
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	} else {
		m.log = zerolog.Nop()
	}
	if m.grammar == "" {
		m.grammar = defaultGrammar
	}
	if m.events == nil {
		m.events = noopPublisher{}
	}
	// Apply defaults if unset
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	m.queueCh = make(chan struct{}, m.maxQueueDepth)
	m.genCh = make(chan struct{}, 1)
	m.metrics = newGenerationMetrics(cfg.Metrics)

	if mdl, rerr := registry.Resolve(cfg.Registry, cfg.Model); rerr == nil {
		m.model = mdl
	} else if len(cfg.Registry) > 0 || cfg.Model != "" {
		m.err = rerr.Error()
		m.log.Warn().Err(rerr).Str("model", cfg.Model).Msg("no local model selected")
	}

	oc := cfg.Orchestrator
	oc.OnSized = m.recordSizing
	var cc engine.CloudClient
	if cfg.Cloud != nil && cfg.Cloud.Configured() {
		cc = cfg.Cloud
	}
	m.orch = engine.NewOrchestrator(cfg.Backend, m, sizing, cfg.Device, cc, oc, m.log)

	switch cfg.RawAdapter {
	case "", RawAdapterEngine:
		m.adapter = &engineAdapter{orch: m.orch}
	case RawAdapterLlama:
		m.adapter = NewLlamaAdapter(sizing, cfg.Device)
	default:
		return nil, errors.New("manager: unknown raw adapter " + cfg.RawAdapter)
	}
	return m, nil
}
