package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"structd/internal/backend"
	"structd/internal/cloud"
	"structd/internal/config"
	"structd/internal/device"
	"structd/internal/engine"
	"structd/internal/manager"
	"structd/internal/registry"
	"structd/pkg/types"
)

func sizingConfig(cfg config.Config) engine.SizingConfig {
	sc := engine.SizingConfig{Ceiling: cfg.ContextCeiling}
	for _, t := range cfg.Acceleration {
		sc.Tiers = append(sc.Tiers, engine.OffloadTier{
			MinMemoryMB:    t.MinMemoryMB,
			DiscreteLayers: t.DiscreteLayers,
			UnifiedLayers:  t.UnifiedLayers,
		})
	}
	return sc
}

func probeDevice(b backend.Backend, cfg config.Config) device.Capability {
	return device.Probe(b.Accelerator(), device.Overrides{
		MemoryMB:    cfg.Device.MemoryMB,
		Accelerated: cfg.Device.Accelerated,
		Unified:     cfg.Device.Unified,
	})
}

// buildManager wires config into a Manager: registry scan, backend, device
// probe and the optional cloud client.
func buildManager(cfg config.Config, log zerolog.Logger, reg prometheus.Registerer) (*manager.Manager, error) {
	var models []types.Model
	if cfg.ModelsDir != "" {
		ms, err := registry.LoadDir(cfg.ModelsDir)
		if err != nil {
			return nil, fmt.Errorf("load models: %w", err)
		}
		models = ms
	} else if cfg.Model != "" {
		// a bare path works without a models directory
		models = []types.Model{{ID: cfg.Model, Path: cfg.Model}}
	}

	tmpl, err := engine.ParseChatTemplate(cfg.ChatTemplate)
	if err != nil {
		return nil, err
	}
	b := backend.New()
	dev := probeDevice(b, cfg)
	log.Info().
		Bool("backend_built", backend.Built()).
		Int64("memory_mb", dev.MemoryMB).
		Bool("accelerated", dev.Accelerated).
		Bool("unified", dev.Unified).
		Str("device", dev.Name).
		Int("models", len(models)).
		Msg("runtime probed")

	cl := cloud.New(cloud.Config{
		StepsURL:       cfg.Cloud.StepsURL,
		RawURL:         cfg.Cloud.RawURL,
		APIKey:         cfg.Cloud.APIKey,
		Legacy:         cfg.Cloud.Legacy,
		ConnectTimeout: cfg.Cloud.ConnectTimeout.Std(),
	}, log.With().Str("component", "cloud").Logger())

	mlog := log.With().Str("component", "manager").Logger()
	return manager.NewWithConfig(manager.ManagerConfig{
		Backend:  b,
		Registry: models,
		Model:    cfg.Model,
		Device:   dev,
		Sizing:   sizingConfig(cfg),
		Orchestrator: engine.OrchestratorConfig{
			MaxAttempts:    cfg.MaxAttempts,
			AttemptTimeout: cfg.AttemptTimeout.Std(),
			Template:       tmpl,
			Loop:           engine.LoopConfig{Terminators: cfg.Terminators},
			Sampling:       backend.DefaultSamplingParams(),
		},
		Cloud:         cl,
		Grammar:       cfg.Grammar,
		BundleRoot:    cfg.BundleRoot,
		SystemPrompt:  cfg.SystemPrompt,
		RawAdapter:    cfg.RawAdapter,
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       cfg.MaxWait.Std(),
		Logger:        &mlog,
		Metrics:       reg,
	})
}
