package manager

import (
	"context"
	"strings"
	"time"

	"structd/internal/engine"
	"structd/pkg/types"
)

// GenerateRaw runs a free-text completion, locally through the configured
// InferenceAdapter or remotely through the cloud raw endpoint. It goes
// through the same admission and Stop path as Generate.
func (m *Manager) GenerateRaw(ctx context.Context, req types.RawRequest) (types.RawResponse, error) {
	if strings.TrimSpace(req.Input) == "" {
		return types.RawResponse{}, engine.ErrEmptyInput("input")
	}
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return types.RawResponse{}, err
	}
	defer release()

	ctl := m.activate(ctx)
	defer m.deactivate(ctl)
	done := make(chan struct{})
	m.mu.Lock()
	if m.active == ctl {
		m.sessionDone = done
	}
	m.mu.Unlock()

	backendName := engine.BackendLocal
	adapter := m.adapter
	prompt := req.Input
	if req.UseCloud {
		backendName = engine.BackendCloud
		adapter = &cloudAdapter{c: m.cloud}
	} else if req.ExtraContext != "" {
		prompt = req.Input + "\n\n" + req.ExtraContext
	}
	log := m.log.With().Str("request_id", ctl.ID).Str("backend", backendName).Logger()
	log.Info().Int("input_bytes", len(req.Input)).Msg("raw start")
	m.events.Publish(Event{Name: "raw_start", ModelID: m.model.ID, RequestID: ctl.ID, Fields: map[string]any{"backend": backendName}})
	start := time.Now()

	content, err := m.runAdapter(engine.WithControl(ctl.Context(), ctl), adapter, prompt, InferParams{ExtraContext: req.ExtraContext}, done)
	if err != nil && ctl.Err() != nil {
		// A stop that landed while the adapter was blocking reports its own kind.
		if !engine.IsInterrupted(err) && !engine.IsOutOfMemory(err) {
			err = ctl.Err()
		}
	}
	m.finish(ctl, backendName, 0, start, err)
	if err != nil {
		log.Warn().Err(err).Dur("took", time.Since(start)).Msg("raw failed")
		return types.RawResponse{}, err
	}
	log.Info().Int("output_bytes", len(content)).Dur("took", time.Since(start)).Msg("raw end")
	return types.RawResponse{Content: content, Backend: backendName}, nil
}

// runAdapter closes done after the session is closed, whatever the outcome.
func (m *Manager) runAdapter(ctx context.Context, a InferenceAdapter, prompt string, params InferParams, done chan struct{}) (string, error) {
	defer close(done)
	sess, err := a.Start(m.model.Path, params)
	if err != nil {
		return "", err
	}
	defer func() { _ = sess.Close() }()
	final, err := sess.Generate(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	return final.Content, nil
}
