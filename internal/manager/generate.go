package manager

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"structd/internal/engine"
	"structd/internal/grammar"
	"structd/pkg/types"
)

// Generate runs one structured generation and streams NDJSON to w: a
// {"preview": ...} line whenever the rendered preview changes, then a final
// {"done": true, ...} line. Errors are returned, not written; the caller
// decides how to report them depending on whether anything was streamed.
func (m *Manager) Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flusher func()) error {
	if strings.TrimSpace(req.Input) == "" {
		return engine.ErrEmptyInput("input")
	}
	ref := req.Grammar
	if ref == "" {
		ref = m.grammar
	}
	g, err := grammar.Load(ref, m.bundleRoot)
	if err != nil {
		return engine.ErrInvalidInput("grammar", err)
	}
	if req.ClipDuration != nil && *req.ClipDuration < 0 {
		return engine.ErrInvalidInput("clip_duration must not be negative", nil)
	}

	release, err := m.beginGeneration(ctx)
	if err != nil {
		return err
	}
	defer release()

	ctl := m.activate(ctx)
	defer m.deactivate(ctl)

	backendName := engine.BackendLocal
	if req.UseCloud {
		backendName = engine.BackendCloud
	}
	log := m.log.With().Str("request_id", ctl.ID).Str("backend", backendName).Str("grammar", g.Name()).Logger()
	log.Info().Int("input_bytes", len(req.Input)).Msg("generate start")
	m.events.Publish(Event{Name: "generate_start", ModelID: m.model.ID, RequestID: ctl.ID, Fields: map[string]any{"backend": backendName}})
	start := time.Now()

	var (
		last     string
		writeErr error
	)
	onPreview := func(p string) {
		if writeErr != nil || p == last {
			return
		}
		last = p
		if writeErr = writeLine(w, types.PreviewLine{Preview: p}); writeErr != nil {
			// The reader went away; nobody is left to consume the result.
			ctl.Stop(engine.StopUser)
			return
		}
		if flusher != nil {
			flusher()
		}
	}

	system := req.SystemPrompt
	if system == "" {
		system = m.systemPrompt
	}
	res, err := m.orch.Generate(ctl.Context(), engine.Request{
		Input:        req.Input,
		Grammar:      g,
		SystemPrompt: system,
		UseCloud:     req.UseCloud,
		ClipDuration: req.ClipDuration,
		Control:      ctl,
	}, onPreview)
	m.finish(ctl, backendName, res.Attempts, start, err)
	if err != nil {
		if writeErr != nil {
			return writeErr
		}
		log.Warn().Err(err).Str("kind", engine.KindOf(err).String()).Dur("took", time.Since(start)).Msg("generate failed")
		return err
	}
	log.Info().Int("attempts", res.Attempts).Int("steps", len(res.Steps)).Dur("took", time.Since(start)).Msg("generate end")

	done := types.DoneLine{
		Done:     true,
		Content:  res.Raw,
		Steps:    toTypesSteps(res.Steps),
		Attempts: res.Attempts,
		Backend:  res.Backend,
	}
	if err := writeLine(w, done); err != nil {
		return err
	}
	if flusher != nil {
		flusher()
	}
	return nil
}

// activate creates the request Control and makes it the one Stop reaches.
func (m *Manager) activate(ctx context.Context) *engine.Control {
	ctl := engine.NewControl(ctx)
	m.mu.Lock()
	m.active = ctl
	if m.state == StateReady {
		m.state = StateGenerating
	}
	m.requests++
	m.mu.Unlock()
	return ctl
}

func (m *Manager) deactivate(ctl *engine.Control) {
	m.mu.Lock()
	if m.active == ctl {
		m.active = nil
		m.sessionDone = nil
		if m.state == StateGenerating {
			m.state = StateReady
		}
	}
	m.mu.Unlock()
	ctl.Release()
}

// finish records counters, metrics and the terminal event of a request.
func (m *Manager) finish(ctl *engine.Control, backendName string, attempts int, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = engine.KindOf(err).String()
	}
	m.metrics.requests.WithLabelValues(backendName, outcome).Inc()
	m.metrics.duration.WithLabelValues(backendName).Observe(time.Since(start).Seconds())
	if err == nil && attempts > 0 {
		m.metrics.attempts.WithLabelValues(backendName).Observe(float64(attempts))
	}

	m.mu.Lock()
	if attempts > 1 {
		m.retries += uint64(attempts - 1)
	}
	if engine.IsInterrupted(err) || engine.IsOutOfMemory(err) {
		m.interrupts++
	}
	if err != nil {
		m.err = err.Error()
	}
	m.mu.Unlock()

	name := "generate_done"
	fields := map[string]any{"backend": backendName, "attempts": attempts}
	if err != nil {
		name = "generate_failed"
		fields["kind"] = engine.KindOf(err).String()
		fields["error"] = err.Error()
	}
	m.events.Publish(Event{Name: name, ModelID: m.model.ID, RequestID: ctl.ID, Fields: fields})
}

func toTypesSteps(in []engine.StructuredStep) []types.Step {
	out := make([]types.Step, len(in))
	for i, s := range in {
		out[i] = types.Step{
			Name:             s.Name,
			ShortDescription: s.ShortDescription,
			Description:      s.Description,
			Start:            s.Start,
			End:              s.End,
		}
	}
	return out
}

// writeLine writes v as one NDJSON line.
func writeLine(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}
