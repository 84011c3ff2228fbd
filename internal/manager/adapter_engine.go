package manager

import (
	"context"

	"structd/internal/engine"
)

// engineAdapter runs free-text completions through the engine so they share
// the cached model, sizing and force-stop path with structured generation.
// The model path is fixed by the manager; Start ignores it.
type engineAdapter struct {
	orch *engine.Orchestrator
}

type engineSession struct {
	orch   *engine.Orchestrator
	params InferParams
}

func (a *engineAdapter) Start(_ string, params InferParams) (InferSession, error) {
	return &engineSession{orch: a.orch, params: params}, nil
}

func (s *engineSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (FinalResult, error) {
	ctl := engine.ControlFrom(ctx)
	var cbErr error
	text, err := s.orch.GenerateText(ctx, engine.TextRequest{
		Prompt:         prompt,
		Control:        ctl,
		BreakOnNewline: s.params.BreakOnNewline,
		OnPiece: func(p string) {
			if cbErr != nil || onToken == nil {
				return
			}
			if cbErr = onToken(p); cbErr != nil && ctl != nil {
				ctl.Stop(engine.StopUser)
			}
		},
	})
	if cbErr != nil {
		return FinalResult{}, cbErr
	}
	if err != nil {
		return FinalResult{}, err
	}
	return FinalResult{Content: text, FinishReason: "stop"}, nil
}

func (s *engineSession) Close() error { return nil }
