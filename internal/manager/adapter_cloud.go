package manager

import (
	"context"

	"structd/internal/cloud"
)

// cloudAdapter sends free-text requests to the remote raw endpoint. The
// reply arrives in one piece and is forwarded to onToken once.
type cloudAdapter struct {
	c *cloud.Client
}

type cloudSession struct {
	c     *cloud.Client
	extra string
}

func (a *cloudAdapter) Start(_ string, params InferParams) (InferSession, error) {
	if !a.c.RawConfigured() {
		return nil, ErrDependencyUnavailable("no cloud raw endpoint configured")
	}
	return &cloudSession{c: a.c, extra: params.ExtraContext}, nil
}

func (s *cloudSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (FinalResult, error) {
	text, err := s.c.Raw(ctx, prompt, s.extra)
	if err != nil {
		return FinalResult{}, err
	}
	if onToken != nil {
		if err := onToken(text); err != nil {
			return FinalResult{}, err
		}
	}
	return FinalResult{Content: text, FinishReason: "stop"}, nil
}

func (s *cloudSession) Close() error { return nil }
