//go:build !llama

package manager

// This file provides a no-CGO stub for the go-llama.cpp adapter. It is
// compiled when the 'llama' build tag is NOT set. The engine adapter stays
// available in every build.

import (
	"context"

	"structd/internal/device"
	"structd/internal/engine"
)

var llamaBuilt = false

type llamaAdapter struct{}

func NewLlamaAdapter(*engine.SizingPolicy, device.Capability) InferenceAdapter {
	return &llamaAdapter{}
}

type llamaSession struct{}

func (a *llamaAdapter) Start(modelPath string, params InferParams) (InferSession, error) {
	// Fail fast: llama runtime not available in this build.
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

func (s *llamaSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (FinalResult, error) {
	select {
	case <-ctx.Done():
		return FinalResult{}, ctx.Err()
	default:
	}
	return FinalResult{}, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

func (s *llamaSession) Close() error { return nil }
