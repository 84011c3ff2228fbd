package manager

import "context"

// InferenceAdapter abstracts the runtime used for free-text completions.
// The engine adapter is the default; the go-llama.cpp adapter is built with
// the 'llama' tag.
type InferenceAdapter interface {
	// Start prepares a session for inference with the given model path and parameters.
	Start(modelPath string, params InferParams) (InferSession, error)
}

// InferSession represents a single inference session (lifecycle of one request).
type InferSession interface {
	// Generate streams pieces for the given prompt. The onToken callback will be invoked
	// for each piece. Implementations must return when the context is canceled.
	Generate(ctx context.Context, prompt string, onToken func(string) error) (FinalResult, error)
	// Close releases any resources associated with the session.
	Close() error
}

// InferParams captures generation parameters passed to the adapter.
type InferParams struct {
	Temperature   float32
	TopP          float32
	TopK          int
	MaxTokens     int
	Stop          []string
	Seed          int
	RepeatPenalty float32
	// BreakOnNewline ends the completion at the first newline.
	BreakOnNewline bool
	// ExtraContext is forwarded as-is to remote backends. Local adapters
	// receive it already folded into the prompt.
	ExtraContext string
}

// FinalResult summarizes the generation after streaming.
type FinalResult struct {
	Content      string
	FinishReason string
}
