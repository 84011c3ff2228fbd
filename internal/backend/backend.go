// Package backend defines the contract structd consumes from a native
// inference library (llama.cpp). Implementations are selected by build tag:
//
//   - llamacpp: cgo binding against llama.h (backend_llamacpp.go).
//   - default:  a stub that fails fast with ErrUnavailable (backend_stub.go).
//
// The engine package treats every Handle as opaque and never shares a
// context handle between goroutines.
package backend

import "errors"

// Token is a vocabulary id.
type Token int32

// Handle identifies a native object (model, context or sampler). Zero is
// never a valid handle.
type Handle uintptr

// ErrUnavailable is returned by the stub backend and by implementations that
// could not initialize the native library.
var ErrUnavailable = errors.New("backend: native inference library not available")

// ModelParams configures model loading.
type ModelParams struct {
	// GPULayers is the number of layers to offload. 0 = CPU only,
	// values >= the model layer count offload everything.
	GPULayers int
	UseMmap   bool
}

// ContextParams configures a context (KV cache + batch).
type ContextParams struct {
	ContextLength int
	BatchLength   int
	Threads       int
	Seed          uint32
}

// SamplingParams configures the sampler chain. Grammar may be empty, in
// which case sampling is unconstrained.
type SamplingParams struct {
	Grammar     string
	GrammarRoot string
	TopK        int
	TopP        float32
	MinP        float32
	Temperature float32
	Seed        uint32
}

// DefaultSamplingParams mirrors the chain used for structured output:
// grammar -> top-k 40 -> top-p 0.95 -> min-p 0.05 -> temp 0.8.
func DefaultSamplingParams() SamplingParams {
	return SamplingParams{
		GrammarRoot: "root",
		TopK:        40,
		TopP:        0.95,
		MinP:        0.05,
		Temperature: 0.8,
		Seed:        1,
	}
}

// Accelerator describes the hardware acceleration the library can use.
type Accelerator struct {
	Available bool
	Name      string
}

// Backend is the native inference library.
type Backend interface {
	LoadModel(path string, p ModelParams) (Handle, error)
	NewContext(model Handle, p ContextParams) (Handle, error)
	Tokenize(model Handle, text string, addBOS bool) ([]Token, error)
	// Decode evaluates tokens starting at the context's current position.
	// When logitsLast is set only the final position produces logits.
	Decode(ctx Handle, tokens []Token, logitsLast bool) error
	NewSampler(model Handle, p SamplingParams) (Handle, error)
	// Sample picks the next token from the last logits and accepts it into
	// the sampler state (grammar included).
	Sample(ctx, sampler Handle) (Token, error)
	// Piece returns the raw bytes for a token. They may end in the middle
	// of a UTF-8 sequence.
	Piece(model Handle, t Token) []byte
	IsEOG(model Handle, t Token) bool
	FreeSampler(h Handle)
	FreeContext(h Handle)
	FreeModel(h Handle)
	Accelerator() Accelerator
}
