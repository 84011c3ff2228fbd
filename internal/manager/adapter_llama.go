//go:build llama

package manager

import (
	"context"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"structd/internal/device"
	"structd/internal/engine"
)

// llamaBuilt indicates this binary was compiled with go-llama.cpp support.
var llamaBuilt = true

// llamaAdapter runs free-text completions through go-llama.cpp. Context
// length and offload come from the same sizing policy the engine uses.
type llamaAdapter struct {
	sizing *engine.SizingPolicy
	dev    device.Capability
}

func NewLlamaAdapter(sizing *engine.SizingPolicy, dev device.Capability) InferenceAdapter {
	return &llamaAdapter{sizing: sizing, dev: dev}
}

// llamaSession owns the loaded model
type llamaSession struct {
	a          *llamaAdapter
	modelPath  string
	model      *llama.LLama
	baseParams InferParams
}

func (a *llamaAdapter) Start(modelPath string, params InferParams) (InferSession, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, ErrModelNotFound("")
	}
	return &llamaSession{a: a, modelPath: modelPath, baseParams: params}, nil
}

// load sizes the context for prompt and loads the model. go-llama.cpp fixes
// the context length at load time, so the model is loaded per session.
func (s *llamaSession) load(prompt string) (int, error) {
	need := estimateTokens(prompt)
	n, err := s.a.sizing.ContextLength(need)
	if err != nil {
		return 0, err
	}
	_, layers := s.a.sizing.Accel(s.a.dev)
	m, err := llama.New(s.modelPath, llama.SetContext(n), llama.SetGPULayers(layers))
	if err != nil {
		return 0, &engine.Error{Kind: engine.KindModelLoadFailed, Msg: "failed to load model", Err: err}
	}
	s.model = m
	return n, nil
}

func (s *llamaSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (FinalResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return FinalResult{}, engine.ErrEmptyInput("prompt")
	}
	if s.model == nil {
		if _, err := s.load(prompt); err != nil {
			return FinalResult{}, err
		}
	}

	var (
		b     strings.Builder
		cbErr error
	)
	s.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		b.WriteString(tok)
		if onToken != nil {
			if cbErr = onToken(tok); cbErr != nil {
				return false
			}
		}
		if s.baseParams.BreakOnNewline && strings.Contains(tok, "\n") {
			return false
		}
		return true
	})
	po := mapInferParamsToPredictOptions(s.baseParams, s.a.sizing.Threads())
	text, err := s.model.Predict(prompt, po...)
	if cbErr != nil {
		return FinalResult{}, cbErr
	}
	if ctx.Err() != nil {
		if ctl := engine.ControlFrom(ctx); ctl != nil && ctl.Err() != nil {
			return FinalResult{}, ctl.Err()
		}
		return FinalResult{}, ctx.Err()
	}
	if err != nil {
		return FinalResult{}, err
	}
	if text == "" {
		text = b.String()
	}
	return FinalResult{Content: text, FinishReason: "stop"}, nil
}

func (s *llamaSession) Close() error {
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// mapInferParamsToPredictOptions converts adapter params into go-llama.cpp options
func mapInferParamsToPredictOptions(params InferParams, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(zn(params.MaxTokens, llama.DefaultOptions.Tokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(zf(params.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(params.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(params.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(zf(params.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if params.Seed != 0 {
		po = append(po, llama.SetSeed(params.Seed))
	}
	if len(params.Stop) > 0 {
		po = append(po, llama.SetStopWords(params.Stop...))
	}
	return po
}

// estimateTokens bounds the token count of text from above without a
// tokenizer: no common vocabulary packs fewer than two bytes per token on
// average, plus room for BOS and template tokens.
func estimateTokens(text string) int {
	return (len(text)+1)/2 + 8
}
