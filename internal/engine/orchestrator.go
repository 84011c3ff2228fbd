package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"structd/internal/backend"
	"structd/internal/device"
	"structd/internal/grammar"
)

const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 120 * time.Second
)

// Backend names reported in Result.
const (
	BackendLocal = "local"
	BackendCloud = "cloud"
)

// ModelProvider hands out the loaded model for a given offload. It reloads
// when the cached model was released by a force stop.
type ModelProvider interface {
	Model(ctx context.Context, gpuLayers int) (*Model, error)
}

// CloudRequest is what the orchestrator asks of a remote backend.
type CloudRequest struct {
	Input   string
	Variant grammar.Variant
	Grammar string
	Attempt int
	System  string
}

// CloudClient generates a step document remotely.
type CloudClient interface {
	Steps(ctx context.Context, req CloudRequest) (string, error)
}

// Request is one structured generation.
type Request struct {
	Input        string
	Grammar      *grammar.Grammar
	SystemPrompt string
	UseCloud     bool
	// ClipDuration enables clip alignment with the given total duration.
	ClipDuration *float64
	// Control lets the caller stop the request; nil creates a private one.
	Control *Control
}

// Result is a validated generation.
type Result struct {
	Raw      string
	Steps    []StructuredStep
	Attempts int
	Backend  string
}

// TextRequest is a free-text completion without grammar.
type TextRequest struct {
	Prompt         string
	Control        *Control
	BreakOnNewline bool
	OnPiece        func(string)
}

// OrchestratorConfig tunes retries and the per-step loop.
type OrchestratorConfig struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Template       ChatTemplate
	Loop           LoopConfig
	Sampling       backend.SamplingParams
	PreviewFields  []string
	// OnSized, if set, sees every sizing decision before a session opens.
	OnSized func(SizingDecision)
}

// Orchestrator runs generation attempts until one decodes against the
// step schema or the attempt bound is reached.
type Orchestrator struct {
	b      backend.Backend
	models ModelProvider
	sizing *SizingPolicy
	dev    device.Capability
	cloud  CloudClient
	cfg    OrchestratorConfig
	log    zerolog.Logger
}

// NewOrchestrator wires the collaborators. cloud may be nil when only local
// generation is configured.
func NewOrchestrator(b backend.Backend, models ModelProvider, sizing *SizingPolicy, dev device.Capability, cloud CloudClient, cfg OrchestratorConfig, log zerolog.Logger) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.Template == "" {
		cfg.Template = TemplatePlain
	}
	if cfg.Sampling == (backend.SamplingParams{}) {
		cfg.Sampling = backend.DefaultSamplingParams()
	}
	return &Orchestrator{b: b, models: models, sizing: sizing, dev: dev, cloud: cloud, cfg: cfg, log: log}
}

// Device returns the capability sizing decisions are made against.
func (o *Orchestrator) Device() device.Capability { return o.dev }

// Sizing returns the policy in use.
func (o *Orchestrator) Sizing() *SizingPolicy { return o.sizing }

// Generate produces a validated step document. onPreview, if set, receives
// the rendered preview after every step.
func (o *Orchestrator) Generate(ctx context.Context, req Request, onPreview func(string)) (Result, error) {
	if strings.TrimSpace(req.Input) == "" {
		return Result{}, ErrEmptyInput("prompt")
	}
	if req.Grammar == nil || strings.TrimSpace(req.Grammar.Text()) == "" {
		return Result{}, ErrEmptyInput("grammar")
	}
	ctl := req.Control
	if ctl == nil {
		ctl = ControlFrom(ctx)
	}
	if ctl == nil {
		ctl = NewControl(ctx)
		defer ctl.Release()
	}
	if err := ctl.Err(); err != nil {
		return Result{}, err
	}
	if onPreview == nil {
		onPreview = func(string) {}
	}
	log := o.log.With().Str("request_id", ctl.ID).Str("variant", req.Grammar.Variant().String()).Logger()

	var (
		res Result
		err error
	)
	if req.UseCloud {
		res, err = o.generateCloud(ctx, ctl, req, onPreview, log)
	} else {
		res, err = o.generateLocal(ctx, ctl, req, onPreview, log)
	}
	if err != nil {
		return res, err
	}
	if req.ClipDuration != nil {
		aligned, aerr := AlignClips(res.Steps, *req.ClipDuration)
		if aerr != nil {
			return res, aerr
		}
		raw, eerr := EncodeSteps(aligned, req.Grammar.Variant())
		if eerr != nil {
			return res, eerr
		}
		res.Steps, res.Raw = aligned, raw
	}
	return res, nil
}

func (o *Orchestrator) prompts(req Request) PromptSet {
	return PromptSet{System: req.SystemPrompt, Template: o.cfg.Template, Phrasings: Phrasings(req.Grammar.Variant())}
}

func (o *Orchestrator) generateLocal(ctx context.Context, ctl *Control, req Request, onPreview func(string), log zerolog.Logger) (Result, error) {
	_, layers := o.sizing.Accel(o.dev)
	model, err := o.models.Model(ctl.Context(), layers)
	if err != nil {
		return Result{}, err
	}
	ps := o.prompts(req)
	prompts := make([]string, ps.Len())
	longest := 0
	for i := range prompts {
		prompts[i] = ps.Render(i, req.Input)
		toks, terr := model.Tokenize(prompts[i], true)
		if terr != nil {
			return Result{}, terr
		}
		longest = max(longest, len(toks))
	}
	decision, err := o.sizing.Decide(longest, o.dev)
	if err != nil {
		return Result{}, err
	}
	if o.cfg.OnSized != nil {
		o.cfg.OnSized(decision)
	}
	log.Debug().Int("prompt_tokens", longest).Int("n_ctx", decision.ContextLength).
		Int("gpu_layers", decision.GPULayers).Str("tier", string(decision.Tier)).Msg("session sized")

	sess, err := OpenSession(o.b, model, decision)
	if err != nil {
		return Result{}, err
	}
	ctl.Attach(sess)
	defer func() {
		ctl.Detach(sess)
		sess.Close()
	}()

	ex := NewExtractor(o.cfg.PreviewFields)
	var lastErr error
	for attempt := 0; attempt < o.cfg.MaxAttempts; attempt++ {
		if err := ctl.Err(); err != nil {
			return Result{}, err
		}
		if attempt > 0 {
			if err := sess.Reset(); err != nil {
				return Result{}, err
			}
		}
		sp := o.cfg.Sampling
		sp.Grammar, sp.GrammarRoot = req.Grammar.Text(), req.Grammar.Root()
		sp.Seed += uint32(attempt)
		if err := sess.CompileGrammar(sp); err != nil {
			return Result{}, err
		}

		ex.Reset()
		text, err := o.runAttempt(ctl, sess, prompts[attempt%len(prompts)], func(st CompletionStep) {
			ex.Feed(st.Piece)
			onPreview(ex.Preview())
		})
		if err != nil {
			if !o.retryableTimeout(ctx, ctl, err) {
				return Result{}, err
			}
			lastErr = ErrSchemaValidation("attempt timed out", err)
			log.Warn().Int("attempt", attempt+1).Dur("timeout", o.cfg.AttemptTimeout).Msg("attempt timed out")
			continue
		}
		steps, err := DecodeSteps(text, req.Grammar.Variant())
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("output failed schema validation")
			continue
		}
		return Result{Raw: text, Steps: steps, Attempts: attempt + 1, Backend: BackendLocal}, nil
	}
	return Result{Attempts: o.cfg.MaxAttempts}, ErrSchemaValidation(fmt.Sprintf("no valid output after %d attempts", o.cfg.MaxAttempts), lastErr)
}

func (o *Orchestrator) runAttempt(ctl *Control, sess *Session, prompt string, observe func(CompletionStep)) (string, error) {
	actx, cancel := context.WithTimeout(ctl.Context(), o.cfg.AttemptTimeout)
	defer cancel()
	loop := NewLoop(sess, o.cfg.Loop, ctl)
	if err := loop.Init(actx, prompt); err != nil {
		return "", err
	}
	loop.OnStep(observe)
	text, _, err := loop.Run(actx)
	return text, err
}

// retryableTimeout reports whether err is only the attempt deadline firing,
// with neither the caller nor a stop involved.
func (o *Orchestrator) retryableTimeout(ctx context.Context, ctl *Control, err error) bool {
	return ctl.Err() == nil && ctx.Err() == nil && (isDeadline(err) || errors.Is(err, context.DeadlineExceeded))
}

func (o *Orchestrator) generateCloud(ctx context.Context, ctl *Control, req Request, onPreview func(string), log zerolog.Logger) (Result, error) {
	if o.cloud == nil {
		return Result{}, ErrBackendUnavailable("no cloud endpoint configured", nil)
	}
	ps := o.prompts(req)
	ex := NewExtractor(o.cfg.PreviewFields)
	var lastErr error
	for attempt := 0; attempt < o.cfg.MaxAttempts; attempt++ {
		if err := ctl.Err(); err != nil {
			return Result{}, err
		}
		actx, cancel := context.WithTimeout(ctl.Context(), o.cfg.AttemptTimeout)
		raw, err := o.cloud.Steps(actx, CloudRequest{
			Input:   req.Input,
			Variant: req.Grammar.Variant(),
			Grammar: req.Grammar.Text(),
			Attempt: attempt,
			System:  ps.System,
		})
		cancel()
		if err != nil {
			if cerr := ctl.Err(); cerr != nil {
				return Result{}, cerr
			}
			if !o.retryableTimeout(ctx, ctl, err) {
				if ctx.Err() != nil {
					return Result{}, newError(KindInterrupted, "generation interrupted", ctx.Err())
				}
				return Result{}, err
			}
			lastErr = ErrSchemaValidation("attempt timed out", err)
			log.Warn().Int("attempt", attempt+1).Msg("cloud attempt timed out")
			continue
		}
		ex.Reset()
		ex.Feed(raw)
		onPreview(ex.Preview())
		steps, err := DecodeSteps(raw, req.Grammar.Variant())
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("cloud output failed schema validation")
			continue
		}
		return Result{Raw: raw, Steps: steps, Attempts: attempt + 1, Backend: BackendCloud}, nil
	}
	return Result{Attempts: o.cfg.MaxAttempts}, ErrSchemaValidation(fmt.Sprintf("no valid output after %d attempts", o.cfg.MaxAttempts), lastErr)
}

// GenerateText runs one unconstrained completion on the local model.
func (o *Orchestrator) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrEmptyInput("prompt")
	}
	ctl := req.Control
	if ctl == nil {
		ctl = ControlFrom(ctx)
	}
	if ctl == nil {
		ctl = NewControl(ctx)
		defer ctl.Release()
	}
	_, layers := o.sizing.Accel(o.dev)
	model, err := o.models.Model(ctl.Context(), layers)
	if err != nil {
		return "", err
	}
	prompt := renderChat(o.cfg.Template, "", req.Prompt)
	toks, err := model.Tokenize(prompt, true)
	if err != nil {
		return "", err
	}
	decision, err := o.sizing.Decide(len(toks), o.dev)
	if err != nil {
		return "", err
	}
	if o.cfg.OnSized != nil {
		o.cfg.OnSized(decision)
	}
	sess, err := OpenSession(o.b, model, decision)
	if err != nil {
		return "", err
	}
	ctl.Attach(sess)
	defer func() {
		ctl.Detach(sess)
		sess.Close()
	}()
	sp := o.cfg.Sampling
	sp.Grammar, sp.GrammarRoot = "", ""
	if err := sess.CompileGrammar(sp); err != nil {
		return "", err
	}
	lc := o.cfg.Loop
	lc.BreakOnNewline = req.BreakOnNewline
	actx, cancel := context.WithTimeout(ctl.Context(), o.cfg.AttemptTimeout)
	defer cancel()
	loop := NewLoop(sess, lc, ctl)
	if err := loop.Init(actx, prompt); err != nil {
		return "", err
	}
	if req.OnPiece != nil {
		loop.OnStep(func(st CompletionStep) { req.OnPiece(st.Piece) })
	}
	text, _, err := loop.Run(actx)
	return text, err
}
