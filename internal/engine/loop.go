package engine

import (
	"context"
	"errors"
	"strings"

	"structd/internal/backend"
)

// StepState is the state attached to every CompletionStep.
type StepState int

const (
	StateNormal StepState = iota
	StateEOS
	StateLengthExhausted
)

func (s StepState) String() string {
	switch s {
	case StateEOS:
		return "eos"
	case StateLengthExhausted:
		return "length"
	default:
		return "normal"
	}
}

// CompletionStep is produced once per decode iteration.
type CompletionStep struct {
	Piece string
	State StepState
}

// DefaultTerminators are end-of-turn markers some models print as text
// instead of emitting an end-of-generation token.
var DefaultTerminators = []string{"<|endoftext|>", "<|im_end|>", "<|end|>", "</s>"}

const (
	defaultMaxEmptySteps = 5
	defaultMaxCarrySteps = 4
)

// LoopConfig tunes stop conditions. Zero values mean default.
type LoopConfig struct {
	Terminators   []string
	MaxEmptySteps int
	MaxCarrySteps int
	// BreakOnNewline ends generation at the first newline; used for
	// single-line free text.
	BreakOnNewline bool
}

// Loop drives one Session a token at a time.
type Loop struct {
	s     *Session
	cfg   LoopConfig
	ctl   *Control
	carry utf8Carry
	text  strings.Builder
	steps int

	onStep func(CompletionStep)
}

// NewLoop binds a loop to s. ctl may be nil.
func NewLoop(s *Session, cfg LoopConfig, ctl *Control) *Loop {
	if cfg.Terminators == nil {
		cfg.Terminators = DefaultTerminators
	}
	if cfg.MaxEmptySteps <= 0 {
		cfg.MaxEmptySteps = defaultMaxEmptySteps
	}
	if cfg.MaxCarrySteps <= 0 {
		cfg.MaxCarrySteps = defaultMaxCarrySteps
	}
	return &Loop{s: s, cfg: cfg, ctl: ctl, carry: utf8Carry{maxHold: cfg.MaxCarrySteps}}
}

// OnStep registers an observer called, in order, after every step.
func (l *Loop) OnStep(fn func(CompletionStep)) { l.onStep = fn }

// Text returns everything emitted so far.
func (l *Loop) Text() string { return l.text.String() }

// Steps returns the number of steps taken.
func (l *Loop) Steps() int { return l.steps }

// Init tokenizes prompt and primes the context with a single decode.
func (l *Loop) Init(ctx context.Context, prompt string) error {
	if err := l.interrupted(ctx); err != nil {
		return err
	}
	tokens, err := l.s.Tokenize(prompt, true)
	if err != nil {
		return newError(KindDecodeFailed, "tokenize prompt", err)
	}
	if l.s.Stopped() {
		return l.stoppedErr()
	}
	if len(tokens) == 0 {
		return ErrEmptyInput("prompt")
	}
	if len(tokens) >= l.s.budget {
		return ErrInputTooLong(len(tokens), l.s.budget)
	}
	if err := l.s.Decode(tokens, true); err != nil {
		return newError(KindDecodeFailed, "prompt decode failed", err)
	}
	if l.s.Stopped() {
		return l.stoppedErr()
	}
	l.text.Reset()
	l.carry = utf8Carry{maxHold: l.cfg.MaxCarrySteps}
	l.steps = 0
	return nil
}

// Step samples and decodes one token. It returns an Interrupted or
// OutOfMemory error, without a final state, when the request was stopped.
func (l *Loop) Step(ctx context.Context) (CompletionStep, error) {
	if err := l.interrupted(ctx); err != nil {
		return CompletionStep{}, err
	}
	l.steps++
	s := l.s
	tok, err := s.sample()
	if err != nil {
		return CompletionStep{}, newError(KindDecodeFailed, "sample", err)
	}
	if s.Stopped() {
		return CompletionStep{}, l.stoppedErr()
	}
	if s.isEOG(tok) {
		return l.emit(l.carry.flush(), StateEOS), nil
	}
	if s.pos >= s.budget || s.empties >= l.cfg.MaxEmptySteps {
		return l.emit(l.carry.flush(), StateLengthExhausted), nil
	}

	piece := l.carry.push(s.Piece(tok))
	if s.Stopped() {
		return CompletionStep{}, l.stoppedErr()
	}
	if piece == "" {
		s.empties++
	} else {
		s.empties = 0
	}
	if head, ok := l.cutTerminator(piece); ok {
		return l.emit(head, StateLengthExhausted), nil
	}

	if err := s.Decode([]backend.Token{tok}, true); err != nil {
		return CompletionStep{}, newError(KindDecodeFailed, "failed to evaluate token", err)
	}
	s.decoded++
	if l.cfg.BreakOnNewline && strings.Contains(piece, "\n") {
		return l.emit(piece, StateEOS), nil
	}
	return l.emit(piece, StateNormal), nil
}

// Run steps until a terminal state and returns the accumulated text.
func (l *Loop) Run(ctx context.Context) (string, StepState, error) {
	for {
		st, err := l.Step(ctx)
		if err != nil {
			return l.Text(), StateNormal, err
		}
		if st.State != StateNormal {
			return l.Text(), st.State, nil
		}
	}
}

func (l *Loop) emit(piece string, state StepState) CompletionStep {
	l.text.WriteString(piece)
	st := CompletionStep{Piece: piece, State: state}
	if l.onStep != nil {
		l.onStep(st)
	}
	return st
}

// cutTerminator returns the text before the first terminator in piece.
func (l *Loop) cutTerminator(piece string) (string, bool) {
	for _, t := range l.cfg.Terminators {
		if t == "" {
			continue
		}
		if i := strings.Index(piece, t); i >= 0 {
			return piece[:i], true
		}
	}
	return "", false
}

func (l *Loop) interrupted(ctx context.Context) error {
	if l.ctl != nil {
		if err := l.ctl.Err(); err != nil {
			return err
		}
	}
	if l.s.Stopped() {
		return l.stoppedErr()
	}
	if err := ctx.Err(); err != nil {
		return newError(KindInterrupted, "generation interrupted", err)
	}
	return nil
}

func (l *Loop) stoppedErr() error {
	if l.ctl != nil {
		if err := l.ctl.Err(); err != nil {
			return err
		}
	}
	return newError(KindInterrupted, "session was force-stopped", nil)
}

// isDeadline reports whether err is an interruption caused only by a deadline.
func isDeadline(err error) bool {
	return IsInterrupted(err) && errors.Is(err, context.DeadlineExceeded)
}
