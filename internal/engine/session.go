package engine

import (
	"sync"
	"sync/atomic"

	"structd/internal/backend"
)

// Session is one live binding of model + context + sampler. It is owned by a
// single generation request; ForceStop is the only method meant to be called
// from elsewhere.
//
// Every method takes mu around its native call, so ForceStop waits for an
// in-flight decode to return before freeing anything. Once stopped, methods
// return zero values instead of touching freed handles.
type Session struct {
	b      backend.Backend
	model  *Model
	sizing SizingDecision
	ctxp   backend.ContextParams

	stopped atomic.Bool

	mu      sync.Mutex
	freed   bool
	ctx     backend.Handle
	sampler backend.Handle

	pos     int // next KV position
	budget  int // decode budget (context length)
	decoded int // tokens decoded after the prompt
	empties int // consecutive steps with empty output
}

// OpenSession creates a context sized by s on an already loaded model.
func OpenSession(b backend.Backend, m *Model, s SizingDecision) (*Session, error) {
	mh, ok := m.handle()
	if !ok {
		return nil, newError(KindModelLoadFailed, "model was released", nil)
	}
	cp := backend.ContextParams{
		ContextLength: s.ContextLength,
		BatchLength:   s.BatchLength,
		Threads:       s.Threads,
		Seed:          1,
	}
	ctx, err := b.NewContext(mh, cp)
	if err != nil {
		return nil, newError(KindContextInitFailed, "context initialization error", err)
	}
	return &Session{b: b, model: m, sizing: s, ctxp: cp, ctx: ctx, budget: s.ContextLength}, nil
}

// Sizing returns the decision the session was built from.
func (s *Session) Sizing() SizingDecision { return s.sizing }

// Stopped reports whether ForceStop or Close has run.
func (s *Session) Stopped() bool { return s.stopped.Load() }

// CompileGrammar builds the sampler chain for the next generation attempt,
// replacing any previous one.
func (s *Session) CompileGrammar(p backend.SamplingParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Stopped() {
		return nil
	}
	mh, ok := s.model.handle()
	if !ok {
		return nil
	}
	h, err := s.b.NewSampler(mh, p)
	if err != nil {
		return newError(KindEmptyOrInvalidInput, "grammar rejected by backend", err)
	}
	if s.sampler != 0 {
		s.b.FreeSampler(s.sampler)
	}
	s.sampler = h
	return nil
}

// Tokenize converts text to tokens using the session's model.
func (s *Session) Tokenize(text string, addBOS bool) ([]backend.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Stopped() {
		return nil, nil
	}
	mh, ok := s.model.handle()
	if !ok {
		return nil, nil
	}
	return s.b.Tokenize(mh, text, addBOS)
}

// Decode evaluates tokens at the current position and advances it.
func (s *Session) Decode(tokens []backend.Token, logitsLast bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Stopped() || len(tokens) == 0 {
		return nil
	}
	if err := s.b.Decode(s.ctx, tokens, logitsLast); err != nil {
		return err
	}
	s.pos += len(tokens)
	return nil
}

// sample picks the next token under the compiled grammar.
func (s *Session) sample() (backend.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Stopped() || s.sampler == 0 {
		return 0, nil
	}
	return s.b.Sample(s.ctx, s.sampler)
}

// Piece returns the raw bytes of token t.
func (s *Session) Piece(t backend.Token) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Stopped() {
		return nil
	}
	mh, ok := s.model.handle()
	if !ok {
		return nil
	}
	return s.b.Piece(mh, t)
}

func (s *Session) isEOG(t backend.Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Stopped() {
		return false
	}
	mh, ok := s.model.handle()
	if !ok {
		return false
	}
	return s.b.IsEOG(mh, t)
}

// Reset frees and recreates the context with the same sizing so a new
// attempt starts from an empty KV cache without reloading weights.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Stopped() {
		return nil
	}
	mh, ok := s.model.handle()
	if !ok {
		return newError(KindModelLoadFailed, "model was released", nil)
	}
	if s.sampler != 0 {
		s.b.FreeSampler(s.sampler)
		s.sampler = 0
	}
	s.b.FreeContext(s.ctx)
	s.ctx = 0
	ctx, err := s.b.NewContext(mh, s.ctxp)
	if err != nil {
		s.freed = true
		s.stopped.Store(true)
		return newError(KindContextInitFailed, "context initialization error", err)
	}
	s.ctx = ctx
	s.pos, s.decoded, s.empties = 0, 0, 0
	return nil
}

// ForceStop releases context, sampler and model immediately. It is
// idempotent and may run concurrently with any other method; the handles are
// freed before it returns.
func (s *Session) ForceStop() {
	s.stopped.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(true)
}

// Close ends the session normally, keeping the model loaded for reuse.
func (s *Session) Close() {
	s.stopped.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(false)
}

func (s *Session) releaseLocked(freeModel bool) {
	if !s.freed {
		s.freed = true
		if s.sampler != 0 {
			s.b.FreeSampler(s.sampler)
			s.sampler = 0
		}
		if s.ctx != 0 {
			s.b.FreeContext(s.ctx)
			s.ctx = 0
		}
	}
	// Contexts must be gone before the model they were created from.
	if freeModel {
		s.model.Close()
	}
}
