package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"structd/internal/backend"
	"structd/internal/device"
)

const fakeEOG backend.Token = 1 << 20

// fakeBackend replays scripted token pieces. Every context created takes the
// next script in order; the last script repeats once they run out.
type fakeBackend struct {
	mu sync.Mutex

	scripts [][]string
	nextID  backend.Handle

	models   map[backend.Handle]bool
	ctxs     map[backend.Handle]*fakeCtx
	samplers map[backend.Handle]string // grammar text
	pieces   map[backend.Token][]byte
	nextTok  backend.Token

	modelLoads   int
	ctxCreated   int
	doubleFrees  int
	loadErr      error
	ctxErr       error
	tokensPerRun int // extra tokens reported per prompt word

	// decodeHook runs outside the lock on every single-token decode.
	decodeHook func()
}

type fakeCtx struct {
	script  []string
	cursor  int
	decodes int
}

func newFakeBackend(scripts ...[]string) *fakeBackend {
	return &fakeBackend{
		scripts:  scripts,
		models:   map[backend.Handle]bool{},
		ctxs:     map[backend.Handle]*fakeCtx{},
		samplers: map[backend.Handle]string{},
		pieces:   map[backend.Token][]byte{},
	}
}

func (f *fakeBackend) handle() backend.Handle {
	f.nextID++
	return f.nextID
}

func (f *fakeBackend) LoadModel(path string, p backend.ModelParams) (backend.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return 0, f.loadErr
	}
	f.modelLoads++
	h := f.handle()
	f.models[h] = true
	return h, nil
}

func (f *fakeBackend) NewContext(model backend.Handle, p backend.ContextParams) (backend.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctxErr != nil {
		return 0, f.ctxErr
	}
	if !f.models[model] {
		return 0, errors.New("unknown model")
	}
	var script []string
	if len(f.scripts) > 0 {
		script = f.scripts[min(f.ctxCreated, len(f.scripts)-1)]
	}
	f.ctxCreated++
	h := f.handle()
	f.ctxs[h] = &fakeCtx{script: script}
	return h, nil
}

func (f *fakeBackend) Tokenize(model backend.Handle, text string, addBOS bool) ([]backend.Token, error) {
	n := len(strings.Fields(text)) * (1 + f.tokensPerRun)
	if addBOS {
		n++
	}
	return make([]backend.Token, n), nil
}

func (f *fakeBackend) Decode(ctx backend.Handle, tokens []backend.Token, logitsLast bool) error {
	f.mu.Lock()
	c, ok := f.ctxs[ctx]
	if ok {
		c.decodes++
	}
	hook := f.decodeHook
	f.mu.Unlock()
	if !ok {
		return errors.New("decode on freed context")
	}
	if hook != nil && len(tokens) == 1 {
		hook()
	}
	return nil
}

func (f *fakeBackend) NewSampler(model backend.Handle, p backend.SamplingParams) (backend.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.handle()
	f.samplers[h] = p.Grammar
	return h, nil
}

func (f *fakeBackend) Sample(ctx, sampler backend.Handle) (backend.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.ctxs[ctx]
	if !ok {
		return 0, errors.New("sample on freed context")
	}
	if c.cursor >= len(c.script) {
		return fakeEOG, nil
	}
	f.nextTok++
	f.pieces[f.nextTok] = []byte(c.script[c.cursor])
	c.cursor++
	return f.nextTok, nil
}

func (f *fakeBackend) Piece(model backend.Handle, t backend.Token) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pieces[t]
}

func (f *fakeBackend) IsEOG(model backend.Handle, t backend.Token) bool { return t == fakeEOG }

func (f *fakeBackend) FreeSampler(h backend.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.samplers[h]; !ok {
		f.doubleFrees++
	}
	delete(f.samplers, h)
}

func (f *fakeBackend) FreeContext(h backend.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ctxs[h]; !ok {
		f.doubleFrees++
	}
	delete(f.ctxs, h)
}

func (f *fakeBackend) FreeModel(h backend.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.models[h] {
		f.doubleFrees++
	}
	delete(f.models, h)
}

func (f *fakeBackend) Accelerator() backend.Accelerator { return backend.Accelerator{} }

// live returns the number of models, contexts and samplers not yet freed.
func (f *fakeBackend) live() (models, ctxs, samplers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.models), len(f.ctxs), len(f.samplers)
}

func (f *fakeBackend) contextsCreated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxCreated
}

func (f *fakeBackend) frees() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doubleFrees
}

// fakeProvider caches one model and reloads it after a force stop.
type fakeProvider struct {
	b  backend.Backend
	mu sync.Mutex
	m  *Model
}

func (p *fakeProvider) Model(_ context.Context, layers int) (*Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m != nil && !p.m.Closed() && p.m.GPULayers() == layers {
		return p.m, nil
	}
	if p.m != nil {
		p.m.Close()
	}
	m, err := LoadModel(p.b, "/models/test.gguf", backend.ModelParams{GPULayers: layers})
	if err != nil {
		return nil, err
	}
	p.m = m
	return m, nil
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testPolicy(t *testing.T) *SizingPolicy {
	t.Helper()
	p, err := NewSizingPolicy(SizingConfig{})
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return p
}

func cpuDevice() device.Capability { return device.Capability{MemoryMB: 8192} }

// openTestSession loads a model and opens a session on fb.
func openTestSession(t *testing.T, fb *fakeBackend) *Session {
	t.Helper()
	m, err := LoadModel(fb, "/models/test.gguf", backend.ModelParams{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	d, err := testPolicy(t).Decide(10, cpuDevice())
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	s, err := OpenSession(fb, m, d)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.CompileGrammar(backend.DefaultSamplingParams()); err != nil {
		t.Fatalf("compile: %v", err)
	}
	return s
}
