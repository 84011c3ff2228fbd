package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"structd/internal/backend"
	"structd/internal/device"
	"structd/pkg/types"
)

const (
	validLong = `{"steps":[{"step_name":"X","step_description":"do X"},{"step_name":"Y","step_description":"do Y"}]}`
	fakeEOG   = backend.Token(1 << 20)
)

// chunks splits s into pieces of n bytes, the way a tokenizer would stream it.
func chunks(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

// fakeBackend replays one script of pieces on every context. It tracks live
// handles so tests can assert that stops free everything.
type fakeBackend struct {
	mu      sync.Mutex
	script  []string
	nextID  backend.Handle
	nextTok backend.Token
	pieces  map[backend.Token][]byte

	models   map[backend.Handle]bool
	ctxs     map[backend.Handle]int // cursor
	samplers map[backend.Handle]bool

	modelLoads int
	loadErr    error
	// decodeHook runs outside the lock on every single-token decode.
	decodeHook func()
}

func newFakeBackend(script ...string) *fakeBackend {
	return &fakeBackend{
		script:   script,
		pieces:   map[backend.Token][]byte{},
		models:   map[backend.Handle]bool{},
		ctxs:     map[backend.Handle]int{},
		samplers: map[backend.Handle]bool{},
	}
}

func (f *fakeBackend) LoadModel(string, backend.ModelParams) (backend.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return 0, f.loadErr
	}
	f.modelLoads++
	f.nextID++
	f.models[f.nextID] = true
	return f.nextID, nil
}

func (f *fakeBackend) NewContext(model backend.Handle, _ backend.ContextParams) (backend.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.models[model] {
		return 0, errors.New("unknown model")
	}
	f.nextID++
	f.ctxs[f.nextID] = 0
	return f.nextID, nil
}

func (f *fakeBackend) Tokenize(_ backend.Handle, text string, addBOS bool) ([]backend.Token, error) {
	n := len(strings.Fields(text))
	if addBOS {
		n++
	}
	return make([]backend.Token, n), nil
}

func (f *fakeBackend) Decode(ctx backend.Handle, tokens []backend.Token, _ bool) error {
	f.mu.Lock()
	_, ok := f.ctxs[ctx]
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

func (f *fakeBackend) NewSampler(backend.Handle, backend.SamplingParams) (backend.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.samplers[f.nextID] = true
	return f.nextID, nil
}

func (f *fakeBackend) Sample(ctx, _ backend.Handle) (backend.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.ctxs[ctx]
	if !ok {
		return 0, errors.New("sample on freed context")
	}
	if cur >= len(f.script) {
		return fakeEOG, nil
	}
	f.nextTok++
	f.pieces[f.nextTok] = []byte(f.script[cur])
	f.ctxs[ctx] = cur + 1
	return f.nextTok, nil
}

func (f *fakeBackend) Piece(_ backend.Handle, t backend.Token) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pieces[t]
}

func (f *fakeBackend) IsEOG(_ backend.Handle, t backend.Token) bool { return t == fakeEOG }

func (f *fakeBackend) FreeSampler(h backend.Handle) {
	f.mu.Lock()
	delete(f.samplers, h)
	f.mu.Unlock()
}

func (f *fakeBackend) FreeContext(h backend.Handle) {
	f.mu.Lock()
	delete(f.ctxs, h)
	f.mu.Unlock()
}

func (f *fakeBackend) FreeModel(h backend.Handle) {
	f.mu.Lock()
	delete(f.models, h)
	f.mu.Unlock()
}

func (f *fakeBackend) Accelerator() backend.Accelerator { return backend.Accelerator{} }

func (f *fakeBackend) live() (models, ctxs, samplers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.models), len(f.ctxs), len(f.samplers)
}

func (f *fakeBackend) loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modelLoads
}

// createModelFile writes a small placeholder model file and returns its path.
func createModelFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("GGUF"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return p
}

// newTestManager builds a manager over fb with one registered model. Extra
// options adjust the config before construction.
func newTestManager(t *testing.T, fb *fakeBackend, opts ...func(*ManagerConfig)) (*Manager, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher()
	path := createModelFile(t, t.TempDir(), "tiny-q4_k_m.gguf")
	cfg := ManagerConfig{
		Backend:  fb,
		Registry: []types.Model{{ID: "tiny-q4_k_m", Name: "tiny-q4_k_m.gguf", Path: path}},
		Device:   device.Capability{MemoryMB: 8192},
		Events:   pub,
		Metrics:  prometheus.NewRegistry(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	m, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m, pub
}

// fakeAdapter is a lightweight in-memory adapter used for tests.
type fakeAdapter struct {
	startErr   error
	genErr     error
	tokens     []string
	receivedMP string
	prompt     string
	params     InferParams
}

func (f *fakeAdapter) Start(modelPath string, params InferParams) (InferSession, error) {
	f.receivedMP = modelPath
	f.params = params
	if f.startErr != nil {
		return nil, f.startErr
	}
	return fakeSession{f: f}, nil
}

type fakeSession struct{ f *fakeAdapter }

func (s fakeSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (FinalResult, error) {
	s.f.prompt = prompt
	if s.f.genErr != nil {
		return FinalResult{}, s.f.genErr
	}
	var b strings.Builder
	for _, t := range s.f.tokens {
		select {
		case <-ctx.Done():
			return FinalResult{}, ctx.Err()
		default:
		}
		if onToken != nil {
			if err := onToken(t); err != nil {
				return FinalResult{}, err
			}
		}
		b.WriteString(t)
	}
	return FinalResult{Content: b.String(), FinishReason: "stop"}, nil
}

func (s fakeSession) Close() error { return nil }

// errWriter writes once, then returns an error on subsequent writes.
type errWriter struct{ wrote int }

func (e *errWriter) Write(p []byte) (int, error) {
	if e.wrote == 0 {
		e.wrote += len(p)
		return len(p), nil
	}
	return 0, errors.New("write fail")
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}
