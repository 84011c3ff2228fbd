package engine

import (
	"strings"
	"sync"

	"structd/internal/backend"
)

// Model owns a loaded model handle. Loading is the expensive step, so a
// Model outlives individual sessions; ForceStop on a session closes it and
// the owner must load it again.
type Model struct {
	b      backend.Backend
	path   string
	params backend.ModelParams

	mu     sync.Mutex
	h      backend.Handle
	closed bool
}

// LoadModel loads the weights at path. Failures are KindModelLoadFailed.
func LoadModel(b backend.Backend, path string, p backend.ModelParams) (*Model, error) {
	if strings.TrimSpace(path) == "" {
		return nil, newError(KindModelLoadFailed, "model path is empty", nil)
	}
	h, err := b.LoadModel(path, p)
	if err != nil {
		return nil, newError(KindModelLoadFailed, "load model "+path, err)
	}
	return &Model{b: b, path: path, params: p, h: h}, nil
}

// Path returns the file the model was loaded from.
func (m *Model) Path() string { return m.path }

// GPULayers returns the offload used at load time.
func (m *Model) GPULayers() int { return m.params.GPULayers }

// handle returns the native handle, or false once closed.
func (m *Model) handle() (backend.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, false
	}
	return m.h, true
}

// Tokenize converts text with the model vocabulary. It needs no context, so
// prompts can be measured before a session is sized.
func (m *Model) Tokenize(text string, addBOS bool) ([]backend.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, newError(KindModelLoadFailed, "model was released", nil)
	}
	return m.b.Tokenize(m.h, text, addBOS)
}

// Closed reports whether the model handle has been freed.
func (m *Model) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close frees the model. Safe to call more than once.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.b.FreeModel(m.h)
	m.h = 0
}
