//go:build llamacpp

package backend

// cgo link directives for the in-process llama.cpp backend.
// - rpath $ORIGIN lets the loader find libllama.so and libggml*.so next to
//   the built binary (./bin).
// - -L${SRCDIR}/../../bin finds libllama.so at link time.

/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
#include <stdlib.h>
#include "llama.h"
*/
import "C"

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"unsafe"
)

var initOnce sync.Once

// New returns the backend compiled into this binary.
func New() Backend {
	initOnce.Do(func() { C.llama_backend_init() })
	return &llamaBackend{
		models:   make(map[Handle]*C.struct_llama_model),
		contexts: make(map[Handle]*C.struct_llama_context),
		samplers: make(map[Handle]*C.struct_llama_sampler),
	}
}

// Built reports whether a real native backend is compiled in.
func Built() bool { return true }

// llamaBackend maps opaque handles to C pointers so no C address ever
// round-trips through a Go integer.
type llamaBackend struct {
	mu       sync.Mutex
	next     Handle
	models   map[Handle]*C.struct_llama_model
	contexts map[Handle]*C.struct_llama_context
	samplers map[Handle]*C.struct_llama_sampler
}

func (b *llamaBackend) newHandle() Handle {
	b.next++
	return b.next
}

func (b *llamaBackend) model(h Handle) *C.struct_llama_model {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.models[h]
}

func (b *llamaBackend) context(h Handle) *C.struct_llama_context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contexts[h]
}

func (b *llamaBackend) sampler(h Handle) *C.struct_llama_sampler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samplers[h]
}

func (b *llamaBackend) LoadModel(path string, p ModelParams) (Handle, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	mp := C.llama_model_default_params()
	mp.n_gpu_layers = C.int32_t(p.GPULayers)
	mp.use_mmap = C.bool(p.UseMmap)
	m := C.llama_model_load_from_file(cpath, mp)
	if m == nil {
		return 0, fmt.Errorf("llama: failed to load model from %q", path)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.newHandle()
	b.models[h] = m
	return h, nil
}

func (b *llamaBackend) NewContext(model Handle, p ContextParams) (Handle, error) {
	m := b.model(model)
	if m == nil {
		return 0, fmt.Errorf("llama: unknown model handle %d", model)
	}
	cp := C.llama_context_default_params()
	cp.n_ctx = C.uint32_t(p.ContextLength)
	cp.n_batch = C.uint32_t(p.BatchLength)
	cp.n_ubatch = C.uint32_t(p.BatchLength)
	cp.n_threads = C.int32_t(p.Threads)
	cp.n_threads_batch = C.int32_t(p.Threads)
	c := C.llama_init_from_model(m, cp)
	if c == nil {
		return 0, fmt.Errorf("llama: failed to create context (n_ctx=%d)", p.ContextLength)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.newHandle()
	b.contexts[h] = c
	return h, nil
}

func (b *llamaBackend) Tokenize(model Handle, text string, addBOS bool) ([]Token, error) {
	m := b.model(model)
	if m == nil {
		return nil, fmt.Errorf("llama: unknown model handle %d", model)
	}
	vocab := C.llama_model_get_vocab(m)
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	size := len(text) + 2
	for attempt := 0; attempt < 2; attempt++ {
		buf := (*C.llama_token)(C.malloc(C.size_t(size) * C.size_t(unsafe.Sizeof(C.llama_token(0)))))
		n := C.llama_tokenize(vocab, ctext, C.int32_t(len(text)), buf, C.int32_t(size), C.bool(addBOS), C.bool(false))
		if n >= 0 {
			src := unsafe.Slice((*int32)(unsafe.Pointer(buf)), int(n))
			out := make([]Token, int(n))
			for i, t := range src {
				out[i] = Token(t)
			}
			C.free(unsafe.Pointer(buf))
			return out, nil
		}
		C.free(unsafe.Pointer(buf))
		size = int(-n)
	}
	return nil, fmt.Errorf("llama: tokenization failed for %d bytes", len(text))
}

func (b *llamaBackend) Decode(ctx Handle, tokens []Token, logitsLast bool) error {
	c := b.context(ctx)
	if c == nil {
		return fmt.Errorf("llama: unknown context handle %d", ctx)
	}
	if len(tokens) == 0 {
		return nil
	}
	// Copy into C memory: the batch struct must not carry Go pointers.
	buf := (*C.llama_token)(C.malloc(C.size_t(len(tokens)) * C.size_t(unsafe.Sizeof(C.llama_token(0)))))
	defer C.free(unsafe.Pointer(buf))
	dst := unsafe.Slice((*int32)(unsafe.Pointer(buf)), len(tokens))
	for i, t := range tokens {
		dst[i] = int32(t)
	}
	// llama_batch_get_one only requests logits for the final position.
	_ = logitsLast
	batch := C.llama_batch_get_one(buf, C.int32_t(len(tokens)))
	if rc := C.llama_decode(c, batch); rc != 0 {
		if rc == 1 {
			return fmt.Errorf("llama: KV cache full (decode rc=1)")
		}
		return fmt.Errorf("llama: decode failed with code %d", int(rc))
	}
	return nil
}

func (b *llamaBackend) NewSampler(model Handle, p SamplingParams) (Handle, error) {
	m := b.model(model)
	if m == nil {
		return 0, fmt.Errorf("llama: unknown model handle %d", model)
	}
	vocab := C.llama_model_get_vocab(m)
	chain := C.llama_sampler_chain_init(C.llama_sampler_chain_default_params())

	if strings.TrimSpace(p.Grammar) != "" {
		root := p.GrammarRoot
		if root == "" {
			root = "root"
		}
		cg := C.CString(p.Grammar)
		cr := C.CString(root)
		g := C.llama_sampler_init_grammar(vocab, cg, cr)
		C.free(unsafe.Pointer(cg))
		C.free(unsafe.Pointer(cr))
		if g == nil {
			C.llama_sampler_free(chain)
			return 0, fmt.Errorf("llama: grammar failed to compile")
		}
		C.llama_sampler_chain_add(chain, g)
	}
	if p.TopK > 0 {
		C.llama_sampler_chain_add(chain, C.llama_sampler_init_top_k(C.int32_t(p.TopK)))
	}
	if p.TopP > 0 && p.TopP < 1 {
		C.llama_sampler_chain_add(chain, C.llama_sampler_init_top_p(C.float(p.TopP), 2))
	}
	if p.MinP > 0 {
		C.llama_sampler_chain_add(chain, C.llama_sampler_init_min_p(C.float(p.MinP), 2))
	}
	if p.Temperature > 0 {
		C.llama_sampler_chain_add(chain, C.llama_sampler_init_temp(C.float(p.Temperature)))
		C.llama_sampler_chain_add(chain, C.llama_sampler_init_dist(C.uint32_t(p.Seed)))
	} else {
		C.llama_sampler_chain_add(chain, C.llama_sampler_init_greedy())
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.newHandle()
	b.samplers[h] = chain
	return h, nil
}

func (b *llamaBackend) Sample(ctx, sampler Handle) (Token, error) {
	c := b.context(ctx)
	s := b.sampler(sampler)
	if c == nil || s == nil {
		return 0, fmt.Errorf("llama: unknown context %d or sampler %d", ctx, sampler)
	}
	// llama_sampler_sample also accepts the token into the chain.
	return Token(C.llama_sampler_sample(s, c, -1)), nil
}

func (b *llamaBackend) Piece(model Handle, t Token) []byte {
	m := b.model(model)
	if m == nil {
		return nil
	}
	vocab := C.llama_model_get_vocab(m)
	size := 16
	for attempt := 0; attempt < 2; attempt++ {
		buf := (*C.char)(C.malloc(C.size_t(size)))
		n := C.llama_token_to_piece(vocab, C.llama_token(t), buf, C.int32_t(size), 0, C.bool(false))
		if n >= 0 {
			out := C.GoBytes(unsafe.Pointer(buf), n)
			C.free(unsafe.Pointer(buf))
			return out
		}
		C.free(unsafe.Pointer(buf))
		size = int(-n)
	}
	return nil
}

func (b *llamaBackend) IsEOG(model Handle, t Token) bool {
	m := b.model(model)
	if m == nil {
		return true
	}
	return bool(C.llama_vocab_is_eog(C.llama_model_get_vocab(m), C.llama_token(t)))
}

func (b *llamaBackend) FreeSampler(h Handle) {
	b.mu.Lock()
	s := b.samplers[h]
	delete(b.samplers, h)
	b.mu.Unlock()
	if s != nil {
		C.llama_sampler_free(s)
	}
}

func (b *llamaBackend) FreeContext(h Handle) {
	b.mu.Lock()
	c := b.contexts[h]
	delete(b.contexts, h)
	b.mu.Unlock()
	if c != nil {
		C.llama_free(c)
	}
}

func (b *llamaBackend) FreeModel(h Handle) {
	b.mu.Lock()
	m := b.models[h]
	delete(b.models, h)
	b.mu.Unlock()
	if m != nil {
		C.llama_model_free(m)
	}
}

func (b *llamaBackend) Accelerator() Accelerator {
	if !bool(C.llama_supports_gpu_offload()) {
		return Accelerator{}
	}
	return Accelerator{Available: true, Name: acceleratorName()}
}

// acceleratorName guesses the GPU family llama.cpp was built with; llama.h
// does not expose it.
func acceleratorName() string {
	switch runtime.GOOS {
	case "darwin":
		return "Metal"
	case "windows", "linux":
		return "CUDA"
	default:
		return "GPU"
	}
}
