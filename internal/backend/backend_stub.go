//go:build !llamacpp

package backend

// This file provides a no-CGO stub. It is compiled when the 'llamacpp' build
// tag is NOT set, keeping default builds and CI CGO-free. Local generation
// fails fast; the cloud path keeps working.

type stubBackend struct{}

// New returns the backend compiled into this binary.
func New() Backend { return stubBackend{} }

// Built reports whether a real native backend is compiled in.
func Built() bool { return false }

func (stubBackend) LoadModel(string, ModelParams) (Handle, error) { return 0, ErrUnavailable }

func (stubBackend) NewContext(Handle, ContextParams) (Handle, error) { return 0, ErrUnavailable }

func (stubBackend) Tokenize(Handle, string, bool) ([]Token, error) { return nil, ErrUnavailable }

func (stubBackend) Decode(Handle, []Token, bool) error { return ErrUnavailable }

func (stubBackend) NewSampler(Handle, SamplingParams) (Handle, error) { return 0, ErrUnavailable }

func (stubBackend) Sample(Handle, Handle) (Token, error) { return 0, ErrUnavailable }

func (stubBackend) Piece(Handle, Token) []byte { return nil }

func (stubBackend) IsEOG(Handle, Token) bool { return true }

func (stubBackend) FreeSampler(Handle) {}

func (stubBackend) FreeContext(Handle) {}

func (stubBackend) FreeModel(Handle) {}

func (stubBackend) Accelerator() Accelerator { return Accelerator{} }
