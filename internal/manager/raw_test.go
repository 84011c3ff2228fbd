package manager

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"structd/internal/cloud"
	"structd/internal/device"
	"structd/internal/engine"
	"structd/pkg/types"
)

func TestGenerateRawEngineAdapter(t *testing.T) {
	fb := newFakeBackend("pasta", ", boil", ", salt")
	m, _ := newTestManager(t, fb)
	resp, err := m.GenerateRaw(testCtx(t), types.RawRequest{Input: "List three cooking words."})
	if err != nil {
		t.Fatalf("raw: %v", err)
	}
	if resp.Content != "pasta, boil, salt" || resp.Backend != "local" {
		t.Fatalf("resp=%+v", resp)
	}
	if m.Status().LastSizing == nil {
		t.Fatal("sizing should be recorded for local raw requests")
	}
}

func TestGenerateRawFoldsExtraContextLocally(t *testing.T) {
	m, _ := newTestManager(t, newFakeBackend())
	fa := &fakeAdapter{tokens: []string{"a", "b"}}
	m.adapter = fa
	resp, err := m.GenerateRaw(testCtx(t), types.RawRequest{Input: "words", ExtraContext: "beginner"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "ab" {
		t.Fatalf("content=%q", resp.Content)
	}
	if fa.prompt != "words\n\nbeginner" {
		t.Fatalf("prompt=%q", fa.prompt)
	}
	if fa.receivedMP != m.model.Path {
		t.Fatalf("model path=%q", fa.receivedMP)
	}
}

func TestGenerateRawAdapterErrors(t *testing.T) {
	m, pub := newTestManager(t, newFakeBackend())
	m.adapter = &fakeAdapter{startErr: ErrDependencyUnavailable("llama support not built")}
	_, err := m.GenerateRaw(testCtx(t), types.RawRequest{Input: "x"})
	if !IsDependencyUnavailable(err) {
		t.Fatalf("err=%v", err)
	}
	boom := errors.New("boom")
	m.adapter = &fakeAdapter{genErr: boom}
	if _, err := m.GenerateRaw(testCtx(t), types.RawRequest{Input: "x"}); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if _, err := m.GenerateRaw(testCtx(t), types.RawRequest{}); engine.KindOf(err) != engine.KindEmptyOrInvalidInput {
		t.Fatalf("err=%v", err)
	}
	failed := 0
	for _, e := range pub.Events() {
		if e.Name == "generate_failed" {
			failed++
		}
	}
	if failed != 2 {
		t.Fatalf("failed events=%d", failed)
	}
}

func TestGenerateRawCloud(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "remote words"})
	}))
	defer srv.Close()
	cc := cloud.New(cloud.Config{RawURL: srv.URL}, zerolog.Nop())
	m, _ := newTestManager(t, newFakeBackend(), func(c *ManagerConfig) { c.Cloud = cc })

	resp, err := m.GenerateRaw(testCtx(t), types.RawRequest{Input: "words", ExtraContext: "beginner", UseCloud: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "remote words" || resp.Backend != "cloud" {
		t.Fatalf("resp=%+v", resp)
	}
	if got["prompt"] != "words" || got["extraInfo"] != "beginner" {
		t.Fatalf("payload=%v", got)
	}
}

func TestGenerateRawCloudUnconfigured(t *testing.T) {
	m, _ := newTestManager(t, newFakeBackend())
	_, err := m.GenerateRaw(testCtx(t), types.RawRequest{Input: "x", UseCloud: true})
	if !IsDependencyUnavailable(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestLlamaAdapterStubUnavailable(t *testing.T) {
	if llamaBuilt {
		t.Skip("built with llama support")
	}
	_, err := NewLlamaAdapter(nil, device.Capability{}).Start("/models/x.gguf", InferParams{})
	if !IsDependencyUnavailable(err) {
		t.Fatalf("err=%v", err)
	}
}

// blockingAdapter holds its session until the request context ends, then
// takes a moment to close, like a native runtime freeing its model.
type blockingAdapter struct {
	started chan struct{}
	closed  atomic.Bool
}

func (a *blockingAdapter) Start(string, InferParams) (InferSession, error) { return a, nil }

func (a *blockingAdapter) Generate(ctx context.Context, _ string, _ func(string) error) (FinalResult, error) {
	close(a.started)
	<-ctx.Done()
	return FinalResult{}, ctx.Err()
}

func (a *blockingAdapter) Close() error {
	time.Sleep(20 * time.Millisecond)
	a.closed.Store(true)
	return nil
}

func TestStopWaitsForRawSessionClose(t *testing.T) {
	m, _ := newTestManager(t, newFakeBackend())
	a := &blockingAdapter{started: make(chan struct{})}
	m.adapter = a
	errc := make(chan error, 1)
	go func() {
		_, err := m.GenerateRaw(testCtx(t), types.RawRequest{Input: "x"})
		errc <- err
	}()
	select {
	case <-a.started:
	case <-time.After(2 * time.Second):
		t.Fatal("raw request did not start")
	}
	if !m.Stop() {
		t.Fatal("expected an active request")
	}
	if !a.closed.Load() {
		t.Fatal("Stop returned before the adapter session was closed")
	}
	if err := <-errc; !engine.IsInterrupted(err) {
		t.Fatalf("err=%v", err)
	}
	// the finished request leaves nothing for a later Stop to wait on
	if m.Stop() {
		t.Fatal("nothing should be active")
	}
}
