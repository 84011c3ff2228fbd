package cloud

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"structd/internal/engine"
	"structd/internal/grammar"
)

func TestStepsEnvelopeAndPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing auth header")
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write([]byte(`{"content":"{\"steps\":[]}"}`))
	}))
	defer srv.Close()

	c := New(Config{StepsURL: srv.URL, APIKey: "k"}, zerolog.Nop())
	out, err := c.Steps(context.Background(), engine.CloudRequest{Input: "do x", Variant: grammar.VariantLong, Grammar: "root ::= x"})
	if err != nil {
		t.Fatalf("steps: %v", err)
	}
	if out != `{"steps":[]}` {
		t.Fatalf("out=%q", out)
	}
	if got["prompt"] != "do x" || got["withDescription"] != true || got["grammarScheme"] != "root ::= x" {
		t.Fatalf("payload=%v", got)
	}
}

func TestStepsClipSendsSubtitles(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write([]byte(`{"steps":[]}`))
	}))
	defer srv.Close()

	c := New(Config{StepsURL: srv.URL, Legacy: true}, zerolog.Nop())
	out, err := c.Steps(context.Background(), engine.CloudRequest{Input: "00:01 hi", Variant: grammar.VariantClip})
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"steps":[]}` {
		t.Fatalf("legacy body should pass through, got %q", out)
	}
	if got["subtitles"] != "00:01 hi" || got["withDescription"] != false {
		t.Fatalf("payload=%v", got)
	}
	if _, ok := got["prompt"]; ok {
		t.Fatalf("clip request should not carry prompt: %v", got)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   engine.Kind
	}{
		{http.StatusRequestEntityTooLarge, engine.KindInputTooLong},
		{http.StatusInternalServerError, engine.KindBackendUnavailable},
		{http.StatusBadRequest, engine.KindBackendUnavailable},
		{http.StatusServiceUnavailable, engine.KindBackendUnavailable},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := New(Config{StepsURL: srv.URL}, zerolog.Nop())
		_, err := c.Steps(context.Background(), engine.CloudRequest{Input: "x"})
		srv.Close()
		if engine.KindOf(err) != tc.kind {
			t.Fatalf("status %d: got %v", tc.status, err)
		}
	}
}

func TestRedirectClassIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()
	c := New(Config{StepsURL: srv.URL, Legacy: true}, zerolog.Nop())
	if _, err := c.Steps(context.Background(), engine.CloudRequest{Input: "x"}); err != nil {
		t.Fatalf("3xx should not fail: %v", err)
	}
}

func TestRawEndpoint(t *testing.T) {
	var got rawPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write([]byte(`{"response":"word, word"}`))
	}))
	defer srv.Close()
	c := New(Config{RawURL: srv.URL}, zerolog.Nop())
	out, err := c.Raw(context.Background(), "vocab", "cooking")
	if err != nil {
		t.Fatal(err)
	}
	if out != "word, word" || got.Prompt != "vocab" || got.ExtraInfo != "cooking" {
		t.Fatalf("out=%q payload=%+v", out, got)
	}
}

func TestUnconfiguredAndMalformed(t *testing.T) {
	c := New(Config{}, zerolog.Nop())
	if _, err := c.Steps(context.Background(), engine.CloudRequest{}); engine.KindOf(err) != engine.KindBackendUnavailable {
		t.Fatalf("unconfigured steps: %v", err)
	}
	if _, err := c.Raw(context.Background(), "a", ""); engine.KindOf(err) != engine.KindBackendUnavailable {
		t.Fatalf("unconfigured raw: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()
	c = New(Config{StepsURL: srv.URL}, zerolog.Nop())
	if _, err := c.Steps(context.Background(), engine.CloudRequest{Input: "x"}); engine.KindOf(err) != engine.KindBackendUnavailable {
		t.Fatalf("malformed: %v", err)
	}
}

func TestDeadlineSurfacesContextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	c := New(Config{StepsURL: srv.URL}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Steps(ctx, engine.CloudRequest{Input: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
