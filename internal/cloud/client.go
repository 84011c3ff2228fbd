// Package cloud talks to the remote structured-generation service.
package cloud

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"structd/internal/engine"
	"structd/internal/grammar"
)

const maxResponseBytes = 8 << 20

// Config describes the remote endpoints.
type Config struct {
	StepsURL string
	RawURL   string
	APIKey   string
	// Legacy services answer with the document itself instead of a
	// {"content": ...} envelope.
	Legacy         bool
	ConnectTimeout time.Duration
}

// Client implements engine.CloudClient over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// New builds a client. Requests carry no client-level timeout; deadlines
// come from the caller's context.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{cfg: cfg, http: &http.Client{Transport: tr}, log: log}
}

// Configured reports whether a structured endpoint is set.
func (c *Client) Configured() bool { return c != nil && c.cfg.StepsURL != "" }

// RawConfigured reports whether a free-text endpoint is set.
func (c *Client) RawConfigured() bool { return c != nil && c.cfg.RawURL != "" }

type stepsPayload struct {
	Prompt          string `json:"prompt,omitempty"`
	Subtitles       string `json:"subtitles,omitempty"`
	WithDescription bool   `json:"withDescription"`
	GrammarScheme   string `json:"grammarScheme,omitempty"`
	SystemPrompt    string `json:"systemPrompt,omitempty"`
}

type rawPayload struct {
	Prompt    string `json:"prompt"`
	ExtraInfo string `json:"extraInfo"`
}

type envelope struct {
	Content  *string `json:"content"`
	Response *string `json:"response"`
}

// Steps posts a structured request and returns the step document text.
func (c *Client) Steps(ctx context.Context, req engine.CloudRequest) (string, error) {
	if !c.Configured() {
		return "", engine.ErrBackendUnavailable("no cloud endpoint configured", nil)
	}
	p := stepsPayload{
		WithDescription: req.Variant == grammar.VariantLong,
		GrammarScheme:   req.Grammar,
		SystemPrompt:    req.System,
	}
	if req.Variant == grammar.VariantClip {
		p.Subtitles = req.Input
	} else {
		p.Prompt = req.Input
	}
	return c.post(ctx, c.cfg.StepsURL, p)
}

// Raw posts a free-text request with optional extra context.
func (c *Client) Raw(ctx context.Context, prompt, extraInfo string) (string, error) {
	if !c.RawConfigured() {
		return "", engine.ErrBackendUnavailable("no cloud raw endpoint configured", nil)
	}
	return c.post(ctx, c.cfg.RawURL, rawPayload{Prompt: prompt, ExtraInfo: extraInfo})
}

func (c *Client) post(ctx context.Context, url string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode cloud request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", engine.ErrBackendUnavailable("build cloud request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("cloud request: %w", ctx.Err())
		}
		return "", engine.ErrBackendUnavailable("cloud request failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("read cloud response: %w", ctx.Err())
		}
		return "", engine.ErrBackendUnavailable("read cloud response", err)
	}
	c.log.Debug().Str("url", url).Int("status", resp.StatusCode).Dur("dur", time.Since(start)).Msg("cloud call")

	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return "", &engine.Error{Kind: engine.KindInputTooLong, Msg: "text is too long for the cloud backend"}
	case resp.StatusCode < 200 || resp.StatusCode >= 400:
		return "", engine.ErrBackendUnavailable(fmt.Sprintf("cloud returned status %d", resp.StatusCode), errors.New(snippet(data)))
	}
	if c.cfg.Legacy {
		return strings.TrimSpace(string(data)), nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", engine.ErrBackendUnavailable("malformed cloud response", err)
	}
	switch {
	case env.Content != nil:
		return *env.Content, nil
	case env.Response != nil:
		return *env.Response, nil
	default:
		return "", engine.ErrBackendUnavailable("cloud response has no content", nil)
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
