package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"structd/internal/grammar"
	"structd/internal/manager"
	"structd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
	SanityCheck() manager.SanityReport
	Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error
	GenerateRaw(ctx context.Context, req types.RawRequest) (types.RawResponse, error)
	Stop() bool
	MemoryPressure() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if c := corsMiddleware(); c != nil {
		r.Use(c)
	}
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc}
	r.Get("/models", h.models)
	r.Get("/grammars", h.grammars)
	r.Get("/status", h.status)
	r.Get("/sanity", h.sanity)
	r.Post("/generate", h.generate)
	r.Post("/generate/raw", h.generateRaw)
	r.Post("/stop", h.stop)
	r.Post("/memory-pressure", h.memoryPressure)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

type handlers struct {
	svc Service
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "", "failed to encode response")
	}
}

// decodeJSON enforces the JSON content type and body limit, then decodes
// into v. It writes the error response itself and reports success.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "", "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "input_too_long", "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "empty_or_invalid_input", "invalid JSON body")
		return false
	}
	return true
}

// requestLogger returns the per-request logger, tagged with chi's request id.
func requestLogger(r *http.Request) zerolog.Logger {
	l := zlog.With().Str("path", r.URL.Path)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		l = l.Str("request_id", rid)
	}
	return l.Logger()
}

// models godoc
//
//	@Summary	List registered models
//	@Tags		models
//	@Produce	json
//	@Success	200	{object}	types.ModelsResponse
//	@Router		/models [get]
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.ModelsResponse{Models: h.svc.ListModels()})
}

// grammars godoc
//
//	@Summary	List builtin grammars
//	@Tags		generation
//	@Produce	json
//	@Success	200	{object}	map[string][]string
//	@Router		/grammars [get]
func (h *handlers) grammars(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string][]string{"grammars": grammar.Builtins()})
}

// status godoc
//
//	@Summary	Runtime status
//	@Tags		ops
//	@Produce	json
//	@Success	200	{object}	types.StatusResponse
//	@Router		/status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Status())
}

// sanity godoc
//
//	@Summary	Dependency checks
//	@Tags		ops
//	@Produce	json
//	@Success	200	{object}	manager.SanityReport
//	@Router		/sanity [get]
func (h *handlers) sanity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.SanityCheck())
}

// generate godoc
//
//	@Summary		Structured generation
//	@Description	Streams NDJSON: {"preview": ...} lines while generating, then one {"done": true, ...} line.
//	@Description	Errors before the first line use the status code; later errors arrive as a final error line.
//	@Tags			generation
//	@Accept			json
//	@Produce		x-ndjson
//	@Param			request	body		types.GenerateRequest	true	"generation request"
//	@Success		200		{object}	types.DoneLine
//	@Failure		400		{object}	types.ErrorResponse
//	@Failure		413		{object}	types.ErrorResponse
//	@Failure		422		{object}	types.ErrorResponse
//	@Failure		429		{object}	types.ErrorResponse
//	@Failure		499		{object}	types.ErrorResponse
//	@Failure		503		{object}	types.ErrorResponse
//	@Failure		507		{object}	types.ErrorResponse
//	@Router			/generate [post]
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	lvl := requestLogLevel(r)
	log := requestLogger(r)
	start := time.Now()
	if lvl >= LevelInfo {
		log.Info().Bool("use_cloud", req.UseCloud).Str("grammar", req.Grammar).Msg("generate start")
	}

	sw := &streamWriter{w: w}
	out := io.Writer(sw)
	if lvl >= LevelDebug {
		out = io.MultiWriter(sw, &lineLogger{log: log})
	}
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	err := h.svc.Generate(ctx, req, out, flush)
	if err == nil {
		if lvl >= LevelInfo {
			log.Info().Int("status", http.StatusOK).Dur("dur", time.Since(start)).Msg("generate end")
		}
		return
	}
	// If the client went away or the server is shutting down, nobody reads the answer.
	if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
		return
	}
	status, kind := statusFor(err)
	if sw.started {
		streamErrorsTotal.WithLabelValues(kind).Inc()
		_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: err.Error(), Kind: kind, Code: status})
		if flush != nil {
			flush()
		}
	} else {
		writeError(w, err)
	}
	if lvl >= LevelError {
		log.Warn().Int("status", status).Str("kind", kind).Dur("dur", time.Since(start)).Err(err).Msg("generate end")
	}
}

// generateRaw godoc
//
//	@Summary	Free-text completion
//	@Tags		generation
//	@Accept		json
//	@Produce	json
//	@Param		request	body		types.RawRequest	true	"raw request"
//	@Success	200		{object}	types.RawResponse
//	@Failure	400		{object}	types.ErrorResponse
//	@Failure	429		{object}	types.ErrorResponse
//	@Failure	503		{object}	types.ErrorResponse
//	@Router		/generate/raw [post]
func (h *handlers) generateRaw(w http.ResponseWriter, r *http.Request) {
	var req types.RawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	log := requestLogger(r)
	start := time.Now()
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	resp, err := h.svc.GenerateRaw(ctx, req)
	if err != nil {
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		status := writeError(w, err)
		if requestLogLevel(r) >= LevelError {
			log.Warn().Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("raw end")
		}
		return
	}
	if requestLogLevel(r) >= LevelInfo {
		log.Info().Int("status", http.StatusOK).Str("backend", resp.Backend).Dur("dur", time.Since(start)).Msg("raw end")
	}
	writeJSON(w, resp)
}

// stop godoc
//
//	@Summary		Stop the in-flight request
//	@Description	Returns after the request's local resources are freed.
//	@Tags			ops
//	@Produce		json
//	@Success		200	{object}	types.StopResponse
//	@Router			/stop [post]
func (h *handlers) stop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.StopResponse{Stopped: h.svc.Stop()})
}

// memoryPressure godoc
//
//	@Summary		Signal low memory
//	@Description	Stops the in-flight request (reported as out_of_memory) or releases the idle model.
//	@Tags			ops
//	@Produce		json
//	@Success		200	{object}	types.StopResponse
//	@Router			/memory-pressure [post]
func (h *handlers) memoryPressure(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.StopResponse{Stopped: h.svc.MemoryPressure()})
}

// streamWriter sets the NDJSON headers on the first write so errors that
// happen before any output can still use a proper status code.
type streamWriter struct {
	w       http.ResponseWriter
	started bool
}

func (s *streamWriter) Write(p []byte) (int, error) {
	if !s.started {
		s.started = true
		s.w.Header().Set("Content-Type", "application/x-ndjson")
		s.w.WriteHeader(http.StatusOK)
	}
	return s.w.Write(p)
}
