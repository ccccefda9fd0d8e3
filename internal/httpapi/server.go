package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmedged/internal/lifecycle"
	"llmedged/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	ModelByID(id string) (types.Model, bool)
	DefaultModel(family types.Family) (types.Model, bool)
	Status() types.StatusResponse
	Ready() bool
	RunGeneration(ctx context.Context, req lifecycle.GenerationRequest) (lifecycle.GenerationResult, error)
	CancelGeneration(family types.Family) bool
	Unload(ctx context.Context, family types.Family) error
}

// NewMux builds the router. The generation endpoint streams NDJSON progress
// lines followed by one final response object.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", handleModels(svc))
	r.Get("/status", handleStatus(svc))
	r.Post("/generate", handleGenerate(svc))
	r.Post("/cancel", handleCancel(svc))
	r.Post("/unload", handleUnload(svc))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// handleModels godoc
// @Summary List registry models
// @Produce json
// @Success 200 {object} types.ModelsResponse
// @Router /models [get]
func handleModels(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.ModelsResponse{Models: svc.ListModels()}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	}
}

// handleStatus godoc
// @Summary Daemon status: resident models, slot states, counters
// @Produce json
// @Success 200 {object} types.StatusResponse
// @Router /status [get]
func handleStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	}
}

// handleGenerate godoc
// @Summary Run a generation, streaming NDJSON progress then a final result
// @Accept json
// @Produce x-ndjson
// @Param request body types.GenerateRequest true "generation request"
// @Success 200 {object} types.GenerateResponse
// @Failure 400 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Failure 422 {object} types.ErrorResponse
// @Router /generate [post]
func handleGenerate(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if !req.Family.Valid() {
			writeJSONError(w, http.StatusBadRequest, "family is required")
			return
		}

		mdl, ok := resolveModel(svc, req)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "no model available for request")
			return
		}

		// Join server base context with request context so shutdown cancels
		// in-flight work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if generateTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, time.Duration(generateTimeout)*time.Second)
			defer tcancel()
		}

		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}

		start := time.Now()
		lvl := requestLogLevel(r)
		if lvl >= LevelInfo && zlog != nil {
			z := zlog.Info().Str("family", string(req.Family)).Str("model", mdl.ID)
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("generate start")
		}

		// Header must be in place before the first progress line is written.
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)

		genReq := lifecycle.GenerationRequest{
			Model:  mdl,
			Prefs:  lifecycle.Preferences{PreferPerformance: req.PreferPerformance},
			Params: engineRequest(req),
			OnProgress: func(p lifecycle.Progress) {
				// Runs on the session's drain goroutine; the final response is
				// only written after the drain goroutine has exited.
				if err := enc.Encode(types.ProgressLine{Step: p.Step, Total: p.Total}); err != nil {
					return
				}
				if flush != nil {
					flush()
				}
			},
		}

		out, err := svc.RunGeneration(ctx, genReq)
		if err != nil {
			// Pre-dispatch failure; nothing has been streamed yet.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := statusForError(err)
			writeJSONError(w, status, err.Error())
			if lvl >= LevelInfo && zlog != nil {
				zlog.Info().Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("generate end")
			}
			return
		}

		if err := enc.Encode(finalResponse(out)); err == nil && flush != nil {
			flush()
		}
		if lvl >= LevelInfo && zlog != nil {
			zlog.Info().Str("outcome", out.Outcome).Dur("dur", time.Since(start)).Msg("generate end")
		}
	}
}

// cancelRequest is the body for POST /cancel and /unload.
type cancelRequest struct {
	Family types.Family `json:"family"`
}

// handleCancel godoc
// @Summary Request cooperative cancellation of a family's active generation
// @Accept json
// @Produce json
// @Param request body cancelRequest true "target family"
// @Success 200 {object} map[string]bool
// @Router /cancel [post]
func handleCancel(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		family, ok := familyFromRequest(w, r)
		if !ok {
			return
		}
		cancelled := svc.CancelGeneration(family)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"cancelled": cancelled})
	}
}

// handleUnload godoc
// @Summary Unload all resident models of a family
// @Accept json
// @Produce json
// @Param request body cancelRequest true "target family"
// @Success 200 {object} map[string]bool
// @Router /unload [post]
func handleUnload(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		family, ok := familyFromRequest(w, r)
		if !ok {
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if err := svc.Unload(ctx, family); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"unloaded": true})
	}
}

func familyFromRequest(w http.ResponseWriter, r *http.Request) (types.Family, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	if !req.Family.Valid() {
		writeJSONError(w, http.StatusBadRequest, "family is required")
		return "", false
	}
	return req.Family, true
}

// resolveModel picks the explicit model when named, otherwise the family's
// default. A named model must also belong to the requested family.
func resolveModel(svc Service, req types.GenerateRequest) (types.Model, bool) {
	if req.Model != "" {
		mdl, ok := svc.ModelByID(req.Model)
		if !ok || mdl.Family != req.Family {
			return types.Model{}, false
		}
		return mdl, true
	}
	return svc.DefaultModel(req.Family)
}

func finalResponse(out lifecycle.GenerationResult) types.GenerateResponse {
	resp := types.GenerateResponse{
		Done:       true,
		Outcome:    out.Outcome,
		ElapsedMS:  out.Metrics.Elapsed.Milliseconds(),
		Throughput: out.Metrics.Throughput,
	}
	switch out.Outcome {
	case lifecycle.OutcomeSuccess:
		resp.Text = out.Result.Text
		resp.Embedding = out.Result.Embedding
		for _, f := range out.Result.Frames {
			resp.Frames = append(resp.Frames, base64.StdEncoding.EncodeToString(f))
		}
		for _, s := range out.Result.Segments {
			resp.Segments = append(resp.Segments, types.Segment{
				Index: s.Index, T0: s.T0, T1: s.T1, Text: s.Text,
			})
			if resp.Text != "" {
				resp.Text += " "
			}
			resp.Text += s.Text
		}
	case lifecycle.OutcomeFailed:
		if out.Err != nil {
			resp.Error = out.Err.Error()
		}
	}
	return resp
}
