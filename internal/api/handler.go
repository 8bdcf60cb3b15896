// Package api provides the HTTP adapter for journey operations.
// It exposes REST endpoints for templates, journeys and onboarding, and SSE
// for progress events.
//
// Caller identity is opaque: the outer auth layer supplies it in the
// X-User-ID and X-Organization-ID headers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/playbook/internal/engine"
	"github.com/zjrosen/playbook/internal/log"
	"github.com/zjrosen/playbook/internal/onboarding"
	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/pubsub"
	"github.com/zjrosen/playbook/internal/tracing"
)

// Identity headers.
const (
	HeaderUserID         = "X-User-ID"
	HeaderOrganizationID = "X-Organization-ID"
)

// Journeys is the engine surface the handler exposes. *engine.Engine implements it.
type Journeys interface {
	StartPlaybook(ctx context.Context, key playbook.Key, metadata map[string]any) (*playbook.Progress, error)
	CheckAndUpdateStepCompletion(ctx context.Context, key playbook.Key) (*playbook.Progress, error)
	CompletePlaybookItem(ctx context.Context, progressID, stepID string, responseData map[string]any) (*playbook.Progress, error)
	Pause(ctx context.Context, key playbook.Key) (*playbook.Progress, error)
	Resume(ctx context.Context, key playbook.Key) (*playbook.Progress, error)
	GetStepCompletionStatus(ctx context.Context, key playbook.Key) (*engine.StatusReport, error)
	GetProgressByID(ctx context.Context, id string) (*playbook.Progress, error)
	ListProgress(ctx context.Context, userID, organizationID string) ([]*playbook.Progress, error)
	ListStepResponses(ctx context.Context, progressID string) ([]*playbook.StepResponse, error)
	ListTemplates(ctx context.Context) ([]*playbook.Template, error)
	GetTemplate(ctx context.Context, id string) (*playbook.Template, error)
	Subscribe(ctx context.Context) <-chan pubsub.Event[engine.ProgressEvent]
}

var _ Journeys = (*engine.Engine)(nil)

// Handler provides HTTP endpoints for journey operations.
type Handler struct {
	journeys   Journeys
	onboarding *onboarding.Service
	gatherer   prometheus.Gatherer
	tracer     trace.Tracer
	heartbeat  time.Duration
}

// HandlerConfig configures the API handler.
type HandlerConfig struct {
	// Journeys is required.
	Journeys Journeys
	// Onboarding serves the /onboarding routes. Optional; the routes answer
	// 404 when nil.
	Onboarding *onboarding.Service
	// Gatherer backs GET /metrics. Optional.
	Gatherer prometheus.Gatherer
	// Tracer wraps every request in a span. Optional.
	Tracer trace.Tracer
	// Heartbeat is the SSE keep-alive interval. Default: 30s
	Heartbeat time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Journeys == nil {
		return nil, errors.New("journeys is required")
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Handler{
		journeys:   cfg.Journeys,
		onboarding: cfg.Onboarding,
		gatherer:   cfg.Gatherer,
		tracer:     cfg.Tracer,
		heartbeat:  heartbeat,
	}, nil
}

// Routes returns an http.Handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(tracing.Middleware(h.tracer), logRequests)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.HandleFunc("/events", h.StreamEvents).Methods(http.MethodGet)

	// Templates
	r.HandleFunc("/templates", h.ListTemplates).Methods(http.MethodGet)
	r.HandleFunc("/templates/{id}", h.GetTemplate).Methods(http.MethodGet)

	// Journeys
	r.HandleFunc("/journeys", h.StartJourney).Methods(http.MethodPost)
	r.HandleFunc("/journeys", h.ListJourneys).Methods(http.MethodGet)
	r.HandleFunc("/journeys/{id}", h.GetJourney).Methods(http.MethodGet)
	r.HandleFunc("/journeys/{id}/check", h.CheckJourney).Methods(http.MethodPost)
	r.HandleFunc("/journeys/{id}/pause", h.PauseJourney).Methods(http.MethodPost)
	r.HandleFunc("/journeys/{id}/resume", h.ResumeJourney).Methods(http.MethodPost)
	r.HandleFunc("/journeys/{id}/steps", h.JourneySteps).Methods(http.MethodGet)
	r.HandleFunc("/journeys/{id}/steps/{stepId}/complete", h.CompleteJourneyStep).Methods(http.MethodPost)
	r.HandleFunc("/journeys/{id}/responses", h.JourneyResponses).Methods(http.MethodGet)

	// Onboarding
	r.HandleFunc("/onboarding/start", h.StartOnboarding).Methods(http.MethodPost)
	r.HandleFunc("/onboarding/check", h.CheckOnboarding).Methods(http.MethodPost)
	r.HandleFunc("/onboarding/status", h.OnboardingStatus).Methods(http.MethodGet)
	r.HandleFunc("/onboarding/steps/{stepId}/complete", h.CompleteOnboardingStep).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route_not_found", "Route not found", "")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	})
	return r
}

// HealthResponse is the response body for the health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Templates int    `json:"templates"`
}

// Health reports whether templates can be read.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	templates, err := h.journeys.ListTemplates(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Templates: len(templates)})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug(log.CatAPI, "request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.ErrorErr(log.CatAPI, "Failed to encode JSON response", err)
	}
}
