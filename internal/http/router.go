// Package http serves the display-layer API over the live session controller.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ai-live-copilot-service/internal/models"
	"ai-live-copilot-service/internal/observability/metrics"
	"ai-live-copilot-service/internal/service/transcript"
)

// Controller is the session facade the handlers drive.
type Controller interface {
	Listen(ctx context.Context, on bool) error
	State(ctx context.Context) (models.SessionState, error)
	Transcript(ctx context.Context, f transcript.Filter) (models.TranscriptView, error)
	Speakers(ctx context.Context) ([]string, error)
	ToggleBookmark(ctx context.Context, id int64) (models.TranscriptEntry, error)
	Clear(ctx context.Context) error
	Enrichment(ctx context.Context) (models.EnrichmentState, error)
	SignIn(ctx context.Context, token string) error
	SignOut(ctx context.Context) error
	SetMicPermission(ctx context.Context, p models.MicPermission) error
	ResetDemo(ctx context.Context) error
	Subscribe() (<-chan models.Event, func())
}

// NewRouter constructs the HTTP router for the service. A nil ready func
// always reports ready.
func NewRouter(ctrl Controller, ready func() error) http.Handler {
	h := &handlers{ctrl: ctrl}
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(recordMetrics)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("not ready"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Put("/listening", h.putListening)
			r.Put("/microphone", h.putMicrophone)
			r.Put("/identity", h.putIdentity)
			r.Delete("/identity", h.deleteIdentity)
			r.Post("/demo/reset", h.resetDemo)
		})
		r.Route("/transcript", func(r chi.Router) {
			r.Get("/", h.getTranscript)
			r.Delete("/", h.clearTranscript)
			r.Get("/speakers", h.getSpeakers)
			r.Post("/{id}/bookmark", h.toggleBookmark)
		})
		r.Get("/enrichment", h.getEnrichment)
		r.Get("/events", h.streamEvents)
	})

	return r
}

// recordMetrics reports request counts and latency by route pattern.
func recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		metrics.DefaultMetrics.RecordHTTP(route, ww.Status(), time.Since(start).Seconds())
	})
}
