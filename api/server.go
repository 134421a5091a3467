/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/sprints/*        Sprints, daily updates, saved plans
  /api/compensation/*   Stateless calculator operations
  /healthz              Liveness + database ping
  /*                    Index page listing the API

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/sprints", func(r chi.Router) {
			r.Get("/", h.ListSprints)
			r.Post("/", h.CreateSprint)
			r.Get("/{id}", h.GetSprint)
			r.Delete("/{id}", h.DeleteSprint)
			r.Get("/{id}/sprint-day", h.GetSprintDay)
			r.Get("/{id}/updates", h.ListDailyUpdates)
			r.Post("/{id}/updates", h.CreateDailyUpdate)
			r.Get("/{id}/compensation", h.ListCompensationPlans)
			r.Post("/{id}/compensation", h.SaveCompensationPlan)
		})

		r.Route("/compensation", func(r chi.Router) {
			r.Post("/compute", h.Compute)
			r.Post("/milestones", h.AddMilestone)
			r.Post("/export", h.ExportCSV)
			r.Post("/import", h.ImportCSV)
			r.Post("/email", h.EmailCompensation)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Sprint Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Sprint Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/sprints">/api/sprints</a> - List sprints</li>
<li>POST /api/compensation/compute - Compensation split and milestone payouts</li>
<li>POST /api/compensation/export - Download a plan as CSV</li>
<li>POST /api/compensation/import - Restore a plan from CSV</li>
</ul>
</body>
</html>`))
	})

	return r
}

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RequestLogger logs one line per request with zap.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
