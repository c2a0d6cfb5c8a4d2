// Package app wires the HTTP router, background loops, and readiness checks.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/verilab/verilab/internal/adapter/httpserver"
	"github.com/verilab/verilab/internal/adapter/observability"
	"github.com/verilab/verilab/internal/config"
	"github.com/verilab/verilab/internal/domain"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(api chi.Router) {
		// Public endpoints carry the per-IP rate limit; everything behind
		// auth is already bounded by token issuance.
		api.Group(func(pub chi.Router) {
			pub.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
			pub.Post("/auth/login", srv.LoginHandler())
			pub.Post("/tenants/with-admin", srv.CreateTenantHandler())
		})

		// Instrument-facing endpoints authenticate by X-Instrument-Token.
		api.Group(func(ins chi.Router) {
			ins.Use(srv.InstrumentAuth())
			ins.Post("/instruments/query-host", srv.QueryHostHandler())
			ins.Post("/instruments/results", srv.SubmitResultHandler())
		})

		api.Group(func(auth chi.Router) {
			auth.Use(srv.BearerAuth())

			auth.Get("/auth/me", srv.MeHandler())
			auth.Post("/users", srv.CreateUserHandler())

			auth.Route("/samples", func(sr chi.Router) {
				sr.Post("/", srv.CreateSampleHandler())
				sr.Get("/", srv.ListSamplesHandler())
				sr.Get("/{id}", srv.GetSampleHandler())
				sr.Put("/{id}", srv.UpdateSampleHandler())
				sr.Delete("/{id}", srv.DeleteSampleHandler())
				sr.Get("/{id}/results", srv.SampleResultsHandler())
			})

			auth.Route("/results", func(rr chi.Router) {
				rr.Post("/", srv.CreateResultHandler())
				rr.Get("/", srv.ListResultsHandler())
				rr.Post("/verify-batch", srv.VerifyBatchHandler())
				rr.Get("/{id}", srv.GetResultHandler())
			})

			auth.Route("/lis", func(lr chi.Router) {
				lr.Post("/config", srv.CreateLISConfigHandler())
				lr.Get("/config", srv.GetLISConfigHandler())
				lr.Put("/config", srv.UpdateLISConfigHandler())
				lr.Put("/config/upload-settings", srv.UploadSettingsHandler())
				lr.Post("/config/regenerate-api-key", srv.RegenerateAPIKeyHandler())
				lr.Post("/connection-status", srv.ConnectionStatusHandler())
			})

			auth.Route("/instruments", func(ir chi.Router) {
				ir.Post("/register", srv.RegisterInstrumentHandler())
				ir.Get("/", srv.ListInstrumentsHandler())
				ir.Get("/{id}", srv.GetInstrumentHandler())
				ir.Get("/{id}/status", srv.InstrumentStatusHandler())
				ir.Get("/{id}/queries", srv.InstrumentQueryLogHandler())
				ir.Put("/{id}", srv.UpdateInstrumentHandler())
				ir.Delete("/{id}", srv.DeleteInstrumentHandler())
				ir.Post("/{id}/regenerate-token", srv.RegenerateTokenHandler())
			})

			auth.Route("/verification", func(vr chi.Router) {
				vr.Get("/", srv.ListSettingsHandler())
				vr.Get("/rules", srv.ListRulesHandler())
				vr.Get("/{testCode}", srv.GetSettingsHandler())
				// Settings and rule writes are admin-only.
				vr.Group(func(ar chi.Router) {
					ar.Use(srv.RequireRole(domain.RoleAdmin))
					ar.Post("/", srv.CreateSettingsHandler())
					ar.Put("/rules", srv.UpdateRuleHandler())
					ar.Put("/{testCode}", srv.UpdateSettingsHandler())
					ar.Delete("/{testCode}", srv.DeleteSettingsHandler())
				})
			})

			auth.Route("/reviews", func(wr chi.Router) {
				wr.Use(srv.RequireRole(domain.RoleReviewer))
				wr.Get("/queue", srv.ReviewQueueHandler())
				wr.Post("/", srv.CreateReviewHandler())
				wr.Get("/{id}", srv.GetReviewHandler())
				wr.Post("/{id}/approve", srv.ApproveReviewHandler())
				wr.Post("/{id}/reject", srv.RejectReviewHandler())
				wr.Post("/{id}/approve-result", srv.ApproveResultHandler())
				wr.Post("/{id}/reject-result", srv.RejectResultHandler())
				wr.Post("/{id}/escalate", srv.EscalateReviewHandler())
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
