package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"viddownloader/internal/http/handlers"
	"viddownloader/internal/infra"
	mw "viddownloader/internal/middleware"
)

// RouterConfig carries the HTTP policy knobs.
type RouterConfig struct {
	AllowedOrigins      []string
	RateLimitPerMinute  int
	DownloadRoutePrefix string
	Logger              infra.Logger
}

func NewRouter(app *handlers.App, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.RequestID,
		middleware.RealIP,
		mw.Logger(cfg.Logger),
		middleware.Recoverer,
		mw.CORS(cfg.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Get("/api/status-check", app.StatusCheck)
	r.Get("/api/stats", app.StatsSummary)
	r.With(
		middleware.AllowContentType("application/json"),
		mw.RateLimit(cfg.RateLimitPerMinute, time.Minute),
	).Post("/api/jobs", app.CreateJob)
	r.With(middleware.NoCache).Get("/api/status/{jobId}", app.JobStatus)

	prefix := cfg.DownloadRoutePrefix
	if prefix == "" {
		prefix = "/api/download"
	}
	r.Get(prefix+"/{jobId}", app.Download)

	return r
}
