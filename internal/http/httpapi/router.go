package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"leopacolor/internal/http/handlers"
	"leopacolor/internal/infra"
	"leopacolor/internal/middleware"
)

// NewRouter assembles the HTTP surface: the reference and colorize APIs plus
// static serving of the data directory under /data.
func NewRouter(app *handlers.App, logger infra.Logger, cfg *infra.Config) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSOrigins))
	}
	if cfg.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
	}

	r.Get("/healthz", app.Health)
	r.Get("/color/{name}", app.ColorInfo)

	r.Route("/api/references", func(r chi.Router) {
		r.Get("/", app.ListReferences)
		r.Post("/", app.UploadReference)
		r.Get("/{id}", app.GetReference)
		r.Delete("/{id}", app.DeleteReference)
	})

	r.Route("/api/colorize", func(r chi.Router) {
		r.Post("/", app.StartColorize)
		r.Get("/{job_id}", app.JobStatus)
		r.Get("/{job_id}/result", app.JobResult)
	})

	fileServer := stdhttp.StripPrefix("/data/", stdhttp.FileServer(stdhttp.Dir(cfg.DataDir)))
	r.Get("/data/*", fileServer.ServeHTTP)

	return r
}
