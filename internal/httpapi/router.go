package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"scenecast/internal/httpapi/handlers"
	"scenecast/internal/httpkit"
	"scenecast/internal/pkg/logger"
	"scenecast/internal/pkg/middleware"
)

type Deps struct {
	Handlers handlers.Deps

	// Metrics is served on /metrics and fed every request when non-nil.
	Metrics interface {
		middleware.HTTPObserver
		Handler() http.Handler
	}
	CORSOrigins []string
	// GenerateTimeout bounds POST /scripts/generate. Zero means 2 minutes.
	GenerateTimeout time.Duration
	Log             *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}
	genTimeout := d.GenerateTimeout
	if genTimeout <= 0 {
		genTimeout = 2 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}

	// ---- CORS ----
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAgeSeconds:  600,
	}))

	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc { return middleware.WrapHandler(log, fn) }

	// ---- HEALTH ----
	r.Get("/health", h.Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	// ---- RENDERS ----
	r.Post("/renders", wrap(h.PostRender))
	r.Get("/renders", wrap(h.ListRenders))
	r.Get("/renders/{renderId}", wrap(h.GetRender))
	r.Get("/renders/{renderId}/video", wrap(h.StreamRenderVideo))

	// ---- SCRIPTS ----
	r.Post("/scripts/validate", wrap(h.ValidateScript))
	r.With(middleware.Timeout(genTimeout)).Post("/scripts/generate", wrap(h.GenerateScript))

	return r
}
