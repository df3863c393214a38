// Package api exposes origin analysis over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/origin-cli/internal/model"
	"github.com/sells-group/origin-cli/internal/store"
)

// DefaultMaxUploadBytes bounds an uploaded costing sheet.
const DefaultMaxUploadBytes = 16 << 20

// Analyzer runs the origin workflow for one uploaded sheet.
type Analyzer interface {
	Analyze(ctx context.Context, filename string, rows []model.Row) (*model.AnalysisCase, error)
}

// Reloader clears cached reference data.
type Reloader interface {
	Reload()
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Analyzer  Analyzer
	Store     store.Store
	Reference Reloader

	MaxUploadBytes int64
	// UploadDir keeps a copy of each accepted upload when set.
	UploadDir      string
	AllowedOrigins []string
}

type server struct {
	analyzer  Analyzer
	store     store.Store
	ref       Reloader
	maxUpload int64
	uploadDir string
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	s := &server{
		analyzer:  d.Analyzer,
		store:     d.Store,
		ref:       d.Reference,
		maxUpload: d.MaxUploadBytes,
		uploadDir: d.UploadDir,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Route("/cases", func(r chi.Router) {
			r.Get("/", s.listCases)
			r.Post("/", s.upload)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getCase)
				r.Delete("/", s.deleteCase)
				r.Get("/status", s.caseStatus)
				r.Get("/report", s.caseReport)
			})
		})
		r.Post("/reference/reload", s.reloadReference)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("uri", r.URL.RequestURI()),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
