// Package api exposes batch matching, reconciliation and conflict handling
// over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/casampa-lab/sinaliza/internal/conflict"
	"github.com/casampa-lab/sinaliza/internal/model"
	"github.com/casampa-lab/sinaliza/internal/pipeline"
	"github.com/casampa-lab/sinaliza/internal/workflow"
)

// Matcher runs the batch orchestrator.
type Matcher interface {
	Run(ctx context.Context, sel model.Selection, force bool) (*pipeline.Report, error)
}

// Reconciler applies operator decisions.
type Reconciler interface {
	ListPending(ctx context.Context, sel model.Selection) ([]model.NeedRecord, error)
	Reconcile(ctx context.Context, id string, in workflow.DecisionInput) (*model.NeedRecord, error)
	ReconcileBatch(ctx context.Context, ids map[string]struct{}, decidedBy, justification string) (*workflow.BatchResult, error)
}

// ConflictHandler detects and closes conflicts.
type ConflictHandler interface {
	Detect(ctx context.Context, sel model.Selection) ([]model.ConflictRecord, error)
	List(ctx context.Context, lotID, highwayID string, t model.AssetType) ([]model.ConflictRecord, error)
	Resolve(ctx context.Context, id string, in conflict.ResolveInput) error
	DeleteNeed(ctx context.Context, needID string) error
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Server holds the services behind the HTTP surface.
type Server struct {
	matcher    Matcher
	reconciler Reconciler
	conflicts  ConflictHandler
}

// NewRouter returns the HTTP handler for the given services.
func NewRouter(m Matcher, r Reconciler, c ConflictHandler, opts Options) http.Handler {
	s := &Server{matcher: m, reconciler: r, conflicts: c}

	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Minute
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger)
	router.Use(middleware.Timeout(opts.RequestTimeout))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	router.Get("/health", s.health)
	router.Post("/batches", s.runBatch)

	router.Route("/needs", func(r chi.Router) {
		r.Get("/pending", s.listPending)
		r.Post("/reconcile-batch", s.reconcileBatch)
		r.Post("/{id}/reconcile", s.reconcile)
	})

	router.Route("/conflicts", func(r chi.Router) {
		r.Get("/", s.listConflicts)
		r.Post("/detect", s.detectConflicts)
		r.Post("/{id}/resolve", s.resolveConflict)
		r.Delete("/needs/{id}", s.deleteNeed)
	})

	return router
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
