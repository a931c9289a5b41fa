// Package api exposes performance data and rendered reports over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/config"
	"github.com/sells-group/advisor-reports/internal/ingest"
	"github.com/sells-group/advisor-reports/internal/metrics"
	"github.com/sells-group/advisor-reports/internal/model"
	"github.com/sells-group/advisor-reports/internal/report"
)

// Store is the storage surface the API reads and writes.
type Store interface {
	Ping(ctx context.Context) error
	ListPeriods(ctx context.Context) ([]model.PeriodSummary, error)
	GetByPeriod(ctx context.Context, period string) ([]model.PerformanceRecord, error)
	DeletePeriod(ctx context.Context, period string) (int64, error)
}

// Importer writes an uploaded extract.
type Importer interface {
	Import(ctx context.Context, r io.Reader, format string, period model.Period) (*ingest.ImportResult, error)
}

// ModelBuilder assembles report models.
type ModelBuilder interface {
	BuildModel(ctx context.Context, advisorID, period string) (*report.Model, error)
}

// Server holds the API's dependencies.
type Server struct {
	store      Store
	importer   Importer
	builder    ModelBuilder
	audit      report.AuditSink
	metrics    *metrics.Pipeline
	cfg        config.ServerConfig
	gatherer   prometheus.Gatherer
	maxUpload  int64
	defaultFmt string
}

// Deps are the collaborators passed to New.
type Deps struct {
	Store    Store
	Importer Importer
	Builder  ModelBuilder
	// Audit receives one render entry per report request that reaches
	// rendering. Nil disables auditing.
	Audit report.AuditSink
	// Metrics observes rendered reports. Nil records nothing.
	Metrics *metrics.Pipeline
	// Gatherer serves /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	// ReportFormat is the format served when a request names none.
	ReportFormat string
}

// New creates a Server.
func New(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		store:      deps.Store,
		importer:   deps.Importer,
		builder:    deps.Builder,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		cfg:        cfg,
		gatherer:   deps.Gatherer,
		maxUpload:  cfg.MaxUploadMB << 20,
		defaultFmt: deps.ReportFormat,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 20 << 20
	}
	if s.defaultFmt == "" {
		s.defaultFmt = "pdf"
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.Recoverer,
		requestLogger,
		s.corsHandler(),
	)

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(requireCaller)

		r.Route("/performance", func(r chi.Router) {
			r.Get("/", s.listPeriods)
			r.Get("/{period}", s.getPeriod)
			r.With(requireRole(model.RoleAdmin, model.RoleManager)).Post("/upload", s.upload)
			r.With(requireRole(model.RoleAdmin)).Delete("/{period}", s.deletePeriod)
		})
		r.Get("/reports/{period}/{advisorID}", s.getReport)
	})
	return r
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	origins := []string{"*"}
	if s.cfg.CORSOrigin != "" {
		origins = []string{s.cfg.CORSOrigin}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", headerCallerID, headerCallerRole, headerCallerAdvisor},
		MaxAge:         300,
	}).Handler
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

// Serve runs the HTTP server on port until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("api: shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("api: starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
