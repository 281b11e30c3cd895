package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihandler "github.com/newthinker/tpsl/internal/api/handler/api"
	"github.com/newthinker/tpsl/internal/api/job"
	"github.com/newthinker/tpsl/internal/api/middleware"
	"github.com/newthinker/tpsl/internal/backtest"
	"github.com/newthinker/tpsl/internal/metrics"
	"github.com/newthinker/tpsl/internal/storage/archive"
	"github.com/newthinker/tpsl/internal/strategy"
)

// Server is the HTTP surface for submitting and inspecting backtests
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	backtests  *apihandler.BacktestHandler
}

// Config holds server configuration
type Config struct {
	Host            string
	Port            int
	APIKey          string
	MetricsPath     string // empty disables the metrics endpoint
	JobTTL          time.Duration
	MaxJobs         int
	Interval        string
	BacktestTimeout time.Duration
}

// Dependencies are the components the handlers call into
type Dependencies struct {
	Backtester *backtest.Backtester
	Strategies *strategy.Registry
	Reports    *archive.ReportStore // optional
	Metrics    *metrics.Registry    // optional
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Backtester == nil || deps.Strategies == nil {
		return nil, errors.New("backtester and strategies are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{
		logger: logger,
		mux:    mux,
	}
	s.setupRoutes(cfg, deps)

	mws := []func(http.Handler) http.Handler{metrics.LoggingMiddleware(logger)}
	if deps.Metrics != nil {
		mws = append(mws, metrics.HTTPMiddleware(deps.Metrics))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	var onJobs func(int)
	if deps.Metrics != nil {
		onJobs = deps.Metrics.SetJobsActive
	}

	s.backtests = apihandler.NewBacktestHandler(apihandler.BacktestConfig{
		Jobs:       job.NewStore(cfg.MaxJobs, cfg.JobTTL),
		Backtester: deps.Backtester,
		Strategies: deps.Strategies,
		Reports:    deps.Reports,
		Interval:   cfg.Interval,
		Timeout:    cfg.BacktestTimeout,
		OnJobs:     onJobs,
		Logger:     s.logger,
	})
	strategies := apihandler.NewStrategiesHandler(deps.Strategies)

	auth := middleware.APIKeyAuth(cfg.APIKey)
	handle := func(pattern string, h http.HandlerFunc) {
		s.mux.Handle(pattern, auth(h))
	}

	handle("POST /api/v1/backtests", s.backtests.Create)
	handle("GET /api/v1/backtests", s.backtests.List)
	handle("GET /api/v1/backtests/{id}", s.backtests.Get)
	handle("GET /api/v1/strategies", strategies.List)

	if deps.Reports != nil {
		reports := apihandler.NewReportsHandler(deps.Reports)
		handle("GET /api/v1/reports", reports.List)
		handle("GET /api/v1/reports/{id}", reports.Get)
	}

	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	if cfg.MetricsPath != "" && deps.Metrics != nil {
		s.mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and cancels running backtest jobs
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	err := s.httpServer.Shutdown(ctx)
	s.backtests.Close()
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
