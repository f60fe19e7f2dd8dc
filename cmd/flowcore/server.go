package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/flowcore"
	"github.com/BaSui01/flowcore/config"
	"github.com/BaSui01/flowcore/internal/metrics"
	"github.com/BaSui01/flowcore/internal/server"
	"github.com/BaSui01/flowcore/internal/telemetry"
	"github.com/BaSui01/flowcore/registry"
	"github.com/BaSui01/flowcore/workflow"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 flowcore 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	app              *flowcore.App
	metricsCollector *metrics.Collector
	otelProviders    *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector, otelProviders *telemetry.Providers) (*Server, error) {
	app, err := flowcore.New(
		flowcore.WithConfig(cfg),
		flowcore.WithLogger(logger),
		flowcore.WithMetrics(collector),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to wire orchestration core: %w", err)
	}

	return &Server{
		cfg:              cfg,
		logger:           logger,
		app:              app,
		metricsCollector: collector,
		otelProviders:    otelProviders,
	}, nil
}

// App exposes the orchestration core so embedding binaries can register
// their workflow modules before Start.
func (s *Server) App() *flowcore.App {
	return s.app
}

// Start 启动 HTTP 服务器与 Metrics 服务器
func (s *Server) Start() error {
	s.httpManager = server.NewManager(server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.buildHandler(), s.logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.metricsManager = server.NewManager(server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, metricsMux, s.logger)

	g := new(errgroup.Group)
	g.Go(s.httpManager.Start)
	g.Go(s.metricsManager.Start)
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// WaitForShutdown 阻塞等待关闭信号并优雅退出
func (s *Server) WaitForShutdown() {
	server.WaitForSignal([]*server.Manager{s.httpManager, s.metricsManager}, s.logger)

	ctx := context.Background()
	if err := s.httpManager.Shutdown(ctx); err != nil {
		s.logger.Error("http server shutdown failed", zap.Error(err))
	}
	if err := s.metricsManager.Shutdown(ctx); err != nil {
		s.logger.Error("metrics server shutdown failed", zap.Error(err))
	}
	if err := s.otelProviders.Shutdown(ctx); err != nil {
		s.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	if err := s.app.Close(); err != nil {
		s.logger.Warn("tracker close failed", zap.Error(err))
	}
}

// =============================================================================
// 🔧 路由与处理器
// =============================================================================

func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /v1/workflows/{type}", s.handleGetWorkflow)
	mux.HandleFunc("GET /v1/workflows/{type}/patterns", s.handleGetPatterns)
	mux.HandleFunc("POST /v1/workflows/{type}/patterns", s.handleRecordPattern)
	mux.HandleFunc("POST /v1/workflows/{type}/execute", s.handleExecute)

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.Server.RateLimit > 0 {
		middlewares = append(middlewares, RateLimit(s.cfg.Server.RateLimit, s.cfg.Server.RateBurst))
	}
	if s.cfg.Auth.Enabled {
		middlewares = append(middlewares, JWTAuth(s.cfg.Auth.JWTSecret, s.logger))
	}
	return Chain(mux, middlewares...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.app.Tracker.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "version": Version})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	entries := s.app.Registry.List()
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"type": e.Type,
			"name": e.Workflow.Name(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": out})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowType := r.PathValue("type")
	def, err := s.app.Dispatcher.CreateWorkflow(workflowType, nil)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleGetPatterns(w http.ResponseWriter, r *http.Request) {
	workflowType := r.PathValue("type")
	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_type": workflowType,
		"patterns":      s.app.Dispatcher.ProvenPatterns(workflowType),
	})
}

func (s *Server) handleRecordPattern(w http.ResponseWriter, r *http.Request) {
	workflowType := r.PathValue("type")

	var pattern registry.ProvenPattern
	if err := json.NewDecoder(r.Body).Decode(&pattern); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid pattern payload"})
		return
	}
	if pattern.GenesisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "genesis_id is required"})
		return
	}
	s.app.Dispatcher.RecordPattern(workflowType, pattern)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "recorded"})
}

type executeRequest struct {
	Input map[string]any `json:"input"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	workflowType := r.PathValue("type")

	var req executeRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}
	}

	out, err := s.app.Execute(r.Context(), workflowType, workflow.Context(req.Input))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeDispatchError(w, err)
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"output": out})
}

func writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, registry.ErrInvalidConfig):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, registry.ErrDefinitionFailed):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
