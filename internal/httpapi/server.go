// Package httpapi exposes the control-surface HTTP endpoints
// (/healthz, /readyz, /metrics), adapted from the teacher's internal/http
// package to this module's single-backend shape: readiness depends on an
// optional database checker and an optional backend join-status check
// (only the kafka Data Interface backend has a join concept) instead of
// the teacher's two Kafka consumers.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BackendStatus is implemented by Data Interface backends that have a
// notion of group-membership readiness (currently only datainterface/kafka).
type BackendStatus interface {
	IsJoined() bool
}

// DBChecker abstracts the database health check for testability.
type DBChecker interface {
	Ping(ctx context.Context) error
}

// StreamStatus reports whether the stream control loop is currently running.
type StreamStatus interface {
	Running() bool
}

type Server struct {
	srv           *http.Server
	dbChecker     DBChecker
	backendStatus BackendStatus
	stream        StreamStatus
	logger        *zap.Logger
}

// NewServer builds the control-surface HTTP server. pool, backendStatus,
// and stream may each be nil when not applicable to the configured backend.
func NewServer(addr string, pool *pgxpool.Pool, backendStatus BackendStatus, stream StreamStatus, logger *zap.Logger) *Server {
	s := &Server{
		backendStatus: backendStatus,
		stream:        stream,
		logger:        logger,
	}
	if pool != nil {
		s.dbChecker = pool
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	allOK := true

	if s.dbChecker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.dbChecker.Ping(ctx); err != nil {
			checks["postgres"] = "error"
			allOK = false
		} else {
			checks["postgres"] = "ok"
		}
	}

	if s.backendStatus != nil {
		if s.backendStatus.IsJoined() {
			checks["backend"] = "ok"
		} else {
			checks["backend"] = "not_joined"
			allOK = false
		}
	}

	if s.stream != nil {
		if s.stream.Running() {
			checks["stream"] = "ok"
		} else {
			checks["stream"] = "stopped"
			allOK = false
		}
	}

	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}
