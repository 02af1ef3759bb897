// Package server exposes the progress of a running optimization over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/iwvelando/strategy-optimizer/internal/objective"
	"github.com/iwvelando/strategy-optimizer/internal/optimizer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusSource reports the current state of a run.
type StatusSource interface {
	Status() optimizer.Status
}

type handler struct {
	logger  *zap.Logger
	source  StatusSource
	version string
}

// NewHandler constructs the HTTP handler that serves run status, version and
// Prometheus metrics. A nil gatherer disables /metrics.
func NewHandler(logger *zap.Logger, source StatusSource, gatherer prometheus.Gatherer, version string) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{logger: logger, source: source, version: trimmedVersion}

	mux := http.NewServeMux()

	// Run progress and best candidate
	mux.HandleFunc("/api/status", h.handleStatus)

	// Version endpoint
	mux.HandleFunc("/api/version", h.handleVersion)

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

type statusResponse struct {
	RunID         string        `json:"runId"`
	State         string        `json:"state"`
	Iteration     int           `json:"iteration"`
	MaxIterations int           `json:"maxIterations"`
	Progress      float64       `json:"progress"`
	Batches       int           `json:"batches"`
	Updates       int           `json:"updates"`
	Failures      int           `json:"failures"`
	StartedAt     *time.Time    `json:"startedAt,omitempty"`
	Best          *bestResponse `json:"best,omitempty"`
}

type bestResponse struct {
	Iteration int                    `json:"iteration"`
	Objective *float64               `json:"objective"`
	Vector    map[string][]int       `json:"vector"`
	Info      *objective.Diagnostics `json:"info,omitempty"`
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if h.source == nil {
		h.respondError(w, http.StatusServiceUnavailable, "no run attached")
		return
	}

	h.writeJSON(w, http.StatusOK, buildStatus(h.source.Status()))
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func buildStatus(s optimizer.Status) statusResponse {
	resp := statusResponse{
		RunID:         s.RunID,
		State:         s.State.String(),
		Iteration:     s.Iteration,
		MaxIterations: s.MaxIterations,
		Batches:       s.Batches,
		Updates:       s.Updates,
		Failures:      s.Failures,
	}
	if s.MaxIterations > 0 {
		resp.Progress = float64(s.Iteration) / float64(s.MaxIterations)
	}
	if !s.StartedAt.IsZero() {
		started := s.StartedAt.UTC()
		resp.StartedAt = &started
	}
	if s.Best.Found {
		best := &bestResponse{
			Iteration: s.Best.Iteration,
			Vector:    s.Best.Vector,
			Info:      s.Best.Diagnostics.Finite(),
		}
		if v := s.Best.Objective; !math.IsNaN(v) && !math.IsInf(v, 0) {
			best.Objective = &v
		}
		resp.Best = best
	}
	return resp
}

func (h *handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.logger.Error("status request failed",
		zap.String("op", "server.handleStatus"),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

// Serve listens on cfg.Address until ctx is cancelled, then shuts down
// gracefully. ready, when non-nil, receives the bound address once listening.
func Serve(ctx context.Context, logger *zap.Logger, cfg *Config, h http.Handler, ready chan<- string) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeoutDuration(),
	}

	logger.Info("status server listening",
		zap.String("op", "server.Serve"),
		zap.String("address", ln.Addr().String()),
	)
	if ready != nil {
		ready <- ln.Addr().String()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("status server stopped", zap.String("op", "server.Serve"))
	return nil
}
