// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package status serves Prometheus metrics, a liveness check and the
// progress of running streams while a job runs.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/xstream/internal/downloader"
	"github.com/ManuGH/xstream/internal/log"
)

// ProgressSource lists the running streams. *downloader.Board satisfies it.
type ProgressSource interface {
	Progress() []downloader.Snapshot
}

// Info identifies the process in responses.
type Info struct {
	Version string
	JobID   string
	Started time.Time
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressResponse is the /progress body.
type ProgressResponse struct {
	JobID     string                `json:"job_id,omitempty"`
	Streams   []downloader.Snapshot `json:"streams"`
	Timestamp time.Time             `json:"timestamp"`
}

// RateLimit bounds requests per client IP. Zero values disable limiting.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// DefaultRateLimit allows a scraper and a watching terminal comfortably.
var DefaultRateLimit = RateLimit{Requests: 120, Window: time.Minute}

// NewRouter returns the status handler.
func NewRouter(progress ProgressSource, info Info, limit RateLimit) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if limit.Requests > 0 && limit.Window > 0 {
		r.Use(httprate.Limit(
			limit.Requests,
			limit.Window,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(limit.Window.Seconds())))
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limit_exceeded"})
			}),
		))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:    "healthy",
			Version:   info.Version,
			JobID:     info.JobID,
			Uptime:    time.Since(info.Started).Round(time.Second).String(),
			Timestamp: time.Now().UTC(),
		})
	})
	r.Get("/progress", func(w http.ResponseWriter, _ *http.Request) {
		streams := []downloader.Snapshot{}
		if progress != nil {
			streams = append(streams, progress.Progress()...)
		}
		writeJSON(w, http.StatusOK, ProgressResponse{
			JobID:     info.JobID,
			Streams:   streams,
			Timestamp: time.Now().UTC(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Server is a running status endpoint.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	done   chan struct{}
	logger zerolog.Logger
}

// Start listens on addr and serves handler in the background.
func Start(ctx context.Context, addr string, handler http.Handler) (*Server, error) {
	logger := log.WithComponentFromContext(ctx, "status")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status listen: %w", err)
	}
	s := &Server{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		done:   make(chan struct{}),
		logger: logger,
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str(log.FieldEvent, "status.server_failed").Msg("status server failed")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("status server listening")
	return s, nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown stops the server and waits for the serve loop to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
