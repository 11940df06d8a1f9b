// Package server serves the status dashboard and its JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"purpleair_status/dashboard"
	"purpleair_status/logger"
	"purpleair_status/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
)

// History is the read side of the history store
type History interface {
	RecentRuns(ctx context.Context, limit int) ([]models.RefreshRun, error)
	SensorHistory(ctx context.Context, sensorIndex, limit int) ([]models.SensorStatusRecord, error)
	Run(ctx context.Context, runID string) (*models.RefreshRun, error)
}

// Broker reports the state of the MQTT connection
type Broker interface {
	IsConnected() bool
}

// Options configures a Server. History, Metrics and Broker are optional.
type Options struct {
	Port         int
	MarkerRadius int
	History      History
	Metrics      http.Handler
	Broker       Broker
}

// Server wires the application state to HTTP
type Server struct {
	state        *dashboard.State
	port         int
	markerRadius int
	history      History
	metrics      http.Handler
	broker       Broker
	now          func() time.Time
}

// New creates a server for the given state
func New(state *dashboard.State, opts Options) *Server {
	return &Server{
		state:        state,
		port:         opts.Port,
		markerRadius: opts.MarkerRadius,
		history:      opts.History,
		metrics:      opts.Metrics,
		broker:       opts.Broker,
		now:          time.Now,
	}
}

// Routes returns the full handler including access logging and panic recovery
func (s *Server) Routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)

	mux.Get("/", s.index)
	mux.Post("/refresh", s.refresh)
	mux.Post("/reset-view", s.resetView)
	mux.Put("/view", s.setView)
	mux.Get("/health", s.healthCheck)

	mux.Route("/api", func(r chi.Router) {
		r.Get("/table", s.table)
		r.Get("/map", s.mapLayer)
		r.Get("/readings", s.readings)
		r.Get("/view", s.view)
		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.recentRuns)
			r.Get("/runs/{run_id}", s.run)
			r.Get("/{sensor_index}", s.sensorHistory)
		})
	})

	if s.metrics != nil {
		mux.Method(http.MethodGet, "/metrics", s.metrics)
	}

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(true),
	)
	return handlers.CombinedLoggingHandler(logger.Writer(), recovery(mux))
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Routes(),
		IdleTimeout:       30 * time.Second,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// a refresh of a long sensor list can take a while
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Printf("Dashboard listening on http://localhost%s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Println("Shutdown signal received, shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("graceful shutdown failed: %v; forcing close\n", err)
			_ = srv.Close()
		}

		return <-errCh

	case err := <-errCh:
		return err
	}
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	logger.Errorf("panic in handler: %s\n", fmt.Sprint(v...))
}
