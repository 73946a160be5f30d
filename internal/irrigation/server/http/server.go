// Package http serves the operational HTTP surface: health checks, metrics and the
// read and command endpoints used by the dashboard backend.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/internal/pkg/metrics"
	"github.com/autopeer-io/plantd/pkg/log"
)

// API is the slice of the irrigation service exposed over HTTP.
type API interface {
	ReadingsForDevice(ctx context.Context, deviceKey string, since, until time.Time) ([]model.SensorReading, error)
	WateringEventsForPlant(ctx context.Context, plantID int64, since, until time.Time) ([]model.WateringEvent, error)
	WaterPlant(ctx context.Context, plantID int64, duration time.Duration) (model.CommandRequest, error)
	SendCommand(ctx context.Context, deviceKey string, command model.Command) (model.CommandRequest, error)
}

// Check is a named readiness check.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

type Config struct {
	Network         string
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	server          *http.Server
	network         string
	shutdownTimeout time.Duration
	logger          log.Logger
}

// NewServer builds the router. Metrics may be nil.
func NewServer(cfg Config, api API, checks []Check, m *metrics.Metrics, clk clock.PassiveClock, logger log.Logger) *Server {
	if logger == nil {
		logger = log.WithName("http")
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	h := &handlers{api: api, checks: checks, clock: clk, logger: logger}

	r := mux.NewRouter()
	r.Use(instrument(m))
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/devices/{key}/readings", h.listReadings).Methods(http.MethodGet)
	v1.HandleFunc("/devices/{key}/commands", h.sendCommand).Methods(http.MethodPost)
	v1.HandleFunc("/plants/{id:[0-9]+}/watering-events", h.listWateringEvents).Methods(http.MethodGet)
	v1.HandleFunc("/plants/{id:[0-9]+}/water", h.waterPlant).Methods(http.MethodPost)

	return &Server{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: cfg.ReadTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		network:         cfg.Network,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
	}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen(s.network, s.server.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
