// Package irrigation assembles the plantd server: telemetry ingestion,
// automatic watering, device health and retention.
package irrigation

import (
	"context"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/service"
	"github.com/autopeer-io/plantd/internal/irrigation/server"
	"github.com/autopeer-io/plantd/pkg/log"
	"github.com/autopeer-io/plantd/pkg/options"
)

type Server struct {
	manager *server.Manager
	store   core.Store
	svc     *service.Service
}

// Run blocks until ctx is cancelled or a sub-server fails.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			log.Error(err, "Failed to close store")
		}
	}()
	return s.manager.Start(ctx)
}

// UpdatePolicy applies reloaded policy options. Invalid values are rejected
// and the running policy stays in effect.
func (s *Server) UpdatePolicy(o *options.PolicyOptions) error {
	return s.svc.UpdatePolicy(PolicyConfig(o))
}
