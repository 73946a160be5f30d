package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/plantd/pkg/log"
)

// Server defines the common interface for all sub-servers (ingress, http, workers).
type Server interface {
	Start(ctx context.Context) error
}

// Manager manages the lifecycle of all sub-servers.
type Manager struct {
	servers []Server
	logger  log.Logger
}

// NewManager creates a manager over the given servers.
func NewManager(logger log.Logger, servers ...Server) *Manager {
	if logger == nil {
		logger = log.Std()
	}
	return &Manager{servers: servers, logger: logger}
}

// Start launches all servers in parallel and waits for termination. The first
// server to fail cancels the others.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	m.logger.Info("All servers starting", "count", len(m.servers))
	return g.Wait()
}
