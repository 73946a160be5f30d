// Package store selects the storage backend configured for the server.
package store

import (
	"context"
	"fmt"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/store/postgres"
	"github.com/autopeer-io/plantd/internal/irrigation/store/sqlite"
	"github.com/autopeer-io/plantd/pkg/options"
)

// New opens the backend named by opts.Driver.
func New(ctx context.Context, opts *options.DatabaseOptions) (core.Store, error) {
	switch opts.Driver {
	case options.DriverPostgres:
		s, err := postgres.Open(ctx, postgres.Config{
			DSN:              opts.DSN,
			MaxConns:         opts.MaxConns,
			ConnectTimeout:   opts.ConnectTimeout,
			StatementTimeout: opts.StatementTimeout,
			Migrate:          opts.Migrate,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case options.DriverSQLite:
		s, err := sqlite.Open(ctx, sqlite.Config{
			Path:             opts.DSN,
			MaxConns:         int(opts.MaxConns),
			StatementTimeout: opts.StatementTimeout,
			Migrate:          opts.Migrate,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}
