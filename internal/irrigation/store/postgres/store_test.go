package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/autopeer-io/plantd/internal/irrigation/store/storetest"
)

// Integration tests run against a disposable database named by
// PLANTD_TEST_DATABASE_URL. Every table is truncated before each case.
func openTestStore(t *testing.T) storetest.Store {
	t.Helper()

	dsn := os.Getenv("PLANTD_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PLANTD_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, Config{
		DSN:              dsn,
		MaxConns:         4,
		ConnectTimeout:   5 * time.Second,
		StatementTimeout: 5 * time.Second,
		Migrate:          true,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if _, err := s.pool.Exec(ctx,
		`TRUNCATE system_logs, watering_history, sensors_data, plants, devices RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, openTestStore)
}

func TestOpenRejectsBadURL(t *testing.T) {
	_, err := Open(context.Background(), Config{DSN: "postgres://%zz", ConnectTimeout: time.Second})
	if err == nil {
		t.Fatal("expected parse error")
	}
}
