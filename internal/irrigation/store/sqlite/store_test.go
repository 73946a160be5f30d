package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/autopeer-io/plantd/internal/irrigation/store/storetest"
)

func openTestStore(t *testing.T) storetest.Store {
	t.Helper()

	s, err := Open(context.Background(), Config{
		Path:    filepath.Join(t.TempDir(), "plantd.db"),
		Migrate: true,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, openTestStore)
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t).(*Store)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	in := "2026-05-01 12:00:00.500000000"
	got, err := parseTime(in)
	if err != nil {
		t.Fatalf("parseTime: %v", err)
	}
	if formatTime(got) != in {
		t.Errorf("formatTime(parseTime(%q)) = %q", in, formatTime(got))
	}
}
