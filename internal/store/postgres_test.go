package store

import (
	"context"
	"os"
	"testing"

	"github.com/hurttlocker/hopital/internal/extract"
)

// newPostgresTestStore connects to HOPITAL_TEST_PG_DSN or skips.
func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("HOPITAL_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("HOPITAL_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM hopital")
		s.pool.Exec(ctx, "DELETE FROM ingest_batches")
		s.Close()
	})
	return s
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	s := newPostgresTestStore(t)
	ctx := context.Background()

	recs := []extract.Record{
		record("A", "Laval", "Québec", "a.csv"),
		record("B", "Toronto", "Ontario", "a.csv"),
	}
	b := &Batch{Source: "dir", Mode: "structured"}
	n, err := s.InsertFacilities(ctx, b, recs)
	if err != nil {
		t.Fatalf("InsertFacilities: %v", err)
	}
	if n != 2 {
		t.Fatalf("inserted = %d", n)
	}

	got, err := s.ListFacilities(ctx, ListOpts{Province: "Québec"})
	if err != nil {
		t.Fatalf("ListFacilities: %v", err)
	}
	if len(got) != 1 || got[0].Nom != "A" || got[0].BatchID != b.ID {
		t.Fatalf("got %+v", got)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Facilities != 2 || st.Batches != 1 {
		t.Fatalf("stats = %+v", st)
	}

	status, err := s.Status(ctx)
	if err != nil || status.Engine != "postgres" || status.Version == "" {
		t.Fatalf("status = %+v, %v", status, err)
	}
}
