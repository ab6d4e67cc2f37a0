package store

import (
	"testing"
)

func TestMigrate_RecordsSchemaVersion(t *testing.T) {
	s := newTestStore(t).(*SQLiteStore)

	v, err := s.getMetaValue("schema_version")
	if err != nil {
		t.Fatalf("getMetaValue: %v", err)
	}
	if v != SchemaVersion {
		t.Fatalf("schema_version = %q, want %q", v, SchemaVersion)
	}

	for _, flag := range []string{"schema_bootstrap_complete", "lookup_indexes_v1"} {
		on, err := s.isMetaFlagEnabled(flag)
		if err != nil {
			t.Fatal(err)
		}
		if !on {
			t.Errorf("flag %s not set", flag)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t).(*SQLiteStore)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := s.migrateBatchFailuresColumn(); err != nil {
		t.Fatalf("failures column: %v", err)
	}
}

func TestMigrate_AddsFailuresToLegacyBatches(t *testing.T) {
	s := newTestStore(t).(*SQLiteStore)

	// Simulate a database created before the failures column existed.
	stmts := []string{
		"DROP TABLE hopital",
		"DROP TABLE ingest_batches",
		`CREATE TABLE ingest_batches (id TEXT PRIMARY KEY, source TEXT NOT NULL DEFAULT '', mode TEXT NOT NULL DEFAULT '', inserted INTEGER NOT NULL DEFAULT 0, created_at DATETIME)`,
		`INSERT INTO ingest_batches (id) VALUES ('old')`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
	}

	if err := s.migrateBatchFailuresColumn(); err != nil {
		t.Fatalf("migrateBatchFailuresColumn: %v", err)
	}
	var failures int
	if err := s.db.QueryRow("SELECT failures FROM ingest_batches WHERE id='old'").Scan(&failures); err != nil {
		t.Fatalf("reading failures: %v", err)
	}
	if failures != 0 {
		t.Errorf("failures = %d, want 0", failures)
	}
}

func TestIsDuplicateColumnError(t *testing.T) {
	if isDuplicateColumnError(nil) {
		t.Error("nil is not a duplicate column error")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hôpital", 3); got != "hôp..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}
