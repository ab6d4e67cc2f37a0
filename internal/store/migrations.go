package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is bumped whenever a migration step is added.
const SchemaVersion = "2"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	// Seed metadata (outside the bootstrap transaction, meta exists by now)
	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	// Schema evolution: failure count on batches.
	if err := s.migrateBatchFailuresColumn(); err != nil {
		return fmt.Errorf("migrating failures column: %w", err)
	}

	// Schema evolution: lookup indexes for list filters.
	if err := s.migrateLookupIndexes(); err != nil {
		return fmt.Errorf("migrating lookup indexes: %w", err)
	}

	if _, err := s.db.Exec("UPDATE meta SET value = ? WHERE key = 'schema_version'", SchemaVersion); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ingest_batches (
			id         TEXT PRIMARY KEY,
			source     TEXT NOT NULL DEFAULT '',
			mode       TEXT NOT NULL DEFAULT '',
			inserted   INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Canonical records; the six upper-case columns are the positional
		// insert target.
		`CREATE TABLE IF NOT EXISTS hopital (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			NOM          TEXT NOT NULL,
			VILLE        TEXT NOT NULL,
			TELEPHONE    TEXT NOT NULL,
			EMAIL        TEXT NOT NULL,
			PROVINCE     TEXT NOT NULL,
			NOMBRE_SALLE TEXT NOT NULL,
			source_file  TEXT NOT NULL DEFAULT '',
			batch_id     TEXT REFERENCES ingest_batches(id),
			imported_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_hopital_batch ON hopital(batch_id)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin bootstrap: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w\nSQL: %s", err, truncate(stmt, 100))
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	value, err := s.getMetaValue(key)
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

func (s *SQLiteStore) getMetaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

// migrateBatchFailuresColumn adds ingest_batches.failures if it doesn't exist.
func (s *SQLiteStore) migrateBatchFailuresColumn() error {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('ingest_batches') WHERE name='failures'",
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking failures column: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, err = s.db.Exec("ALTER TABLE ingest_batches ADD COLUMN failures INTEGER NOT NULL DEFAULT 0")
	if err != nil && !isDuplicateColumnError(err) {
		return fmt.Errorf("adding failures column: %w", err)
	}
	return nil
}

// migrateLookupIndexes adds the indexes used by province/ville filters.
func (s *SQLiteStore) migrateLookupIndexes() error {
	done, err := s.isMetaFlagEnabled("lookup_indexes_v1")
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_hopital_province ON hopital(PROVINCE)`,
		`CREATE INDEX IF NOT EXISTS idx_hopital_ville ON hopital(VILLE)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_created ON ingest_batches(created_at)`,
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating index: %w\nSQL: %s", err, stmt)
		}
	}
	return s.setMetaFlag("lookup_indexes_v1")
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": SchemaVersion,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

// truncate shortens s to maxLen runes for error messages.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
