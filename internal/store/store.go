// Package store persists canonical facility records.
//
// The default backend is a single SQLite database file holding:
// - the hopital table (NOM, VILLE, TELEPHONE, EMAIL, PROVINCE, NOMBRE_SALLE)
// - one ingest_batches row per bulk insert, for provenance
// - a meta table tracking schema migrations
//
// A PostgreSQL backend with the same interface is used when a DSN is configured.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/hopital/internal/extract"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.hopital/hopital.db"

// DefaultListLimit and MaxListLimit bound ListFacilities.
const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// ErrNothingToInsert is returned when a bulk insert gets no records.
var ErrNothingToInsert = errors.New("no valid line to insert")

// Facility is a stored canonical record.
type Facility struct {
	ID          int64     `json:"id"`
	Nom         string    `json:"nom"`
	Ville       string    `json:"ville"`
	Telephone   string    `json:"telephone"`
	Email       string    `json:"email"`
	Province    string    `json:"province"`
	NombreSalle string    `json:"nombre_salle"`
	SourceFile  string    `json:"file"`
	BatchID     string    `json:"batch_id"`
	ImportedAt  time.Time `json:"imported_at"`
}

// Batch describes one bulk insert.
type Batch struct {
	ID        string
	Source    string // file or directory the records came from
	Mode      string
	Inserted  int
	Failures  int // error records seen while extracting, not inserted
	CreatedAt time.Time
}

// ListOpts filters ListFacilities. Empty strings match everything.
type ListOpts struct {
	Province string
	Ville    string
	Limit    int
}

// ProvinceCount is one row of StoreStats.ByProvince.
type ProvinceCount struct {
	Province string `json:"province"`
	Count    int64  `json:"count"`
}

// StoreStats holds row counts for the stats resource and CLI.
type StoreStats struct {
	Facilities  int64           `json:"facilities"`
	Batches     int64           `json:"batches"`
	ByProvince  []ProvinceCount `json:"by_province"`
	DBSizeBytes int64           `json:"db_size_bytes"`
}

// Status is the result of a connection check.
type Status struct {
	Engine  string `json:"engine"`
	Version string `json:"version"`
	Target  string `json:"target"`
}

// StoreConfig holds configuration for Open.
type StoreConfig struct {
	DBPath      string
	PostgresDSN string // selects PostgresStore when set
}

// Store is the sink for canonical records.
type Store interface {
	// InsertFacilities writes recs and the batch row in one transaction.
	// b.ID is generated when empty; b.Inserted and b.CreatedAt are filled in.
	InsertFacilities(ctx context.Context, b *Batch, recs []extract.Record) (int, error)
	ListFacilities(ctx context.Context, opts ListOpts) ([]*Facility, error)
	ListBatches(ctx context.Context, limit int) ([]*Batch, error)

	Stats(ctx context.Context) (*StoreStats, error)
	Status(ctx context.Context) (*Status, error)

	Close() error
}

// Open returns the backend selected by cfg.
func Open(ctx context.Context, cfg StoreConfig) (Store, error) {
	if cfg.PostgresDSN != "" {
		pg, err := NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	return NewStore(cfg)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}
	cfg.DBPath = expandPath(cfg.DBPath)

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// Each pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// InsertFacilities inserts recs positionally into hopital.
func (s *SQLiteStore) InsertFacilities(ctx context.Context, b *Batch, recs []extract.Record) (int, error) {
	if len(recs) == 0 {
		return 0, ErrNothingToInsert
	}
	prepareBatch(b, len(recs))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ingest_batches (id, source, mode, inserted, failures, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.Source, b.Mode, b.Inserted, b.Failures, b.CreatedAt,
	); err != nil {
		return 0, fmt.Errorf("recording batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO hopital (NOM, VILLE, TELEPHONE, EMAIL, PROVINCE, NOMBRE_SALLE, source_file, batch_id, imported_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range recs {
		if _, err := stmt.ExecContext(ctx, facilityArgs(r, b)...); err != nil {
			return 0, fmt.Errorf("inserting record %d (%s): %w", i, r.File, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(recs), nil
}

// ListFacilities returns stored facilities, oldest first.
func (s *SQLiteStore) ListFacilities(ctx context.Context, opts ListOpts) ([]*Facility, error) {
	query, args := listQuery(opts, func(int) string { return "?" })
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing facilities: %w", err)
	}
	defer rows.Close()

	var out []*Facility
	for rows.Next() {
		f := &Facility{}
		if err := rows.Scan(&f.ID, &f.Nom, &f.Ville, &f.Telephone, &f.Email, &f.Province,
			&f.NombreSalle, &f.SourceFile, &f.BatchID, &f.ImportedAt); err != nil {
			return nil, fmt.Errorf("scanning facility: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListBatches returns the most recent batches first.
func (s *SQLiteStore) ListBatches(ctx context.Context, limit int) ([]*Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, mode, inserted, failures, created_at FROM ingest_batches
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	defer rows.Close()

	var out []*Batch
	for rows.Next() {
		b := &Batch{}
		if err := rows.Scan(&b.ID, &b.Source, &b.Mode, &b.Inserted, &b.Failures, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning batch: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Stats returns row counts and the database file size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	st := &StoreStats{ByProvince: []ProvinceCount{}}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM hopital").Scan(&st.Facilities); err != nil {
		return nil, fmt.Errorf("counting facilities: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ingest_batches").Scan(&st.Batches); err != nil {
		return nil, fmt.Errorf("counting batches: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, provinceCountQuery)
	if err != nil {
		return nil, fmt.Errorf("counting provinces: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pc ProvinceCount
		if err := rows.Scan(&pc.Province, &pc.Count); err != nil {
			return nil, err
		}
		st.ByProvince = append(st.ByProvince, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if s.dbPath != ":memory:" {
		if info, err := os.Stat(s.dbPath); err == nil {
			st.DBSizeBytes = info.Size()
		}
	}
	return st, nil
}

// Status checks the connection and reports the SQLite version.
func (s *SQLiteStore) Status(ctx context.Context) (*Status, error) {
	st := &Status{Engine: "sqlite", Target: s.dbPath}
	if err := s.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&st.Version); err != nil {
		return nil, fmt.Errorf("connection check: %w", err)
	}
	return st, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const provinceCountQuery = `SELECT PROVINCE, COUNT(*) AS n FROM hopital GROUP BY PROVINCE ORDER BY n DESC, PROVINCE`

// listQuery builds the filtered SELECT; ph renders the n-th placeholder.
func listQuery(opts ListOpts, ph func(n int) string) (string, []any) {
	var (
		where []string
		args  []any
	)
	if opts.Province != "" {
		args = append(args, opts.Province)
		where = append(where, "PROVINCE = "+ph(len(args)))
	}
	if opts.Ville != "" {
		args = append(args, opts.Ville)
		where = append(where, "VILLE = "+ph(len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT id, NOM, VILLE, TELEPHONE, EMAIL, PROVINCE, NOMBRE_SALLE, source_file, batch_id, imported_at FROM hopital`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, clampLimit(opts.Limit))
	b.WriteString(" ORDER BY id LIMIT " + ph(len(args)))
	return b.String(), args
}

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	if n > MaxListLimit {
		return MaxListLimit
	}
	return n
}

// facilityArgs maps a record positionally onto the insert columns.
func facilityArgs(r extract.Record, b *Batch) []any {
	return []any{r.Nom, r.Ville, r.Telephone, r.Email, r.Province, r.NombreSalle, r.File, b.ID, b.CreatedAt}
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
