package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hurttlocker/hopital/internal/extract"
)

// facilityColumns is the CopyFrom column list, positional with facilityArgs.
var facilityColumns = []string{"nom", "ville", "telephone", "email", "province", "nombre_salle", "source_file", "batch_id", "imported_at"}

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS ingest_batches (
		id         TEXT PRIMARY KEY,
		source     TEXT NOT NULL DEFAULT '',
		mode       TEXT NOT NULL DEFAULT '',
		inserted   INTEGER NOT NULL DEFAULT 0,
		failures   INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS hopital (
		id           BIGSERIAL PRIMARY KEY,
		nom          TEXT NOT NULL,
		ville        TEXT NOT NULL,
		telephone    TEXT NOT NULL,
		email        TEXT NOT NULL,
		province     TEXT NOT NULL,
		nombre_salle TEXT NOT NULL,
		source_file  TEXT NOT NULL DEFAULT '',
		batch_id     TEXT REFERENCES ingest_batches(id),
		imported_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hopital_batch ON hopital(batch_id)`,
	`CREATE INDEX IF NOT EXISTS idx_hopital_province ON hopital(province)`,
	`CREATE INDEX IF NOT EXISTS idx_hopital_ville ON hopital(ville)`,
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	target string
}

// NewPostgresStore connects to dsn and creates the tables if absent.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "hopital"

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	for _, stmt := range postgresDDL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("executing migration: %w\nSQL: %s", err, truncate(stmt, 100))
		}
	}

	return &PostgresStore{
		pool:   pool,
		target: fmt.Sprintf("%s:%d/%s", pc.ConnConfig.Host, pc.ConnConfig.Port, pc.ConnConfig.Database),
	}, nil
}

// InsertFacilities bulk-loads recs with COPY inside one transaction.
func (s *PostgresStore) InsertFacilities(ctx context.Context, b *Batch, recs []extract.Record) (int, error) {
	if len(recs) == 0 {
		return 0, ErrNothingToInsert
	}
	prepareBatch(b, len(recs))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if _, err := tx.Exec(ctx,
		`INSERT INTO ingest_batches (id, source, mode, inserted, failures, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.Source, b.Mode, b.Inserted, b.Failures, b.CreatedAt,
	); err != nil {
		return 0, fmt.Errorf("recording batch: %w", err)
	}

	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = facilityArgs(r, b)
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"hopital"}, facilityColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copying records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(n), nil
}

// ListFacilities returns stored facilities, oldest first.
func (s *PostgresStore) ListFacilities(ctx context.Context, opts ListOpts) ([]*Facility, error) {
	query, args := listQuery(opts, func(n int) string { return fmt.Sprintf("$%d", n) })
	rows, err := s.pool.Query(ctx, query, args...)
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
func (s *PostgresStore) ListBatches(ctx context.Context, limit int) ([]*Batch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, mode, inserted, failures, created_at FROM ingest_batches
		 ORDER BY created_at DESC LIMIT $1`, clampLimit(limit))
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

// Stats returns row counts and the database size.
func (s *PostgresStore) Stats(ctx context.Context) (*StoreStats, error) {
	st := &StoreStats{ByProvince: []ProvinceCount{}}
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM hopital").Scan(&st.Facilities); err != nil {
		return nil, fmt.Errorf("counting facilities: %w", err)
	}
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM ingest_batches").Scan(&st.Batches); err != nil {
		return nil, fmt.Errorf("counting batches: %w", err)
	}
	if err := s.pool.QueryRow(ctx, "SELECT pg_database_size(current_database())").Scan(&st.DBSizeBytes); err != nil {
		return nil, fmt.Errorf("database size: %w", err)
	}

	rows, err := s.pool.Query(ctx, provinceCountQuery)
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
	return st, rows.Err()
}

// Status checks the connection and reports the server version.
func (s *PostgresStore) Status(ctx context.Context) (*Status, error) {
	st := &Status{Engine: "postgres", Target: s.target}
	if err := s.pool.QueryRow(ctx, "SHOW server_version").Scan(&st.Version); err != nil {
		return nil, fmt.Errorf("connection check: %w", err)
	}
	return st, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
