package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mousereading/prep/internal/config"
)

// Postgres archives every produced table, one JSONB document per row
type Postgres struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

// ArchiveRow is one table row ready for COPY
type ArchiveRow struct {
	RunID      uuid.UUID
	Input      string
	TableKey   string
	RowNum     int
	Data       map[string]interface{}
	ExportedAt time.Time
}

var archiveColumns = []string{"run_id", "input", "table_key", "row_num", "data", "exported_at"}

func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool, table: pgx.Identifier{cfg.Table}}, nil
}

// EnsureSchema creates the archive table when missing
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id uuid NOT NULL,
			input text NOT NULL,
			table_key text NOT NULL,
			row_num integer NOT NULL,
			data jsonb NOT NULL,
			exported_at timestamptz NOT NULL,
			PRIMARY KEY (run_id, table_key, row_num)
		)
	`, p.table.Sanitize()))
	return err
}

// InsertArchive bulk-loads rows with COPY and returns the number written
func (p *Postgres) InsertArchive(ctx context.Context, rows []ArchiveRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := p.pool.CopyFrom(ctx, p.table, archiveColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]interface{}, error) {
			r := rows[i]
			return []interface{}{r.RunID, r.Input, r.TableKey, r.RowNum, r.Data, r.ExportedAt}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", p.table.Sanitize(), err)
	}
	return n, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
