package storage

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"github.com/mousereading/prep/internal/config"
)

type ClickHouse struct {
	conn driver.Conn
}

// DwellRow represents a row in the reading_dwell table
type DwellRow struct {
	RunID          uuid.UUID
	Subject        string
	TrialIndex     int64
	InternalNodeID string
	WordIdx        int32
	Word           string
	PairOrder      uint32
	DwellMs        float64
	ReadingMeasure string
	ExportedAt     time.Time
}

// RectRow represents a row in the word_rects table
type RectRow struct {
	RunID          uuid.UUID
	Subject        string
	TrialIndex     int64
	InternalNodeID string
	WordIdx        int32
	Word           string
	X              *float64
	Y              *float64
	ExportedAt     time.Time
}

const createDwellTable = `
	CREATE TABLE IF NOT EXISTS reading_dwell (
		run_id UUID,
		subject String,
		trial_index Int64,
		internal_node_id String,
		word_idx Int32,
		word String,
		pair_order UInt32,
		dwell_ms Float64,
		reading_measure LowCardinality(String),
		exported_at DateTime64(3)
	) ENGINE = MergeTree
	ORDER BY (subject, trial_index, pair_order, run_id)
`

const createRectsTable = `
	CREATE TABLE IF NOT EXISTS word_rects (
		run_id UUID,
		subject String,
		trial_index Int64,
		internal_node_id String,
		word_idx Int32,
		word String,
		x Nullable(Float64),
		y Nullable(Float64),
		exported_at DateTime64(3)
	) ENGINE = MergeTree
	ORDER BY (subject, trial_index, word_idx, run_id)
`

func NewClickHouse(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}

	return &ClickHouse{conn: conn}, nil
}

// EnsureSchema creates the target tables when missing
func (c *ClickHouse) EnsureSchema(ctx context.Context) error {
	for _, ddl := range []string{createDwellTable, createRectsTable} {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (c *ClickHouse) InsertDwell(ctx context.Context, rows []DwellRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO reading_dwell (
			run_id, subject, trial_index, internal_node_id,
			word_idx, word, pair_order, dwell_ms, reading_measure, exported_at
		)
	`)
	if err != nil {
		return err
	}

	for _, r := range rows {
		err := batch.Append(
			r.RunID, r.Subject, r.TrialIndex, r.InternalNodeID,
			r.WordIdx, r.Word, r.PairOrder, r.DwellMs, r.ReadingMeasure, r.ExportedAt,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) InsertRects(ctx context.Context, rows []RectRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO word_rects (
			run_id, subject, trial_index, internal_node_id,
			word_idx, word, x, y, exported_at
		)
	`)
	if err != nil {
		return err
	}

	for _, r := range rows {
		err := batch.Append(
			r.RunID, r.Subject, r.TrialIndex, r.InternalNodeID,
			r.WordIdx, r.Word, r.X, r.Y, r.ExportedAt,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
