package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mousereading/prep/internal/assembler"
	"github.com/mousereading/prep/internal/config"
	"github.com/mousereading/prep/internal/publisher"
	"github.com/mousereading/prep/internal/session"
	"github.com/mousereading/prep/internal/storage"
	"github.com/mousereading/prep/internal/transformer"
)

// Run is one processed input file
type Run struct {
	ID     uuid.UUID
	Input  string
	Tables *assembler.Collection
}

// NewRun tags a collection with a fresh run id
func NewRun(input string, tables *assembler.Collection) *Run {
	return &Run{ID: uuid.New(), Input: input, Tables: tables}
}

// Exporter sends finished runs to the optional sinks. Any sink may be nil.
type Exporter struct {
	ch       *storage.ClickHouse
	pg       *storage.Postgres
	sessions *session.Aggregator
	kafka    *publisher.Kafka
	timeout  time.Duration
}

// NewExporter creates a new exporter
func NewExporter(ch *storage.ClickHouse, pg *storage.Postgres, sessions *session.Aggregator, kafka *publisher.Kafka, cfg config.ExportConfig) *Exporter {
	return &Exporter{
		ch:       ch,
		pg:       pg,
		sessions: sessions,
		kafka:    kafka,
		timeout:  cfg.Timeout,
	}
}

// Enabled reports whether any sink is configured
func (e *Exporter) Enabled() bool {
	return e.ch != nil || e.pg != nil || e.sessions != nil || e.kafka != nil
}

// Export writes the run to every configured sink. A failing sink does not
// stop the others; all failures are returned joined.
func (e *Exporter) Export(ctx context.Context, run *Run) error {
	if !e.Enabled() {
		return nil
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	now := time.Now()
	var errs []error

	// ClickHouse
	if e.ch != nil {
		start := time.Now()
		if err := e.exportClickHouse(ctx, run, now); err != nil {
			log.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to export to ClickHouse")
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		} else {
			log.Info().
				Str("run_id", run.ID.String()).
				Dur("duration", time.Since(start)).
				Msg("Exported to ClickHouse")
		}
	}

	// Postgres archive
	if e.pg != nil {
		rows := transformer.ArchiveRows(run.ID, run.Input, now, run.Tables)
		if n, err := e.pg.InsertArchive(ctx, rows); err != nil {
			log.Error().Err(err).Int("count", len(rows)).Msg("Failed to archive rows in Postgres")
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		} else {
			log.Info().Int64("count", n).Msg("Archived rows in Postgres")
		}
	}

	// Redis participant summaries
	if e.sessions != nil {
		summaries := session.Summarize(run.Tables)
		if err := e.sessions.UpdateSessions(ctx, run.ID, run.Input, summaries); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		} else {
			log.Debug().Int("subjects", len(summaries)).Msg("Updated participant sessions")
		}
	}

	// Kafka
	if e.kafka != nil {
		if err := e.publish(ctx, run, now); err != nil {
			log.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to publish to Kafka")
			errs = append(errs, fmt.Errorf("kafka: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (e *Exporter) exportClickHouse(ctx context.Context, run *Run, now time.Time) error {
	if dwellTable, ok := run.Tables.Get(config.MouseEventsKey); ok {
		rows := transformer.DwellRows(run.ID, now, dwellTable)
		if err := e.ch.InsertDwell(ctx, rows); err != nil {
			return err
		}
		log.Debug().Int("count", len(rows)).Msg("Inserted dwell rows")
	}
	if rectsTable, ok := run.Tables.Get(config.RectsKey); ok {
		rows := transformer.RectRows(run.ID, now, rectsTable)
		if err := e.ch.InsertRects(ctx, rows); err != nil {
			return err
		}
		log.Debug().Int("count", len(rows)).Msg("Inserted word rect rows")
	}
	return nil
}

func (e *Exporter) publish(ctx context.Context, run *Run, now time.Time) error {
	dwellTable, _ := run.Tables.Get(config.MouseEventsKey)
	n, err := e.kafka.PublishDwell(ctx, run.ID, dwellTable)
	if err != nil {
		return err
	}
	log.Info().Int("count", n).Msg("Published dwell rows")

	tables := make(map[string]int, run.Tables.Len())
	for _, k := range run.Tables.Keys() {
		t, _ := run.Tables.Get(k)
		tables[k] = t.Len()
	}
	return e.kafka.PublishRun(ctx, publisher.RunEvent{
		RunID:    run.ID.String(),
		Input:    run.Input,
		Tables:   tables,
		Finished: now.UnixMilli(),
	})
}

// Close releases every sink
func (e *Exporter) Close() {
	if e.ch != nil {
		if err := e.ch.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close ClickHouse")
		}
	}
	if e.pg != nil {
		e.pg.Close()
	}
	if e.sessions != nil {
		if err := e.sessions.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis")
		}
	}
	if e.kafka != nil {
		if err := e.kafka.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Kafka publisher")
		}
	}
}
