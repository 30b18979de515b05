// Command prepare converts a mouse-tracking reading experiment JSON export
// into CSV tables for analysis:
//
//	<input>_main_data.csv                 every trial, nested objects flattened
//	<input>_rects_details.csv             word bounding boxes, one word per row
//	<input>_mouseEvents_details.csv       dwell time per word visit, first or second pass
//	<input>_other_list_event_details.csv  any other recognised event list
//
// Usage:
//
//	prepare [-config prepare.yaml] [-out dir] [-log-level debug] <json-file>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mousereading/prep/internal/assembler"
	"github.com/mousereading/prep/internal/config"
	"github.com/mousereading/prep/internal/processor"
	"github.com/mousereading/prep/internal/publisher"
	"github.com/mousereading/prep/internal/session"
	"github.com/mousereading/prep/internal/storage"
	"github.com/mousereading/prep/internal/table"
	"github.com/mousereading/prep/internal/writer"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("prepare", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to YAML config file (optional)")
	outDir := fs.String("out", "", "output directory (overrides config)")
	logLevel := fs.String("log-level", "", "log level (overrides config)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "To use the tool, you have to specify the json file name.")
		fmt.Fprintln(stderr, "usage: prepare [flags] <json-file-name>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return exitUsage
	}
	input := fs.Arg(0)

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: stderr})

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Error().Err(err).Str("path", *configPath).Msg("Failed to load config")
			return exitError
		}
		cfg = loaded
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	setLevel(cfg.Log.Level)

	log.Info().Str("input", input).Msg("Processing file")

	data, err := os.ReadFile(input)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Error().Str("path", input).Msg("File not found")
		} else {
			log.Error().Err(err).Str("path", input).Msg("Failed to read file")
		}
		return exitError
	}

	tables, err := assembler.New(cfg.Extraction.Targets).AssembleJSON(data)
	switch {
	case errors.Is(err, assembler.ErrEmptyInput):
		// Only an empty main table; nothing to save.
	case errors.Is(err, assembler.ErrDecode):
		log.Error().Err(err).Str("path", input).Msg("Error decoding JSON")
		return exitError
	case err != nil:
		log.Error().Err(err).Str("path", input).Msg("No tables were created")
		return exitError
	}

	code := exitOK
	if err := save(cfg.Output, input, tables); err != nil {
		log.Error().Err(err).Msg("Failed to save tables")
		code = exitError
	}

	tables.Each(func(key string, t *table.Table) {
		log.Info().
			Str("table", key).
			Int("rows", t.Len()).
			Int("columns", t.Width()).
			Msg("Table summary")
	})

	if err := export(cfg, processor.NewRun(input, tables)); err != nil {
		code = exitError
	}

	return code
}

func save(out config.OutputConfig, input string, tables *assembler.Collection) error {
	base := writer.BaseName(input)
	for _, format := range out.Formats {
		switch format {
		case config.FormatCSV:
			if _, err := writer.WriteCSV(out.Dir, base, tables); err != nil {
				return err
			}
		case config.FormatXLSX:
			if _, err := writer.WriteXLSX(out.Dir, base, tables); err != nil {
				return err
			}
		}
	}
	return nil
}

// export connects the configured sinks and hands them the run. Connection
// failures are reported the same way as write failures.
func export(cfg *config.Config, run *processor.Run) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Export.Timeout)
	defer cancel()

	var errs []error

	// Initialize ClickHouse
	var ch *storage.ClickHouse
	if cfg.ClickHouse.Addr != "" {
		c, err := storage.NewClickHouse(ctx, cfg.ClickHouse)
		if err == nil {
			err = c.EnsureSchema(ctx)
			if err != nil {
				c.Close()
			}
		}
		if err != nil {
			log.Error().Err(err).Str("addr", cfg.ClickHouse.Addr).Msg("Failed to connect to ClickHouse")
			errs = append(errs, err)
		} else {
			ch = c
			log.Info().Msg("Connected to ClickHouse")
		}
	}

	// Initialize Postgres
	var pg *storage.Postgres
	if cfg.Postgres.DSN != "" {
		p, err := storage.NewPostgres(ctx, cfg.Postgres)
		if err == nil {
			err = p.EnsureSchema(ctx)
			if err != nil {
				p.Close()
			}
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to Postgres")
			errs = append(errs, err)
		} else {
			pg = p
			log.Info().Msg("Connected to Postgres")
		}
	}

	// Initialize Redis
	var sessions *session.Aggregator
	if cfg.Redis.Addr != "" {
		s := session.NewAggregator(cfg.Redis)
		if err := s.Ping(ctx); err != nil {
			log.Error().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
			s.Close()
			errs = append(errs, err)
		} else {
			sessions = s
			log.Info().Msg("Connected to Redis")
		}
	}

	var kafka *publisher.Kafka
	if len(cfg.Kafka.Brokers) > 0 {
		kafka = publisher.NewKafka(cfg.Kafka)
	}

	exporter := processor.NewExporter(ch, pg, sessions, kafka, cfg.Export)
	defer exporter.Close()

	if exporter.Enabled() {
		log.Info().Str("run_id", run.ID.String()).Msg("Exporting run")
		if err := exporter.Export(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func setLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
