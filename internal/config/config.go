package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Table keys of the produced collection
const (
	MainKey        = "main_data"
	RectsKey       = "rects_details"
	MouseEventsKey = "mouseEvents_details"
	OtherEventsKey = "other_list_event_details"
)

// Output formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Output     OutputConfig     `yaml:"output"`
	Extraction ExtractionConfig `yaml:"extraction"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Export     ExportConfig     `yaml:"export"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type OutputConfig struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
}

type ExtractionConfig struct {
	Targets []TargetConfig `yaml:"targets"`
}

// TargetConfig describes one long table cut out of the main table
type TargetConfig struct {
	Key         string   `yaml:"key"`
	Candidates  []string `yaml:"candidates"`
	Fields      []string `yaml:"fields"`
	ParentLinks []string `yaml:"parent_links"`
	PairEvents  bool     `yaml:"pair_events"`
}

type ClickHouseConfig struct {
	Addr         string `yaml:"addr"`
	Database     string `yaml:"database"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type KafkaConfig struct {
	Brokers []string          `yaml:"brokers"`
	Topics  map[string]string `yaml:"topics"`
}

type ExportConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// DefaultTargets are the long tables the reading experiment produces
func DefaultTargets() []TargetConfig {
	return []TargetConfig{
		{
			Key:         RectsKey,
			Candidates:  []string{"rects"},
			Fields:      []string{"x", "y", "idx", "word"},
			ParentLinks: []string{"trial_index", "subject", "internal_node_id"},
		},
		{
			Key:         MouseEventsKey,
			Candidates:  []string{"mouseEvents"},
			Fields:      []string{"type", "idx", "word", "t"},
			ParentLinks: []string{"trial_index", "subject", "internal_node_id"},
			PairEvents:  true,
		},
		{
			Key: OtherEventsKey,
			Candidates: []string{
				"mouse_tracking_data", "mouseData", "mouse_moves",
				"stimulus_wise_mouse_data", "mt_data", "mousetrack_data",
				"fixations", "gaze_data", "events",
			},
			Fields: []string{
				"x", "y", "t", "event", "type", "value", "timestamp",
				"duration", "page_x", "page_y", "button", "key",
			},
			ParentLinks: []string{
				"trial_index", "subject", "internal_node_id", "time_elapsed", "trial_type",
			},
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
	if len(c.Output.Formats) == 0 {
		c.Output.Formats = []string{FormatCSV}
	}
	if len(c.Extraction.Targets) == 0 {
		c.Extraction.Targets = DefaultTargets()
	}
	if c.ClickHouse.MaxOpenConns == 0 {
		c.ClickHouse.MaxOpenConns = 10
	}
	if c.ClickHouse.MaxIdleConns == 0 {
		c.ClickHouse.MaxIdleConns = 5
	}
	if c.Postgres.Table == "" {
		c.Postgres.Table = "prepared_rows"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 24 * time.Hour
	}
	if c.Export.Timeout == 0 {
		c.Export.Timeout = 30 * time.Second
	}
}

// Validate checks the extraction targets and output formats
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Extraction.Targets))
	for i, t := range c.Extraction.Targets {
		if t.Key == "" {
			return fmt.Errorf("extraction target %d: empty key", i)
		}
		if t.Key == MainKey {
			return fmt.Errorf("extraction target %d: key %q is reserved", i, t.Key)
		}
		if _, dup := seen[t.Key]; dup {
			return fmt.Errorf("extraction target %d: duplicate key %q", i, t.Key)
		}
		seen[t.Key] = struct{}{}
		if len(t.Candidates) == 0 {
			return fmt.Errorf("extraction target %q: no candidate columns", t.Key)
		}
		if len(t.Fields) == 0 {
			return fmt.Errorf("extraction target %q: no fields", t.Key)
		}
	}

	for _, f := range c.Output.Formats {
		if f != FormatCSV && f != FormatXLSX {
			return fmt.Errorf("output: unknown format %q", f)
		}
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topics["dwell"] == "" {
		return errors.New("kafka: brokers set but no dwell topic")
	}

	return nil
}
