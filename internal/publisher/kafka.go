package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/mousereading/prep/internal/config"
	"github.com/mousereading/prep/internal/table"
)

// MessageWriter is the part of kafka.Writer the publisher needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes dwell rows and run notifications
type Kafka struct {
	dwell MessageWriter
	runs  MessageWriter
}

// RunEvent announces a finished run
type RunEvent struct {
	RunID    string         `json:"run_id"`
	Input    string         `json:"input"`
	Tables   map[string]int `json:"tables"`
	Finished int64          `json:"finished_at"`
}

// NewKafka creates writers for the configured topics
func NewKafka(cfg config.KafkaConfig) *Kafka {
	k := &Kafka{
		dwell: newWriter(cfg.Brokers, cfg.Topics["dwell"]),
	}
	if topic, ok := cfg.Topics["runs"]; ok && topic != "" {
		k.runs = newWriter(cfg.Brokers, topic)
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("dwell_topic", cfg.Topics["dwell"]).
		Str("runs_topic", cfg.Topics["runs"]).
		Msg("Kafka publisher initialized")
	return k
}

// NewKafkaWithWriters wires explicit writers; runs may be nil
func NewKafkaWithWriters(dwell, runs MessageWriter) *Kafka {
	return &Kafka{dwell: dwell, runs: runs}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           time.Millisecond * 10,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// DwellMessages builds one message per dwell row keyed by participant so a
// participant's rows stay on one partition in order.
func DwellMessages(runID uuid.UUID, t *table.Table) ([]kafka.Message, error) {
	if t == nil {
		return nil, nil
	}

	msgs := make([]kafka.Message, 0, t.Len())
	for _, r := range t.Rows() {
		payload := make(map[string]interface{}, len(r)+1)
		for k, v := range r {
			payload[k] = v
		}
		payload["run_id"] = runID.String()

		value, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}

		var key []byte
		if s, ok := r["parent_subject"].(string); ok {
			key = []byte(s)
		}
		msgs = append(msgs, kafka.Message{
			Key:   key,
			Value: value,
			Headers: []kafka.Header{
				{Key: "run_id", Value: []byte(runID.String())},
			},
		})
	}
	return msgs, nil
}

// PublishDwell writes the dwell rows of a run
func (k *Kafka) PublishDwell(ctx context.Context, runID uuid.UUID, t *table.Table) (int, error) {
	msgs, err := DwellMessages(runID, t)
	if err != nil || len(msgs) == 0 {
		return 0, err
	}
	if err := k.dwell.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// PublishRun announces a finished run when a runs topic is configured
func (k *Kafka) PublishRun(ctx context.Context, event RunEvent) error {
	if k.runs == nil {
		return nil
	}

	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return k.runs.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RunID),
		Value: value,
	})
}

// Close closes the writers
func (k *Kafka) Close() error {
	log.Info().Msg("Closing Kafka publisher")
	var firstErr error
	for _, w := range []MessageWriter{k.dwell, k.runs} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
