package session

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mousereading/prep/internal/assembler"
	"github.com/mousereading/prep/internal/config"
	"github.com/mousereading/prep/internal/dwell"
)

const keyPrefix = "session:"

// Summary is what one run contributed for one participant
type Summary struct {
	Subject     string
	Trials      int64
	DwellRows   int64
	FirstPass   int64
	SecondPass  int64
	TotalDwell  float64
	WordRects   int64
	OtherEvents int64
}

// Aggregator keeps per-participant counters in Redis hashes
type Aggregator struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewAggregator creates a new session aggregator
func NewAggregator(redisCfg config.RedisConfig) *Aggregator {
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	return &Aggregator{
		redis: rdb,
		ttl:   redisCfg.TTL,
	}
}

// Ping checks the connection
func (a *Aggregator) Ping(ctx context.Context) error {
	return a.redis.Ping(ctx).Err()
}

// Summarize counts the rows each participant contributed to the collection.
// Rows without a subject are counted under the empty subject.
func Summarize(c *assembler.Collection) []Summary {
	bySubject := make(map[string]*Summary)
	get := func(subject string) *Summary {
		s, ok := bySubject[subject]
		if !ok {
			s = &Summary{Subject: subject}
			bySubject[subject] = s
		}
		return s
	}

	if t, ok := c.Get(config.MainKey); ok {
		for _, r := range t.Rows() {
			get(subjectOf(r["subject"])).Trials++
		}
	}
	if t, ok := c.Get(config.MouseEventsKey); ok {
		for _, r := range t.Rows() {
			s := get(subjectOf(r["parent_subject"]))
			s.DwellRows++
			switch r[dwell.MeasureColumn] {
			case dwell.FirstPass:
				s.FirstPass++
			case dwell.SecondPass:
				s.SecondPass++
			}
			if v, ok := r[dwell.DwellColumn].(float64); ok {
				s.TotalDwell += v
			}
		}
	}
	if t, ok := c.Get(config.RectsKey); ok {
		for _, r := range t.Rows() {
			get(subjectOf(r["parent_subject"])).WordRects++
		}
	}
	if t, ok := c.Get(config.OtherEventsKey); ok {
		for _, r := range t.Rows() {
			get(subjectOf(r["parent_subject"])).OtherEvents++
		}
	}

	out := make([]Summary, 0, len(bySubject))
	for _, s := range bySubject {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out
}

// UpdateSessions adds the run's counters to every participant's hash
func (a *Aggregator) UpdateSessions(ctx context.Context, runID uuid.UUID, input string, summaries []Summary) error {
	if a.redis == nil || len(summaries) == 0 {
		return nil
	}

	// Use Redis pipeline for efficiency
	pipe := a.redis.Pipeline()
	now := time.Now().UnixMilli()

	for _, s := range summaries {
		key := Key(s.Subject)

		pipe.HIncrBy(ctx, key, "runs", 1)
		pipe.HIncrBy(ctx, key, "trials", s.Trials)
		pipe.HIncrBy(ctx, key, "dwell_rows", s.DwellRows)
		pipe.HIncrBy(ctx, key, "first_pass", s.FirstPass)
		pipe.HIncrBy(ctx, key, "second_pass", s.SecondPass)
		pipe.HIncrByFloat(ctx, key, "total_dwell_ms", s.TotalDwell)
		pipe.HIncrBy(ctx, key, "word_rects", s.WordRects)
		pipe.HIncrBy(ctx, key, "other_events", s.OtherEvents)

		pipe.HSetNX(ctx, key, "first_seen_at", now)
		pipe.HSet(ctx, key, "last_run_id", runID.String(), "last_input", input, "updated_at", now)

		if a.ttl > 0 {
			pipe.Expire(ctx, key, a.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID.String()).Msg("Failed to update sessions in Redis")
	}
	return err
}

// Key returns the Redis hash key of a participant
func Key(subject string) string {
	return keyPrefix + subject
}

func subjectOf(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

// Close closes the aggregator
func (a *Aggregator) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
