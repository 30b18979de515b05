package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mousereading/prep/internal/table"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func dwellTable() *table.Table {
	return table.FromRows([]table.Row{
		{"parent_subject": "p01", "idx": "0", "time": 250.0, "reading_measure": "first_pass"},
		{"parent_subject": 7.0, "idx": "1", "time": 20.0, "reading_measure": "second_pass"},
	})
}

func TestDwellMessages(t *testing.T) {
	runID := uuid.New()

	msgs, err := DwellMessages(runID, dwellTable())
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, []byte("p01"), msgs[0].Key)
	assert.Nil(t, msgs[1].Key)
	assert.Equal(t, "run_id", msgs[0].Headers[0].Key)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0].Value, &payload))
	assert.Equal(t, runID.String(), payload["run_id"])
	assert.Equal(t, 250.0, payload["time"])
	assert.Equal(t, "first_pass", payload["reading_measure"])
}

func TestPublishDwell(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafkaWithWriters(w, nil)

	n, err := k.PublishDwell(context.Background(), uuid.New(), dwellTable())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, w.msgs, 2)

	n, err = k.PublishDwell(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublishDwellError(t *testing.T) {
	k := NewKafkaWithWriters(&fakeWriter{err: errors.New("broker down")}, nil)

	_, err := k.PublishDwell(context.Background(), uuid.New(), dwellTable())
	assert.EqualError(t, err, "broker down")
}

func TestPublishRun(t *testing.T) {
	runs := &fakeWriter{}
	k := NewKafkaWithWriters(&fakeWriter{}, runs)

	err := k.PublishRun(context.Background(), RunEvent{
		RunID:  "abc",
		Input:  "exp.json",
		Tables: map[string]int{"main_data": 4},
	})
	require.NoError(t, err)
	require.Len(t, runs.msgs, 1)
	assert.Equal(t, []byte("abc"), runs.msgs[0].Key)
	assert.JSONEq(t, `{"run_id":"abc","input":"exp.json","tables":{"main_data":4},"finished_at":0}`, string(runs.msgs[0].Value))
}

func TestPublishRunWithoutTopic(t *testing.T) {
	k := NewKafkaWithWriters(&fakeWriter{}, nil)
	assert.NoError(t, k.PublishRun(context.Background(), RunEvent{RunID: "abc"}))
}

func TestClose(t *testing.T) {
	dwell, runs := &fakeWriter{}, &fakeWriter{}
	k := NewKafkaWithWriters(dwell, runs)

	require.NoError(t, k.Close())
	assert.True(t, dwell.closed)
	assert.True(t, runs.closed)
}
