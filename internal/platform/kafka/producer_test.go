package kafka

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esocial/internal/platform/config"
	audit "esocial/pkg/platform/audit"
)

func TestToRecords(t *testing.T) {
	id := uuid.New()
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := ToRecords("esocial.compliance.events", []audit.OutboxEntry{{
		ID:            id,
		AggregateType: audit.AggregateType,
		AggregateID:   "evt-1",
		EventType:     "event_processed",
		Payload:       []byte(`{"a":1}`),
		CreatedAt:     ts,
	}})

	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "esocial.compliance.events", r.Topic)
	assert.Equal(t, []byte("evt-1"), r.Key)
	assert.Equal(t, []byte(`{"a":1}`), r.Value)
	assert.Equal(t, ts, r.Timestamp)
	require.Len(t, r.Headers, 3)
	assert.Equal(t, "event_type", r.Headers[0].Key)
	assert.Equal(t, []byte(id.String()), r.Headers[2].Value)
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{Topic: "t"}, nil)
	assert.Error(t, err)
}
