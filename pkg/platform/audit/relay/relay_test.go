package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "esocial/pkg/domain"
	audit "esocial/pkg/platform/audit"
	"esocial/pkg/platform/audit/store/memory"
)

type recordingProducer struct {
	mu      sync.Mutex
	batches [][]audit.OutboxEntry
	err     error
}

func (p *recordingProducer) Publish(_ context.Context, entries []audit.OutboxEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, entries)
	return nil
}

func seed(t *testing.T, store *memory.InMemoryStore, n int) {
	t.Helper()
	for range n {
		require.NoError(t, store.Append(context.Background(), audit.Event{
			EventID: id.NewEventID(),
			Action:  audit.ActionEventSubmitted,
		}))
	}
}

func TestRelay_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes pending rows in batches and marks them", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		seed(t, store, 3)
		producer := &recordingProducer{}
		r := New(store, producer, WithBatchSize(2))

		n, err := r.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = r.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = r.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Len(t, producer.batches, 2)
	})

	t.Run("leaves rows pending when publish fails", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		seed(t, store, 1)
		r := New(store, &recordingProducer{err: errors.New("broker down")})

		_, err := r.RunOnce(ctx)
		require.Error(t, err)

		pending, err := store.FetchPending(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})
}
