package simulator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esocial/internal/events/models"
	"esocial/internal/events/ports"
)

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	g := New(WithPendingPolls(2))

	first, err := g.Submit(ctx, models.TypeTermination, json.RawMessage(`{}`))
	require.NoError(t, err)
	second, err := g.Submit(ctx, models.TypeTermination, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "P-000001", first.Protocol)
	assert.Equal(t, "P-000002", second.Protocol)

	for range 2 {
		res, err := g.ConsultByProtocol(ctx, first.Protocol)
		require.NoError(t, err)
		assert.Equal(t, ports.OutcomePending, res.Outcome)
	}
	res, err := g.ConsultByProtocol(ctx, first.Protocol)
	require.NoError(t, err)
	assert.Equal(t, ports.OutcomeAccepted, res.Outcome)
	assert.Equal(t, "R-000001", res.ReceiptNumber)

	again, err := g.ConsultByProtocol(ctx, first.Protocol)
	require.NoError(t, err)
	assert.Equal(t, res, again, "resolved outcome is stable")

	require.NoError(t, g.Cancel(ctx, res.ReceiptNumber, "duplicate"))
	err = g.Cancel(ctx, res.ReceiptNumber, "duplicate")
	assert.Equal(t, ports.CategoryRejected, ports.CategoryOf(err))
}

func TestRejector(t *testing.T) {
	g := New(WithPendingPolls(0), WithRejector(func(t models.EventType, _ json.RawMessage) []models.ErrorDetail {
		if t == models.TypeWorkplaceAccident {
			return []models.ErrorDetail{{Code: "E404", Description: "worker not registered"}}
		}
		return nil
	}))
	ctx := context.Background()

	sub, err := g.Submit(ctx, models.TypeWorkplaceAccident, json.RawMessage(`{}`))
	require.NoError(t, err)
	res, err := g.ConsultByProtocol(ctx, sub.Protocol)
	require.NoError(t, err)
	assert.Equal(t, ports.OutcomeRejected, res.Outcome)
	assert.Equal(t, "E404", res.Errors[0].Code)
}

func TestUnknownIdentifiers(t *testing.T) {
	g := New()
	_, err := g.ConsultByProtocol(context.Background(), "P-999999")
	assert.Equal(t, ports.CategoryRejected, ports.CategoryOf(err))
	assert.Error(t, g.Cancel(context.Background(), "R-999999", "x"))
}

func TestFailNextIsOneShot(t *testing.T) {
	g := New()
	g.FailNext("submit", ports.CategoryUnavailable)

	_, err := g.Submit(context.Background(), models.TypeTermination, json.RawMessage(`{}`))
	ge, ok := ports.AsGatewayError(err)
	require.True(t, ok)
	assert.True(t, ge.Retryable)

	_, err = g.Submit(context.Background(), models.TypeTermination, json.RawMessage(`{}`))
	assert.NoError(t, err)
}

func TestLatencyHonoursContext(t *testing.T) {
	g := New(WithLatency(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.Submit(ctx, models.TypeTermination, json.RawMessage(`{}`))
	assert.Equal(t, ports.CategoryTimeout, ports.CategoryOf(err))
}
