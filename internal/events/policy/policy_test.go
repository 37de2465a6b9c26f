package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esocial/internal/events/models"
	id "esocial/pkg/domain"
)

var processedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func processedEvent(t models.EventType) *models.ComplianceEvent {
	at := processedAt
	return &models.ComplianceEvent{
		ID:          id.NewEventID(),
		Type:        t,
		Status:      models.StatusProcessed,
		ProcessedAt: &at,
	}
}

func TestDefaultTable(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	for _, et := range models.AllEventTypes() {
		_, listed := p.rules[et]
		assert.True(t, listed, "default table must list %s", et)
	}
	assert.False(t, p.Rule(models.TypeWorkplaceAccident).Cancellable)
	assert.Equal(t, 90, p.Rule(models.TypeEnvironmentalConditions).WindowDays)
	assert.Equal(t, 10*24*time.Hour, p.Rule(models.TypeTermination).Window())
}

func TestCanCancel(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name    string
		event   func() *models.ComplianceEvent
		now     time.Time
		allowed bool
		reason  string
	}{
		{
			name:    "within window",
			event:   func() *models.ComplianceEvent { return processedEvent(models.TypeTermination) },
			now:     processedAt.Add(24 * time.Hour),
			allowed: true,
		},
		{
			name:    "exactly at window boundary",
			event:   func() *models.ComplianceEvent { return processedEvent(models.TypeTermination) },
			now:     processedAt.Add(10 * 24 * time.Hour),
			allowed: true,
		},
		{
			name:   "one nanosecond past the window",
			event:  func() *models.ComplianceEvent { return processedEvent(models.TypeTermination) },
			now:    processedAt.Add(10*24*time.Hour + time.Nanosecond),
			reason: "cancellation window of 10 days has elapsed",
		},
		{
			name:   "type not cancellable",
			event:  func() *models.ComplianceEvent { return processedEvent(models.TypeWorkplaceAccident) },
			now:    processedAt,
			reason: "workplace_accident events cannot be cancelled",
		},
		{
			name: "not processed",
			event: func() *models.ComplianceEvent {
				e := processedEvent(models.TypeTermination)
				e.Status = models.StatusSubmitted
				return e
			},
			now:    processedAt,
			reason: "only PROCESSED events can be cancelled; event is SUBMITTED",
		},
		{
			name: "already cancelled",
			event: func() *models.ComplianceEvent {
				e := processedEvent(models.TypeTermination)
				e.Status = models.StatusCancelled
				return e
			},
			now:    processedAt,
			reason: "only PROCESSED events can be cancelled; event is CANCELLED",
		},
		{
			name: "missing processing time",
			event: func() *models.ComplianceEvent {
				e := processedEvent(models.TypeTermination)
				e.ProcessedAt = nil
				return e
			},
			now:    processedAt,
			reason: "event has no processing time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.CanCancel(tt.event(), tt.now)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestZeroWindowMeansUnlimited(t *testing.T) {
	p, err := Parse([]byte("rules:\n  termination:\n    cancellable: true\n    window_days: 0\n"))
	require.NoError(t, err)

	d := p.CanCancel(processedEvent(models.TypeTermination), processedAt.Add(5*365*24*time.Hour))
	assert.True(t, d.Allowed)

	d = p.CanCancel(processedEvent(models.TypePriorNotice), processedAt)
	assert.False(t, d.Allowed, "types absent from the table are not cancellable")
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  workplace_accident:
    cancellable: true
    window_days: 5
  termination:
    cancellable: false
`), 0o600))

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Rule{Cancellable: true, WindowDays: 5}, p.Rule(models.TypeWorkplaceAccident))
	assert.False(t, p.Rule(models.TypeTermination).Cancellable)
	assert.Equal(t, 30, p.Rule(models.TypeInitialRegistration).WindowDays, "unlisted types keep defaults")
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30, p.Rule(models.TypeContractChange).WindowDays)
}

func TestParseRejectsBadTables(t *testing.T) {
	tests := map[string]string{
		"unknown type":    "rules:\n  payroll:\n    cancellable: true\n",
		"negative window": "rules:\n  termination:\n    cancellable: true\n    window_days: -1\n",
		"unknown field":   "rules:\n  termination:\n    cancelable: true\n",
		"not yaml":        "rules: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
