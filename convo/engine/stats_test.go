package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

func TestTurnMetrics_RecordsOutcomes(t *testing.T) {
	metrics := NewTurnMetrics()

	metrics.RecordTurn(TurnStateDone, 100*time.Millisecond, 80*time.Millisecond)
	metrics.RecordTurn(TurnStateDone, 120*time.Millisecond, 90*time.Millisecond)
	metrics.RecordTurn(TurnStateProviderFailed, 30*time.Millisecond, 0)

	summary := metrics.Summary()
	assert.Equal(t, int64(3), summary.TurnsTotal)
	assert.Equal(t, int64(2), summary.Outcomes[TurnStateDone])
	assert.Equal(t, int64(1), summary.Outcomes[TurnStateProviderFailed])
}

func TestTurnMetrics_ProviderLatencySkipsZero(t *testing.T) {
	metrics := NewTurnMetrics()

	// A turn that never reached the model contributes no provider sample.
	metrics.RecordTurn(TurnStateRenderFailed, 5*time.Millisecond, 0)

	summary := metrics.Summary()
	assert.Equal(t, time.Duration(0), summary.ProviderLatency.P50)
	assert.NotEqual(t, time.Duration(0), summary.TurnLatency.P50)
}

func TestTurnMetrics_Percentiles(t *testing.T) {
	metrics := NewTurnMetrics()
	for i := 1; i <= 100; i++ {
		metrics.RecordTurn(TurnStateDone, time.Duration(i)*time.Millisecond, time.Duration(i)*time.Millisecond)
	}

	summary := metrics.Summary()
	assert.InDelta(t, float64(50*time.Millisecond), float64(summary.TurnLatency.P50), float64(time.Millisecond))
	assert.InDelta(t, float64(95*time.Millisecond), float64(summary.TurnLatency.P95), float64(time.Millisecond))
	assert.InDelta(t, float64(99*time.Millisecond), float64(summary.TurnLatency.P99), float64(time.Millisecond))
	assert.True(t, summary.TurnLatency.P50 <= summary.TurnLatency.P95)
	assert.True(t, summary.TurnLatency.P95 <= summary.TurnLatency.P99)
}

func TestTurnMetrics_DispatchAndUsage(t *testing.T) {
	metrics := NewTurnMetrics()

	metrics.RecordDispatch()
	metrics.RecordDispatch()
	metrics.RecordUsage(&ports.Usage{PromptTokens: 40, CompletionTokens: 10, TotalTokens: 50})
	metrics.RecordUsage(&ports.Usage{PromptTokens: 60, CompletionTokens: 20, TotalTokens: 80})
	metrics.RecordUsage(nil)

	summary := metrics.Summary()
	assert.Equal(t, int64(2), summary.CommandsDispatched)
	assert.Equal(t, int64(100), summary.PromptTokens)
	assert.Equal(t, int64(30), summary.CompletionTokens)
}

func TestTurnMetrics_Reset(t *testing.T) {
	metrics := NewTurnMetrics()
	metrics.RecordTurn(TurnStateDone, time.Millisecond, time.Millisecond)
	metrics.RecordDispatch()
	metrics.RecordUsage(&ports.Usage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10})

	metrics.Reset()

	summary := metrics.Summary()
	assert.Equal(t, int64(0), summary.TurnsTotal)
	assert.Empty(t, summary.Outcomes)
	assert.Equal(t, int64(0), summary.CommandsDispatched)
	assert.Equal(t, int64(0), summary.PromptTokens)
	assert.Equal(t, time.Duration(0), summary.TurnLatency.P50)
}

func TestTurnMetrics_EmptySummary(t *testing.T) {
	summary := NewTurnMetrics().Summary()
	assert.Equal(t, int64(0), summary.TurnsTotal)
	assert.Equal(t, LatencyPercentiles{}, summary.TurnLatency)
}
