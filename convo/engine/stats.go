package engine

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// TurnMetrics aggregates timing, outcome, and token counters across turns.
type TurnMetrics struct {
	mu sync.RWMutex

	outcomes map[TurnState]int64

	turnLatency     []time.Duration
	providerLatency []time.Duration

	commandsDispatched int64
	promptTokens       int64
	completionTokens   int64
}

// NewTurnMetrics creates an empty collector.
func NewTurnMetrics() *TurnMetrics {
	return &TurnMetrics{
		outcomes:        make(map[TurnState]int64),
		turnLatency:     make([]time.Duration, 0, 1000),
		providerLatency: make([]time.Duration, 0, 1000),
	}
}

// RecordTurn records one finished turn. provider is zero when the turn never
// reached the completion call.
func (m *TurnMetrics) RecordTurn(state TurnState, total, provider time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.outcomes[state]++
	m.turnLatency = append(m.turnLatency, total)
	if provider > 0 {
		m.providerLatency = append(m.providerLatency, provider)
	}
}

// RecordDispatch counts one successfully executed command.
func (m *TurnMetrics) RecordDispatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commandsDispatched++
}

// RecordUsage accumulates provider token accounting when reported.
func (m *TurnMetrics) RecordUsage(usage *ports.Usage) {
	if usage == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens += int64(usage.PromptTokens)
	m.completionTokens += int64(usage.CompletionTokens)
}

// Summary returns a point-in-time snapshot of all counters.
func (m *TurnMetrics) Summary() MetricsSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	outcomes := make(map[TurnState]int64, len(m.outcomes))
	var total int64
	for state, count := range m.outcomes {
		outcomes[state] = count
		total += count
	}

	return MetricsSummary{
		TurnsTotal:         total,
		Outcomes:           outcomes,
		CommandsDispatched: m.commandsDispatched,
		PromptTokens:       m.promptTokens,
		CompletionTokens:   m.completionTokens,
		TurnLatency:        percentiles(m.turnLatency),
		ProviderLatency:    percentiles(m.providerLatency),
	}
}

// Reset clears all collected metrics.
func (m *TurnMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.outcomes = make(map[TurnState]int64)
	m.turnLatency = m.turnLatency[:0]
	m.providerLatency = m.providerLatency[:0]
	m.commandsDispatched = 0
	m.promptTokens = 0
	m.completionTokens = 0
}

// MetricsSummary is a snapshot of engine activity.
type MetricsSummary struct {
	TurnsTotal         int64               `json:"turns_total"`
	Outcomes           map[TurnState]int64 `json:"outcomes"`
	CommandsDispatched int64               `json:"commands_dispatched"`
	PromptTokens       int64               `json:"prompt_tokens"`
	CompletionTokens   int64               `json:"completion_tokens"`
	TurnLatency        LatencyPercentiles  `json:"turn_latency"`
	ProviderLatency    LatencyPercentiles  `json:"provider_latency"`
}

// LatencyPercentiles represents latency percentiles.
type LatencyPercentiles struct {
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

func percentiles(latencies []time.Duration) LatencyPercentiles {
	if len(latencies) == 0 {
		return LatencyPercentiles{}
	}

	values := make([]float64, len(latencies))
	for i, d := range latencies {
		values[i] = float64(d)
	}
	sort.Float64s(values)

	return LatencyPercentiles{
		P50: time.Duration(stat.Quantile(0.50, stat.Empirical, values, nil)),
		P95: time.Duration(stat.Quantile(0.95, stat.Empirical, values, nil)),
		P99: time.Duration(stat.Quantile(0.99, stat.Empirical, values, nil)),
	}
}
