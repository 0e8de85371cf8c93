package world

import "wayfinder.ai/internal/sim/pathfind"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Agents       int `json:"agents"`
	Observers    int `json:"observers"`
	CacheEntries int `json:"cache_entries"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	LastTick TickCounts     `json:"last_tick"`
	Engine   pathfind.Stats `json:"engine"`
}

type QueueDepths struct {
	Join     int `json:"join"`
	Requests int `json:"requests"`
	Leave    int `json:"leave"`
}

type TickCounts struct {
	Requests      int `json:"requests"`
	Found         int `json:"found"`
	NoDestination int `json:"no_destination"`
	NoPath        int `json:"no_path"`
	CacheHits     int `json:"cache_hits"`
	Solves        int `json:"solves"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
