package models

import "time"

// SystemMetrics is a lightweight snapshot of service instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	FetchCount               uint64    `json:"fetch_count"`
	AverageFetchDurationMs   float64   `json:"average_fetch_duration_ms"`
	AggregationsTotal        uint64    `json:"aggregations_total"`
	OrphanRecords            uint64    `json:"orphan_records"`
	DegradedFetches          uint64    `json:"degraded_fetches"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
