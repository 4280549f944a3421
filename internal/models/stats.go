package models

import "time"

// SectorDemand is the share of transfers originating in one sector.
type SectorDemand struct {
	Sector string  `json:"sector"`
	Count  int     `json:"count"`
	Share  float64 `json:"share"`
}

// TransferMetrics aggregates wait, transit and demand over a transfer collection.
type TransferMetrics struct {
	Total              int            `json:"total"`
	MeanWaitMinutes    int64          `json:"mean_wait_minutes"`
	MeanTransitMinutes int64          `json:"mean_transit_minutes"`
	DemandBySector     []SectorDemand `json:"demand_by_sector"`
}

// SystemMetrics is a point-in-time view of the service instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	TransitionsApplied       uint64    `json:"transitions_applied"`
	TransitionConflicts      uint64    `json:"transition_conflicts"`
	StreamSubscribers        int64     `json:"stream_subscribers"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
