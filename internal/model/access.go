package model

import "time"

// Safe bounds for AccessPreferences. Every persisted value lies inside them.
const (
	MinDelayFloorMs       = 500
	MinConcurrent         = 1
	MaxConcurrentCeiling  = 3
	MinResultsPerQuery    = 1
	MaxResultsPerQueryCap = 100
)

// AccessPreferences is the operator-controlled access policy for one source.
type AccessPreferences struct {
	Enabled               bool `json:"enabled" yaml:"enabled"`
	MinDelayMs            int  `json:"min_delay_ms" yaml:"min_delay_ms"`
	MaxConcurrent         int  `json:"max_concurrent" yaml:"max_concurrent"`
	MaxResultsPerQuery    int  `json:"max_results_per_query" yaml:"max_results_per_query"`
	RequireSafetyMeasures bool `json:"require_safety_measures" yaml:"require_safety_measures"`
}

// DefaultAccessPreferences is used for a source that has never been configured.
func DefaultAccessPreferences() AccessPreferences {
	return AccessPreferences{
		Enabled:               true,
		MinDelayMs:            3000,
		MaxConcurrent:         1,
		MaxResultsPerQuery:    25,
		RequireSafetyMeasures: true,
	}
}

// Clamp returns a copy with every numeric field forced into its safe range.
func (p AccessPreferences) Clamp() AccessPreferences {
	p.MinDelayMs = max(p.MinDelayMs, MinDelayFloorMs)
	p.MaxConcurrent = min(max(p.MaxConcurrent, MinConcurrent), MaxConcurrentCeiling)
	p.MaxResultsPerQuery = min(max(p.MaxResultsPerQuery, MinResultsPerQuery), MaxResultsPerQueryCap)
	return p
}

// MinDelay is MinDelayMs as a duration.
func (p AccessPreferences) MinDelay() time.Duration {
	return time.Duration(p.MinDelayMs) * time.Millisecond
}

// RequestStatus is the outcome of one external call attempt.
type RequestStatus string

const (
	RequestSuccess     RequestStatus = "success"
	RequestFailed      RequestStatus = "failed"
	RequestRateLimited RequestStatus = "rateLimited"
	RequestBlocked     RequestStatus = "blocked"
)

// RequestLogEntry records one external call attempt against a source.
type RequestLogEntry struct {
	Source    SourceKind    `json:"source"`
	Status    RequestStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}
