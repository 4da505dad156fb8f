package usecase

import "time"

// RetrievalConfig fixes the pipeline's tunables as explicit configuration
// instead of incidental behavior.
type RetrievalConfig struct {
	// BroadK is the stage-1 candidate count. Small by design: large
	// enough to surface multiple units, small enough that unrelated
	// units rarely appear.
	BroadK int
	// MaxUnits bounds how many resolved units stage 2 scopes to.
	MaxUnits int
	// PerUnitK is the per-unit stage-2 result cap.
	PerUnitK int
	// MaxContext bounds the final RankedContext length.
	MaxContext int
	// StoreRetries is how many times a failed store call is retried
	// before the query surfaces as unanswerable.
	StoreRetries int
	// StoreTimeout bounds each individual store call.
	StoreTimeout time.Duration
}

// DefaultRetrievalConfig mirrors the tuning the assistant ships with.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		BroadK:       5,
		MaxUnits:     3,
		PerUnitK:     4,
		MaxContext:   8,
		StoreRetries: 2,
		StoreTimeout: 5 * time.Second,
	}
}
