package domain

import "time"

// Digest assembly tiers, in fallback order.
const (
	TierMain       = "main"
	TierCandidates = "candidates"
	TierCollected  = "collected"
)

// RunStats summarizes one digest run.
type RunStats struct {
	Tier      string
	Picked    int
	Promoted  int
	Collected int
	Errors    int
	Delivered bool
	Duration  time.Duration
}

// IngestStats summarizes one candidate harvest run.
type IngestStats struct {
	Fetched    int
	Added      int
	Duplicates int
	Errors     int
	Duration   time.Duration
}
