// Package checkpoint is the dedup boundary and the only state that survives a
// restart: which content SHAs were already processed, which queries the
// current cycle finished, and which confirmed keys still await delivery.
package checkpoint

import "time"

type Checkpoint struct {
	// LastScanTime marks the most recent completed crawl cycle. Repositories
	// unchanged since then are skipped.
	LastScanTime time.Time

	// ScannedSHAs only grows. Entries are never evicted: unbounded storage is
	// the price of false-negative-free dedup, so it is persisted separately
	// from the rest of the checkpoint.
	ScannedSHAs map[string]struct{}

	// ProcessedQueries resets at the start of every cycle.
	ProcessedQueries map[string]struct{}

	// Confirmed keys awaiting delivery, one set per sync channel. Surviving
	// restarts here is what makes delivery at-least-once instead of
	// best-effort.
	PendingBalancer map[string]struct{}
	PendingGPTLoad  map[string]struct{}
}

func New() *Checkpoint {
	return &Checkpoint{
		ScannedSHAs:      make(map[string]struct{}),
		ProcessedQueries: make(map[string]struct{}),
		PendingBalancer:  make(map[string]struct{}),
		PendingGPTLoad:   make(map[string]struct{}),
	}
}

// checkpointFile is the on-disk shape, without the SHA set (stored separately
// because it dominates size).
type checkpointFile struct {
	LastScanTime     string   `json:"last_scan_time,omitempty"`
	ProcessedQueries []string `json:"processed_queries"`
	WaitSendBalancer []string `json:"wait_send_balancer"`
	WaitSendGPTLoad  []string `json:"wait_send_gpt_load"`
}
