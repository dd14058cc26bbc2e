package main

import (
	"time"
)

// SMSMessage is the canonical shape of one inbox entry, decoupled from the
// raw record the modem client returns. Sender, Message and Timestamp may be
// absent on the wire and marshal as null.
type SMSMessage struct {
	ID        int        `json:"id"`
	Sender    *string    `json:"sender"`
	Message   *string    `json:"message"`
	Timestamp *time.Time `json:"timestamp"`
}

// CleanupPolicy is the retention policy applied by cleanup_inbox.
type CleanupPolicy struct {
	// RetainCount is the number of newest messages always kept. 0 disables
	// count-based retention.
	RetainCount int `json:"retain_count"`
	// RetainDays keeps messages younger than this many days regardless of
	// count. 0 disables age-based retention.
	RetainDays float64 `json:"retain_days"`
	// Whitelist holds sender strings that are never deleted. Matching is
	// exact and case-sensitive, no number normalization.
	Whitelist []string `json:"whitelist"`
	DryRun    bool     `json:"dry_run"`
}

// CleanupResult reports one cleanup run. Under dry run DeletedIDs is the
// would-delete set and no deletions are issued.
type CleanupResult struct {
	DeletedIDs   []int `json:"deleted_ids"`
	CountDeleted int   `json:"count_deleted"`
	DryRun       bool  `json:"dry_run"`
}

// DeleteFailure records a single SMS id the modem refused to delete.
type DeleteFailure struct {
	ID     int    `json:"id"`
	Reason string `json:"reason"`
}

// DeleteResult is the per-id outcome of a best-effort batch delete.
type DeleteResult struct {
	Deleted int             `json:"deleted"`
	Failed  []DeleteFailure `json:"failed,omitempty"`
}

// Gateway wires the modem registry to the service surface, event bus,
// contact store and carrier. The registry is fixed once NewGateway returns;
// concurrent request handlers only read it.
type Gateway struct {
	Modems  map[string]*Modem
	Store   *ContactStore
	Events  EventBus
	Carrier CarrierHandler
	Metrics *Metrics
}
