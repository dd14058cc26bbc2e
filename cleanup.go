package main

import (
	"sort"
	"time"
)

// SelectForDeletion computes which messages a retention policy removes. It
// is a pure function: it never deletes anything and the same input always
// yields the same output.
//
// A message survives when its sender matches the whitelist exactly, or when
// age-based retention is active and the message is younger than the
// threshold. A message without a timestamp has no age and is never expired
// by the age rule, but it still counts as a candidate (sorted as oldest)
// for count-based retention. Of the remaining candidates, the newest
// RetainCount are kept; everything else is selected, oldest first.
//
// A policy of RetainCount 0, RetainDays 0 and an empty whitelist selects
// every message. That full purge is intentional; confirmation belongs to
// the caller, typically via a dry run.
func SelectForDeletion(messages []SMSMessage, policy CleanupPolicy, now time.Time) []int {
	whitelist := make(map[string]struct{}, len(policy.Whitelist))
	for _, entry := range policy.Whitelist {
		whitelist[entry] = struct{}{}
	}

	maxAge := time.Duration(policy.RetainDays * float64(24) * float64(time.Hour))

	candidates := make([]SMSMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Sender != nil {
			if _, ok := whitelist[*msg.Sender]; ok {
				continue
			}
		}
		if policy.RetainDays > 0 {
			if msg.Timestamp == nil {
				// Unknown age never expires.
				continue
			}
			if now.Sub(*msg.Timestamp) < maxAge {
				continue
			}
		}
		candidates = append(candidates, msg)
	}

	// Newest first; messages without a timestamp sort as oldest. Stable, so
	// ties keep the original inbox order.
	sort.SliceStable(candidates, func(i, j int) bool {
		ti, tj := candidates[i].Timestamp, candidates[j].Timestamp
		switch {
		case ti != nil && tj != nil:
			return ti.After(*tj)
		case ti != nil:
			return true
		default:
			return false
		}
	})

	if policy.RetainCount > 0 {
		if len(candidates) <= policy.RetainCount {
			return []int{}
		}
		candidates = candidates[policy.RetainCount:]
	}

	selected := make([]int, 0, len(candidates))
	for i := len(candidates) - 1; i >= 0; i-- {
		selected = append(selected, candidates[i].ID)
	}
	return selected
}
