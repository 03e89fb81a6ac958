package attendance

import (
	"context"
	"crypto/sha256"
	"encoding/json"
)

type (
	// Query filters a change-feed subscription by date range and/or course.
	// With a CourseID the snapshots are that course's roll-ups projected to
	// date records; without one they are the global per-date records.
	Query struct {
		From     string // inclusive calendar day, optional
		To       string // inclusive calendar day, optional
		CourseID string // optional
	}

	// Snapshot is the complete current match set for a subscription's query,
	// date-ascending. Each snapshot is authoritative-at-a-point-in-time, not
	// a diff; delivery order across snapshots is not guaranteed monotonic.
	Snapshot []DateRecord

	Subscription interface {
		// Snapshots delivers a new snapshot whenever the underlying data
		// changes. The channel is closed when the subscription ends.
		Snapshots() <-chan Snapshot
		// Close stops delivery and releases store resources. Idempotent.
		Close() error
	}

	// Feed is the external store's change-notification capability.
	// Implementations deliver the current match set once on subscribe, then
	// a fresh snapshot whenever underlying data changes.
	Feed interface {
		Subscribe(ctx context.Context, q Query) (Subscription, error)
	}
)

// Matches reports whether a calendar day falls inside the query's range.
func (q Query) Matches(day string) bool {
	return DateRange{From: q.From, To: q.To}.Contains(day)
}

// Hash returns a content hash over the canonical JSON form, used for
// change suppression between consecutive snapshots.
func (s Snapshot) Hash() [sha256.Size]byte {
	b, _ := json.Marshal([]DateRecord(s))
	return sha256.Sum256(b)
}
