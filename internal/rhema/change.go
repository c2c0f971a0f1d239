package rhema

import "time"

// ChangeKind classifies a ChangeRecord.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeRemoved  ChangeKind = "removed"
	ChangeDegraded ChangeKind = "degraded"
)

// ChangeRecord is one entry in the Store's change log, consumed by
// changes_since and mirrored onto the notification bus.
type ChangeRecord struct {
	Sequence  int64      `json:"sequence"`
	Timestamp time.Time  `json:"timestamp"`
	Scope     string     `json:"scope"`
	Kind      ResourceKind `json:"kind,omitempty"`
	Path      string     `json:"path,omitempty"`
	Change    ChangeKind `json:"change"`
}
