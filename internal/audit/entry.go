package audit

import "time"

// TimestampFormat is the layout used in audit entry timestamps (UTC,
// millisecond precision).
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Status tracks an action through its lifecycle. One logical action may
// appear at several statuses over time (pending → approved/denied →
// executed/failed); the log is an event stream, not a row-per-action table.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusDryRun   Status = "dry_run"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
)

// KnownStatus reports whether s is one of the defined statuses.
func KnownStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusDryRun, StatusExecuted, StatusFailed:
		return true
	}
	return false
}

// Entry is one line in the hash-chained JSONL audit log. Once written it is
// never edited or removed; corrections are new entries.
type Entry struct {
	Timestamp       string         `json:"ts"`
	RequestID       string         `json:"request_id"`
	ActionType      string         `json:"action_type"`
	Description     string         `json:"action_description"`
	PermissionLevel int            `json:"permission_level"`
	UserApproved    *bool          `json:"user_approved"`
	Status          Status         `json:"status"`
	Result          string         `json:"result,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	PrevHash        string         `json:"prev_hash"`
}

// Now returns the current time formatted for an entry timestamp.
func Now() string {
	return time.Now().UTC().Format(TimestampFormat)
}

// Bool returns a pointer for the nullable user_approved field.
func Bool(v bool) *bool { return &v }
