package model

import "time"

// ActionRequest represents one proposed operation. It is constructed by the
// caller immediately before a permission check and discarded after the check
// returns; only its fields are copied into audit entries.
type ActionRequest struct {
	ActionType    string          `json:"action_type"`
	Description   string          `json:"description"`
	Target        string          `json:"target,omitempty"`
	Parameters    map[string]any  `json:"parameters,omitempty"`
	RequiredLevel PermissionLevel `json:"required_level"`

	// RequestID correlates the lifecycle entries of one request in the
	// audit trail. The engine stamps a fresh ID when empty.
	RequestID string `json:"request_id,omitempty"`
}

// Outcome is the result of one permission check.
type Outcome string

const (
	DeniedBlacklist  Outcome = "denied_blacklist"
	AutoApproved     Outcome = "auto_approved"
	DryRun           Outcome = "dry_run"
	ApprovedByUser   Outcome = "approved_by_user"
	DeniedByUser     Outcome = "denied_by_user"
	AddedToBlacklist Outcome = "added_to_blacklist"
)

// Decision carries the outcome of one check together with the originating
// request, the decision time, and a human-readable reason.
type Decision struct {
	Outcome Outcome       `json:"outcome"`
	Request ActionRequest `json:"request"`
	Time    time.Time     `json:"time"`
	Reason  string        `json:"reason,omitempty"`
}

// Allowed reports whether the caller may proceed to execute the action.
// DryRun is not an execution grant: the caller must preview only.
func (d Decision) Allowed() bool {
	return d.Outcome == AutoApproved || d.Outcome == ApprovedByUser
}

// Verdict is the answer an approver gives for one interactive request.
type Verdict int

const (
	VerdictDeny Verdict = iota
	VerdictApprove
	VerdictDenyAndBlacklist
)

// String returns a short label for logging.
func (v Verdict) String() string {
	switch v {
	case VerdictApprove:
		return "approve"
	case VerdictDeny:
		return "deny"
	case VerdictDenyAndBlacklist:
		return "deny-and-blacklist"
	default:
		return "unknown"
	}
}
