package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opsgate/opsgate/internal/audit"
	"github.com/opsgate/opsgate/internal/model"
	"github.com/opsgate/opsgate/internal/rules"
)

// ConfigError reports a misconfiguration, distinct from a normal denial so
// operators can tell "the agent isn't allowed" from "the system is broken".
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "engine: configuration error: " + e.Reason
}

// Engine is the permission decision engine. It classifies action requests
// against the live rule set, drives the approval state machine, and writes
// every state transition to the audit trail.
//
// The live rule set is held as an atomic snapshot: readers in Check never
// block on mutators, and a mutation is observed either fully or not at all.
type Engine struct {
	rules    atomic.Pointer[rules.Set]
	trail    *audit.Log
	approver Approver

	// mu serializes mutators (RecordBlacklist, RecordWhitelist, Reload);
	// Check only loads the snapshot.
	mu sync.Mutex
}

// New creates an Engine over the given rule set and trail. The approver may
// be nil; reaching interactive approval without one is a ConfigError.
func New(set *rules.Set, trail *audit.Log, approver Approver) *Engine {
	e := &Engine{trail: trail, approver: approver}
	e.rules.Store(set)
	return e
}

// Rules returns the current rule snapshot.
func (e *Engine) Rules() *rules.Set {
	return e.rules.Load()
}

// Reload swaps in a freshly compiled rule set (explicit re-init; used by the
// config watcher and by callers that reload on demand).
func (e *Engine) Reload(set *rules.Set) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules.Store(set)
}

// Check decides whether the proposed action may proceed.
//
// Decision order (first match wins; the order is a correctness invariant):
//  1. Blacklist match            -> DeniedBlacklist
//  2. Auto-approve match         -> AutoApproved
//  3. required_level == read     -> AutoApproved
//  4. required_level == suggest  -> DryRun (preview only)
//  5. Interactive approval       -> ApprovedByUser / DeniedByUser
//
// Steps 1-4 write exactly one trail entry at the terminal status. Step 5
// writes a pending entry before invoking the approver and the terminal entry
// after. A trail write failure aborts the check: the caller must not execute
// an action whose authorization was never durably recorded.
func (e *Engine) Check(ctx context.Context, req model.ActionRequest) (model.Decision, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	snap := e.rules.Load()

	if pattern, ok := snap.Blacklisted(req.ActionType); ok {
		reason := fmt.Sprintf("blacklisted by pattern %q", pattern)
		entry := entryFor(req, audit.StatusDenied, audit.Bool(false), reason)
		entry.Metadata["matched_pattern"] = pattern
		if err := e.trail.Append(entry); err != nil {
			return model.Decision{}, err
		}
		return e.decision(model.DeniedBlacklist, req, reason), nil
	}

	if pattern, ok := snap.AutoApproved(req.ActionType); ok {
		reason := fmt.Sprintf("auto-approved by pattern %q", pattern)
		entry := entryFor(req, audit.StatusApproved, nil, reason)
		entry.Metadata["matched_pattern"] = pattern
		if err := e.trail.Append(entry); err != nil {
			return model.Decision{}, err
		}
		return e.decision(model.AutoApproved, req, reason), nil
	}

	if req.RequiredLevel == model.LevelRead {
		reason := "read operations are always permitted"
		if err := e.trail.Append(entryFor(req, audit.StatusApproved, nil, reason)); err != nil {
			return model.Decision{}, err
		}
		return e.decision(model.AutoApproved, req, reason), nil
	}

	if req.RequiredLevel == model.LevelSuggest {
		reason := "dry-run: action will be previewed only"
		if err := e.trail.Append(entryFor(req, audit.StatusDryRun, nil, reason)); err != nil {
			return model.Decision{}, err
		}
		return e.decision(model.DryRun, req, reason), nil
	}

	return e.interactive(ctx, req)
}

// Classify previews where a request would land in the decision order without
// writing to the trail or invoking the approver. final is false when the
// request would go to interactive approval, in which case outcome reports the
// pessimistic DeniedByUser.
func (e *Engine) Classify(req model.ActionRequest) (outcome model.Outcome, reason string, final bool) {
	snap := e.rules.Load()

	if pattern, ok := snap.Blacklisted(req.ActionType); ok {
		return model.DeniedBlacklist, fmt.Sprintf("blacklisted by pattern %q", pattern), true
	}
	if pattern, ok := snap.AutoApproved(req.ActionType); ok {
		return model.AutoApproved, fmt.Sprintf("auto-approved by pattern %q", pattern), true
	}
	if req.RequiredLevel == model.LevelRead {
		return model.AutoApproved, "read operations are always permitted", true
	}
	if req.RequiredLevel == model.LevelSuggest {
		return model.DryRun, "dry-run: action will be previewed only", true
	}
	return model.DeniedByUser, "interactive approval required", false
}

func (e *Engine) interactive(ctx context.Context, req model.ActionRequest) (model.Decision, error) {
	if e.approver == nil {
		return model.Decision{}, &ConfigError{
			Reason: fmt.Sprintf("interactive approval required for %q but no approval callback is configured", req.ActionType),
		}
	}

	preview := Preview(req)

	pending := entryFor(req, audit.StatusPending, nil, "")
	pending.Metadata["preview"] = preview
	if err := e.trail.Append(pending); err != nil {
		return model.Decision{}, err
	}

	verdict, reason := e.askApprover(ctx, req, preview)

	switch verdict {
	case model.VerdictApprove:
		if err := e.trail.Append(entryFor(req, audit.StatusApproved, audit.Bool(true), reason)); err != nil {
			return model.Decision{}, err
		}
		return e.decision(model.ApprovedByUser, req, reason), nil

	case model.VerdictDenyAndBlacklist:
		if err := e.trail.Append(entryFor(req, audit.StatusDenied, audit.Bool(false), reason)); err != nil {
			return model.Decision{}, err
		}
		if err := e.RecordBlacklist(req.ActionType); err != nil {
			return model.Decision{}, err
		}
		return e.decision(model.DeniedByUser, req, reason), nil

	default:
		if err := e.trail.Append(entryFor(req, audit.StatusDenied, audit.Bool(false), reason)); err != nil {
			return model.Decision{}, err
		}
		return e.decision(model.DeniedByUser, req, reason), nil
	}
}

// askApprover runs the approval callback and maps every failure mode to a
// denial. The engine never fails open: callback errors, panics in the
// callback goroutine, and context cancellation all resolve to deny.
func (e *Engine) askApprover(ctx context.Context, req model.ActionRequest, preview string) (model.Verdict, string) {
	type outcome struct {
		verdict model.Verdict
		err     error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{model.VerdictDeny, fmt.Errorf("approval callback panicked: %v", r)}
			}
		}()
		v, err := e.approver.Approve(ctx, req.Description, preview)
		ch <- outcome{v, err}
	}()

	select {
	case <-ctx.Done():
		return model.VerdictDeny, fmt.Sprintf("approval cancelled: %v", ctx.Err())
	case out := <-ch:
		if out.err != nil {
			return model.VerdictDeny, fmt.Sprintf("approval declined (callback failed: %v)", out.err)
		}
		switch out.verdict {
		case model.VerdictApprove:
			return model.VerdictApprove, "approved by user"
		case model.VerdictDenyAndBlacklist:
			return model.VerdictDenyAndBlacklist, fmt.Sprintf("approval declined; %q added to blacklist", req.ActionType)
		default:
			return model.VerdictDeny, "approval declined"
		}
	}
}

// RecordBlacklist adds a pattern to the live blacklist for the remainder of
// the process. Adding an existing pattern is a no-op and writes nothing.
// Durable persistence of the updated rule set is the config layer's job.
func (e *Engine) RecordBlacklist(pattern string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.rules.Load()
	next, err := cur.WithBlacklist(pattern)
	if err != nil {
		return &ConfigError{Reason: fmt.Sprintf("invalid blacklist pattern: %v", err)}
	}
	if next == cur {
		return nil
	}
	e.rules.Store(next)

	entry := audit.Entry{
		RequestID:       uuid.NewString(),
		ActionType:      "record_blacklist",
		Description:     fmt.Sprintf("blacklist pattern added: %q", pattern),
		PermissionLevel: int(model.LevelAdmin),
		Status:          audit.StatusExecuted,
		Metadata: map[string]any{
			"pattern": pattern,
			"outcome": string(model.AddedToBlacklist),
		},
	}
	return e.trail.Append(entry)
}

// RecordWhitelist adds a pattern to the live auto-approve list. Adding an
// existing pattern is a no-op.
func (e *Engine) RecordWhitelist(pattern string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.rules.Load()
	next, err := cur.WithAutoApprove(pattern)
	if err != nil {
		return &ConfigError{Reason: fmt.Sprintf("invalid whitelist pattern: %v", err)}
	}
	if next == cur {
		return nil
	}
	e.rules.Store(next)

	entry := audit.Entry{
		RequestID:       uuid.NewString(),
		ActionType:      "record_whitelist",
		Description:     fmt.Sprintf("auto-approve pattern added: %q", pattern),
		PermissionLevel: int(model.LevelAdmin),
		Status:          audit.StatusExecuted,
		Metadata:        map[string]any{"pattern": pattern},
	}
	return e.trail.Append(entry)
}

// ReportExecuted records the execution outcome of a previously allowed
// action. The caller performs the real operation and reports back here.
func (e *Engine) ReportExecuted(req model.ActionRequest, result string) error {
	entry := entryFor(req, audit.StatusExecuted, nil, "")
	entry.Result = result
	return e.trail.Append(entry)
}

// ReportFailed records a failed execution attempt with its error text.
func (e *Engine) ReportFailed(req model.ActionRequest, execErr error) error {
	entry := entryFor(req, audit.StatusFailed, nil, "")
	entry.Result = execErr.Error()
	return e.trail.Append(entry)
}

func (e *Engine) decision(outcome model.Outcome, req model.ActionRequest, reason string) model.Decision {
	return model.Decision{
		Outcome: outcome,
		Request: req,
		Time:    time.Now().UTC(),
		Reason:  reason,
	}
}

// entryFor copies the request fields into a trail entry. Request parameters
// land in metadata together with engine-added context.
func entryFor(req model.ActionRequest, status audit.Status, approved *bool, reason string) audit.Entry {
	meta := make(map[string]any, len(req.Parameters)+3)
	for k, v := range req.Parameters {
		meta[k] = v
	}
	if req.Target != "" {
		meta["target"] = req.Target
	}
	// Result is reserved for execution outcomes; decision reasons live in
	// metadata.
	if reason != "" {
		meta["reason"] = reason
	}

	return audit.Entry{
		RequestID:       req.RequestID,
		ActionType:      req.ActionType,
		Description:     req.Description,
		PermissionLevel: int(req.RequiredLevel),
		UserApproved:    approved,
		Status:          status,
		Metadata:        meta,
	}
}
