package mcp

import (
	"context"
	"errors"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opsgate/opsgate/internal/approval"
	"github.com/opsgate/opsgate/internal/audit"
	"github.com/opsgate/opsgate/internal/engine"
	"github.com/opsgate/opsgate/internal/gate"
	"github.com/opsgate/opsgate/internal/model"
)

// --- Input/Output types ---

// ExecInput defines parameters for the opsgate_exec tool.
type ExecInput struct {
	Command string   `json:"command" jsonschema:"command to execute"`
	Args    []string `json:"args,omitempty" jsonschema:"command arguments"`
}

// ExecOutput contains the result of command execution or block details.
type ExecOutput struct {
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`
	Blocked  bool   `json:"blocked,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// CheckInput defines parameters for the opsgate_check tool.
type CheckInput struct {
	ActionType  string `json:"action_type" jsonschema:"action type matched against rule patterns"`
	Description string `json:"description,omitempty" jsonschema:"human-readable action description"`
	Target      string `json:"target,omitempty" jsonschema:"file path, command line, or resource"`
	Level       string `json:"level,omitempty" jsonschema:"permission level (read/suggest/safe_write/system_write/execute/admin)"`
}

// CheckOutput contains the classification preview.
type CheckOutput struct {
	Outcome       string `json:"outcome"`
	Reason        string `json:"reason"`
	NeedsApproval bool   `json:"needs_approval"`
	Preview       string `json:"preview,omitempty"`
}

// ApproveInput defines parameters for the opsgate_approve tool.
type ApproveInput struct {
	Key string `json:"key" jsonschema:"approval request key"`
}

// ApproveOutput confirms the resolution.
type ApproveOutput struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

// DenyInput defines parameters for the opsgate_deny tool.
type DenyInput struct {
	Key       string `json:"key" jsonschema:"approval request key"`
	Blacklist bool   `json:"blacklist,omitempty" jsonschema:"also blacklist the action for the rest of the run"`
}

// PendingInput is empty.
type PendingInput struct{}

// PendingOutput lists pending approval requests.
type PendingOutput struct {
	Requests []PendingItem `json:"requests"`
}

// PendingItem describes a single approval request.
type PendingItem struct {
	Key         string `json:"key"`
	Description string `json:"description"`
	Preview     string `json:"preview,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// AuditTailInput defines parameters for the opsgate_audit_tail tool.
type AuditTailInput struct {
	Count int `json:"count,omitempty" jsonschema:"number of entries to return (default 10)"`
}

// AuditTailOutput carries the most recent trail entries.
type AuditTailOutput struct {
	Entries []audit.Entry `json:"entries"`
}

// --- Handlers ---

func (s *Server) handleExec(ctx context.Context, req *mcpsdk.CallToolRequest, input ExecInput) (*mcpsdk.CallToolResult, ExecOutput, error) {
	result, err := s.gate.Run(ctx, input.Command, input.Args, nil)
	if err != nil {
		var blocked *gate.BlockedError
		if errors.As(err, &blocked) {
			out := ExecOutput{
				Blocked: true,
				Outcome: string(blocked.Decision.Outcome),
				Reason:  blocked.Decision.Reason,
			}
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		return nil, ExecOutput{}, err
	}

	return nil, ExecOutput{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
		Outcome:  string(result.Decision.Outcome),
	}, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	level := s.engine.Rules().DefaultLevel()
	if input.Level != "" {
		var err error
		level, err = model.ParseLevel(input.Level)
		if err != nil {
			return nil, CheckOutput{}, err
		}
	}

	areq := model.ActionRequest{
		ActionType:    input.ActionType,
		Description:   input.Description,
		Target:        input.Target,
		RequiredLevel: level,
	}

	outcome, reason, final := s.engine.Classify(areq)
	return nil, CheckOutput{
		Outcome:       string(outcome),
		Reason:        reason,
		NeedsApproval: !final,
		Preview:       engine.Preview(areq),
	}, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input ApproveInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	if err := s.approvals.Approve(input.Key); err != nil {
		return nil, ApproveOutput{}, err
	}
	return nil, ApproveOutput{Key: input.Key, Status: string(approval.StatusApproved)}, nil
}

func (s *Server) handleDeny(ctx context.Context, req *mcpsdk.CallToolRequest, input DenyInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	var err error
	status := approval.StatusDenied
	if input.Blacklist {
		status = approval.StatusDeniedAndBlacklist
		err = s.approvals.DenyAndBlacklist(input.Key)
	} else {
		err = s.approvals.Deny(input.Key)
	}
	if err != nil {
		return nil, ApproveOutput{}, err
	}
	return nil, ApproveOutput{Key: input.Key, Status: string(status)}, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	list, err := s.approvals.List()
	if err != nil {
		return nil, PendingOutput{}, err
	}

	var items []PendingItem
	for _, r := range list {
		if r.Status != approval.StatusPending {
			continue
		}
		item := PendingItem{
			Key:         r.Key,
			Description: r.Description,
			Preview:     r.Preview,
			Status:      string(r.Status),
			CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		}
		if r.ExpiresAt != nil {
			item.ExpiresAt = r.ExpiresAt.Format(time.RFC3339)
		}
		items = append(items, item)
	}

	return nil, PendingOutput{Requests: items}, nil
}

func (s *Server) handleAuditTail(ctx context.Context, req *mcpsdk.CallToolRequest, input AuditTailInput) (*mcpsdk.CallToolResult, AuditTailOutput, error) {
	n := input.Count
	if n <= 0 {
		n = 10
	}
	entries, err := audit.Tail(s.logPath, n)
	if err != nil {
		return nil, AuditTailOutput{}, err
	}
	return nil, AuditTailOutput{Entries: entries}, nil
}
