// Package mcp exposes the permission gate as MCP tools over stdio, so agent
// frontends can route their actions through the engine.
package mcp

import (
	"context"
	"fmt"
	"os"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opsgate/opsgate/internal/approval"
	"github.com/opsgate/opsgate/internal/audit"
	"github.com/opsgate/opsgate/internal/engine"
	"github.com/opsgate/opsgate/internal/gate"
	"github.com/opsgate/opsgate/internal/rules"
)

// defaultApprovalTTL bounds how long an exec tool call waits for a human
// before the request expires and resolves to deny.
const defaultApprovalTTL = 5 * time.Minute

// Config holds MCP server configuration.
type Config struct {
	ConfigPath  string
	LogPath     string
	ApprovalDir string
	ApprovalTTL time.Duration
}

// Server wraps the MCP SDK server with opsgate permission enforcement.
type Server struct {
	mcpServer  *mcpsdk.Server
	engine     *engine.Engine
	gate       *gate.Gate
	approvals  *approval.Store
	trail      *audit.Log
	logPath    string
	configPath string
}

// New loads the rule config, opens the trail, and registers the tools.
// Interactive decisions block the tool call until a human resolves the filed
// approval request out-of-band (`opsgate approve <key>`) or the TTL expires.
func New(cfg Config) (*Server, error) {
	rc, err := rules.Load(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("mcp: load config: %w", err)
	}
	set, err := rc.Compile()
	if err != nil {
		return nil, fmt.Errorf("mcp: compile rules: %w", err)
	}

	logPath := cfg.LogPath
	if logPath == "" {
		logPath = rc.Audit.LogPath
	}
	trail, err := audit.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("mcp: open audit log: %w", err)
	}

	approvalDir := cfg.ApprovalDir
	if approvalDir == "" {
		approvalDir = rc.ApprovalDir
	}
	store, err := approval.NewStore(approvalDir)
	if err != nil {
		trail.Close()
		return nil, fmt.Errorf("mcp: approval store: %w", err)
	}

	ttl := cfg.ApprovalTTL
	if ttl == 0 {
		ttl = defaultApprovalTTL
	}
	approver := approval.NewApprover(store, ttl)
	// Stdout carries the MCP transport; operator hints go to stderr.
	approver.Notify = func(key string, r approval.Request) {
		fmt.Fprintf(os.Stderr, "approval required: run `opsgate approve %s` (or `opsgate deny %s`)\n", key, key)
	}

	eng := engine.New(set, trail, approver)

	s := &Server{
		engine:     eng,
		gate:       gate.New(eng),
		approvals:  store,
		trail:      trail,
		logPath:    logPath,
		configPath: cfg.ConfigPath,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "opsgate",
			Version: "0.1.0",
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.trail.Close()
}

// Reload recompiles the rule config and swaps it into the live engine.
// Used by the config file watcher for hot-reload.
func (s *Server) Reload() error {
	rc, err := rules.Load(s.configPath)
	if err != nil {
		return fmt.Errorf("mcp: reload config: %w", err)
	}
	set, err := rc.Compile()
	if err != nil {
		return fmt.Errorf("mcp: recompile rules: %w", err)
	}
	s.engine.Reload(set)
	return nil
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "opsgate_exec",
		Description: "Execute a command through opsgate permission enforcement. Interactive approvals block until resolved with `opsgate approve`; blocked commands return the denial reason.",
	}, s.handleExec)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "opsgate_check",
		Description: "Preview how an action would be classified (blacklist, auto-approve, interactive) without executing or logging it.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "opsgate_approve",
		Description: "Approve a pending interactive request by key.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "opsgate_deny",
		Description: "Deny a pending interactive request by key, optionally blacklisting the action for the rest of the run.",
	}, s.handleDeny)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "opsgate_pending",
		Description: "List pending approval requests.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "opsgate_audit_tail",
		Description: "Return the most recent audit trail entries.",
	}, s.handleAuditTail)
}
