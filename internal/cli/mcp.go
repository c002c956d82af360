package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	opsmcp "github.com/opsgate/opsgate/internal/mcp"
	"github.com/opsgate/opsgate/internal/rules"
	"github.com/opsgate/opsgate/internal/watch"
)

var (
	mcpApprovalTTL time.Duration
	mcpNoWatch     bool
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().DurationVar(&mcpApprovalTTL, "approval-ttl", 0, "How long a filed approval request stays answerable (default 5m)")
	mcpCmd.Flags().BoolVar(&mcpNoWatch, "no-watch", false, "Disable config hot-reload")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP tool server for agent integration",
	Long:  "Runs opsgate as an MCP (Model Context Protocol) server over stdio.\nExposes permission-enforced tools: exec, check, approve, deny, pending, audit_tail.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	srv, err := opsmcp.New(opsmcp.Config{
		ConfigPath:  configPath,
		ApprovalTTL: mcpApprovalTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if !mcpNoWatch {
		path := configPath
		if path == "" {
			path = rules.DefaultConfigPath()
		}
		w := watch.NewConfigWatcher(path, srv.Reload)
		w.OnError = func(err error) {
			fmt.Fprintf(os.Stderr, "config reload: %v\n", err)
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				// fsnotify unavailable; fall back to polling.
				fmt.Fprintf(os.Stderr, "config watcher: %v (falling back to polling)\n", err)
				p := watch.NewPollWatcher(path, srv.Reload, 0)
				p.OnError = w.OnError
				_ = p.Run(ctx)
			}
		}()
	}

	fmt.Fprintln(os.Stderr, "opsgate MCP server running on stdio")
	return srv.Run(ctx)
}
