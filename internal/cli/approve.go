package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/internal/approval"
	"github.com/opsgate/opsgate/internal/rules"
)

var denyBlacklist bool

func init() {
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(denyCmd)
	rootCmd.AddCommand(pendingCmd)
	denyCmd.Flags().BoolVar(&denyBlacklist, "blacklist", false, "Also blacklist the action for the rest of the run")
}

// openApprovalStore opens the store at the configured directory.
func openApprovalStore() (*approval.Store, error) {
	cfg, err := rules.Load(configPath)
	if err != nil {
		return nil, err
	}
	return approval.NewStore(cfg.ApprovalDir)
}

var approveCmd = &cobra.Command{
	Use:   "approve <key>",
	Short: "Approve a pending interactive request",
	Long:  "Resolves an approval request filed by a waiting `opsgate exec` or MCP tool call.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openApprovalStore()
		if err != nil {
			return err
		}
		if err := store.Approve(args[0]); err != nil {
			return err
		}
		fmt.Printf("Approved %q\n", args[0])
		return nil
	},
}

var denyCmd = &cobra.Command{
	Use:   "deny <key>",
	Short: "Deny a pending interactive request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openApprovalStore()
		if err != nil {
			return err
		}
		if denyBlacklist {
			if err := store.DenyAndBlacklist(args[0]); err != nil {
				return err
			}
			fmt.Printf("Denied %q and asked for blacklisting\n", args[0])
			return nil
		}
		if err := store.Deny(args[0]); err != nil {
			return err
		}
		fmt.Printf("Denied %q\n", args[0])
		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending approval requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openApprovalStore()
		if err != nil {
			return err
		}
		list, err := store.List()
		if err != nil {
			return err
		}

		var shown int
		for _, r := range list {
			if r.Status != approval.StatusPending {
				continue
			}
			if shown == 0 {
				fmt.Printf("%-40s %-30s %s\n", "KEY", "DESCRIPTION", "CREATED")
			}
			shown++
			fmt.Printf("%-40s %-30s %s\n",
				r.Key,
				clip(r.Description, 30),
				r.CreatedAt.Format("15:04:05"),
			)
		}
		if shown == 0 {
			fmt.Println("No pending approvals.")
		}
		return nil
	},
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
