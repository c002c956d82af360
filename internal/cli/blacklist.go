package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/internal/rules"
)

func init() {
	rootCmd.AddCommand(blacklistCmd)
	blacklistCmd.AddCommand(blacklistAddCmd)
	blacklistCmd.AddCommand(blacklistRemoveCmd)
	blacklistCmd.AddCommand(blacklistListCmd)
}

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage the blacklist pattern set",
	Long:  "Adds, removes, and lists blacklist patterns. Changes are persisted to the\nconfig file and picked up by running servers through the config watcher.",
}

var blacklistAddCmd = &cobra.Command{
	Use:   "add <pattern>",
	Short: "Add a blacklist pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := args[0]
		if _, err := rules.CompilePattern(pattern); err != nil {
			return err
		}

		cfg, err := rules.Load(configPath)
		if err != nil {
			return err
		}
		if slices.Contains(cfg.Permissions.Blacklist, pattern) {
			fmt.Printf("Pattern %q already blacklisted\n", pattern)
			return nil
		}
		cfg.Permissions.Blacklist = append(cfg.Permissions.Blacklist, pattern)
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Printf("Blacklisted %q\n", pattern)
		return nil
	},
}

var blacklistRemoveCmd = &cobra.Command{
	Use:   "remove <pattern>",
	Short: "Remove a blacklist pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := args[0]
		cfg, err := rules.Load(configPath)
		if err != nil {
			return err
		}
		idx := slices.Index(cfg.Permissions.Blacklist, pattern)
		if idx < 0 {
			return fmt.Errorf("pattern %q is not blacklisted", pattern)
		}
		cfg.Permissions.Blacklist = slices.Delete(cfg.Permissions.Blacklist, idx, idx+1)
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Printf("Removed %q from blacklist\n", pattern)
		return nil
	},
}

var blacklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blacklist patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := rules.Load(configPath)
		if err != nil {
			return err
		}
		if len(cfg.Permissions.Blacklist) == 0 {
			fmt.Println("Blacklist is empty.")
			return nil
		}
		for _, p := range cfg.Permissions.Blacklist {
			fmt.Println(p)
		}
		return nil
	},
}
