package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/internal/rules"
)

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the opsgate configuration",
	Long:  "Creates ~/.opsgate with a commented default config. Existing files are left\nalone unless --force is given.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = rules.DefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("Config already exists at %s (use --force to overwrite).\n", path)
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(rules.DefaultConfigYAML()), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println()
	fmt.Println("Try it:")
	fmt.Println("  opsgate check read_file --target /etc/hosts")
	fmt.Println("  opsgate exec -- ls /tmp")
	fmt.Println("  opsgate audit tail")
	return nil
}
