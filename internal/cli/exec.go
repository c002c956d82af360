package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/internal/engine"
	"github.com/opsgate/opsgate/internal/gate"
	"github.com/opsgate/opsgate/internal/model"
)

var execDryRun bool

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().BoolVar(&execDryRun, "dry-run", false, "Classify and preview without executing")
}

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command> [args...]",
	Short: "Execute a command through opsgate permission enforcement",
	Long:  "Checks the command against the rules before execution. Blocked commands are\nnot executed. Exit code 77 indicates a denial; otherwise the command's own\nexit code is propagated.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	var approver engine.Approver
	if ta, err := newTerminalApprover(); err == nil {
		approver = ta
	}

	s, err := openSession(approver)
	if err != nil {
		return err
	}
	defer s.close()

	name := args[0]
	cmdArgs := args[1:]

	level := model.LevelExecute
	if execDryRun {
		level = model.LevelSuggest
	}
	g := gate.NewWithLevel(s.engine, level)

	ctx, cancel := signalContext()
	defer cancel()

	before := s.engine.Rules()
	result, err := g.Run(ctx, name, cmdArgs, os.Stdin)

	if s.engine.Rules() != before {
		if serr := s.saveRules(); serr != nil {
			fmt.Fprintf(os.Stderr, "warning: persist rules: %v\n", serr)
		}
	}

	if err != nil {
		var blocked *gate.BlockedError
		if errors.As(err, &blocked) {
			out, _ := json.MarshalIndent(map[string]any{
				"blocked": true,
				"command": blocked.Command,
				"outcome": blocked.Decision.Outcome,
				"reason":  blocked.Decision.Reason,
			}, "", "  ")
			fmt.Fprintln(os.Stderr, string(out))
			os.Exit(77)
		}
		return err
	}

	if result.Decision.Outcome == model.DryRun {
		fmt.Printf("dry-run: %s\n", engine.Preview(result.Decision.Request))
		return nil
	}

	fmt.Print(result.Stdout)
	if result.Stderr != "" {
		fmt.Fprint(os.Stderr, result.Stderr)
	}
	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}
