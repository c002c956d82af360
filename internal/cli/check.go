package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/internal/engine"
	"github.com/opsgate/opsgate/internal/model"
)

var (
	checkDescription string
	checkTarget      string
	checkLevel       string
	checkParams      []string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkDescription, "description", "d", "", "Human-readable action description")
	checkCmd.Flags().StringVarP(&checkTarget, "target", "t", "", "File path, command line, or resource the action touches")
	checkCmd.Flags().StringVarP(&checkLevel, "level", "l", "", "Required permission level (read/suggest/safe_write/system_write/execute/admin)")
	checkCmd.Flags().StringArrayVarP(&checkParams, "param", "p", nil, "Action parameter as key=value (repeatable)")
}

var checkCmd = &cobra.Command{
	Use:   "check <action_type>",
	Short: "Run one action request through the decision engine",
	Long:  "Classifies the action, prompts for approval when the rules require it, and\nrecords the decision in the audit trail. Exit code 77 indicates a denial.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	// No terminal means no interactive step; blacklist/auto-approve/level
	// decisions still work, interactive ones surface a configuration error.
	var approver engine.Approver
	if ta, err := newTerminalApprover(); err == nil {
		approver = ta
	}

	s, err := openSession(approver)
	if err != nil {
		return err
	}
	defer s.close()

	req := model.ActionRequest{
		ActionType:  args[0],
		Description: checkDescription,
		Target:      checkTarget,
	}
	if req.Description == "" {
		req.Description = args[0]
	}

	req.RequiredLevel = s.engine.Rules().DefaultLevel()
	if checkLevel != "" {
		req.RequiredLevel, err = model.ParseLevel(checkLevel)
		if err != nil {
			return err
		}
	}

	if len(checkParams) > 0 {
		req.Parameters = make(map[string]any, len(checkParams))
		for _, p := range checkParams {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				return fmt.Errorf("invalid --param %q: want key=value", p)
			}
			req.Parameters[k] = v
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	before := s.engine.Rules()
	decision, err := s.engine.Check(ctx, req)
	if err != nil {
		return err
	}

	// A "never" answer changed the live blacklist; persist it.
	if s.engine.Rules() != before {
		if err := s.saveRules(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: persist rules: %v\n", err)
		}
	}

	out, _ := json.MarshalIndent(map[string]any{
		"outcome": decision.Outcome,
		"allowed": decision.Allowed(),
		"reason":  decision.Reason,
	}, "", "  ")
	fmt.Println(string(out))

	if !decision.Allowed() && decision.Outcome != model.DryRun {
		os.Exit(77)
	}
	return nil
}
