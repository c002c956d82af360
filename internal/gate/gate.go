package gate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"

	"github.com/opsgate/opsgate/internal/engine"
	"github.com/opsgate/opsgate/internal/model"
)

// Result captures subprocess execution outcome.
type Result struct {
	Stdout   string         `json:"stdout"`
	Stderr   string         `json:"stderr"`
	ExitCode int            `json:"exit_code"`
	Decision model.Decision `json:"decision"`
}

// BlockedError is returned when the engine refuses command execution.
type BlockedError struct {
	Command  string
	Decision model.Decision
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("command blocked (%s): %s", e.Decision.Outcome, e.Decision.Reason)
}

// Gate runs subprocess commands behind the permission engine. Every run is a
// full lifecycle: the engine decides, the gate executes only on an allowing
// decision, and the outcome is reported back to the trail as executed or
// failed.
type Gate struct {
	engine *engine.Engine
	level  model.PermissionLevel
}

// New wraps the engine with the default execute permission level.
func New(eng *engine.Engine) *Gate {
	return &Gate{engine: eng, level: model.LevelExecute}
}

// NewWithLevel wraps the engine requesting a specific permission level for
// every command (dry-run gates pass LevelSuggest).
func NewWithLevel(eng *engine.Engine, level model.PermissionLevel) *Gate {
	return &Gate{engine: eng, level: level}
}

// Run checks the command against the engine, executes it if allowed, and
// records the execution outcome. A non-zero exit code is not an error; it is
// reported in the result and logged as a failed execution. A dry-run decision
// returns the result with no execution and exit code zero.
func (g *Gate) Run(ctx context.Context, name string, args []string, stdin io.Reader) (*Result, error) {
	req := requestFor(name, args, g.level)

	decision, err := g.engine.Check(ctx, req)
	if err != nil {
		return nil, err
	}

	if decision.Outcome == model.DryRun {
		return &Result{Decision: decision}, nil
	}
	if !decision.Allowed() {
		return nil, &BlockedError{Command: req.Target, Decision: decision}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			// Command never started (not found, permission). Record and
			// surface the failure.
			if rerr := g.engine.ReportFailed(req, runErr); rerr != nil {
				return nil, rerr
			}
			return nil, runErr
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			exitCode = status.ExitStatus()
		}
	}

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Decision: decision,
	}

	if exitCode == 0 {
		err = g.engine.ReportExecuted(req, "exit code 0")
	} else {
		err = g.engine.ReportFailed(req, fmt.Errorf("exit code %d: %s", exitCode, truncate(stderr.String(), 512)))
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Check asks the engine about a command without executing it.
func (g *Gate) Check(ctx context.Context, name string, args []string) (model.Decision, error) {
	return g.engine.Check(ctx, requestFor(name, args, g.level))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
