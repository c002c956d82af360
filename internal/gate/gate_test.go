package gate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/opsgate/opsgate/internal/audit"
	"github.com/opsgate/opsgate/internal/engine"
	"github.com/opsgate/opsgate/internal/model"
	"github.com/opsgate/opsgate/internal/rules"
)

func newTestGate(t *testing.T, blacklist, autoApprove []string, approver engine.Approver) (*Gate, string) {
	t.Helper()
	set, err := rules.NewSet(model.LevelSafeWrite, blacklist, autoApprove, nil)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := audit.Open(logPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { trail.Close() })
	return New(engine.New(set, trail, approver)), logPath
}

func TestRunApprovedCommand(t *testing.T) {
	g, logPath := newTestGate(t, nil, []string{"echo *"}, nil)

	res, err := g.Run(context.Background(), "echo", []string{"hello"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if res.Decision.Outcome != model.AutoApproved {
		t.Errorf("outcome = %s", res.Decision.Outcome)
	}

	entries, err := audit.Collect(logPath, audit.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("trail has %d entries, want approval + execution", len(entries))
	}
	if entries[1].Status != audit.StatusExecuted {
		t.Errorf("final entry status = %s, want executed", entries[1].Status)
	}
}

func TestRunBlacklistedCommand(t *testing.T) {
	g, logPath := newTestGate(t, []string{"rm -rf /*"}, nil, nil)

	_, err := g.Run(context.Background(), "rm", []string{"-rf", "/tmp/x"}, nil)
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("err = %v, want BlockedError", err)
	}
	if blocked.Decision.Outcome != model.DeniedBlacklist {
		t.Errorf("outcome = %s", blocked.Decision.Outcome)
	}

	entries, err := audit.Collect(logPath, audit.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != audit.StatusDenied {
		t.Errorf("trail = %+v", entries)
	}
}

func TestRunNonZeroExitReportedFailed(t *testing.T) {
	g, logPath := newTestGate(t, nil, []string{"sh *"}, nil)

	res, err := g.Run(context.Background(), "sh", []string{"-c", "exit 3"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}

	entries, err := audit.Collect(logPath, audit.Filter{Status: audit.StatusFailed})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("failed entries = %d, want 1", len(entries))
	}
	if entries[0].Result == "" {
		t.Error("failed entry should carry the exit code in result")
	}
}

func TestRunDeniedByUser(t *testing.T) {
	deny := engine.ApproverFunc(func(ctx context.Context, description, preview string) (model.Verdict, error) {
		return model.VerdictDeny, nil
	})
	g, _ := newTestGate(t, nil, nil, deny)

	_, err := g.Run(context.Background(), "touch", []string{"/tmp/opsgate-test"}, nil)
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("err = %v, want BlockedError", err)
	}
	if blocked.Decision.Outcome != model.DeniedByUser {
		t.Errorf("outcome = %s", blocked.Decision.Outcome)
	}
}

func TestDryRunSkipsExecution(t *testing.T) {
	set, err := rules.NewSet(model.LevelSafeWrite, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := audit.Open(logPath)
	if err != nil {
		t.Fatal(err)
	}
	defer trail.Close()

	dry := NewWithLevel(engine.New(set, trail, nil), model.LevelSuggest)
	res, err := dry.Run(context.Background(), "touch", []string{"/tmp/opsgate-dry"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Decision.Outcome != model.DryRun {
		t.Errorf("outcome = %s, want dry_run", res.Decision.Outcome)
	}
	if res.Stdout != "" || res.ExitCode != 0 {
		t.Errorf("dry run must not execute: %+v", res)
	}

	entries, err := audit.Collect(logPath, audit.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != audit.StatusDryRun {
		t.Errorf("trail = %+v", entries)
	}
}

func TestCheckDoesNotExecute(t *testing.T) {
	g, logPath := newTestGate(t, []string{"format *"}, nil, nil)

	d, err := g.Check(context.Background(), "format", []string{"c:"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Outcome != model.DeniedBlacklist {
		t.Errorf("outcome = %s", d.Outcome)
	}

	entries, err := audit.Collect(logPath, audit.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("trail entries = %d, want the denial only", len(entries))
	}
}

func TestRequestForFullCommandLine(t *testing.T) {
	req := requestFor("rm", []string{"-rf", "/"}, model.LevelExecute)
	if req.ActionType != "rm -rf /" {
		t.Errorf("action type = %q", req.ActionType)
	}
	if req.Target != "rm -rf /" {
		t.Errorf("target = %q", req.Target)
	}

	bare := requestFor("ls", nil, model.LevelExecute)
	if bare.ActionType != "ls" {
		t.Errorf("bare action type = %q", bare.ActionType)
	}
}
