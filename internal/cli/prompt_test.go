package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/opsgate/opsgate/internal/model"
)

func promptWith(t *testing.T, input string) model.Verdict {
	t.Helper()
	var out bytes.Buffer
	ta := &terminalApprover{in: strings.NewReader(input), out: &out}
	v, err := ta.Approve(context.Background(), "Delete /tmp/x", "This will DELETE: /tmp/x")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	return v
}

func TestPromptYes(t *testing.T) {
	for _, input := range []string{"y\n", "Y\n", "yes\n", "  YES  \n"} {
		if v := promptWith(t, input); v != model.VerdictApprove {
			t.Errorf("input %q -> %s, want approve", input, v)
		}
	}
}

func TestPromptDenyByDefault(t *testing.T) {
	for _, input := range []string{"\n", "n\n", "no\n", "whatever\n"} {
		if v := promptWith(t, input); v != model.VerdictDeny {
			t.Errorf("input %q -> %s, want deny", input, v)
		}
	}
}

func TestPromptNeverBlacklists(t *testing.T) {
	if v := promptWith(t, "never\n"); v != model.VerdictDenyAndBlacklist {
		t.Errorf("never -> %s, want deny-and-blacklist", v)
	}
}

func TestPromptEOFDenies(t *testing.T) {
	if v := promptWith(t, ""); v != model.VerdictDeny {
		t.Errorf("EOF -> %s, want deny", v)
	}
}

func TestPromptCancellationDenies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	// A reader that never returns keeps the prompt waiting on ctx.
	ta := &terminalApprover{in: blockingReader{}, out: &out}
	v, err := ta.Approve(ctx, "desc", "")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if v != model.VerdictDeny {
		t.Errorf("cancelled prompt -> %s, want deny", v)
	}
}

type blockingReader struct{}

func (blockingReader) Read(p []byte) (int, error) {
	select {}
}
