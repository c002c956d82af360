package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/opsgate/opsgate/internal/model"
)

// terminalApprover prompts on the controlling terminal. Anything other than
// an explicit yes is a denial; "never" denies and blacklists the action.
type terminalApprover struct {
	in  io.Reader
	out io.Writer
}

func newTerminalApprover() (*terminalApprover, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return nil, fmt.Errorf("interactive approval requires a terminal (stdin is not a tty); use `opsgate approve` from another terminal or run via the MCP server")
	}
	return &terminalApprover{in: os.Stdin, out: os.Stderr}, nil
}

// Approve implements engine.Approver.
func (t *terminalApprover) Approve(ctx context.Context, description, preview string) (model.Verdict, error) {
	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, "approval required:")
	fmt.Fprintf(t.out, "  %s\n", description)
	if preview != "" {
		fmt.Fprintf(t.out, "  %s\n", preview)
	}
	fmt.Fprint(t.out, "allow? [y/N/never] ")

	line, err := readLine(ctx, t.in)
	if err != nil {
		// EOF or cancellation is a denial, never an approval.
		return model.VerdictDeny, nil
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return model.VerdictApprove, nil
	case "never":
		return model.VerdictDenyAndBlacklist, nil
	default:
		return model.VerdictDeny, nil
	}
}

// readLine reads one line, honoring context cancellation. The read itself
// happens in a goroutine because os.Stdin has no deadline support.
func readLine(ctx context.Context, r io.Reader) (string, error) {
	type res struct {
		line string
		err  error
	}
	ch := make(chan res, 1)
	go func() {
		reader := bufio.NewReader(r)
		line, err := reader.ReadString('\n')
		ch <- res{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case out := <-ch:
		if out.err != nil && out.line == "" {
			return "", out.err
		}
		return out.line, nil
	}
}
