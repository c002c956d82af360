package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opsgate/opsgate/internal/model"
)

// Preview renders a short description of what the action would do, shown to
// the human alongside the approval prompt and recorded in the trail.
func Preview(req model.ActionRequest) string {
	var b strings.Builder

	switch {
	case strings.HasPrefix(req.ActionType, "delete"):
		fmt.Fprintf(&b, "This will DELETE: %s", req.Target)
	case strings.HasPrefix(req.ActionType, "write"):
		fmt.Fprintf(&b, "This will WRITE to: %s", req.Target)
	case strings.HasPrefix(req.ActionType, "execute"):
		fmt.Fprintf(&b, "This will EXECUTE: %s", req.Target)
	case strings.HasPrefix(req.ActionType, "move"):
		fmt.Fprintf(&b, "This will MOVE: %s", req.Target)
	default:
		fmt.Fprintf(&b, "This will perform: %s", req.Description)
	}

	if len(req.Parameters) > 0 {
		b.WriteString("\nParameters:")
		keys := make([]string, 0, len(req.Parameters))
		for k := range req.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n  - %s: %v", k, req.Parameters[k])
		}
	}

	return b.String()
}
