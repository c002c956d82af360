package gate

import (
	"strings"

	"github.com/opsgate/opsgate/internal/model"
)

// requestFor maps a command invocation to an action request. The full command
// line is the action type: rule patterns match action types only, and the
// default blacklist carries command-shaped patterns like "rm -rf /*".
func requestFor(name string, args []string, level model.PermissionLevel) model.ActionRequest {
	full := name
	if len(args) > 0 {
		full = name + " " + strings.Join(args, " ")
	}

	return model.ActionRequest{
		ActionType:    full,
		Description:   "Execute command: " + full,
		Target:        full,
		Parameters:    map[string]any{"command": name, "args": strings.Join(args, " ")},
		RequiredLevel: level,
	}
}
