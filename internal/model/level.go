package model

import (
	"fmt"
	"strings"
)

// PermissionLevel orders actions by risk. Higher level = more trust required.
type PermissionLevel int

const (
	LevelRead        PermissionLevel = 0 // read-only access
	LevelSuggest     PermissionLevel = 1 // dry-run, preview only
	LevelSafeWrite   PermissionLevel = 2 // low-risk writes (user directories)
	LevelSystemWrite PermissionLevel = 3 // system modifications (configs)
	LevelExecute     PermissionLevel = 4 // shell command execution
	LevelAdmin       PermissionLevel = 5 // elevated/dangerous operations
)

// String returns the canonical lowercase name of the level.
func (l PermissionLevel) String() string {
	switch l {
	case LevelRead:
		return "read"
	case LevelSuggest:
		return "suggest"
	case LevelSafeWrite:
		return "safe_write"
	case LevelSystemWrite:
		return "system_write"
	case LevelExecute:
		return "execute"
	case LevelAdmin:
		return "admin"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// ParseLevel maps a level name to a PermissionLevel. Case-insensitive.
func ParseLevel(s string) (PermissionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return LevelRead, nil
	case "suggest":
		return LevelSuggest, nil
	case "safe_write":
		return LevelSafeWrite, nil
	case "system_write":
		return LevelSystemWrite, nil
	case "execute":
		return LevelExecute, nil
	case "admin":
		return LevelAdmin, nil
	default:
		return 0, fmt.Errorf("unknown permission level %q", s)
	}
}
