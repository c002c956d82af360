package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is a compiled glob-style pattern matched against the full
// action_type string. `*` matches any run of characters; everything else is
// literal. Matching is case-sensitive.
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

// CompilePattern compiles a glob pattern. Empty or whitespace-only patterns
// are rejected: they would match nothing useful and usually indicate a
// malformed config.
func CompilePattern(raw string) (Pattern, error) {
	if strings.TrimSpace(raw) == "" {
		return Pattern{}, fmt.Errorf("rules: empty pattern")
	}
	escaped := regexp.QuoteMeta(raw)
	escaped = strings.ReplaceAll(escaped, `\*`, ".*")
	re, err := regexp.Compile("^" + escaped + "$")
	if err != nil {
		return Pattern{}, fmt.Errorf("rules: compile pattern %q: %w", raw, err)
	}
	return Pattern{raw: raw, re: re}, nil
}

// Match reports whether the action type matches this pattern.
func (p Pattern) Match(actionType string) bool {
	return p.re.MatchString(actionType)
}

// String returns the original pattern text.
func (p Pattern) String() string { return p.raw }

func compileAll(raws []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(raws))
	for _, r := range raws {
		p, err := CompilePattern(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// matchAny returns the first matching pattern, or "" if none match.
// Any match within a set is sufficient (OR semantics).
func matchAny(patterns []Pattern, actionType string) (string, bool) {
	for _, p := range patterns {
		if p.Match(actionType) {
			return p.raw, true
		}
	}
	return "", false
}
