package rules

import (
	"slices"

	"github.com/opsgate/opsgate/internal/model"
)

// Set is an immutable snapshot of the live permission rules. Mutation goes
// through WithBlacklist/WithAutoApprove, which return a new snapshot; readers
// therefore always observe either the pre- or post-mutation set, never a
// partial update.
type Set struct {
	defaultLevel model.PermissionLevel

	blacklist   []Pattern
	autoApprove []Pattern

	// requireApproval is informational: any action that is neither
	// blacklisted nor auto-approved falls through to interactive approval
	// regardless of its presence here. Kept for config round-tripping.
	requireApproval []string

	rawBlacklist   []string
	rawAutoApprove []string
}

// NewSet compiles raw pattern lists into a Set.
func NewSet(defaultLevel model.PermissionLevel, blacklist, autoApprove, requireApproval []string) (*Set, error) {
	bl, err := compileAll(blacklist)
	if err != nil {
		return nil, err
	}
	aa, err := compileAll(autoApprove)
	if err != nil {
		return nil, err
	}
	return &Set{
		defaultLevel:    defaultLevel,
		blacklist:       bl,
		autoApprove:     aa,
		requireApproval: slices.Clone(requireApproval),
		rawBlacklist:    slices.Clone(blacklist),
		rawAutoApprove:  slices.Clone(autoApprove),
	}, nil
}

// DefaultLevel is the level assumed when a request supplies none.
func (s *Set) DefaultLevel() model.PermissionLevel { return s.defaultLevel }

// Blacklisted returns the first blacklist pattern matching the action type.
func (s *Set) Blacklisted(actionType string) (string, bool) {
	return matchAny(s.blacklist, actionType)
}

// AutoApproved returns the first auto-approve pattern matching the action type.
func (s *Set) AutoApproved(actionType string) (string, bool) {
	return matchAny(s.autoApprove, actionType)
}

// HasBlacklistPattern reports whether the exact pattern text is already in
// the blacklist.
func (s *Set) HasBlacklistPattern(pattern string) bool {
	return slices.Contains(s.rawBlacklist, pattern)
}

// HasAutoApprovePattern reports whether the exact pattern text is already in
// the auto-approve list.
func (s *Set) HasAutoApprovePattern(pattern string) bool {
	return slices.Contains(s.rawAutoApprove, pattern)
}

// WithBlacklist returns a snapshot with the pattern added to the blacklist.
// Adding an existing pattern is a no-op and returns the receiver unchanged.
func (s *Set) WithBlacklist(pattern string) (*Set, error) {
	if s.HasBlacklistPattern(pattern) {
		return s, nil
	}
	p, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}
	next := s.clone()
	next.blacklist = append(next.blacklist, p)
	next.rawBlacklist = append(next.rawBlacklist, pattern)
	return next, nil
}

// WithAutoApprove returns a snapshot with the pattern added to the
// auto-approve list. Adding an existing pattern is a no-op.
func (s *Set) WithAutoApprove(pattern string) (*Set, error) {
	if s.HasAutoApprovePattern(pattern) {
		return s, nil
	}
	p, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}
	next := s.clone()
	next.autoApprove = append(next.autoApprove, p)
	next.rawAutoApprove = append(next.rawAutoApprove, pattern)
	return next, nil
}

// WithoutBlacklist returns a snapshot with the exact pattern text removed.
// Removing an absent pattern is a no-op.
func (s *Set) WithoutBlacklist(pattern string) *Set {
	idx := slices.Index(s.rawBlacklist, pattern)
	if idx < 0 {
		return s
	}
	next := s.clone()
	next.rawBlacklist = slices.Delete(next.rawBlacklist, idx, idx+1)
	next.blacklist = slices.Delete(next.blacklist, idx, idx+1)
	return next
}

// Blacklist returns the raw blacklist pattern texts.
func (s *Set) Blacklist() []string { return slices.Clone(s.rawBlacklist) }

// AutoApprove returns the raw auto-approve pattern texts.
func (s *Set) AutoApprove() []string { return slices.Clone(s.rawAutoApprove) }

// RequireApproval returns the informational require-approval pattern texts.
func (s *Set) RequireApproval() []string { return slices.Clone(s.requireApproval) }

func (s *Set) clone() *Set {
	return &Set{
		defaultLevel:    s.defaultLevel,
		blacklist:       slices.Clone(s.blacklist),
		autoApprove:     slices.Clone(s.autoApprove),
		requireApproval: slices.Clone(s.requireApproval),
		rawBlacklist:    slices.Clone(s.rawBlacklist),
		rawAutoApprove:  slices.Clone(s.rawAutoApprove),
	}
}
