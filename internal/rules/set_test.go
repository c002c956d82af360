package rules

import (
	"testing"

	"github.com/opsgate/opsgate/internal/model"
)

func mustSet(t *testing.T, blacklist, autoApprove []string) *Set {
	t.Helper()
	s, err := NewSet(model.LevelSuggest, blacklist, autoApprove, nil)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return s
}

func TestPatternMatching(t *testing.T) {
	cases := []struct {
		pattern    string
		actionType string
		want       bool
	}{
		{"delete_file", "delete_file", true},
		{"delete_*", "delete_file", true},
		{"delete_*", "delete_", true},
		{"delete_*", "deleted", false},
		{"*", "anything", true},
		{"read_*", "delete_file", false},
		{"delete_*", "Delete_file", false}, // case-sensitive
		{"*_file", "delete_file", true},
		{"a*c", "abc", true},
		{"a*c", "ac", true},
		{"a*c", "abd", false},
		{"rm -rf /", "rm -rf /", true},
		{"rm -rf /", "rm -rf /home", false}, // full-string match
	}
	for _, tc := range cases {
		p, err := CompilePattern(tc.pattern)
		if err != nil {
			t.Fatalf("CompilePattern(%q): %v", tc.pattern, err)
		}
		if got := p.Match(tc.actionType); got != tc.want {
			t.Errorf("pattern %q against %q = %v, want %v",
				tc.pattern, tc.actionType, got, tc.want)
		}
	}
}

func TestCompilePatternRejectsEmpty(t *testing.T) {
	for _, raw := range []string{"", "   "} {
		if _, err := CompilePattern(raw); err == nil {
			t.Errorf("CompilePattern(%q): expected error", raw)
		}
	}
}

func TestBlacklistAndAutoApprove(t *testing.T) {
	s := mustSet(t, []string{"format_disk", "rm -rf /"}, []string{"list_files", "read_*"})

	if pat, ok := s.Blacklisted("format_disk"); !ok || pat != "format_disk" {
		t.Errorf("Blacklisted(format_disk) = %q, %v", pat, ok)
	}
	if _, ok := s.Blacklisted("list_files"); ok {
		t.Error("list_files should not be blacklisted")
	}
	if pat, ok := s.AutoApproved("read_config"); !ok || pat != "read_*" {
		t.Errorf("AutoApproved(read_config) = %q, %v", pat, ok)
	}
}

func TestWithBlacklistIdempotent(t *testing.T) {
	s := mustSet(t, nil, nil)

	s1, err := s.WithBlacklist("dangerous_op")
	if err != nil {
		t.Fatalf("WithBlacklist: %v", err)
	}
	s2, err := s1.WithBlacklist("dangerous_op")
	if err != nil {
		t.Fatalf("WithBlacklist (second): %v", err)
	}

	if s2 != s1 {
		t.Error("adding an existing pattern should return the same snapshot")
	}
	if got := len(s2.Blacklist()); got != 1 {
		t.Errorf("blacklist has %d entries, want 1", got)
	}
}

func TestWithBlacklistDoesNotMutateOriginal(t *testing.T) {
	s := mustSet(t, nil, nil)
	s1, err := s.WithBlacklist("x")
	if err != nil {
		t.Fatalf("WithBlacklist: %v", err)
	}

	if _, ok := s.Blacklisted("x"); ok {
		t.Error("original snapshot observed the mutation")
	}
	if _, ok := s1.Blacklisted("x"); !ok {
		t.Error("new snapshot missing the added pattern")
	}
}

func TestWithoutBlacklist(t *testing.T) {
	s := mustSet(t, []string{"a", "b", "c"}, nil)

	s1 := s.WithoutBlacklist("b")
	if got := s1.Blacklist(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("Blacklist() after removal = %v", got)
	}
	if _, ok := s1.Blacklisted("b"); ok {
		t.Error("removed pattern still matches")
	}

	// Removing an absent pattern is a no-op.
	if s2 := s1.WithoutBlacklist("nope"); s2 != s1 {
		t.Error("removing absent pattern should return same snapshot")
	}
}

func BenchmarkBlacklisted(b *testing.B) {
	s, err := NewSet(model.LevelSuggest,
		[]string{"format_disk", "rm -rf /", "del /f /s /q *", "drop_*", "wipe_*"},
		nil, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Blacklisted("write_config_file")
	}
}

func FuzzCompilePattern(f *testing.F) {
	f.Add("delete_*")
	f.Add("rm -rf /")
	f.Add("a[b]c(d)e")
	f.Add("**")
	f.Fuzz(func(t *testing.T, raw string) {
		p, err := CompilePattern(raw)
		if err != nil {
			return
		}
		// A compiled pattern must at least match its own literal text when
		// it contains no wildcard.
		if !containsStar(raw) && !p.Match(raw) {
			t.Errorf("literal pattern %q does not match itself", raw)
		}
	})
}

func containsStar(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '*' {
			return true
		}
	}
	return false
}
