package model

import "testing"

func TestLevelOrdering(t *testing.T) {
	ordered := []PermissionLevel{
		LevelRead, LevelSuggest, LevelSafeWrite,
		LevelSystemWrite, LevelExecute, LevelAdmin,
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1] >= ordered[i] {
			t.Errorf("%s (%d) should rank below %s (%d)",
				ordered[i-1], ordered[i-1], ordered[i], ordered[i])
		}
	}
}

func TestParseLevelRoundTrip(t *testing.T) {
	for _, l := range []PermissionLevel{
		LevelRead, LevelSuggest, LevelSafeWrite,
		LevelSystemWrite, LevelExecute, LevelAdmin,
	} {
		got, err := ParseLevel(l.String())
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", l.String(), err)
		}
		if got != l {
			t.Errorf("ParseLevel(%q) = %v, want %v", l.String(), got, l)
		}
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("root"); err == nil {
		t.Error("expected error for unknown level name")
	}
}

func TestDecisionAllowed(t *testing.T) {
	cases := []struct {
		outcome Outcome
		want    bool
	}{
		{AutoApproved, true},
		{ApprovedByUser, true},
		{DryRun, false},
		{DeniedBlacklist, false},
		{DeniedByUser, false},
	}
	for _, tc := range cases {
		d := Decision{Outcome: tc.outcome}
		if d.Allowed() != tc.want {
			t.Errorf("Allowed() for %s = %v, want %v", tc.outcome, d.Allowed(), tc.want)
		}
	}
}
