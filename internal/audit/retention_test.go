package audit

import (
	"os"
	"testing"
	"time"
)

func appendAt(t *testing.T, l *Log, ts time.Time, status Status) {
	t.Helper()
	e := testEntry(status)
	e.Timestamp = ts.UTC().Format(TimestampFormat)
	if err := l.Append(e); err != nil {
		t.Fatal(err)
	}
}

func TestRetentionSplitsAtCutoff(t *testing.T) {
	l, path := newTestLog(t)
	defer l.Close()

	now := time.Now().UTC()
	appendAt(t, l, now.AddDate(0, 0, -100), StatusApproved)
	appendAt(t, l, now.AddDate(0, 0, -90), StatusDenied)
	appendAt(t, l, now.AddDate(0, 0, -5), StatusApproved)
	appendAt(t, l, now, StatusExecuted)

	res, err := l.ApplyRetention(30)
	if err != nil {
		t.Fatalf("ApplyRetention: %v", err)
	}
	if res.Archived != 2 || res.Retained != 2 {
		t.Fatalf("archived=%d retained=%d, want 2/2", res.Archived, res.Retained)
	}

	// Active log chain starts at the last archived line.
	active := Verify(path, VerifyOptions{StartHash: res.StartHash})
	if !active.Valid {
		t.Errorf("active log invalid: %s (line %d)", active.Error, active.ErrorLine)
	}

	// Archive chain starts at genesis.
	archive := Verify(res.ArchivePath, VerifyOptions{})
	if !archive.Valid {
		t.Errorf("archive invalid: %s (line %d)", archive.Error, archive.ErrorLine)
	}
	if archive.Lines != 2 {
		t.Errorf("archive has %d entries, want 2", archive.Lines)
	}

	// Checkpoint sidecar records the new chain start.
	if got := LoadStartHash(path); got != res.StartHash {
		t.Errorf("LoadStartHash = %s, want %s", got, res.StartHash)
	}
}

func TestRetentionAppendsContinueChain(t *testing.T) {
	l, path := newTestLog(t)
	defer l.Close()

	now := time.Now().UTC()
	appendAt(t, l, now.AddDate(0, 0, -100), StatusApproved)
	appendAt(t, l, now, StatusApproved)

	res, err := l.ApplyRetention(30)
	if err != nil {
		t.Fatal(err)
	}

	if err := l.Append(testEntry(StatusExecuted)); err != nil {
		t.Fatalf("append after retention: %v", err)
	}

	result := Verify(path, VerifyOptions{StartHash: res.StartHash})
	if !result.Valid {
		t.Errorf("chain broken after post-retention append: %s", result.Error)
	}
	if result.Lines != 2 {
		t.Errorf("verified %d entries, want 2", result.Lines)
	}
}

func TestRetentionNoopWhenNothingOld(t *testing.T) {
	l, path := newTestLog(t)
	defer l.Close()

	appendAt(t, l, time.Now().UTC(), StatusApproved)
	before := readLines(t, path)

	res, err := l.ApplyRetention(30)
	if err != nil {
		t.Fatal(err)
	}
	if res.Archived != 0 {
		t.Errorf("archived %d entries, want 0", res.Archived)
	}

	after := readLines(t, path)
	if len(before) != len(after) || before[0] != after[0] {
		t.Error("no-op retention modified the log")
	}
	if _, err := os.Stat(ArchivePath(path)); !os.IsNotExist(err) {
		t.Error("no-op retention created an archive")
	}
}

func TestRetentionArchivesEverything(t *testing.T) {
	l, path := newTestLog(t)
	defer l.Close()

	now := time.Now().UTC()
	appendAt(t, l, now.AddDate(0, 0, -100), StatusApproved)
	appendAt(t, l, now.AddDate(0, 0, -90), StatusDenied)

	res, err := l.ApplyRetention(30)
	if err != nil {
		t.Fatal(err)
	}
	if res.Archived != 2 || res.Retained != 0 {
		t.Fatalf("archived=%d retained=%d, want 2/0", res.Archived, res.Retained)
	}

	// New appends chain from the archived tail.
	if err := l.Append(testEntry(StatusApproved)); err != nil {
		t.Fatal(err)
	}
	result := Verify(path, VerifyOptions{StartHash: res.StartHash})
	if !result.Valid {
		t.Errorf("chain broken on empty retained log: %s", result.Error)
	}
}

func TestLoadStartHashDefaultsToGenesis(t *testing.T) {
	if got := LoadStartHash("/nonexistent/audit.jsonl"); got != GenesisHash {
		t.Errorf("LoadStartHash = %s, want genesis", got)
	}
}
