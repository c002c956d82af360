package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"time"
)

// RetentionResult summarizes one retention pass.
type RetentionResult struct {
	Archived    int    `json:"archived"`
	Retained    int    `json:"retained"`
	ArchivePath string `json:"archive_path,omitempty"`
	// StartHash is the expected prev_hash of the first retained entry.
	// Verification of the active log must start from it instead of the
	// genesis hash once entries have been archived.
	StartHash string `json:"start_hash,omitempty"`
}

// checkpoint is the sidecar record written next to the active log after a
// retention split, so later verification knows where the chain now starts.
type checkpoint struct {
	StartHash  string `json:"start_hash"`
	ArchivedAt string `json:"archived_at"`
	Archived   int    `json:"archived"`
}

// CheckpointPath returns the sidecar location for a log file.
func CheckpointPath(logPath string) string { return logPath + ".checkpoint" }

// ArchivePath returns the archive location for a log file.
func ArchivePath(logPath string) string { return logPath + ".archive" }

// LoadStartHash returns the chain start hash for a log: the checkpoint's
// start_hash if a retention split happened, the genesis hash otherwise.
func LoadStartHash(logPath string) string {
	data, err := os.ReadFile(CheckpointPath(logPath))
	if err != nil {
		return GenesisHash
	}
	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil || cp.StartHash == "" {
		return GenesisHash
	}
	return cp.StartHash
}

// ApplyRetention moves entries older than maxAgeDays to the archive file and
// atomically rewrites the active log with the remainder. Only the contiguous
// head of the log is archived, so both files keep internally consistent hash
// chains. This never runs implicitly: it is an explicit, caller-invoked
// compaction.
func (l *Log) ApplyRetention(maxAgeDays int) (RetentionResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return RetentionResult{}, nil
		}
		return RetentionResult{}, &StorageError{Op: "retention read", Err: err}
	}

	var archived, retained [][]byte
	splitDone := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())

		if !splitDone {
			var entry Entry
			if err := json.Unmarshal(line, &entry); err == nil {
				if ts, perr := time.Parse(TimestampFormat, entry.Timestamp); perr == nil && !ts.Before(cutoff) {
					splitDone = true
				}
			} else {
				// Malformed head line: keep it with the retained tail so
				// nothing silently disappears.
				splitDone = true
			}
		}

		if splitDone {
			retained = append(retained, line)
		} else {
			archived = append(archived, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return RetentionResult{}, &StorageError{Op: "retention scan", Err: err}
	}

	if len(archived) == 0 {
		return RetentionResult{Retained: len(retained)}, nil
	}

	archivePath := ArchivePath(l.path)
	af, err := os.OpenFile(archivePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return RetentionResult{}, &StorageError{Op: "open archive", Err: err}
	}
	for _, line := range archived {
		if _, err := af.Write(append(line, '\n')); err != nil {
			af.Close()
			return RetentionResult{}, &StorageError{Op: "write archive", Err: err}
		}
	}
	if err := af.Sync(); err != nil {
		af.Close()
		return RetentionResult{}, &StorageError{Op: "sync archive", Err: err}
	}
	if err := af.Close(); err != nil {
		return RetentionResult{}, &StorageError{Op: "close archive", Err: err}
	}

	startHash := HashLine(archived[len(archived)-1])

	tmp := l.path + ".tmp"
	var buf bytes.Buffer
	for _, line := range retained {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return RetentionResult{}, &StorageError{Op: "write retained", Err: err}
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return RetentionResult{}, &StorageError{Op: "replace log", Err: err}
	}

	cp, err := json.Marshal(checkpoint{
		StartHash:  startHash,
		ArchivedAt: Now(),
		Archived:   len(archived),
	})
	if err == nil {
		err = os.WriteFile(CheckpointPath(l.path), cp, 0600)
	}
	if err != nil {
		return RetentionResult{}, &StorageError{Op: "write checkpoint", Err: err}
	}

	// Reopen the handle: the rename replaced the inode we were appending to.
	l.file.Close()
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return RetentionResult{}, &StorageError{Op: "reopen log", Err: err}
	}
	l.file = file
	if len(retained) > 0 {
		l.prevHash = HashLine(retained[len(retained)-1])
	} else {
		l.prevHash = startHash
	}
	l.needsNewline = false

	return RetentionResult{
		Archived:    len(archived),
		Retained:    len(retained),
		ArchivePath: archivePath,
		StartHash:   startHash,
	}, nil
}
