package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// GenesisHash is the prev_hash for the first entry in a new audit log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// StorageError wraps an I/O failure in the trail. A caller seeing one must
// treat the action as not durably logged and must not proceed to execute it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("audit: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Log is an append-only JSONL audit log with SHA-256 hash chaining. Each
// entry's prev_hash is the hash of the previous entry's JSON line, forming a
// tamper-evident chain. Append is the only mutation primitive.
type Log struct {
	path     string
	file     *os.File
	prevHash string

	// needsNewline is set when the existing file ends mid-line (crash
	// during a previous write). The next append starts on a fresh line so
	// the partial record stays self-contained and skippable.
	needsNewline bool

	mu sync.Mutex
}

// Open opens (or creates) an audit log file for appending. If the file
// already exists, the chain tail is recovered from the last complete line;
// a truncated final line is detected and skipped, not fatal.
func Open(path string) (*Log, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, &StorageError{Op: "create directory", Err: err}
	}

	prevHash := GenesisHash
	needsNewline := false

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &StorageError{Op: "read existing log", Err: err}
		}

		needsNewline = data[len(data)-1] != '\n'

		if last, ok := lastCompleteLine(data); ok {
			prevHash = HashLine(last)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, &StorageError{Op: "open file", Err: err}
	}

	return &Log{
		path:         path,
		file:         file,
		prevHash:     prevHash,
		needsNewline: needsNewline,
	}, nil
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Append durably writes one entry with hash chaining. It sets the entry's
// PrevHash, stamps the Timestamp if empty, writes the line, and syncs.
// Appends are atomic with respect to each other: a single mutex serializes
// writers, so concurrent callers never interleave partial lines.
func (l *Log) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = Now()
	}
	entry.PrevHash = l.prevHash

	line, err := json.Marshal(entry)
	if err != nil {
		return &StorageError{Op: "marshal entry", Err: err}
	}

	buf := line
	if l.needsNewline {
		buf = append([]byte{'\n'}, line...)
	}
	if _, err := l.file.Write(append(buf, '\n')); err != nil {
		return &StorageError{Op: "write entry", Err: err}
	}
	if err := l.file.Sync(); err != nil {
		return &StorageError{Op: "sync", Err: err}
	}

	l.needsNewline = false
	l.prevHash = HashLine(line)
	return nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}

// lastCompleteLine returns the last newline-terminated, JSON-parseable line
// in data. Trailing partial writes and corrupt tails are ignored so a new
// process can resume the chain after a crash.
func lastCompleteLine(data []byte) ([]byte, bool) {
	// Drop anything after the final newline: it is a partial write.
	if idx := bytes.LastIndexByte(data, '\n'); idx >= 0 {
		data = data[:idx]
	} else {
		return nil, false
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var last []byte
	for scanner.Scan() {
		raw := scanner.Bytes()
		if !json.Valid(raw) {
			continue
		}
		last = append(last[:0], raw...)
	}
	if len(last) == 0 {
		return nil, false
	}
	return last, true
}

// maxLineSize bounds a single audit line. Metadata is caller-supplied, so
// the scanner buffer must be generous but finite.
const maxLineSize = 1 << 20
