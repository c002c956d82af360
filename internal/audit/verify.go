package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid bool `json:"valid"`
	// Lines counts verified entries; Skipped counts malformed lines
	// (crash artifacts) that were stepped over.
	Lines     int    `json:"lines"`
	Skipped   int    `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// VerifyOptions adjusts chain validation.
type VerifyOptions struct {
	// StartHash is the expected prev_hash of the first entry. Defaults to
	// the genesis hash; after a retention split the active log starts at
	// the hash of the last archived line instead.
	StartHash string
}

// Verify reads a JSONL audit log and validates the hash chain. Malformed
// lines (truncated writes from a crash) are skipped and counted: the chain
// must still link across them, since appends resume from the last complete
// line. Any valid entry whose prev_hash does not match breaks the chain.
func Verify(path string, opts VerifyOptions) VerifyResult {
	startHash := opts.StartHash
	if startHash == "" {
		startHash = GenesisHash
	}

	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0
	result := VerifyResult{}
	var prevLine []byte

	for scanner.Scan() {
		lineNum++

		// Scanner reuses its buffer; keep a copy.
		raw := scanner.Bytes()
		line := make([]byte, len(raw))
		copy(line, raw)

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			result.Skipped++
			continue
		}

		expected := startHash
		if prevLine != nil {
			expected = HashLine(prevLine)
		}
		if entry.PrevHash != expected {
			return VerifyResult{
				Lines:     result.Lines,
				Skipped:   result.Skipped,
				Error:     fmt.Sprintf("hash mismatch: expected %s, got %s", expected, entry.PrevHash),
				ErrorLine: lineNum,
			}
		}

		prevLine = line
		result.Lines++
	}

	if err := scanner.Err(); err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err)}
	}

	result.Valid = true
	return result
}
