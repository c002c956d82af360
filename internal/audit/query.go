package audit

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"regexp"
	"strings"
	"time"
)

// Filter holds query criteria. Zero values mean "no constraint".
type Filter struct {
	From       time.Time
	To         time.Time
	ActionType string // glob pattern, '*' matches any run of characters
	Status     Status
	RequestID  string

	// OnMalformed, when set, is called with the line number of every
	// malformed or truncated record skipped during iteration.
	OnMalformed func(line int)
}

// Query returns a lazy sequence of entries matching the filter, in append
// order. The sequence is restartable: each iteration reopens the file.
// Malformed lines are skipped (reported via OnMalformed); I/O errors are
// yielded as the second value and terminate the iteration.
func Query(path string, f Filter) iter.Seq2[Entry, error] {
	matchType := matchAll
	if f.ActionType != "" {
		matchType = globMatcher(f.ActionType)
	}

	return func(yield func(Entry, error) bool) {
		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			yield(Entry{}, &StorageError{Op: "open log", Err: err})
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			var entry Entry
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
				if f.OnMalformed != nil {
					f.OnMalformed(lineNum)
				}
				continue
			}
			if !matches(entry, f, matchType) {
				continue
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Entry{}, &StorageError{Op: "read log", Err: err})
		}
	}
}

// Collect materializes a query result as a slice.
func Collect(path string, f Filter) ([]Entry, error) {
	var entries []Entry
	for entry, err := range Query(path, f) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Tail returns the last n entries of the log in append order.
func Tail(path string, n int) ([]Entry, error) {
	entries, err := Collect(path, Filter{})
	if err != nil {
		return nil, err
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

func matches(e Entry, f Filter, matchType func(string) bool) bool {
	if f.RequestID != "" && e.RequestID != f.RequestID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !matchType(e.ActionType) {
		return false
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		ts, err := time.Parse(TimestampFormat, e.Timestamp)
		if err != nil {
			return false
		}
		if !f.From.IsZero() && ts.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && ts.After(f.To) {
			return false
		}
	}
	return true
}

func matchAll(string) bool { return true }

// globMatcher compiles the same glob dialect the rule sets use: '*' is any
// run of characters, the rest is literal, case-sensitive, full-string.
func globMatcher(pattern string) func(string) bool {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, ".*")
	re, err := regexp.Compile("^" + escaped + "$")
	if err != nil {
		return func(s string) bool { return s == pattern }
	}
	return re.MatchString
}

// Export materializes a filtered query as a single structured document.
// Supported formats: "json" (one array) and "csv". Export failure never
// touches the underlying log.
func Export(path string, f Filter, w io.Writer, format string) error {
	switch format {
	case "json":
		return exportJSON(path, f, w)
	case "csv":
		return exportCSV(path, f, w)
	default:
		return fmt.Errorf("audit: unsupported export format %q", format)
	}
}

func exportJSON(path string, f Filter, w io.Writer) error {
	entries, err := Collect(path, f)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return &StorageError{Op: "export", Err: err}
	}
	return nil
}

func exportCSV(path string, f Filter, w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{
		"ts", "request_id", "action_type", "action_description",
		"permission_level", "user_approved", "status", "result",
	}
	if err := cw.Write(header); err != nil {
		return &StorageError{Op: "export", Err: err}
	}
	for entry, err := range Query(path, f) {
		if err != nil {
			return err
		}
		approved := ""
		if entry.UserApproved != nil {
			approved = fmt.Sprintf("%t", *entry.UserApproved)
		}
		rec := []string{
			entry.Timestamp, entry.RequestID, entry.ActionType, entry.Description,
			fmt.Sprintf("%d", entry.PermissionLevel), approved,
			string(entry.Status), entry.Result,
		}
		if err := cw.Write(rec); err != nil {
			return &StorageError{Op: "export", Err: err}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return &StorageError{Op: "export", Err: err}
	}
	return nil
}
