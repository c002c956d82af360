package audit

import (
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// The SQLite index is a derived view of the JSONL log for ad-hoc SQL queries.
// The log stays the source of truth; the index is disposable and rebuilt in
// full on demand. Nothing ever writes decisions to the index directly.

const indexSchema = `
CREATE TABLE IF NOT EXISTS entries (
	line             INTEGER PRIMARY KEY,
	ts               TEXT NOT NULL,
	request_id       TEXT NOT NULL,
	action_type      TEXT NOT NULL,
	description      TEXT NOT NULL,
	permission_level INTEGER NOT NULL,
	user_approved    INTEGER,
	status           TEXT NOT NULL,
	result           TEXT
);
CREATE INDEX IF NOT EXISTS idx_entries_ts ON entries(ts);
CREATE INDEX IF NOT EXISTS idx_entries_action_type ON entries(action_type);
CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
`

// BuildIndex rebuilds the SQLite index at dbPath from the log at logPath.
// Returns the number of entries indexed.
func BuildIndex(logPath, dbPath string) (int, error) {
	// Rebuild from scratch: stale index rows must not survive retention.
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return 0, &StorageError{Op: "remove stale index", Err: err}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, &StorageError{Op: "open index", Err: err}
	}
	defer db.Close()

	if _, err := db.Exec(indexSchema); err != nil {
		return 0, &StorageError{Op: "create index schema", Err: err}
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, &StorageError{Op: "begin index tx", Err: err}
	}
	stmt, err := tx.Prepare(`INSERT INTO entries
		(line, ts, request_id, action_type, description, permission_level, user_approved, status, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return 0, &StorageError{Op: "prepare index insert", Err: err}
	}
	defer stmt.Close()

	n := 0
	for entry, qerr := range Query(logPath, Filter{}) {
		if qerr != nil {
			tx.Rollback()
			return 0, qerr
		}
		var approved any
		if entry.UserApproved != nil {
			approved = *entry.UserApproved
		}
		n++
		if _, err := stmt.Exec(n, entry.Timestamp, entry.RequestID, entry.ActionType,
			entry.Description, entry.PermissionLevel, approved,
			string(entry.Status), entry.Result); err != nil {
			tx.Rollback()
			return 0, &StorageError{Op: "index insert", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &StorageError{Op: "commit index", Err: err}
	}
	return n, nil
}

// IndexCounts returns per-status entry counts from the index.
func IndexCounts(dbPath string) (map[Status]int, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &StorageError{Op: "open index", Err: err}
	}
	defer db.Close()

	rows, err := db.Query(`SELECT status, COUNT(*) FROM entries GROUP BY status`)
	if err != nil {
		return nil, &StorageError{Op: "query index", Err: err}
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, &StorageError{Op: "scan index row", Err: err}
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate index", Err: err}
	}
	return counts, nil
}

// IndexTopActions returns the most frequent action types from the index.
func IndexTopActions(dbPath string, limit int) ([]ActionCount, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &StorageError{Op: "open index", Err: err}
	}
	defer db.Close()

	rows, err := db.Query(
		`SELECT action_type, COUNT(*) AS n FROM entries GROUP BY action_type ORDER BY n DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, &StorageError{Op: "query index", Err: err}
	}
	defer rows.Close()

	var out []ActionCount
	for rows.Next() {
		var ac ActionCount
		if err := rows.Scan(&ac.ActionType, &ac.Count); err != nil {
			return nil, &StorageError{Op: "scan index row", Err: err}
		}
		out = append(out, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate index", Err: err}
	}
	return out, nil
}

// ActionCount pairs an action type with its entry count.
type ActionCount struct {
	ActionType string `json:"action_type"`
	Count      int    `json:"count"`
}

// Stats summarizes a log file for human consumption.
type Stats struct {
	Entries   int            `json:"entries"`
	Malformed int            `json:"malformed"`
	ByStatus  map[Status]int `json:"by_status"`
	SizeBytes int64          `json:"size_bytes"`
	First     string         `json:"first,omitempty"`
	Last      string         `json:"last,omitempty"`
}

// CollectStats scans the log and aggregates summary counters.
func CollectStats(logPath string) (Stats, error) {
	st := Stats{ByStatus: make(map[Status]int)}

	if info, err := os.Stat(logPath); err == nil {
		st.SizeBytes = info.Size()
	}

	f := Filter{OnMalformed: func(int) { st.Malformed++ }}
	for entry, err := range Query(logPath, f) {
		if err != nil {
			return Stats{}, err
		}
		st.Entries++
		st.ByStatus[entry.Status]++
		if st.First == "" {
			st.First = entry.Timestamp
		}
		st.Last = entry.Timestamp
	}
	return st, nil
}

// FormatStatus renders a status count line deterministically.
func FormatStatus(counts map[Status]int) string {
	order := []Status{StatusPending, StatusApproved, StatusDenied, StatusDryRun, StatusExecuted, StatusFailed}
	out := ""
	for _, s := range order {
		if counts[s] > 0 {
			if out != "" {
				out += ", "
			}
			out += fmt.Sprintf("%d %s", counts[s], s)
		}
	}
	if out == "" {
		out = "none"
	}
	return out
}
