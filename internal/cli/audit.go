package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/internal/audit"
	"github.com/opsgate/opsgate/internal/rules"
)

var (
	auditTailCount    int
	auditQueryType    string
	auditQueryStatus  string
	auditQueryFrom    string
	auditQueryTo      string
	auditQueryRequest string
	auditExportFormat string
	auditIndexTop     int
	auditRetentionAge int
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditQueryCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditStatsCmd)
	auditCmd.AddCommand(auditIndexCmd)
	auditCmd.AddCommand(auditRetentionCmd)

	auditTailCmd.Flags().IntVarP(&auditTailCount, "lines", "n", 10, "Number of recent entries to show")

	for _, c := range []*cobra.Command{auditQueryCmd, auditExportCmd} {
		c.Flags().StringVar(&auditQueryType, "type", "", "Action type glob pattern")
		c.Flags().StringVar(&auditQueryStatus, "status", "", "Entry status (pending/approved/denied/dry_run/executed/failed)")
		c.Flags().StringVar(&auditQueryFrom, "from", "", "Earliest timestamp (2006-01-02 or RFC3339)")
		c.Flags().StringVar(&auditQueryTo, "to", "", "Latest timestamp (2006-01-02 or RFC3339)")
		c.Flags().StringVar(&auditQueryRequest, "request", "", "Request ID")
	}
	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "json", "Export format: json or csv")

	auditIndexCmd.Flags().IntVar(&auditIndexTop, "top", 10, "Number of top action types to show")
	auditRetentionCmd.Flags().IntVar(&auditRetentionAge, "days", 0, "Override retention_days from the config")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail operations",
	Long:  "Commands for inspecting, verifying, exporting, and pruning the hash-chained\naudit trail.",
}

// auditLogPath resolves the active log path from the config.
func auditLogPath() (string, *rules.Config, error) {
	cfg, err := rules.Load(configPath)
	if err != nil {
		return "", nil, err
	}
	return cfg.Audit.LogPath, cfg, nil
}

// queryFilter builds a Filter from the shared query flags.
func queryFilter() (audit.Filter, error) {
	f := audit.Filter{
		ActionType: auditQueryType,
		Status:     audit.Status(auditQueryStatus),
		RequestID:  auditQueryRequest,
	}
	var err error
	if f.From, err = parseTimeFlag(auditQueryFrom); err != nil {
		return f, err
	}
	if f.To, err = parseTimeFlag(auditQueryTo); err != nil {
		return f, err
	}
	if auditQueryStatus != "" && !audit.KnownStatus(f.Status) {
		return f, fmt.Errorf("unknown status %q", auditQueryStatus)
	}
	return f, nil
}

func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: want 2006-01-02 or RFC3339", s)
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent audit trail entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _, err := auditLogPath()
		if err != nil {
			return err
		}
		entries, err := audit.Tail(path, auditTailCount)
		if err != nil {
			return err
		}
		for _, e := range entries {
			out, _ := json.MarshalIndent(e, "", "  ")
			fmt.Println(string(out))
		}
		return nil
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify hash chain integrity of the audit trail",
	Long:  "Walks the trail and validates that every entry's prev_hash matches the\nSHA-256 of the previous raw line. Honors the retention checkpoint when one\nexists. Exits 0 if valid, 1 if tampered.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _, err := auditLogPath()
		if err != nil {
			return err
		}
		opts := audit.VerifyOptions{StartHash: audit.LoadStartHash(path)}
		result := audit.Verify(path, opts)
		if result.Valid {
			fmt.Printf("OK: %d entries verified", result.Lines)
			if result.Skipped > 0 {
				fmt.Printf(" (%d malformed lines skipped)", result.Skipped)
			}
			fmt.Println()
			return nil
		}
		fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
		os.Exit(1)
		return nil
	},
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _, err := auditLogPath()
		if err != nil {
			return err
		}
		f, err := queryFilter()
		if err != nil {
			return err
		}
		f.OnMalformed = func(line int) {
			fmt.Fprintf(os.Stderr, "warning: skipping malformed entry at line %d\n", line)
		}
		for entry, err := range audit.Query(path, f) {
			if err != nil {
				return err
			}
			out, _ := json.Marshal(entry)
			fmt.Println(string(out))
		}
		return nil
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit trail entries as JSON or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _, err := auditLogPath()
		if err != nil {
			return err
		}
		f, err := queryFilter()
		if err != nil {
			return err
		}
		return audit.Export(path, f, os.Stdout, auditExportFormat)
	},
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _, err := auditLogPath()
		if err != nil {
			return err
		}
		st, err := audit.CollectStats(path)
		if err != nil {
			return err
		}
		fmt.Printf("entries:   %s\n", humanize.Comma(int64(st.Entries)))
		fmt.Printf("size:      %s\n", humanize.Bytes(uint64(st.SizeBytes)))
		fmt.Printf("by status: %s\n", audit.FormatStatus(st.ByStatus))
		if st.Malformed > 0 {
			fmt.Printf("malformed: %d\n", st.Malformed)
		}
		if st.First != "" {
			fmt.Printf("first:     %s\n", humanizeStamp(st.First))
			fmt.Printf("last:      %s\n", humanizeStamp(st.Last))
		}
		return nil
	},
}

// humanizeStamp renders a trail timestamp with a relative suffix.
func humanizeStamp(stamp string) string {
	t, err := time.Parse(audit.TimestampFormat, stamp)
	if err != nil {
		return stamp
	}
	return fmt.Sprintf("%s (%s)", stamp, humanize.Time(t))
}

var auditIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the SQLite query index and show aggregates",
	Long:  "Rebuilds the derived SQLite index from the trail. The index is disposable;\nthe JSONL trail stays the source of truth.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, cfg, err := auditLogPath()
		if err != nil {
			return err
		}
		n, err := audit.BuildIndex(path, cfg.Audit.IndexPath)
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d entries into %s\n", n, cfg.Audit.IndexPath)

		counts, err := audit.IndexCounts(cfg.Audit.IndexPath)
		if err != nil {
			return err
		}
		fmt.Printf("by status: %s\n", audit.FormatStatus(counts))

		top, err := audit.IndexTopActions(cfg.Audit.IndexPath, auditIndexTop)
		if err != nil {
			return err
		}
		if len(top) > 0 {
			fmt.Println("top action types:")
			for _, ac := range top {
				fmt.Printf("  %6d  %s\n", ac.Count, ac.ActionType)
			}
		}
		return nil
	},
}

var auditRetentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Archive entries older than the retention window",
	Long:  "Moves the contiguous head of entries older than the cutoff to the archive\nfile and writes a chain checkpoint so `audit verify` still passes on the\ntrimmed trail. Runs only on explicit request; no background pruning.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, cfg, err := auditLogPath()
		if err != nil {
			return err
		}

		days := auditRetentionAge
		if days == 0 {
			days = cfg.Audit.RetentionDays
		}
		if days <= 0 {
			return fmt.Errorf("retention disabled: set audit.retention_days in the config or pass --days")
		}

		log, err := audit.Open(path)
		if err != nil {
			return err
		}
		defer log.Close()

		res, err := log.ApplyRetention(days)
		if err != nil {
			return err
		}
		if res.Archived == 0 {
			fmt.Println("Nothing to archive.")
			return nil
		}
		fmt.Printf("archived %d entries to %s, %d retained\n", res.Archived, res.ArchivePath, res.Retained)
		return nil
	},
}
