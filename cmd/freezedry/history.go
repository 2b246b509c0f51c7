package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/freezedry/internal/config"
	"github.com/nao1215/freezedry/internal/database"
	"github.com/nao1215/freezedry/internal/model"
	"github.com/nao1215/freezedry/internal/report"
)

const noResourcesMessage = "No resources"

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <url>",
		Short: "Show and compare stored snapshot records",
		Long: `History lists the snapshot records stored for a URL by 'freezedry dry'.

Every run stores what happened to each subresource, the size of the
snapshot and its SHA3-256 digest. History can print one of these records
as a report, or compare two of them to show which resources appeared,
disappeared or changed.

Examples:
  # List the records of a page
  freezedry history https://example.com/

  # Print a stored record as a Markdown report
  freezedry history --id 3 --report markdown https://example.com/

  # Compare the latest two records
  freezedry history --diff https://example.com/

  # Compare the latest record with record 1, as JSON
  freezedry history --diff --with-id 1 --json https://example.com/`,
		Args: cobra.ExactArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("cache-dir", config.XDGCacheDir(), "Directory of the cache database")
	cmd.Flags().Int64P("id", "i", 0, "Print the record with this ID as a report")
	cmd.Flags().StringP("report", "r", config.DefaultReportFormat, "Report format for --id: text, json or markdown")
	cmd.Flags().Bool("diff", false, "Compare the latest record with the one before it")
	cmd.Flags().Int64("with-id", 0, "Compare the latest record with the record of this ID")
	cmd.Flags().BoolP("json", "j", false, "Print the comparison as JSON")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	target := args[0]
	flags := cmd.Flags()

	dir, err := flags.GetString("cache-dir")
	if err != nil {
		return err
	}
	id, err := flags.GetInt64("id")
	if err != nil {
		return err
	}
	format, err := flags.GetString("report")
	if err != nil {
		return err
	}
	diff, err := flags.GetBool("diff")
	if err != nil {
		return err
	}
	withID, err := flags.GetInt64("with-id")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}

	// Validate before opening the database so a bad flag leaves no file.
	if id > 0 && (diff || withID > 0) {
		return errors.New("--id cannot be combined with --diff or --with-id")
	}
	if !slices.Contains(config.ReportFormats, format) {
		return fmt.Errorf("%w: %s", config.ErrUnknownReportFormat, format)
	}

	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case id > 0:
		return printStoredSnapshot(ctx, out, db, target, id, format)
	case diff || withID > 0:
		return runSnapshotDiff(ctx, out, db, target, withID, jsonOutput)
	default:
		return listSnapshotHistory(ctx, out, db, target)
	}
}

// listSnapshotHistory lists all records stored for target.
func listSnapshotHistory(ctx context.Context, out io.Writer, db *database.SnapshotDB, target string) error {
	history, err := db.GetSnapshotHistory(ctx, target)
	if err != nil {
		return err
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No snapshot history found for %s\n", target)
		fmt.Fprintln(out, "\nUse 'freezedry dry' to archive this page.")
		return nil
	}

	fmt.Fprintf(out, "Snapshot history for %s (%d records):\n\n", target, len(history))
	fmt.Fprintf(out, "  %-6s  %-20s  %10s  %-12s  %s\n", "ID", "Date", "Size", "Digest", "Resources")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 76))

	for _, meta := range history {
		fmt.Fprintf(out, "  %-6d  %-20s  %10d  %-12s  %s\n",
			meta.ID,
			meta.Timestamp.Format("2006-01-02 15:04:05"),
			meta.OutputSize,
			shortDigest(meta.Digest),
			formatStatusSummary(meta.StatusSummary),
		)
	}

	fmt.Fprintln(out, "\nUse 'freezedry history --diff <url>' to compare the latest two records.")
	return nil
}

// formatStatusSummary formats resource counts per status, such as
// "inlined:12 failed:1".
func formatStatusSummary(summary map[string]int) string {
	var parts []string
	for s := model.StatusInlined; s <= model.StatusCancelled; s++ {
		if v := summary[s.String()]; v > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", s, v))
		}
	}
	if len(parts) == 0 {
		return noResourcesMessage
	}
	return strings.Join(parts, " ")
}

func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	if digest == "" {
		return "-"
	}
	return digest
}

// printStoredSnapshot writes the record id as a report.
func printStoredSnapshot(ctx context.Context, out io.Writer, db *database.SnapshotDB, target string, id int64, format string) error {
	snapshot, err := db.GetSnapshotByID(ctx, id)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return fmt.Errorf("snapshot with ID %d not found", id)
	}
	if snapshot.URL != target {
		return fmt.Errorf("snapshot ID %d belongs to %s, not %s", id, snapshot.URL, target)
	}

	w, err := report.NewWriter(format, out, getVersion())
	if err != nil {
		return err
	}
	_, err = w.Write(snapshot)
	return err
}

// SnapshotDiff is the difference between two records of the same URL.
type SnapshotDiff struct {
	URL string `json:"url"`

	Previous SnapshotSummary `json:"previous"`
	Current  SnapshotSummary `json:"current"`

	// ContentChanged is set when the digests of the two snapshots differ.
	ContentChanged bool `json:"content_changed"`

	// Added lists references present only in the current record.
	Added []model.ResourceRecord `json:"added,omitempty"`

	// Removed lists references present only in the previous record.
	Removed []model.ResourceRecord `json:"removed,omitempty"`

	Changed []ResourceChange `json:"changed,omitempty"`

	// UnchangedCount is the number of references with the same status and
	// content in both records.
	UnchangedCount int `json:"unchanged_count"`
}

// SnapshotSummary describes one side of a SnapshotDiff.
type SnapshotSummary struct {
	DateArchived time.Time      `json:"date_archived"`
	OutputSize   int            `json:"output_size"`
	Digest       string         `json:"digest"`
	ByStatus     map[string]int `json:"by_status"`
}

// ResourceChange is a reference whose status or content differs.
type ResourceChange struct {
	Reference      string `json:"reference"`
	PreviousStatus string `json:"previous_status"`
	CurrentStatus  string `json:"current_status"`

	// ContentChanged is set when both records inlined the reference with
	// different digests.
	ContentChanged bool `json:"content_changed"`
}

func runSnapshotDiff(ctx context.Context, out io.Writer, db *database.SnapshotDB, target string, withID int64, jsonOutput bool) error {
	history, err := db.GetSnapshotHistory(ctx, target)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return fmt.Errorf("no snapshot history found for %s", target)
	}
	if len(history) < 2 && withID == 0 {
		return fmt.Errorf("at least 2 records are required for comparison (found %d)", len(history))
	}

	current, err := db.GetSnapshotByID(ctx, history[0].ID)
	if err != nil {
		return err
	}

	previousID := withID
	if previousID == 0 {
		previousID = history[1].ID
	}
	previous, err := db.GetSnapshotByID(ctx, previousID)
	if err != nil {
		return err
	}
	if previous == nil {
		return fmt.Errorf("snapshot with ID %d not found", previousID)
	}
	if previous.URL != target {
		return fmt.Errorf("snapshot ID %d belongs to %s, not %s", previousID, previous.URL, target)
	}

	d := diffSnapshots(previous, current)
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}
	writeDiffText(out, d)
	return nil
}

func summarize(s *model.Snapshot) SnapshotSummary {
	byStatus := make(map[string]int)
	for status, n := range s.CountByStatus() {
		byStatus[status.String()] = n
	}
	return SnapshotSummary{
		DateArchived: s.DateArchived,
		OutputSize:   s.OutputSize,
		Digest:       s.Digest,
		ByStatus:     byStatus,
	}
}

// diffSnapshots compares two records by reference. When a reference
// occurs more than once in a record, its first occurrence is used.
func diffSnapshots(previous, current *model.Snapshot) *SnapshotDiff {
	d := &SnapshotDiff{
		URL:            current.URL,
		Previous:       summarize(previous),
		Current:        summarize(current),
		ContentChanged: previous.Digest != current.Digest,
	}

	before := indexRecords(previous.Records())
	seen := make(map[string]bool)
	for _, r := range current.Records() {
		if seen[r.Reference] {
			continue
		}
		seen[r.Reference] = true

		old, ok := before[r.Reference]
		if !ok {
			d.Added = append(d.Added, r)
			continue
		}
		contentChanged := old.Status == model.StatusInlined && r.Status == model.StatusInlined &&
			old.Digest != r.Digest
		if old.Status != r.Status || contentChanged {
			d.Changed = append(d.Changed, ResourceChange{
				Reference:      r.Reference,
				PreviousStatus: old.Status.String(),
				CurrentStatus:  r.Status.String(),
				ContentChanged: contentChanged,
			})
			continue
		}
		d.UnchangedCount++
	}

	for _, r := range previous.Records() {
		if !seen[r.Reference] {
			seen[r.Reference] = true
			d.Removed = append(d.Removed, r)
		}
	}
	return d
}

func indexRecords(records []model.ResourceRecord) map[string]model.ResourceRecord {
	m := make(map[string]model.ResourceRecord, len(records))
	for _, r := range records {
		if _, ok := m[r.Reference]; !ok {
			m[r.Reference] = r
		}
	}
	return m
}

func writeDiffText(out io.Writer, d *SnapshotDiff) {
	fmt.Fprintf(out, "Snapshot comparison for %s\n\n", d.URL)
	fmt.Fprintf(out, "  Previous: %s  %d bytes  %s\n",
		d.Previous.DateArchived.Format("2006-01-02 15:04:05"), d.Previous.OutputSize, shortDigest(d.Previous.Digest))
	fmt.Fprintf(out, "  Current:  %s  %d bytes  %s\n\n",
		d.Current.DateArchived.Format("2006-01-02 15:04:05"), d.Current.OutputSize, shortDigest(d.Current.Digest))

	if d.ContentChanged {
		fmt.Fprintln(out, "The snapshot content changed.")
	} else {
		fmt.Fprintln(out, "The snapshot content is identical.")
	}

	if len(d.Added) > 0 {
		fmt.Fprintf(out, "\nADDED (%d):\n", len(d.Added))
		for _, r := range d.Added {
			fmt.Fprintf(out, "  + [%s] %s\n", r.Status, r.Reference)
		}
	}
	if len(d.Removed) > 0 {
		fmt.Fprintf(out, "\nREMOVED (%d):\n", len(d.Removed))
		for _, r := range d.Removed {
			fmt.Fprintf(out, "  - [%s] %s\n", r.Status, r.Reference)
		}
	}
	if len(d.Changed) > 0 {
		fmt.Fprintf(out, "\nCHANGED (%d):\n", len(d.Changed))
		for _, c := range d.Changed {
			note := ""
			if c.ContentChanged {
				note = " (content)"
			}
			fmt.Fprintf(out, "  ~ %s -> %s%s %s\n", c.PreviousStatus, c.CurrentStatus, note, c.Reference)
		}
	}
	fmt.Fprintf(out, "\nUnchanged: %d\n", d.UnchangedCount)
}
