// Package report renders a finished run's summary for operators, as
// aligned text or as JSON for scripting.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/nftops/mintbatch/internal/model"
)

// WriteJSON emits the summary as indented JSON.
func WriteJSON(w io.Writer, summary model.BatchSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteText emits a human-readable table: one row per entry with its
// terminal status, attempt count, and token or failure reason.
func WriteText(w io.Writer, summary model.BatchSummary) error {
	fmt.Fprintf(w, "Run:      %s\n", summary.RunID)
	fmt.Fprintf(w, "Manifest: %s\n", summary.ManifestPath)
	fmt.Fprintf(w, "Started:  %s\n", summary.StartedAt)
	fmt.Fprintf(w, "Finished: %s\n", summary.FinishedAt)
	if summary.Aborted {
		fmt.Fprintf(w, "ABORTED:  %s\n", summary.AbortReason)
	}
	fmt.Fprintf(w, "Result:   %d succeeded, %d failed, %d skipped (of %d)\n\n",
		summary.Succeeded, summary.Failed, summary.Skipped, len(summary.Entries))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY\tSTATUS\tATTEMPTS\tDETAIL")
	for _, e := range summary.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", e.EntryID, e.Status, e.Attempts, entryDetail(e))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush summary table: %w", err)
	}
	return nil
}

func entryDetail(e model.EntryState) string {
	switch e.Status {
	case model.StatusSucceeded:
		if e.LastOutcome != nil && e.LastOutcome.TokenID != "" {
			return "token " + e.LastOutcome.TokenID
		}
		return "already minted"
	case model.StatusFailed:
		return e.LastError
	default:
		return "interrupted before completion"
	}
}

// WriteLedgerText renders the durable ledger records, used by the status
// subcommand to inspect progress without starting a run.
func WriteLedgerText(w io.Writer, records []model.ProgressRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "ledger is empty")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY\tSTATUS\tATTEMPTS\tTOKEN\tREASON\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.EntryID, r.Status, r.Attempts, r.TokenID, r.FailureReason, r.UpdatedAt)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush ledger table: %w", err)
	}
	return nil
}
