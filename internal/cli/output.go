// Package cli implements the niteru command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hyperjump/niteru/internal/models"
	"github.com/hyperjump/niteru/internal/storage"
	"github.com/hyperjump/niteru/pkg/utils"
)

// OutputFormat selects how command results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const maxNameWidth = 40

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteNeighbors writes a similarity result.
func WriteNeighbors(w io.Writer, resp *models.SimilarResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	if resp.Query != nil {
		fmt.Fprintf(w, "\nTracks similar to %s - %s (id %d), %dms\n\n",
			resp.Query.Artist, resp.Query.Title, resp.Query.ID, resp.QueryTime)
	} else {
		fmt.Fprintf(w, "\nNearest tracks to vector, %dms\n\n", resp.QueryTime)
	}
	if len(resp.Neighbors) == 0 {
		fmt.Fprintln(w, "No similar tracks found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tARTIST\tTITLE\tDISTANCE")
	for i, n := range resp.Neighbors {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%.4f\n", i+1, n.ID,
			utils.Truncate(n.Artist, maxNameWidth), utils.Truncate(n.Title, maxNameWidth), n.Distance)
	}
	return tw.Flush()
}

// WriteIngestResult writes a batch summary with one line per failed track.
func WriteIngestResult(w io.Writer, result *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "Inserted %d track(s), %d failed\n", result.Inserted, len(result.Failures))
	for _, f := range result.Failures {
		fmt.Fprintf(w, "  ✗ %s: %s\n", f.Query, f.Reason)
		if f.Detail != "" {
			fmt.Fprintf(w, "      %s\n", utils.Truncate(f.Detail, 160))
		}
	}
	return nil
}

// WriteStats writes store statistics.
func WriteStats(w io.Writer, st *storage.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Tracks:      %d\n", st.Tracks)
	fmt.Fprintf(w, "Dimensions:  %d\n", st.Dimensions)
	fmt.Fprintf(w, "Index:       %s\n", st.IndexType)
	fmt.Fprintf(w, "Disk usage:  %s\n", formatBytes(st.DiskBytes))
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
