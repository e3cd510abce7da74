// Package cli formats command output for kotae.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json", case-insensitively.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (use text or json)", s)
}

// WriteAnswer writes an answer to w in the given format.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, answer)
	}
	source := "documents"
	switch {
	case answer.Degraded:
		source = "degraded (web search unavailable)"
	case answer.UsedFallback:
		source = "web search"
	}
	fmt.Fprintf(w, "\n%s\n\n", strings.TrimSpace(answer.Response))
	fmt.Fprintln(w, "─────────────────────────────────────────────────────────")
	fmt.Fprintf(w, "Source: %s | Relevance: %.2f | Refinements: %d | %dms\n",
		source, answer.Score, answer.RefinementCount, answer.QueryTime)
	if answer.RefinedQuery != "" {
		fmt.Fprintf(w, "Refined query: %s\n", answer.RefinedQuery)
	}
	return nil
}

// Status is the summary printed by the status command.
type Status struct {
	Documents         int64  `json:"documents"`
	Chunks            int64  `json:"chunks"`
	DatabasePath      string `json:"database_path"`
	DatabaseSizeBytes int64  `json:"database_size_bytes"`
}

// WriteStatus writes a status summary to w in the given format.
func WriteStatus(w io.Writer, st Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Documents: %d\n", st.Documents)
	fmt.Fprintf(w, "Chunks:    %d\n", st.Chunks)
	fmt.Fprintf(w, "Database:  %s (%s)\n", st.DatabasePath, FormatBytes(st.DatabaseSizeBytes))
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
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

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
