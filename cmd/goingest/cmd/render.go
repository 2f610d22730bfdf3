package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/goingest/internal/pipeline"
	"github.com/dbsmedya/goingest/internal/types"
)

// outputWriter is used for printing output, can be overridden in tests
var outputWriter io.Writer = os.Stdout

// setOutputWriter sets the output writer (used for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout (used for testing)
func resetOutputWriter() {
	outputWriter = os.Stdout
}

// Output formats accepted by --output.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unsupported output format %q (use text, json or yaml)", format)
}

// cycleReport is the structured form of one cycle's outcome.
type cycleReport struct {
	RunID   string              `json:"run_id" yaml:"run_id"`
	Results []types.CycleResult `json:"results" yaml:"results"`
	Summary pipeline.Summary    `json:"summary" yaml:"summary"`
}

func newCycleReport(results []types.CycleResult) cycleReport {
	r := cycleReport{Results: results, Summary: pipeline.Summarize(results)}
	if len(results) > 0 {
		r.RunID = results[0].RunID
	}
	return r
}

// renderStructured writes v as JSON or YAML.
func renderStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// renderCycle writes a cycle's results in the requested format.
func renderCycle(w io.Writer, format string, results []types.CycleResult) error {
	report := newCycleReport(results)
	if format != formatText {
		return renderStructured(w, format, report)
	}

	fmt.Fprintf(w, "\n=== Cycle %s ===\n", report.RunID)

	headers := []string{"DATASET", "TABLE", "STATUS", "OBJECTS", "ROWS", "SKIPPED", "DURATION", "ERROR"}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.Dataset,
			r.Table,
			string(r.Status),
			fmt.Sprintf("%d", r.ObjectCount),
			fmt.Sprintf("%d", r.RowsLoaded),
			fmt.Sprintf("%d", r.RowsSkipped),
			r.Duration.Round(time.Millisecond).String(),
			errorCell(r),
		})
	}
	printTable(w, headers, rows, func(col int, cell string) string {
		if col != 2 {
			return cell
		}
		return statusColor(types.Status(strings.TrimSpace(cell))).Sprint(cell)
	})

	s := report.Summary
	fmt.Fprintf(w, "\nLoaded: %d  No objects: %d  Failed: %d  Rows loaded: %d  Rows skipped: %d\n",
		s.Loaded, s.NoObjects, s.Failed, s.RowsLoaded, s.RowsSkipped)

	if s.RowsSkipped > 0 {
		fmt.Fprintln(w, color.Yellow.Sprint("⚠️  Some records were skipped by the warehouse; their source files were archived."))
	}
	for _, r := range results {
		for _, f := range r.RejectedFiles {
			fmt.Fprintf(w, "   %s: no records loaded from %s\n", r.Dataset, f)
		}
	}
	for _, r := range results {
		if r.ErrorKind.NeedsCleanup() {
			fmt.Fprintf(w, "%s %s: %d object(s) exist at source and in the archive:\n",
				color.Red.Sprint("❌"), r.Dataset, len(r.UnarchivedKeys))
			for _, k := range r.UnarchivedKeys {
				fmt.Fprintf(w, "   - %s\n", k)
			}
		}
	}
	return nil
}

func errorCell(r types.CycleResult) string {
	if r.Error == "" {
		return ""
	}
	msg := r.Error
	if r.ErrorKind != types.KindNone && !strings.HasPrefix(msg, string(r.ErrorKind)) {
		msg = string(r.ErrorKind) + ": " + msg
	}
	return runewidth.Truncate(msg, 80, "...")
}

func statusColor(s types.Status) color.Color {
	switch s {
	case types.StatusLoaded:
		return color.Green
	case types.StatusNoObjects:
		return color.Yellow
	case types.StatusFailed:
		return color.Red
	}
	return color.Normal
}

// printTable writes rows aligned under headers. Widths are measured in
// display cells so wide characters in keys stay aligned. paint, if non-nil,
// decorates an already padded cell.
func printTable(w io.Writer, headers []string, rows [][]string, paint func(col int, cell string) string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	line := func(cells []string, decorate bool) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			padded := cell
			if i < len(cells)-1 {
				padded = runewidth.FillRight(cell, widths[i])
			}
			if decorate && paint != nil {
				padded = paint(i, padded)
			}
			parts[i] = padded
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(headers, false)
	sep := make([]string, len(headers))
	for i := range headers {
		sep[i] = strings.Repeat("-", widths[i])
	}
	line(sep, false)
	for _, row := range rows {
		line(row, true)
	}
}
