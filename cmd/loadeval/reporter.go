package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/mattn/go-runewidth"
	"github.com/spboyer/loadeval/internal/models"
)

// bannerWidth is the width of the "=" rules around the final scores.
const bannerWidth = 40

// labelWidth aligns the values of the summary lines.
const labelWidth = 15

// formatDuration formats a duration in a consistent, human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(time.Millisecond).String()
}

func summaryLine(label, value string) string {
	return runewidth.FillRight(label, labelWidth) + value
}

func printSummary(outcome *models.EvaluationOutcome) {
	rule := strings.Repeat("=", bannerWidth)
	s := outcome.Summary

	fmt.Println()
	fmt.Println(rule)
	fmt.Printf(" FINAL SCORES: %s on %s\n", outcome.System, outcome.Dataset)
	fmt.Println(rule)
	fmt.Println(summaryLine("Success Rate:", fmt.Sprintf("%.2f%%", s.SuccessRate*100)))
	fmt.Println(summaryLine("Header F1:", fmt.Sprintf("%.4f", s.HeaderF1)))
	fmt.Println(summaryLine("Record F1:", fmt.Sprintf("%.4f", s.RecordF1)))
	fmt.Println(summaryLine("Cell F1:", fmt.Sprintf("%.4f", s.CellF1)))
	fmt.Println(rule)
	fmt.Println()

	if outcome.Partial() {
		fmt.Printf("Partial results: %d of %d files collected before the deadline\n\n",
			outcome.Collected, outcome.Submitted)
	}
}

// FormatGitHubComment formats an EvaluationOutcome as a markdown comment for GitHub PRs
func FormatGitHubComment(outcome *models.EvaluationOutcome) string {
	var b strings.Builder

	s := outcome.Summary
	duration := time.Duration(outcome.DurationMs) * time.Millisecond

	fmt.Fprintf(&b, "## 📊 loadeval: %s on %s\n\n", outcome.System, outcome.Dataset)

	statusIcon := "✅ Complete"
	if outcome.Partial() {
		statusIcon = "⏱️ Partial (deadline expired)"
	}
	fmt.Fprintf(&b, "**Status:** %s | **Files:** %d/%d | **Duration:** %s\n\n",
		statusIcon, outcome.Collected, outcome.Submitted, formatDuration(duration))

	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| Success Rate | %.2f%% |\n", s.SuccessRate*100)
	fmt.Fprintf(&b, "| Header F1 | %.4f |\n", s.HeaderF1)
	fmt.Fprintf(&b, "| Record F1 | %.4f |\n", s.RecordF1)
	fmt.Fprintf(&b, "| Cell F1 | %.4f |\n", s.CellF1)
	b.WriteString("\n")

	var failed []models.WorkItem
	for _, r := range outcome.Results {
		if !r.Succeeded() {
			failed = append(failed, r.Item)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "<details><summary>%d file(s) failed to load</summary>\n\n", len(failed))
		for _, item := range failed {
			fmt.Fprintf(&b, "- `%s`\n", item)
		}
		b.WriteString("\n</details>\n\n")
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "**Metric:** %s | **Workers:** %d | **Deadline:** %s\n",
		outcome.Setup.Metric, outcome.Setup.Workers,
		formatDuration(time.Duration(outcome.Setup.DeadlineMs)*time.Millisecond))

	return b.String()
}

func saveOutcome(outcome *models.EvaluationOutcome, path string) (err error) {
	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return err
	}

	if !strings.HasSuffix(path, ".gz") {
		return os.WriteFile(path, data, 0644)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return writeGzip(f, data)
}

func writeGzip(w io.Writer, data []byte) error {
	zw := gzip.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}
