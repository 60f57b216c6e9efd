package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yuin/goldmark"
)

// renderMarkdown builds the Markdown report for a completed run as a
// durable artifact instead of console-only output.
func renderMarkdown(results []caseResult, ranAt time.Time) string {
	var b strings.Builder
	b.WriteString("# MUF System Check\n\n")
	fmt.Fprintf(&b, "Ran at %s\n\n", ranAt.Format(time.RFC3339))
	b.WriteString("| Case | Result | Duration | Detail |\n")
	b.WriteString("|---|---|---|---|\n")

	passed := 0
	for _, r := range results {
		status := "FAILED"
		if r.Passed {
			status = "SUCCESS"
			passed++
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", r.Name, status, r.Duration.Round(time.Millisecond), escapeTableCell(r.Detail))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "**%d/%d passed.**\n", passed, len(results))
	return b.String()
}

func escapeTableCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
}

// writeReport renders markdown to mdPath and, via goldmark, its HTML
// translation to htmlPath, so a CI run can archive both a readable
// diff-friendly artifact and a browsable one.
func writeReport(mdPath, htmlPath string, markdown string) error {
	if err := os.WriteFile(mdPath, []byte(markdown), 0644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &htmlBuf); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	wrapped := "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>MUF System Check</title></head><body>\n" +
		htmlBuf.String() + "\n</body></html>\n"
	if err := os.WriteFile(htmlPath, []byte(wrapped), 0644); err != nil {
		return fmt.Errorf("write html report: %w", err)
	}
	return nil
}
