package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a text timeline. Entries are
// printed with their time of day; a date line is inserted whenever the
// UTC day changes.
func FormatTimeline(result *ReplayResult) string {
	title := "Executions"
	if result.Filter.ExecutionID != "" {
		title = "Execution: " + result.Filter.ExecutionID
	}
	if len(result.Entries) == 0 {
		return title + " | No entries found.\n"
	}

	var b strings.Builder
	first, firstOK := parseTimestamp(result.Summary.FirstTimestamp)
	last, lastOK := parseTimestamp(result.Summary.LastTimestamp)
	span := result.Summary.FirstTimestamp + "–" + result.Summary.LastTimestamp
	if firstOK && lastOK {
		span = first.Format(time.DateTime) + "–" + last.Format(time.TimeOnly) + " UTC"
	}
	fmt.Fprintf(&b, "%s | %s\n%s\n", title, span, separator)

	day := ""
	if firstOK {
		day = first.Format(time.DateOnly)
	}
	for _, e := range result.Entries {
		clock := e.Timestamp
		if t, ok := parseTimestamp(e.Timestamp); ok {
			clock = t.Format(time.TimeOnly)
			if d := t.Format(time.DateOnly); d != day {
				day = d
				fmt.Fprintf(&b, "%s\n", d)
			}
		}

		line := fmt.Sprintf("%-10s %-15s %-15s %-11s %6dms %s",
			clock, e.ExecutionID, strings.ToUpper(e.Decision), clip(e.Level, 11), e.DurationMs, clip(e.Reason, 40))
		if e.Violations > 0 {
			line += fmt.Sprintf("  [%d violations]", e.Violations)
		}
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}

	b.WriteString(separator + "\n")
	b.WriteString(summaryLine(result.Summary))
	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func parseTimestamp(ts string) (time.Time, bool) {
	t, err := time.Parse(TimestampFormat, ts)
	return t, err == nil
}

func summaryLine(s ReplaySummary) string {
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(s.Executed, "executed")
	add(s.Rejected, "rejected")
	add(s.Blocked, "blocked")
	add(s.CompileFailed, "compile failed")
	add(s.Faulted, "faulted")
	add(s.Cancelled, "cancelled")
	return fmt.Sprintf("Summary: %s | Slowest: %dms\n", strings.Join(parts, ", "), s.MaxDurationMs)
}

// clip shortens s to at most max runes, marking the cut with "...".
func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
