package report

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/freezedry/internal/model"
)

// ErrUnknownFormat is returned by NewWriter for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown report format")

// Report format names.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Formats lists the supported format names.
var Formats = []string{FormatText, FormatJSON, FormatMarkdown}

// Writer writes snapshot reports.
type Writer interface {
	// Write outputs the report of s and returns the number of bytes written.
	Write(s *model.Snapshot) (int, error)
}

// NewWriter returns the writer for format. version is embedded in JSON
// reports.
func NewWriter(format string, output io.Writer, version string) (Writer, error) {
	switch format {
	case FormatText:
		return NewSimpleWriter(output), nil
	case FormatJSON:
		return NewFullJSONWriter(output, version, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q (expected one of %v)", ErrUnknownFormat, format, Formats)
	}
}

// MultiWriter writes to multiple Writers in turn.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers and returns the total
// bytes written. It stops on the first error.
func (m *MultiWriter) Write(s *model.Snapshot) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(s)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusOrder is the order statuses are listed in.
var statusOrder = []model.Status{
	model.StatusInlined,
	model.StatusFailed,
	model.StatusCancelled,
	model.StatusDepthLimit,
	model.StatusUnsupported,
	model.StatusUnresolvable,
	model.StatusCycle,
}

// severityOrder lists severities from most to least severe.
var severityOrder = []model.Severity{
	model.SeverityHigh,
	model.SeverityMedium,
	model.SeverityLow,
	model.SeverityInfo,
}

// categoryTitle turns a category name such as "image" into "Image".
func categoryTitle(category string) string {
	return cases.Title(language.English).String(category)
}

// sortedCategories returns the keys of counts in alphabetical order.
func sortedCategories(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// findingsBySeverity returns the findings of s with the given severity.
func findingsBySeverity(findings []model.Finding, severity model.Severity) []model.Finding {
	var out []model.Finding
	for _, f := range findings {
		if f.Severity == severity {
			out = append(out, f)
		}
	}
	return out
}

// runStatus describes how the run ended.
func runStatus(s *model.Snapshot) string {
	switch {
	case s.Error != "":
		return "ERROR - " + s.Error
	case s.TimedOut:
		return "TIMED OUT (partial snapshot)"
	default:
		return "Complete"
	}
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
