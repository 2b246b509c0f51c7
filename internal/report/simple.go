package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/freezedry/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs human-readable text reports for terminal display.
// Plain ASCII keeps the output usable when piped to a file.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to list are shown.
	showEmpty bool

	// verbose adds finding descriptions and the per-resource listing.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(s *model.Snapshot) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, s)
	w.writeResources(&sb, s)
	w.writeFindings(&sb, s)
	if w.verbose {
		w.writeResourceList(&sb, s)
	}
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, s *model.Snapshot) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                        FREEZEDRY SNAPSHOT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "URL:           %s\n", s.URL)
	fmt.Fprintf(sb, "Archived:      %s\n", s.DateArchived.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:      %s\n", s.Duration)
	fmt.Fprintf(sb, "Output Size:   %d bytes\n", s.OutputSize)
	if s.Digest != "" {
		fmt.Fprintf(sb, "SHA3-256:      %s\n", s.Digest)
	}
	fmt.Fprintf(sb, "Status:        %s\n", runStatus(s))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeResources(sb *strings.Builder, s *model.Snapshot) {
	byStatus := s.CountByStatus()
	if len(byStatus) == 0 && !w.showEmpty {
		return
	}
	section(sb, "SUBRESOURCES")

	total := 0
	for _, status := range statusOrder {
		n := byStatus[status]
		total += n
		if n == 0 && !w.showEmpty {
			continue
		}
		fmt.Fprintf(sb, "  %-13s %d\n", strings.ToUpper(status.String())+":", n)
	}
	fmt.Fprintf(sb, "\n  TOTAL:        %d resources, %d bytes inlined\n\n", total, s.InlinedBytes())

	byCategory := s.CountByCategory()
	if len(byCategory) == 0 {
		return
	}
	sb.WriteString("  Inlined by category:\n")
	for _, category := range sortedCategories(byCategory) {
		fmt.Fprintf(sb, "    %-12s %d\n", categoryTitle(category), byCategory[category])
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFindings(sb *strings.Builder, s *model.Snapshot) {
	findings := s.AllFindings()
	if len(findings) == 0 && !w.showEmpty {
		return
	}
	section(sb, "FINDINGS")

	for _, severity := range severityOrder {
		matched := findingsBySeverity(findings, severity)
		if len(matched) == 0 && !w.showEmpty {
			continue
		}
		fmt.Fprintf(sb, "[%s] %s\n", severityIndicator(severity), severity)
		if len(matched) == 0 {
			sb.WriteString("  No findings\n\n")
			continue
		}
		for _, f := range matched {
			fmt.Fprintf(sb, "  * %s\n", f.Title)
			if f.Value != "" {
				fmt.Fprintf(sb, "    Value: %s\n", f.Value)
			}
			if f.Location != "" {
				fmt.Fprintf(sb, "    Location: %s\n", f.Location)
			}
			if w.verbose && f.Description != "" {
				fmt.Fprintf(sb, "    Description: %s\n", f.Description)
			}
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeResourceList(sb *strings.Builder, s *model.Snapshot) {
	records := s.Records()
	if len(records) == 0 {
		return
	}
	section(sb, "RESOURCES")
	for _, r := range records {
		fmt.Fprintf(sb, "  [%d] %-12s %-8s %s\n", r.Depth, r.Status, r.Category, r.Reference)
		if r.URL != "" && r.URL != r.Reference {
			fmt.Fprintf(sb, "      -> %s\n", r.URL)
		}
		if r.Error != "" {
			fmt.Fprintf(sb, "      error: %s\n", r.Error)
		}
	}
	sb.WriteString("\n")
}

func severityIndicator(severity model.Severity) string {
	switch severity {
	case model.SeverityHigh:
		return "!!"
	case model.SeverityMedium:
		return "!"
	case model.SeverityLow:
		return "-"
	case model.SeverityInfo:
		return "i"
	default:
		return "?"
	}
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("Report generated by freezedry\n")
	sb.WriteString("https://github.com/nao1215/freezedry\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
}
