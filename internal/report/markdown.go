package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/freezedry/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for documentation and
// sharing. Inlined resources are charted with a Mermaid pie chart.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(s *model.Snapshot) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, s)
	w.writeResources(md, s)
	w.writeFindings(md, s)
	w.writeResourceTable(md, s)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *model.Snapshot) {
	md.H1("Freezedry Snapshot")
	md.PlainText("")

	rows := [][]string{
		{"URL", "`" + s.URL + "`"},
		{"Archived", s.DateArchived.Format("2006-01-02 15:04:05 MST")},
		{"Duration", s.Duration.String()},
		{"Output Size", strconv.Itoa(s.OutputSize) + " bytes"},
	}
	if s.Digest != "" {
		rows = append(rows, []string{"SHA3-256", "`" + s.Digest + "`"})
	}
	rows = append(rows, []string{"Status", statusText(s)})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func statusText(s *model.Snapshot) string {
	switch {
	case s.Error != "":
		return "❌ Error - " + s.Error
	case s.TimedOut:
		return "⚠️ Timed Out (partial snapshot)"
	default:
		return "✅ Complete"
	}
}

func (w *MarkdownWriter) writeResources(md *markdown.Markdown, s *model.Snapshot) {
	md.H2("Subresources")
	md.PlainText("")

	byStatus := s.CountByStatus()
	total := 0
	rows := make([][]string, 0, len(statusOrder)+1)
	for _, status := range statusOrder {
		n := byStatus[status]
		total += n
		if n == 0 {
			continue
		}
		rows = append(rows, []string{status.String(), strconv.Itoa(n)})
	}
	if total == 0 {
		md.PlainText("The document references no subresources.")
		md.PlainText("")
		return
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(total) + "**"})
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	byCategory := s.CountByCategory()
	if len(byCategory) > 0 {
		w.writePieChart(md, byCategory)
	}
	w.writeAlert(md, s, byStatus)
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, byCategory map[string]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Inlined Resources by Category"),
		piechart.WithShowData(true),
	)
	for _, category := range sortedCategories(byCategory) {
		chart.LabelAndIntValue(categoryTitle(category), uint64(byCategory[category]))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.Snapshot, byStatus map[model.Status]int) {
	missing := byStatus[model.StatusFailed] + byStatus[model.StatusCancelled] + byStatus[model.StatusDepthLimit]
	switch {
	case s.TimedOut:
		md.Cautionf("The snapshot was cut short. %d subresource(s) were not inlined.", missing)
	case byStatus[model.StatusFailed] > 0:
		md.Warningf("%d subresource(s) could not be fetched and still point at the network.", byStatus[model.StatusFailed])
	case missing > 0:
		md.Importantf("%d subresource(s) lie below the depth limit.", missing)
	default:
		md.Tip("Every supported subresource was inlined.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, s *model.Snapshot) {
	md.H2("Findings")
	md.PlainText("")

	findings := s.AllFindings()
	if len(findings) == 0 {
		md.PlainText("No findings.")
		md.PlainText("")
		return
	}

	headers := map[model.Severity]string{
		model.SeverityHigh:   "### 🟠 High",
		model.SeverityMedium: "### 🟡 Medium",
		model.SeverityLow:    "### 🔵 Low",
		model.SeverityInfo:   "### ⚪ Info",
	}
	for _, severity := range severityOrder {
		matched := findingsBySeverity(findings, severity)
		if len(matched) == 0 {
			continue
		}
		md.PlainText(headers[severity])
		md.PlainText("")
		w.writeFindingsTable(md, matched)
	}
}

func (w *MarkdownWriter) writeFindingsTable(md *markdown.Markdown, findings []model.Finding) {
	rows := make([][]string, len(findings))
	for i, f := range findings {
		rows[i] = []string{
			f.Title,
			truncateString(orDash(f.Value), 50),
			truncateString(orDash(f.Location), 40),
			truncateString(orDash(f.Recommendation), 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Title", "Value", "Location", "Recommendation"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, f := range findings {
		if f.Description != "" {
			md.Details(f.Title, f.Description)
		}
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeResourceTable(md *markdown.Markdown, s *model.Snapshot) {
	records := s.Records()
	if len(records) == 0 {
		return
	}
	md.H2("Resources")
	md.PlainText("")

	rows := make([][]string, len(records))
	for i, r := range records {
		size := "-"
		if r.Status == model.StatusInlined {
			size = strconv.Itoa(r.Size)
		}
		rows[i] = []string{
			strconv.Itoa(r.Depth),
			r.Status.String(),
			orDash(r.Category),
			truncateString(r.Reference, 60),
			size,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Depth", "Status", "Category", "Reference", "Bytes"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by [freezedry](https://github.com/nao1215/freezedry)*")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
