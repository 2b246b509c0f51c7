package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/freezedry/internal/model"
)

// JSONWriter outputs the snapshot record as JSON.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the snapshot in JSON format.
func (w *JSONWriter) Write(s *model.Snapshot) (int, error) {
	return w.writeJSON(s)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}

// Summary holds the counts shown at the top of every report.
type Summary struct {
	Resources         int            `json:"resources"`
	ByStatus          map[string]int `json:"by_status"`
	InlinedByCategory map[string]int `json:"inlined_by_category"`
	InlinedBytes      int            `json:"inlined_bytes"`
	BySeverity        map[string]int `json:"by_severity"`
}

// NewSummary computes the Summary of s.
func NewSummary(s *model.Snapshot) *Summary {
	sum := &Summary{
		ByStatus:          make(map[string]int),
		InlinedByCategory: s.CountByCategory(),
		InlinedBytes:      s.InlinedBytes(),
		BySeverity:        make(map[string]int),
	}
	for status, n := range s.CountByStatus() {
		sum.ByStatus[status.String()] = n
		sum.Resources += n
	}
	for severity, n := range s.CountBySeverity() {
		sum.BySeverity[severity.String()] = n
	}
	return sum
}

// JSONReport wraps a snapshot with the tool version and a summary.
type JSONReport struct {
	Version  string          `json:"version"`
	Snapshot *model.Snapshot `json:"snapshot"`
	Summary  *Summary        `json:"summary"`
}

// FullJSONWriter outputs snapshots wrapped in a JSONReport.
type FullJSONWriter struct {
	*JSONWriter
	version string
}

// NewFullJSONWriter creates a writer for wrapped reports.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the wrapped report.
func (w *FullJSONWriter) Write(s *model.Snapshot) (int, error) {
	return w.writeJSON(&JSONReport{
		Version:  w.version,
		Snapshot: s,
		Summary:  NewSummary(s),
	})
}
