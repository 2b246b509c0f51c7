// Package report writes the record of a snapshot run.
//
// Three formats are available:
//   - SimpleWriter: human-readable text for terminal display
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown with a Mermaid chart of inlined resources
//
// Writers implement the Writer interface, so they can be used
// interchangeably and combined with MultiWriter. NewWriter picks one by
// format name.
package report
