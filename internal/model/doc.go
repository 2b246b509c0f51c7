// Package model defines the data recorded about a snapshot run.
//
// A Snapshot collects one ResourceRecord per subresource the crawler
// considered, whatever the outcome, plus Findings raised while building the
// snapshot (fetch failures, references left external, EXIF metadata in
// inlined images). The report package renders a Snapshot and the database
// package stores it as JSON, so every type here is JSON-serializable.
//
// Snapshot is safe for concurrent use: the crawler records outcomes from
// many goroutines at once.
package model
