// Package database provides SQLite-based storage for freezedry.
//
// The SnapshotDB stores:
//   - fetched responses, so that re-archiving a page does not download
//     unchanged subresources again
//   - snapshot records of past runs, for history listings
//
// SQLite is accessed through modernc.org/sqlite, a CGO-free driver, so the
// binary cross-compiles without a C toolchain. The database is a single
// file under the XDG cache directory.
package database
