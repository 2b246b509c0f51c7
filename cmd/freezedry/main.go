// Package main provides the freezedry command.
//
// freezedry saves web pages as single, self-contained HTML files: every
// image, stylesheet, font, media file and frame is inlined as a data: URL.
//
// Usage:
//
//	freezedry dry https://example.com/ -o example.html
//	freezedry dry --batch 4 --output-dir snapshots/ <url>...
//
// See --help for all available options.
package main

func main() {
	Execute()
}
