// Package liveview exposes the URL-bearing tokens of a mutable string as
// independently readable and writable handles.
//
// A View wraps three things: a Tokenizer that finds the interesting spans of
// a text, a read function returning the current text, and a write function
// storing a new one. The text itself lives elsewhere (an attribute value, the
// contents of a <style> element, a fetched stylesheet), and other code may
// change it at any time. The View therefore follows one discipline:
//
//   - Every access reads the text again, and tokenizes it again only when it
//     differs from the text seen last time.
//   - Every commit rebuilds the full text from the unmodified glue between
//     tokens plus each token's current value, and calls write only when the
//     result differs from the current text.
//
// Several consumers can thus share one string without clobbering each
// other's edits or issuing redundant writes.
//
// # Token identity
//
// Tokens are addressed by position. When the text changes out-of-band and
// re-tokenizing yields fewer tokens, handles to the vanished positions fail
// with ErrStaleToken instead of touching an unrelated token.
//
// # Usage
//
//	v := liveview.New(tokenizer, func() string { return s }, func(t string) { s = t })
//	for _, tok := range v.Tokens() {
//	    val, _ := tok.Value()
//	    _ = tok.Set(strings.ToUpper(val))
//	}
package liveview
