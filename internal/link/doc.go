// Package link finds URL occurrences in documents and stylesheets and
// exposes each one as a Link.
//
// A Link is built on a liveview.Token, so rewriting its reference edits the
// attribute value or stylesheet text it was found in. Links from markup
// attributes are driven by a fixed table of (selector, attribute, tokenizer,
// base, category) rules evaluated with htmlquery. Links from stylesheets come
// from TokenizeStylesheet, which scans @import rules and url() values with
// the tdewolff CSS lexer. Style attributes and <style> elements reuse that
// scanner through a view per element, and their links are reparented onto
// the owning element.
//
// Failure to resolve a reference is not an error: Target simply reports
// false, and such links are never fetched.
package link
