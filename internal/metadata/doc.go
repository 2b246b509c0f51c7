// Package metadata inspects subresources before they are inlined and
// reports what a snapshot will carry along with them.
//
// Images are searched for EXIF blocks with go-exif. Location tags are
// reported separately from the other tags since they are the ones that
// most often leak information the page author did not mean to publish.
// Stylesheets the lexer cannot read are reported too, as their references
// stay external. Text resources are searched for private keys and access
// tokens, which an inlined copy would hand to every reader of the snapshot.
package metadata
