// Package dry removes context-dependent and interactive state from
// resources so that a snapshot renders the same from its bytes alone.
//
// Two transforms are provided. Absolutize rewrites every resolvable link
// to an absolute URL, or to a bare fragment when it points into its own
// resource. StripInteractivity removes scripts, event handlers and
// editing state from documents. Both are idempotent, and Resource applies
// whichever fit the resource.
package dry
