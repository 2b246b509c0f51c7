// Package crawler expands a resource tree by fetching the subresources its
// links point to.
//
// # Architecture
//
// The Crawler walks the links of a resource. Every embedded link of a
// supported category gets its own resource, fetched through a fetch.Fetcher
// or, for frames, cloned from the live frame document. Children are then
// expanded the same way. Siblings are processed concurrently with an
// errgroup; fetching and parsing run in parallel, while every change to
// resource text (attaching resources, drying, inlining) happens under one
// crawler-wide mutex.
//
// When a child's subtree has settled, the completion hook runs on the link
// that owns it. The default hook dries the child and inlines it into the
// parent, so the tree is rewritten bottom-up.
//
// # Limits
//
// A link is left alone when its target cannot be resolved, when its category
// has no resource constructor (scripts), when the target is the URL of an
// ancestor, or when a configured maximum depth is reached. Fetch failures
// only affect the failing link. Cancelling the context stops new fetches;
// branches that already completed are still dried and inlined, and
// cancellation is not reported as an error.
//
// # Usage
//
//	c := crawler.New(fetcher, crawler.WithMaxDepth(5))
//	if err := c.Crawl(ctx, root); err != nil {
//		return err
//	}
package crawler
