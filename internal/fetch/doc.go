// Package fetch turns URLs into bytes for the crawler.
//
// The crawler only depends on the Fetcher interface, so any transport can be
// plugged in: a plain function through Func, the default HTTPFetcher (which
// can be routed through Tor by handing it a Tor HTTP client), or a Cached
// fetcher layered over another one. data: URLs are decoded locally by
// HTTPFetcher and never touch the network.
//
// A Response always carries the final, post-redirect URL. Resources built
// from it resolve their own relative references against that URL, which is
// what a browser does after following a redirect.
package fetch
