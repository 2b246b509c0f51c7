// Package tor routes archive fetches through the Tor network.
//
// A Client wraps a SOCKS5 dialer (golang.org/x/net/proxy) and hands out
// *http.Client values that the fetch package uses in place of the default
// client. The proxy is either an external Tor daemon or one launched by
// EmbeddedTor through github.com/nao1215/tornago.
//
// .onion hosts cannot be resolved or reached without Tor. The CLI selects a
// Tor transport for them with URLNeedsTor, and its configuration rejects
// onion targets that fail ValidateOnionHost before anything is fetched.
package tor
