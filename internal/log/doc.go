// Package log builds the slog loggers used by freezedry.
//
// SecureHandler wraps any slog.Handler and rewrites attributes before they
// are written:
//   - values of credential-like keys (cookie, authorization, token, ...) and
//     values that look like bearer tokens, JWTs or private keys are masked
//   - passwords embedded in URLs are redacted
//   - data: URLs are shortened to their media type and length, since an
//     inlined resource can be megabytes of base64
//
// Usage:
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
package log
