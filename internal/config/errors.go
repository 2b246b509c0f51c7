package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when no URL is given.
	ErrNoTarget = errors.New("no target specified: provide at least one URL")

	// ErrInvalidTimeout is returned for a negative timeout. Zero means
	// no timeout.
	ErrInvalidTimeout = errors.New("invalid timeout: must be zero or positive")

	// ErrInvalidMaxDepth is returned when the depth limit is not positive.
	ErrInvalidMaxDepth = errors.New("invalid depth: must be positive")

	// ErrInvalidConcurrency is returned for a negative concurrency limit.
	// Zero means unlimited.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be zero or positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrUnknownReportFormat is returned when the report format is not one
	// of text, json or markdown.
	ErrUnknownReportFormat = errors.New("unknown report format: expected text, json or markdown")

	// ErrUnknownLogFormat is returned when the log format is neither text
	// nor json.
	ErrUnknownLogFormat = errors.New("unknown log format: expected text or json")

	// ErrOutputWithBatch is returned when a single output file is given for
	// several URLs.
	ErrOutputWithBatch = errors.New("--output names one file but several URLs were given: use --output-dir")

	// ErrConflictingTorOptions is returned when both an external proxy and
	// the embedded daemon are requested.
	ErrConflictingTorOptions = errors.New("conflicting Tor options: --tor and --external-tor cannot be used together")
)
