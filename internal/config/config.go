package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/freezedry/internal/fetch"
	"github.com/nao1215/freezedry/internal/pipeline"
	"github.com/nao1215/freezedry/internal/tor"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "freezedry"

	// DefaultTimeout of zero lets a snapshot run until every subresource
	// has been fetched or has failed.
	DefaultTimeout time.Duration = 0

	// DefaultMaxDepth bounds how deeply nested resources are inlined by
	// the CLI. The library itself has no bound.
	DefaultMaxDepth = 10

	// DefaultConcurrency bounds the fetches started for the links of one
	// resource. Zero would mean no limit.
	DefaultConcurrency = 8

	// DefaultBatchSize is how many URLs are archived at once.
	DefaultBatchSize = pipeline.DefaultBatchConcurrency

	// DefaultUserAgent identifies freezedry in HTTP requests.
	DefaultUserAgent = fetch.DefaultUserAgent

	// DefaultMaxBodySize limits each fetched resource.
	DefaultMaxBodySize = fetch.DefaultMaxBodySize

	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorStartupTimeout is how long the embedded daemon may take to
	// bootstrap.
	DefaultTorStartupTimeout = tor.DefaultStartupTimeout

	// DefaultCacheMaxAge is how long cached responses are reused.
	DefaultCacheMaxAge = 24 * time.Hour

	// DefaultReportFormat is the report written after each snapshot.
	DefaultReportFormat = "text"
)

// ReportFormats lists the accepted report formats.
var ReportFormats = []string{"text", "json", "markdown"}

// LogFormats lists the accepted log formats.
var LogFormats = []string{"text", "json"}

// Config holds the options of one freezedry invocation. It is populated
// from CLI flags and passed down explicitly.
type Config struct {
	// Targets are the URLs to archive.
	Targets []string

	// Output is the file the snapshot is written to. Empty means stdout.
	// Only valid with a single target.
	Output string

	// OutputDir receives one file per target in batch mode.
	OutputDir string

	// Timeout bounds each snapshot. Zero means no limit.
	Timeout time.Duration

	// MaxDepth is the deepest nesting level that is inlined.
	MaxDepth int

	// Concurrency bounds parallel fetches per resource. Zero is unlimited.
	Concurrency int

	// BatchSize is how many targets are archived concurrently.
	BatchSize int

	// PreserveOriginalReference keeps the pre-inlining reference in a
	// data-original-* attribute.
	PreserveOriginalReference bool

	// ContentPolicy is the Content-Security-Policy written into the
	// snapshot. Empty writes no policy.
	ContentPolicy string

	// Verbose enables debug logging.
	Verbose bool
	// LogFormat is text or json.
	LogFormat string

	// ReportFormat is text, json or markdown.
	ReportFormat string

	// ReportFile receives the report instead of stderr.
	ReportFile string

	// UserAgent is sent with every request.
	UserAgent string

	// MaxBodySize is the largest response body read, in bytes. Zero keeps
	// the default.
	MaxBodySize int64

	// UseCache enables the SQLite fetch cache.
	UseCache bool

	// CacheDir holds the cache database. Defaults to XDGCacheDir.
	CacheDir string

	// CacheMaxAge is how long cached responses are served.
	CacheMaxAge time.Duration

	// ExternalTor is the address of an already running Tor SOCKS5 proxy.
	ExternalTor string

	// EmbeddedTor starts a Tor daemon for the run.
	EmbeddedTor bool

	// TorStartupTimeout bounds the embedded daemon's bootstrap.
	TorStartupTimeout time.Duration

	// ConfigFilePath is the site file. Empty searches the default
	// locations.
	ConfigFilePath string

	// SiteConfigs holds the loaded site file, if any.
	SiteConfigs *File
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:           DefaultTimeout,
		MaxDepth:          DefaultMaxDepth,
		Concurrency:       DefaultConcurrency,
		BatchSize:         DefaultBatchSize,
		ReportFormat:      DefaultReportFormat,
		LogFormat:         "text",
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		UseCache:          true,
		CacheDir:          XDGCacheDir(),
		CacheMaxAge:       DefaultCacheMaxAge,
		TorStartupTimeout: DefaultTorStartupTimeout,
		ContentPolicy:     pipeline.DefaultContentPolicy,
	}
}

// XDGConfigDir returns the XDG config directory for freezedry.
// On Linux: ~/.config/freezedry
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for freezedry.
// On Linux: ~/.cache/freezedry
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// NeedsTor reports whether any target is an onion service.
func (c *Config) NeedsTor() bool {
	return slices.ContainsFunc(c.Targets, tor.URLNeedsTor)
}

// SiteHeaders returns the per-host lookup for the fetcher, or nil when no
// site file is loaded.
func (c *Config) SiteHeaders() fetch.SiteHeaders {
	if c.SiteConfigs == nil {
		return nil
	}
	return c.SiteConfigs.Headers
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	for _, target := range c.Targets {
		u, err := url.Parse(target)
		if err != nil || !tor.IsOnionHost(u.Hostname()) {
			continue
		}
		if err := tor.ValidateOnionHost(u.Hostname()); err != nil {
			return fmt.Errorf("%w: %s", err, target)
		}
	}
	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if c.MaxDepth <= 0 {
		return ErrInvalidMaxDepth
	}
	if c.Concurrency < 0 {
		return ErrInvalidConcurrency
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if !slices.Contains(ReportFormats, c.ReportFormat) {
		return ErrUnknownReportFormat
	}
	if !slices.Contains(LogFormats, c.LogFormat) {
		return ErrUnknownLogFormat
	}
	if c.Output != "" && len(c.Targets) > 1 {
		return ErrOutputWithBatch
	}
	if c.EmbeddedTor && c.ExternalTor != "" {
		return ErrConflictingTorOptions
	}
	return nil
}
