package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/freezedry/internal/config"
	"github.com/nao1215/freezedry/internal/database"
	"github.com/nao1215/freezedry/internal/fetch"
	"github.com/nao1215/freezedry/internal/log"
	"github.com/nao1215/freezedry/internal/pipeline"
	"github.com/nao1215/freezedry/internal/report"
	"github.com/nao1215/freezedry/internal/tor"
)

// NewDryCmd creates the dry command.
func NewDryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dry <url>...",
		Short: "Save web pages as self-contained HTML",
		Long: `Dry fetches each URL, inlines every subresource it embeds as a data: URL
and writes one self-contained HTML file per page.

Scripts and event handlers are removed and the remaining links are made
absolute. Resources that cannot be fetched keep their absolute URL and are
listed in the report; a Content-Security-Policy stops the snapshot from
loading them.

Examples:
  # Save one page to a file
  freezedry dry https://example.com/ -o example.html

  # Save several pages, four at a time
  freezedry dry --batch 4 --output-dir snapshots/ https://a.example/ https://b.example/

  # Give up fetching after 30 seconds and keep what arrived
  freezedry dry --timeout 30s https://example.com/ -o example.html

  # Archive an onion service through an existing Tor proxy
  freezedry dry --external-tor 127.0.0.1:9150 http://<address>.onion/ -o onion.html

  # Write a Markdown report next to the snapshot
  freezedry dry https://example.com/ -o example.html --report markdown --report-file example.md`,
		Args: cobra.ArbitraryArgs,
		RunE: runDryCmd,
	}

	cmd.Flags().StringP("output", "o", "", "Output file for a single URL (default: stdout)")
	cmd.Flags().String("output-dir", "", "Directory for one file per URL (default: current directory when several URLs are given)")

	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Stop fetching after this long and keep what arrived (0: no limit)")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth, "Deepest nesting level that is inlined")
	cmd.Flags().Int("concurrency", config.DefaultConcurrency, "Parallel fetches per resource (0: unlimited)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize, "Number of URLs archived at once")
	cmd.Flags().Bool("preserve-original", false, "Keep original references in data-original-* attributes")
	cmd.Flags().String("content-policy", pipeline.DefaultContentPolicy, "Content-Security-Policy of the snapshot (empty: none)")

	cmd.Flags().String("user-agent", config.DefaultUserAgent, "User-Agent header")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize, "Largest resource fetched, in bytes")

	cmd.Flags().Bool("no-cache", false, "Do not read or write the response cache")
	cmd.Flags().String("cache-dir", config.XDGCacheDir(), "Directory of the cache database")
	cmd.Flags().Duration("cache-max-age", config.DefaultCacheMaxAge, "How long cached responses are reused")

	cmd.Flags().StringP("report", "r", config.DefaultReportFormat, "Report format: text, json or markdown")
	cmd.Flags().String("report-file", "", "Write the report to this file (default: stderr)")
	cmd.Flags().String("log-format", "text", "Log format: text or json")

	cmd.Flags().StringP("external-tor", "e", "", "Use the Tor SOCKS5 proxy at this address (e.g. 127.0.0.1:9150)")
	cmd.Flags().Bool("tor", false, "Route every request through an embedded Tor daemon")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")

	cmd.Flags().StringP("config", "c", "", "Site configuration file (default: .freezedry in the current or home directory)")

	return cmd
}

func runDryCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runDry(ctx, cmd, cfg, logger)
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.LogFormat == "json" {
		return log.NewSecureJSONLogger(w, cfg.Verbose)
	}
	return log.NewSecureLogger(w, cfg.Verbose)
}

func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return false
	}
	return verbose
}

// buildConfig creates a Config from the command's flags and the site file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Targets = args
	cfg.Verbose = getVerboseFlag(cmd)

	flags := cmd.Flags()
	var err error

	if cfg.Output, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.PreserveOriginalReference, err = flags.GetBool("preserve-original"); err != nil {
		return nil, err
	}
	if cfg.ContentPolicy, err = flags.GetString("content-policy"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}

	noCache, err := flags.GetBool("no-cache")
	if err != nil {
		return nil, err
	}
	cfg.UseCache = !noCache
	if cfg.CacheDir, err = flags.GetString("cache-dir"); err != nil {
		return nil, err
	}
	if cfg.CacheMaxAge, err = flags.GetDuration("cache-max-age"); err != nil {
		return nil, err
	}

	if cfg.ReportFormat, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report-file"); err != nil {
		return nil, err
	}
	if cfg.LogFormat, err = flags.GetString("log-format"); err != nil {
		return nil, err
	}

	if cfg.ExternalTor, err = flags.GetString("external-tor"); err != nil {
		return nil, err
	}
	if cfg.EmbeddedTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	// A missing file only matters when the user named it.
	path := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case path != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if len(cfg.Targets) > 1 && cfg.Output == "" && cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	return cfg, nil
}

// runDry archives every target of cfg.
func runDry(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	client, cleanup, err := httpClient(ctx, cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var fetcher fetch.Fetcher = fetch.NewHTTPFetcher(
		fetch.WithHTTPClient(client),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithSiteHeaders(cfg.SiteHeaders()),
		fetch.WithHTTPLogger(logger),
	)

	var db *database.SnapshotDB
	if cfg.UseCache {
		opts := database.DefaultOptions()
		opts.MaxAge = cfg.CacheMaxAge
		db, err = database.Open(cfg.CacheDir, opts)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer db.Close()
		fetcher = fetch.NewCached(fetcher, db, logger)
		logger.Debug("cache opened", "path", db.Path())
	}

	reportOut, closeReport, err := openReport(cmd, cfg.ReportFile)
	if err != nil {
		return err
	}
	defer closeReport()
	writer, err := report.NewWriter(cfg.ReportFormat, reportOut, getVersion())
	if err != nil {
		return err
	}

	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline { return newPipeline(fetcher, cfg, logger) },
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithRunTimeout(cfg.Timeout),
		pipeline.WithBatchLogger(logger),
	)

	var (
		mu     sync.Mutex
		failed []string
	)
	err = bp.ProcessBatchWithCallback(ctx, cfg.Targets, func(run *pipeline.Run, index int) {
		mu.Lock()
		defer mu.Unlock()

		if run.Snapshot.Error != "" {
			failed = append(failed, cfg.Targets[index])
		} else if err := writeSnapshot(cmd, cfg, run, index); err != nil {
			logger.Error("failed to write snapshot", "url", run.URL, "error", err)
			failed = append(failed, cfg.Targets[index])
		}
		if _, err := writer.Write(run.Snapshot); err != nil {
			logger.Error("failed to write report", "url", run.URL, "error", err)
		}
		if db != nil {
			if _, err := db.SaveSnapshot(context.WithoutCancel(ctx), run.Snapshot); err != nil {
				logger.Warn("failed to save snapshot record", "url", run.URL, "error", err)
			}
		}
	})
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to archive %d of %d URLs: %s",
			len(failed), len(cfg.Targets), strings.Join(failed, ", "))
	}
	return nil
}

func newPipeline(fetcher fetch.Fetcher, cfg *config.Config, logger *slog.Logger) *pipeline.Pipeline {
	return pipeline.DefaultPipeline(fetcher,
		[]pipeline.Option{pipeline.WithLogger(logger)},
		pipeline.WithPipelineMaxDepth(cfg.MaxDepth),
		pipeline.WithPipelineConcurrency(cfg.Concurrency),
		pipeline.WithPipelinePreserveOriginalReference(cfg.PreserveOriginalReference),
		pipeline.WithPipelineContentPolicy(cfg.ContentPolicy),
	)
}

// httpClient returns the client requests go through, starting or checking
// Tor when the targets or flags ask for it. cleanup stops an embedded
// daemon.
func httpClient(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*http.Client, func(), error) {
	noop := func() {}

	switch {
	case cfg.ExternalTor != "":
		client, err := tor.NewClient(cfg.ExternalTor, fetch.DefaultTimeout)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create Tor client: %w", err)
		}
		if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
			return nil, noop, fmt.Errorf("tor proxy check failed: %s (make sure Tor is running at %s)",
				status, cfg.ExternalTor)
		}
		logger.Info("Tor proxy connection verified", "address", cfg.ExternalTor)
		return client.NewHTTPClient(), noop, nil

	case cfg.EmbeddedTor || cfg.NeedsTor():
		client, embedded, err := startEmbeddedTor(ctx, cmd, cfg, logger)
		if err != nil {
			return nil, noop, err
		}
		return client.NewHTTPClient(), func() {
			logger.Info("stopping embedded Tor daemon")
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}, nil

	default:
		return &http.Client{Timeout: fetch.DefaultTimeout}, noop, nil
	}
}

func startEmbeddedTor(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*tor.Client, *tor.EmbeddedTor, error) {
	out := cmd.ErrOrStderr()
	fmt.Fprintln(out, "Starting embedded Tor daemon...")
	fmt.Fprintln(out, "This may take 1-3 minutes while Tor bootstraps.")

	embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embedded.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	logger.Info("embedded Tor daemon started",
		"socksAddr", embedded.SocksAddr(),
		"controlAddr", embedded.ControlAddr(),
	)

	client, err := embedded.NewClient(fetch.DefaultTimeout)
	if err != nil {
		_ = embedded.Stop() //nolint:errcheck // best effort cleanup
		return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
	}
	if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
		_ = embedded.Stop() //nolint:errcheck // best effort cleanup
		return nil, nil, fmt.Errorf("embedded Tor proxy check failed: %s", status)
	}
	return client, embedded, nil
}

// openReport returns where reports are written: path, or stderr.
func openReport(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.ErrOrStderr(), func() {}, nil
	}
	f, err := createFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck // nothing to do on close failure
}

// createFile creates path and its parent directories. Reports can carry
// cookies and internal URLs, so the file is private.
func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // user-provided path is intentional
}

// writeSnapshot writes the markup of run to its destination.
func writeSnapshot(cmd *cobra.Command, cfg *config.Config, run *pipeline.Run, index int) error {
	if cfg.OutputDir == "" && cfg.Output == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), run.Output)
		return err
	}

	path := cfg.Output
	if path == "" {
		path = filepath.Join(cfg.OutputDir, snapshotFileName(cfg.Targets[index], index))
	}
	f, err := createFile(path)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, run.Output); err != nil {
		_ = f.Close() //nolint:errcheck // the write error is reported
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s (%d bytes, %s)\n",
		path, run.Snapshot.OutputSize, run.Snapshot.Duration.Round(time.Millisecond))
	return nil
}

// snapshotFileName derives a file name from a target URL, such as
// "example.com_docs_index.html" for https://example.com/docs/. index
// disambiguates URLs that reduce to nothing.
func snapshotFileName(target string, index int) string {
	var name string
	if u, err := url.Parse(target); err == nil {
		name = u.Host + strings.TrimSuffix(u.Path, "/")
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
	name = strings.Trim(name, "_.")
	if name == "" {
		return fmt.Sprintf("snapshot-%d.html", index+1)
	}
	name = strings.TrimSuffix(name, ".html")
	name = strings.TrimSuffix(name, ".htm")
	return name + ".html"
}
