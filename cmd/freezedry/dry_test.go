package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/freezedry/internal/config"
	"github.com/nao1215/freezedry/internal/database"
	"github.com/nao1215/freezedry/internal/report"
	"github.com/nao1215/freezedry/internal/tor"
)

var pngStub = []byte("\x89PNG\r\n\x1a\n\x00\x00")

// newSite serves a page with an image, a stylesheet and a missing image.
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><link rel="stylesheet" href="/s.css">` +
			`<script>alert(1)</script></head>` +
			`<body><img src="/a.png"><img src="/missing.png"></body></html>`))
	})
	mux.HandleFunc("/s.css", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte(`body { color: red }`))
	})
	mux.HandleFunc("/a.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngStub)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewDryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewDryCmd()

	flags := []struct {
		name      string
		shorthand string
		def       string
	}{
		{"output", "o", ""},
		{"timeout", "t", "0s"},
		{"batch", "b", "4"},
		{"report", "r", "text"},
		{"external-tor", "e", ""},
		{"config", "c", ""},
		{"no-cache", "", "false"},
		{"preserve-original", "", "false"},
		{"log-format", "", "text"},
	}
	for _, tt := range flags {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("shorthand = %q, want %q", flag.Shorthand, tt.shorthand)
			}
			if flag.DefValue != tt.def {
				t.Errorf("default = %q, want %q", flag.DefValue, tt.def)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format string
		json   bool
	}{
		{name: "text", format: "text"},
		{name: "json", format: "json", json: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.NewConfig()
			cfg.LogFormat = tt.format
			var buf bytes.Buffer
			newLogger(&buf, cfg).Warn("fetch failed", "cookie", "session=secret")

			out := buf.String()
			if got := json.Valid(bytes.TrimSpace(buf.Bytes())); got != tt.json {
				t.Errorf("json.Valid = %v, want %v for %s", got, tt.json, out)
			}
			if !strings.Contains(out, "fetch failed") {
				t.Errorf("expected the message, got %s", out)
			}
			if strings.Contains(out, "session=secret") {
				t.Errorf("expected the cookie to be masked, got %s", out)
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("several targets default to the current directory", func(t *testing.T) {
		t.Parallel()
		cmd := NewDryCmd()
		if err := cmd.ParseFlags([]string{"--no-cache", "-d", "3"}); err != nil {
			t.Fatal(err)
		}
		cfg, err := buildConfig(cmd, []string{"https://a.example/", "https://b.example/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.OutputDir != "." {
			t.Errorf("OutputDir = %q, want .", cfg.OutputDir)
		}
		if cfg.UseCache {
			t.Error("--no-cache should disable the cache")
		}
		if cfg.MaxDepth != 3 {
			t.Errorf("MaxDepth = %d, want 3", cfg.MaxDepth)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()
		cmd := NewDryCmd()
		path := filepath.Join(t.TempDir(), "absent.yaml")
		if err := cmd.ParseFlags([]string{"-c", path}); err != nil {
			t.Fatal(err)
		}
		_, err := buildConfig(cmd, []string{"https://a.example/"})
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("explicit config file is loaded", func(t *testing.T) {
		t.Parallel()
		cmd := NewDryCmd()
		path := filepath.Join(t.TempDir(), "sites.yaml")
		content := "sites:\n  example.com:\n    cookie: \"session=1\"\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := cmd.ParseFlags([]string{"-c", path}); err != nil {
			t.Fatal(err)
		}
		cfg, err := buildConfig(cmd, []string{"https://example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cookie, _ := cfg.SiteHeaders()("example.com")
		if cookie != "session=1" {
			t.Errorf("cookie = %q, want session=1", cookie)
		}
	})
}

func TestSnapshotFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target string
		want   string
	}{
		{"https://example.com/", "example.com.html"},
		{"https://example.com/docs/", "example.com_docs.html"},
		{"https://example.com/a/page.html", "example.com_a_page.html"},
		{"http://127.0.0.1:8080/x", "127.0.0.1_8080_x.html"},
		{"::not a url", "snapshot-3.html"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			t.Parallel()
			if got := snapshotFileName(tt.target, 2); got != tt.want {
				t.Errorf("snapshotFileName(%q) = %q, want %q", tt.target, got, tt.want)
			}
		})
	}
}

func TestRunDryCmd(t *testing.T) {
	t.Run("no target", func(t *testing.T) {
		cmd := NewDryCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--no-cache"})
		if err := cmd.Execute(); !errors.Is(err, config.ErrNoTarget) {
			t.Errorf("expected ErrNoTarget, got %v", err)
		}
	})

	t.Run("malformed onion target is rejected before starting Tor", func(t *testing.T) {
		cmd := NewDryCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--no-cache", "--tor", "http://" + strings.Repeat("a", 56) + ".onion/"})
		if err := cmd.Execute(); !errors.Is(err, tor.ErrInvalidOnionAddress) {
			t.Errorf("expected ErrInvalidOnionAddress, got %v", err)
		}
	})

	t.Run("single page with json report", func(t *testing.T) {
		srv := newSite(t)
		dir := t.TempDir()
		outPath := filepath.Join(dir, "page.html")
		reportPath := filepath.Join(dir, "report.json")

		cmd := NewDryCmd()
		var stderr bytes.Buffer
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&stderr)
		cmd.SetArgs([]string{srv.URL + "/", "-o", outPath, "--no-cache",
			"--report", "json", "--report-file", reportPath})

		err := cmd.Execute()
		// The missing image does not fail the page.
		if err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr.String())
		}

		out, err := os.ReadFile(outPath)
		if err != nil {
			t.Fatalf("expected snapshot file: %v", err)
		}
		markup := string(out)
		for _, want := range []string{
			`src="data:image/png;base64,`,
			`href="data:text/css;charset=utf-8;base64,`,
			`src="` + srv.URL + `/missing.png"`,
			`Content-Security-Policy`,
		} {
			if !strings.Contains(markup, want) {
				t.Errorf("snapshot should contain %q:\n%s", want, markup)
			}
		}
		if strings.Contains(markup, "alert(1)") {
			t.Error("scripts should be removed")
		}

		data, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("expected report file: %v", err)
		}
		var rep report.JSONReport
		if err := json.Unmarshal(data, &rep); err != nil {
			t.Fatalf("invalid report: %v", err)
		}
		want := map[string]int{"inlined": 2, "failed": 1}
		if diff := cmp.Diff(want, rep.Summary.ByStatus); diff != "" {
			t.Errorf("status counts mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("page is written to stdout without -o", func(t *testing.T) {
		srv := newSite(t)

		cmd := NewDryCmd()
		var stdout bytes.Buffer
		cmd.SetOut(&stdout)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{srv.URL + "/", "--no-cache"})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout.String(), `data:image/png;base64,`) {
			t.Errorf("expected snapshot on stdout:\n%s", stdout.String())
		}
	})

	t.Run("batch writes one file per URL and records history", func(t *testing.T) {
		srv := newSite(t)
		outDir := t.TempDir()
		cacheDir := t.TempDir()

		cmd := NewDryCmd()
		var stderr bytes.Buffer
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&stderr)
		cmd.SetArgs([]string{srv.URL + "/", srv.URL + "/s.css",
			"--output-dir", outDir, "--cache-dir", cacheDir, "-b", "2"})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr.String())
		}

		entries, err := os.ReadDir(outDir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 2 {
			t.Errorf("expected 2 snapshot files, got %d", len(entries))
		}
		if !strings.Contains(stderr.String(), "FREEZEDRY SNAPSHOT") {
			t.Errorf("expected text reports on stderr:\n%s", stderr.String())
		}

		db, err := database.Open(cacheDir, database.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		history, err := db.GetSnapshotHistory(t.Context(), srv.URL+"/")
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 1 {
			t.Errorf("expected 1 stored record, got %d", len(history))
		}
	})

	t.Run("unreachable page fails", func(t *testing.T) {
		srv := newSite(t)

		cmd := NewDryCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{srv.URL + "/nothing", "--no-cache"})
		err := cmd.Execute()
		if err == nil || !strings.Contains(err.Error(), "failed to archive 1 of 1 URLs") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
