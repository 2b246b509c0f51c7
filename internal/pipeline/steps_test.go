package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/nao1215/freezedry/internal/dom"
	"github.com/nao1215/freezedry/internal/fetch"
	"github.com/nao1215/freezedry/internal/model"
	"github.com/nao1215/freezedry/internal/resource"
)

func TestCaptureStep(t *testing.T) {
	t.Parallel()

	t.Run("clones a live document", func(t *testing.T) {
		t.Parallel()

		live, err := html.Parse(strings.NewReader(`<p id="x">live</p>`))
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}
		run := NewRun("https://ex.com/", live, newTestRun().Snapshot.DateArchived)
		if err := NewCaptureStep(nil).Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.Root == nil || run.Root.Node() == live {
			t.Fatal("expected a separate copy of the document")
		}
		dom.SetTextContent(dom.Find(run.Root.Node(), "p"), "changed")
		if dom.TextContent(dom.Find(live, "p")) != "live" {
			t.Error("the live document must not change")
		}
	})

	t.Run("fetches and follows redirects", func(t *testing.T) {
		t.Parallel()

		fetcher := fetch.Func(func(_ context.Context, url string) (*fetch.Response, error) {
			return &fetch.Response{URL: url + "home", ContentType: "text/html", Body: []byte("<p>fetched</p>")}, nil
		})
		run := newTestRun()
		if err := NewCaptureStep(fetcher).Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.URL != "https://ex.com/home" || run.Root.URL() != "https://ex.com/home" {
			t.Errorf("expected the final URL, got %q", run.URL)
		}
	})

	t.Run("fetch failure is an error", func(t *testing.T) {
		t.Parallel()

		fetcher := fetch.Func(func(context.Context, string) (*fetch.Response, error) {
			return nil, fetch.ErrHTTPStatus
		})
		if err := NewCaptureStep(fetcher).Do(context.Background(), newTestRun()); !errors.Is(err, fetch.ErrHTTPStatus) {
			t.Errorf("expected ErrHTTPStatus, got %v", err)
		}
	})

	t.Run("nothing to capture", func(t *testing.T) {
		t.Parallel()

		if err := NewCaptureStep(nil).Do(context.Background(), newTestRun()); !errors.Is(err, ErrNoDocument) {
			t.Errorf("expected ErrNoDocument, got %v", err)
		}
	})
}

func TestFinishStep(t *testing.T) {
	t.Parallel()

	capture := func(t *testing.T, markup string) *Run {
		t.Helper()
		doc, err := resource.ParseDocument([]byte(markup), "https://ex.com/", "text/html")
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}
		run := newTestRun()
		run.Root = doc
		return run
	}
	markup := `<head><meta charset="iso-8859-1"><meta http-equiv="Content-Security-Policy" content="img-src *"><title>t</title></head>`

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		run := capture(t, markup)
		if err := NewFinishStep().Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out, _ := dom.Render(run.Root.Node())

		if !strings.Contains(out, `<head><meta charset="utf-8"/>`) {
			t.Errorf("expected charset first in head, got %s", out)
		}
		if strings.Contains(out, "iso-8859-1") {
			t.Errorf("expected the old charset removed, got %s", out)
		}
		if !strings.Contains(out, `<meta name="snapshot-url" content="https://ex.com/"/>`) {
			t.Errorf("expected snapshot-url, got %s", out)
		}
		if !strings.Contains(out, `<meta name="snapshot-date" content="Fri, 02 Jan 2026 03:04:05 UTC"/>`) {
			t.Errorf("expected snapshot-date, got %s", out)
		}
		if !strings.Contains(out, `content="img-src *"`) {
			t.Errorf("existing policy must stay without a new one, got %s", out)
		}
	})

	t.Run("content policy replaces existing ones", func(t *testing.T) {
		t.Parallel()

		run := capture(t, markup)
		step := NewFinishStep(WithContentPolicyMeta(DefaultContentPolicy), WithProvenanceMeta(false), WithCharsetMeta(false))
		if err := step.Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out, _ := dom.Render(run.Root.Node())

		if strings.Contains(out, "img-src *") || strings.Count(out, "Content-Security-Policy") != 1 {
			t.Errorf("expected a single new policy, got %s", out)
		}
		if strings.Contains(out, "snapshot-url") || !strings.Contains(out, "iso-8859-1") {
			t.Errorf("disabled additions must not run, got %s", out)
		}
	})
}

func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><base href="/assets/"><link rel="stylesheet" href="s.css"></head>` +
			`<body onload="x()"><img src="a.png"><script src="x.js"></script><a href="/other">o</a></body></html>`))
	})
	mux.HandleFunc("/assets/s.css", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte(`body{background:url(bg.png)}`))
	})
	mux.HandleFunc("/assets/a.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("0123456789"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	p := DefaultPipeline(fetch.NewHTTPFetcher(), nil, WithPipelineContentPolicy(DefaultContentPolicy))
	run := NewRun(server.URL+"/", nil, newTestRun().Snapshot.DateArchived)
	if err := p.Execute(context.Background(), run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, gone := range []string{"<script", "onload", "<base", `src="a.png"`, `href="s.css"`} {
		if strings.Contains(run.Output, gone) {
			t.Errorf("expected %q gone from output", gone)
		}
	}
	for _, want := range []string{"data:image/png;base64,MDEyMzQ1Njc4OQ==", "data:text/css", `href="` + server.URL + `/other"`, "Content-Security-Policy"} {
		if !strings.Contains(run.Output, want) {
			t.Errorf("expected %q in output:\n%s", want, run.Output)
		}
	}

	counts := run.Snapshot.CountByStatus()
	if counts[model.StatusInlined] != 2 {
		t.Errorf("expected 2 inlined resources, got %v", counts)
	}
	if counts[model.StatusFailed] != 1 {
		t.Errorf("expected the missing background to fail, got %v", counts)
	}
	if counts[model.StatusUnsupported] != 1 {
		t.Errorf("expected the script to be unsupported, got %v", counts)
	}
	if run.Snapshot.OutputSize != len(run.Output) || run.Snapshot.Digest == "" {
		t.Errorf("expected output recorded on the snapshot, got %+v", run.Snapshot)
	}
}
