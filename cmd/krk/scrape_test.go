package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nao1215/krk/internal/config"
	"github.com/nao1215/krk/internal/database"
	"github.com/nao1215/krk/internal/report"
)

// newShopServer serves two product pages and counts requests.
func newShopServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/p/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		name := strings.TrimPrefix(r.URL.Path, "/p/")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body>
<h1> %s </h1>
<span class="price">$1,299.50</span>
<a class="next" href="/p/next">next</a>
</body></html>`, strings.ToUpper(name))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

// writeDocument writes a scrape document for the given URLs.
func writeDocument(t *testing.T, urls ...string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("config:\n  urls:\n")
	for _, u := range urls {
		fmt.Fprintf(&b, "    - %s\n", u)
	}
	b.WriteString(`data:
  name:
    selector: h1
  price:
    selector: .price
    regex: "[0-9.,]+"
    replace: [",", ""]
    toNumber: true
`)

	path := filepath.Join(t.TempDir(), "shop.yaml")
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}
	return path
}

// executeRoot runs the root command with args and returns stdout and stderr.
func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestNewScrapeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewScrapeCmd()
	for _, name := range []string{"output", "format", "cache", "cache-dir", "save", "db-dir", "jobs", "log-json"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
	if got := cmd.Flags().Lookup("format").DefValue; got != "json" {
		t.Errorf("expected default format json, got %q", got)
	}
}

func TestScrape_SinglePageJSON(t *testing.T) {
	t.Parallel()

	srv, _ := newShopServer(t)
	doc := writeDocument(t, srv.URL+"/p/lamp")

	stdout, stderr, err := executeRoot(t, "scrape", doc)
	if err != nil {
		t.Fatalf("unexpected error: %v\nstderr: %s", err, stderr)
	}

	if !strings.HasPrefix(strings.TrimSpace(stdout), "{") {
		t.Errorf("expected a single JSON object, got %s", stdout)
	}
	if !strings.Contains(stdout, `"name": "LAMP"`) {
		t.Errorf("expected trimmed name in output, got %s", stdout)
	}
	if !strings.Contains(stdout, `"price": 1299.5`) {
		t.Errorf("expected numeric price in output, got %s", stdout)
	}
	if !strings.Contains(stderr, "[1/1] "+srv.URL+"/p/lamp") {
		t.Errorf("expected progress on stderr, got %s", stderr)
	}
}

func TestScrape_JobsFlag(t *testing.T) {
	t.Parallel()

	srv, _ := newShopServer(t)
	doc := writeDocument(t, srv.URL+"/p/lamp")

	t.Run("sequential extraction gives the same result", func(t *testing.T) {
		t.Parallel()

		stdout, stderr, err := executeRoot(t, "scrape", "--jobs", "1", doc)
		if err != nil {
			t.Fatalf("unexpected error: %v\nstderr: %s", err, stderr)
		}
		if !strings.Contains(stdout, `"name": "LAMP"`) {
			t.Errorf("expected trimmed name in output, got %s", stdout)
		}
	})

	t.Run("negative jobs is rejected", func(t *testing.T) {
		t.Parallel()

		_, _, err := executeRoot(t, "scrape", "--jobs=-1", doc)
		if err == nil {
			t.Fatal("expected error for negative --jobs")
		}
	})
}

func TestScrape_MultiplePagesCSVToFile(t *testing.T) {
	t.Parallel()

	srv, hits := newShopServer(t)
	doc := writeDocument(t, srv.URL+"/p/lamp", srv.URL+"/p/desk")
	outPath := filepath.Join(t.TempDir(), "out", "items.csv")

	stdout, stderr, err := executeRoot(t, "scrape", "-f", "csv", "-o", outPath, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v\nstderr: %s", err, stderr)
	}
	if stdout != "" {
		t.Errorf("expected nothing on stdout, got %q", stdout)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", hits.Load())
	}

	content, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", content)
	}
	if lines[0] != "name,price" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "LAMP,1299.5" || lines[2] != "DESK,1299.5" {
		t.Errorf("unexpected rows %q", lines[1:])
	}
}

func TestScrape_UnknownFormatMakesNoRequest(t *testing.T) {
	t.Parallel()

	srv, hits := newShopServer(t)
	doc := writeDocument(t, srv.URL+"/p/lamp")

	_, _, err := executeRoot(t, "scrape", "-f", "xml", doc)
	if !errors.Is(err, report.ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("expected no requests, got %d", hits.Load())
	}
}

func TestScrape_MissingDocument(t *testing.T) {
	t.Parallel()

	_, _, err := executeRoot(t, "scrape", filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, config.ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestScrape_InvalidDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("config:\n  url: not a url\ndata: {}\n"), 0600); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}

	_, _, err := executeRoot(t, "scrape", path)
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestScrape_CacheFlag(t *testing.T) {
	t.Parallel()

	srv, hits := newShopServer(t)
	doc := writeDocument(t, srv.URL+"/p/lamp")
	cacheDir := t.TempDir()

	for i := range 2 {
		stdout, stderr, err := executeRoot(t, "scrape", "--cache", "--cache-dir", cacheDir, doc)
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v\nstderr: %s", i+1, err, stderr)
		}
		if !strings.Contains(stdout, `"LAMP"`) {
			t.Errorf("run %d: unexpected output %s", i+1, stdout)
		}
	}

	if hits.Load() != 1 {
		t.Errorf("expected the second run to be served from cache, got %d requests", hits.Load())
	}
}

func TestScrape_SaveRecordsRun(t *testing.T) {
	t.Parallel()

	srv, _ := newShopServer(t)
	doc := writeDocument(t, srv.URL+"/p/lamp", srv.URL+"/p/desk")
	dbDir := t.TempDir()

	_, stderr, err := executeRoot(t, "scrape", "--save", "--db-dir", dbDir, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stderr, "Saved run ") {
		t.Errorf("expected saved run message, got %s", stderr)
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(t.Context(), 0)
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != database.StatusSucceeded {
		t.Errorf("expected succeeded run, got %s", runs[0].Status)
	}
	if runs[0].PageCount != 2 {
		t.Errorf("expected 2 pages, got %d", runs[0].PageCount)
	}
}

func TestScrape_SaveRecordsFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	doc := writeDocument(t, addr+"/p/lamp")
	dbDir := t.TempDir()

	if _, _, err := executeRoot(t, "scrape", "--save", "--db-dir", dbDir, doc); err == nil {
		t.Fatal("expected an error for an unreachable server")
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(t.Context(), 0)
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != database.StatusFailed {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
	if runs[0].Error == "" {
		t.Error("expected the failure to be recorded")
	}
}
