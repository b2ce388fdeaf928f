package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

const payload = "date,team,gf,ga\n2024-01-10,olimpia,2,1\n"

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func zstdBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := enc.Write([]byte(s)); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	return buf.Bytes()
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestFetchPlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	rc, err := NewClient().Fetch(context.Background(), srv.URL+"/data.csv")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := readAll(t, rc); got != payload {
		t.Errorf("want %q, got %q", payload, got)
	}
}

func TestFetchGzipBySuffix(t *testing.T) {
	compressed := gzipBytes(t, payload)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(compressed)
	}))
	defer srv.Close()

	rc, err := NewClient().Fetch(context.Background(), srv.URL+"/data.csv.gz")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := readAll(t, rc); got != payload {
		t.Errorf("want %q, got %q", payload, got)
	}
}

func TestFetchGzipByContentEncoding(t *testing.T) {
	compressed := gzipBytes(t, payload)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(compressed)
	}))
	defer srv.Close()

	rc, err := NewClient().Fetch(context.Background(), srv.URL+"/data.csv")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := readAll(t, rc); got != payload {
		t.Errorf("want %q, got %q", payload, got)
	}
}

func TestFetchZstd(t *testing.T) {
	compressed := zstdBytes(t, payload)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(compressed)
	}))
	defer srv.Close()

	rc, err := NewClient().Fetch(context.Background(), srv.URL+"/data.csv.zst")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := readAll(t, rc); got != payload {
		t.Errorf("want %q, got %q", payload, got)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient().Fetch(context.Background(), srv.URL+"/missing.csv")
	if err == nil {
		t.Fatal("want error for HTTP 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error should name the status: %v", err)
	}
}

func TestOpenLocalFile(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(plain, []byte(payload), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	gzPath := filepath.Join(dir, "data.csv.gz")
	if err := os.WriteFile(gzPath, gzipBytes(t, payload), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, path := range []string{plain, gzPath} {
		rc, err := NewClient().Open(context.Background(), path)
		if err != nil {
			t.Fatalf("Open(%s): %v", path, err)
		}
		if got := readAll(t, rc); got != payload {
			t.Errorf("Open(%s): want %q, got %q", path, payload, got)
		}
	}
}

func TestIsURL(t *testing.T) {
	if !IsURL("https://example.com/data.csv") || !IsURL("http://example.com/x") {
		t.Error("http(s) URLs must be recognized")
	}
	if IsURL("/tmp/data.csv") || IsURL("data.csv") {
		t.Error("local paths must not be treated as URLs")
	}
}
