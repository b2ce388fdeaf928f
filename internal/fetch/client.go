// Package fetch retrieves stat exports from local paths or HTTP(S)
// URLs, transparently decompressing gzip, bzip2 and zstd payloads.
package fetch

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Client downloads stat exports over HTTP(S).
type Client struct {
	http *http.Client
}

// NewClient returns a download client with a 30s request timeout.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 30 * time.Second}}
}

// IsURL reports whether src names a remote resource rather than a
// local file.
func IsURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Open returns a reader over the decompressed content of src, which
// may be a local path or an HTTP(S) URL. The caller must close it.
func (c *Client) Open(ctx context.Context, src string) (io.ReadCloser, error) {
	if IsURL(src) {
		return c.Fetch(ctx, src)
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	return decompress(f, src, "")
}

// Fetch GETs url and returns a reader over the decompressed response
// body. Compression is detected from the URL suffix or the
// Content-Encoding header.
func (c *Client) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}
	return decompress(resp.Body, url, resp.Header.Get("Content-Encoding"))
}

// body couples a decompressing reader with its underlying source so
// closing the one closes both.
type body struct {
	io.Reader
	close func() error
}

func (b body) Close() error { return b.close() }

func decompress(rc io.ReadCloser, name, encoding string) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(name, ".bz2"):
		return body{bzip2.NewReader(rc), rc.Close}, nil
	case strings.HasSuffix(name, ".zst"):
		dec, err := zstd.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return body{dec, func() error {
			dec.Close()
			return rc.Close()
		}}, nil
	case strings.HasSuffix(name, ".gz") || encoding == "gzip":
		gz, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return body{gz, func() error {
			err := gz.Close()
			if cerr := rc.Close(); err == nil {
				err = cerr
			}
			return err
		}}, nil
	}
	return rc, nil
}
