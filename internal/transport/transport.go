// Package transport implements the byte-stream opener external contract
// (§1): given a dump descriptor's URI, produce a decompressed byte stream
// for the MRT parser to read. Grounded on bgpfix's mrt.Reader.ReadFromPath
// extension-sniffing, generalized to also support zstd and http(s) URIs.
package transport

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Opener is the byte-stream-opener contract: Open returns a ReadCloser of
// decompressed MRT bytes for uri, or an error if the URI cannot be reached
// or opened (surfaced by the Reader Set as OpenFailed, §7).
type Opener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// FileHTTPOpener opens local paths and http(s):// URIs, transparently
// decompressing by file-extension sniffing (.gz, .bz2, .zst).
type FileHTTPOpener struct {
	// Client is used for http(s):// URIs. Defaults to http.DefaultClient.
	Client *http.Client
}

// NewFileHTTPOpener returns an Opener backed by the given HTTP client (nil
// selects http.DefaultClient).
func NewFileHTTPOpener(client *http.Client) *FileHTTPOpener {
	if client == nil {
		client = http.DefaultClient
	}
	return &FileHTTPOpener{Client: client}
}

func (o *FileHTTPOpener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	var raw io.ReadCloser
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, fmt.Errorf("transport: build request for %s: %w", uri, err)
		}
		resp, err := o.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("transport: fetch %s: %w", uri, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("transport: fetch %s: status %s", uri, resp.Status)
		}
		raw = resp.Body
	default:
		f, err := os.Open(uri)
		if err != nil {
			return nil, fmt.Errorf("transport: open %s: %w", uri, err)
		}
		raw = f
	}

	return decompress(uri, raw)
}

// decompress wraps raw with a decompressing reader chosen by uri's
// extension, closing raw when the returned ReadCloser is closed.
func decompress(uri string, raw io.ReadCloser) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(uri, ".gz"):
		gz, err := gzip.NewReader(raw)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("transport: gzip %s: %w", uri, err)
		}
		return &closeBoth{Reader: gz, inner: raw, outer: gz}, nil

	case strings.HasSuffix(uri, ".bz2"):
		return &closeBoth{Reader: bzip2.NewReader(raw), inner: raw}, nil

	case strings.HasSuffix(uri, ".zst"):
		zr, err := zstd.NewReader(raw)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("transport: zstd %s: %w", uri, err)
		}
		return &zstdCloser{Decoder: zr, inner: raw}, nil

	default:
		return raw, nil
	}
}

// closeBoth closes both an optional outer decompressor (if it implements
// io.Closer) and the underlying raw stream.
type closeBoth struct {
	io.Reader
	inner io.Closer
	outer io.Closer
}

func (c *closeBoth) Close() error {
	if c.outer != nil {
		c.outer.Close()
	}
	return c.inner.Close()
}

// zstdCloser adapts *zstd.Decoder (whose Close has no error return) to
// io.ReadCloser while also closing the underlying stream.
type zstdCloser struct {
	*zstd.Decoder
	inner io.Closer
}

func (z *zstdCloser) Close() error {
	z.Decoder.Close()
	return z.inner.Close()
}
