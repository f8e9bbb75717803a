// Package fetcher handles downloading filter lists and reading them from disk.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xxxbrian/filterdict/internal/cache"
)

const (
	userAgent = "filterdict/1.0"
	// maxListSize bounds a single download; the largest public lists are a few MB.
	maxListSize = 64 << 20
)

// Fetcher handles filter list downloads
type Fetcher struct {
	client *http.Client
	lists  *cache.ListCache
	logger *slog.Logger
}

// NewFetcher creates a new Fetcher
func NewFetcher(lists *cache.ListCache, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		lists:  lists,
		logger: logger,
	}
}

// SetClient replaces the HTTP client used for downloads.
func (f *Fetcher) SetClient(client *http.Client) {
	f.client = client
}

// GetETag fetches the ETag of a list without downloading it
func (f *Fetcher) GetETag(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HEAD request failed: %s", resp.Status)
	}

	return cleanETag(resp.Header.Get("ETag")), nil
}

// Fetch returns a cached or freshly downloaded list body and its ETag
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	body, etag, ok := f.lists.Get(url)
	if ok {
		return body, etag, nil
	}
	return f.revalidate(ctx, url, body, etag)
}

// Refresh checks upstream for a new version regardless of TTL.
func (f *Fetcher) Refresh(ctx context.Context, url string) ([]byte, string, error) {
	body, etag, _ := f.lists.GetAny(url)
	return f.revalidate(ctx, url, body, etag)
}

func (f *Fetcher) revalidate(ctx context.Context, url string, cached []byte, etag string) ([]byte, string, error) {
	newETag, err := f.GetETag(ctx, url)
	if err != nil {
		// Serve stale data if upstream is unreachable
		if cached != nil {
			f.logger.Warn("list revalidation failed, serving cached copy", "url", url, "err", err)
			return cached, etag, nil
		}
		f.logger.Debug("HEAD failed, downloading directly", "url", url, "err", err)
	}

	if newETag != "" && etag == newETag && cached != nil {
		f.lists.Touch(url)
		return cached, etag, nil
	}

	body, gotETag, err := f.download(ctx, url)
	if err != nil {
		if cached != nil {
			f.logger.Warn("list download failed, serving cached copy", "url", url, "err", err)
			return cached, etag, nil
		}
		return nil, "", err
	}
	if gotETag == "" {
		gotETag = newETag
	}
	if gotETag == "" {
		gotETag = cache.ResultKey(string(body))
	}

	if err := f.lists.Set(url, body, gotETag); err != nil {
		return nil, "", fmt.Errorf("failed to set cache: %w", err)
	}
	f.logger.Info("filter list downloaded", "url", url, "bytes", len(body), "etag", gotETag)

	return body, gotETag, nil
}

// download fetches a list and decodes it to UTF-8
func (f *Fetcher) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxListSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}
	if len(raw) > maxListSize {
		return nil, "", fmt.Errorf("list exceeds %d bytes", maxListSize)
	}

	body, err := Decode(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s: %w", url, err)
	}

	return body, cleanETag(resp.Header.Get("ETag")), nil
}

// cleanETag removes quotes and the W/ prefix
func cleanETag(etag string) string {
	etag = strings.ReplaceAll(etag, "\"", "")
	return strings.TrimPrefix(etag, "W/")
}
