package fetcher

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/htmlindex"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	utf8BOM   = []byte{0xef, 0xbb, 0xbf}
)

// Decode turns a raw list body into UTF-8 text. Gzip data is detected by its
// magic bytes; the charset comes from contentType and defaults to UTF-8.
func Decode(raw []byte, contentType string) ([]byte, error) {
	body := raw
	if bytes.HasPrefix(body, gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		body, err = io.ReadAll(io.LimitReader(zr, maxListSize+1))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		if len(body) > maxListSize {
			return nil, fmt.Errorf("list exceeds %d bytes", maxListSize)
		}
	}

	if cs := charsetOf(contentType); cs != "" && cs != "utf-8" && cs != "utf8" {
		enc, err := htmlindex.Get(cs)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q", cs)
		}
		body, err = enc.NewDecoder().Bytes(body)
		if err != nil {
			return nil, fmt.Errorf("charset %s: %w", cs, err)
		}
	}

	return bytes.TrimPrefix(body, utf8BOM), nil
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

// SplitLines splits a list body into lines, dropping line terminators. A
// trailing newline does not produce an extra empty line.
func SplitLines(body []byte) []string {
	if len(body) == 0 {
		return nil
	}
	text := strings.TrimSuffix(string(body), "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
