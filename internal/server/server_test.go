package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xxxbrian/filterdict/internal/cache"
	"github.com/xxxbrian/filterdict/internal/server"
)

const easyList = "[Adblock Plus 2.0]\n! Title: EasyTest\n\n||ads.example.com^$third-party\nexample.com##.banner\n"

type fakeFetcher struct {
	body  string
	etag  string
	err   error
	calls atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, listURL string) ([]byte, string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte(f.body), f.etag, nil
}

func newTestServer(t *testing.T, f *fakeFetcher) (*httptest.Server, *cache.ResultCache) {
	t.Helper()
	return newConfiguredServer(t, f, server.Config{
		RepoURL: "https://github.com/xxxbrian/filterdict",
		Lists:   map[string]string{"easytest": "https://lists.example/easytest.txt"},
	})
}

func newConfiguredServer(t *testing.T, f *fakeFetcher, cfg server.Config) (*httptest.Server, *cache.ResultCache) {
	t.Helper()
	rc := cache.NewResultCache(time.Hour)
	srv := server.NewServer(f, rc, cfg)
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, rc
}

func get(t *testing.T, rawURL string) (*http.Response, string) {
	t.Helper()
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.String()
}

func TestHealthAndRoot(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFetcher{})

	resp, body := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)

	resp, _ = get(t, ts.URL+"/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://github.com/xxxbrian/filterdict", resp.Header.Get("Location"))

	resp, _ = get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLine(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFetcher{})

	q := url.Values{"text": {"||ads.example.com^$third-party"}}
	resp, body := get(t, ts.URL+"/line?"+q.Encode())
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{
		"text": "||ads.example.com^$third-party",
		"selector": {"type": "url-pattern", "value": "||ads.example.com^"},
		"action": "block",
		"options": {"third-party": true},
		"type": "Filter"
	}`, body)
}

func TestLineModesAndErrors(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFetcher{})

	q := url.Values{"text": {"! Homepage: https://x.test"}, "mode": {"metadata"}, "key_style": {"camel"}}
	resp, body := get(t, ts.URL+"/line?"+q.Encode())
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"key": "Homepage", "value": "https://x.test", "type": "Metadata"}`, body)

	tests := []struct {
		name string
		q    url.Values
		want int
	}{
		{"unknown instruction", url.Values{"text": {"%exec foo%"}}, http.StatusBadRequest},
		{"unknown mode", url.Values{"text": {"x"}, "mode": {"trailer"}}, http.StatusBadRequest},
		{"unknown encoding", url.Values{"text": {"x"}, "encoding": {"klingon"}}, http.StatusBadRequest},
		{"unknown format", url.Values{"text": {"x"}, "format": {"xml"}}, http.StatusBadRequest},
		{"bad where", url.Values{"text": {"x"}, "where": {"kind +"}}, http.StatusBadRequest},
		{"not selected", url.Values{"text": {"! hi"}, "where": {`kind == "Filter"`}}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, ts.URL+"/line?"+tt.q.Encode())
			assert.Equal(t, tt.want, resp.StatusCode, body)
		})
	}
}

func TestConvert(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFetcher{})

	resp, err := http.Post(ts.URL+"/convert", "text/plain", strings.NewReader(easyList))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var maps []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&maps))
	require.Len(t, maps, 5)

	types := make([]string, len(maps))
	for i, m := range maps {
		types[i] = m["type"].(string)
	}
	assert.Equal(t, []string{"Header", "Metadata", "EmptyLine", "Filter", "Filter"}, types)
	assert.Equal(t, "Adblock Plus 2.0", maps[0]["version"])
	assert.Equal(t, map[string]any{"domain": map[string]any{"example.com": true}}, maps[4]["options"])
}

func TestConvertBodyModeAndSelection(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFetcher{})

	q := url.Values{"mode": {"body"}, "where": {`kind == "Filter" && record.action == "hide"`}, "format": {"yaml"}}
	resp, err := http.Post(ts.URL+"/convert?"+q.Encode(), "text/plain", strings.NewReader(easyList))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/yaml; charset=utf-8", resp.Header.Get("Content-Type"))

	var maps []map[string]any
	require.NoError(t, yaml.NewDecoder(resp.Body).Decode(&maps))
	require.Len(t, maps, 1)
	assert.Equal(t, "example.com##.banner", maps[0]["text"])
}

func TestConvertParseError(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFetcher{})

	resp, err := http.Post(ts.URL+"/convert", "text/plain", strings.NewReader("||a.com^\n%oops%\n"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/convert")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "GET falls through to the root handler")
}

func TestListIndex(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFetcher{})

	resp, body := get(t, ts.URL+"/lists")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var index map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &index))
	assert.Equal(t, "https://lists.example/easytest.txt", index["easytest"]["source"])
	assert.Equal(t, ts.URL+"/lists/easytest", index["easytest"]["url"])
}

func TestListConversionIsCached(t *testing.T) {
	f := &fakeFetcher{body: easyList, etag: "v1"}
	ts, rc := newTestServer(t, f)

	resp, first := get(t, ts.URL+"/lists/easytest")
	require.Equal(t, http.StatusOK, resp.StatusCode, first)
	assert.Equal(t, 1, rc.Len())

	resp, second := get(t, ts.URL+"/lists/EasyTest")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, rc.Len())

	resp, _ = get(t, ts.URL+"/lists/easytest?format=yaml")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, rc.Len(), "each output shape has its own entry")
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestListErrors(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFetcher{err: errors.New("connection refused")})

	resp, _ := get(t, ts.URL+"/lists/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := get(t, ts.URL+"/lists/easytest")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "connection refused")
}

func TestLineEncodings(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFetcher{})

	tests := []struct {
		encoding string
		want     int
		text     string
	}{
		{"", http.StatusOK, "café"},
		{"native", http.StatusOK, "café"},
		{"utf-8", http.StatusOK, "café"},
		// non-UTF-8 bytes render as base64
		{"latin1", http.StatusOK, "Y2Fm6Q=="},
		{"klingon", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run("encoding="+tt.encoding, func(t *testing.T) {
			q := url.Values{"text": {"! café"}, "encoding": {tt.encoding}}
			resp, body := get(t, ts.URL+"/line?"+q.Encode())
			require.Equal(t, tt.want, resp.StatusCode, body)
			if tt.want != http.StatusOK {
				assert.Contains(t, body, "unknown output encoding")
				return
			}
			var m map[string]string
			require.NoError(t, json.Unmarshal([]byte(body), &m))
			assert.Equal(t, tt.text, m["text"])
			assert.Equal(t, "Comment", m["type"])
		})
	}
}

func TestConfiguredDefaults(t *testing.T) {
	ts, _ := newConfiguredServer(t, &fakeFetcher{}, server.Config{
		Defaults: server.Defaults{Encoding: "utf-8", KeyStyle: "snake", Format: "yaml"},
	})

	q := url.Values{"text": {"||a.com^$third-party"}}
	resp, body := get(t, ts.URL+"/line?"+q.Encode())
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "text/yaml; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "third_party: true")

	// query parameters still win over the defaults
	q.Set("format", "json")
	q.Set("key_style", "as-is")
	resp, body = get(t, ts.URL+"/line?"+q.Encode())
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, `"third-party": true`)
}

func TestMixedCaseListName(t *testing.T) {
	f := &fakeFetcher{body: easyList, etag: "v1"}
	ts, _ := newConfiguredServer(t, f, server.Config{
		Lists: map[string]string{"EasyList": "https://lists.example/easylist.txt"},
	})

	resp, body := get(t, ts.URL+"/lists")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var index map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &index))
	require.Contains(t, index, "easylist")
	advertised := index["easylist"]["url"]
	assert.Equal(t, ts.URL+"/lists/easylist", advertised)

	for _, path := range []string{advertised, ts.URL + "/lists/EasyList", ts.URL + "/lists/EASYLIST"} {
		resp, body := get(t, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "%s: %s", path, body)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	handler := server.LoggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lists/old", nil))

	assert.Equal(t, http.StatusGone, rec.Code)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/lists/old", entry["path"])
	assert.Equal(t, float64(http.StatusGone), entry["status"])
}
