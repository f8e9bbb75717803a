// Package server provides the HTTP server and routing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xxxbrian/filterdict/internal/cache"
	"github.com/xxxbrian/filterdict/internal/config"
	"github.com/xxxbrian/filterdict/internal/fetcher"
	"github.com/xxxbrian/filterdict/internal/filters"
	"github.com/xxxbrian/filterdict/internal/normalizer"
	"github.com/xxxbrian/filterdict/internal/query"
)

const maxBodySize = 16 << 20

var (
	errBadRequest  = errors.New("bad request")
	errUnknownList = errors.New("unknown list")
	errUpstream    = errors.New("upstream failure")
)

// Fetcher is the part of fetcher.Fetcher the server needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Server represents the HTTP server
type Server struct {
	fetcher     Fetcher
	resultCache *cache.ResultCache
	repoURL     string
	lists       map[string]string
	defaults    Defaults
	logger      *slog.Logger
}

// Defaults are the output settings used when a request leaves the matching
// query parameter empty.
type Defaults struct {
	Encoding string
	KeyStyle string
	Format   string
}

// Config contains server configuration.
type Config struct {
	RepoURL  string
	// Lists maps subscription names to filter list URLs. Names are matched
	// case-insensitively.
	Lists    map[string]string
	Defaults Defaults
	Logger   *slog.Logger
}

// NewServer creates a new Server
func NewServer(f Fetcher, rc *cache.ResultCache, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lists := make(map[string]string, len(cfg.Lists))
	for name, listURL := range cfg.Lists {
		lists[strings.ToLower(name)] = listURL
	}
	defaults := cfg.Defaults
	if defaults.Encoding == "" {
		defaults.Encoding = "native"
	}
	if defaults.Format == "" {
		defaults.Format = "json"
	}
	return &Server{
		fetcher:     f,
		resultCache: rc,
		repoURL:     cfg.RepoURL,
		lists:       lists,
		defaults:    defaults,
		logger:      logger,
	}
}

// SetupRoutes configures the HTTP routes
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /line", s.handleLine)
	mux.HandleFunc("POST /convert", s.handleConvert)
	mux.HandleFunc("GET /lists", s.handleListIndex)
	mux.HandleFunc("GET /lists/{name}", s.handleList)
}

// handleRoot redirects to the project repository
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, s.repoURL, http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// handleLine converts the single line given in ?text=
func (s *Server) handleLine(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := s.parseOutputOptions(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	mode, err := parseLineMode(q.Get("mode"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	m, err := opts.newNormalizer().LineToMap(q.Get("text"), mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	matched, err := opts.match(m)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !matched {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	encoded, err := normalizer.Encode(m, opts.encoding)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body []byte
	if opts.format == "yaml" {
		body, err = normalizer.RenderYAMLValue(encoded)
	} else {
		body, err = normalizer.RenderJSONValue(encoded)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, opts.format, body, "no-store")
}

// handleConvert converts a filter list posted as the request body
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	opts, err := s.parseOutputOptions(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = config.ModeList
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	body, err := fetcher.Decode(raw, r.Header.Get("Content-Type"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	out, err := opts.convert(fetcher.SplitLines(body), mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, opts.format, out, "no-store")
}

// handleListIndex returns the JSON index of subscribed lists
func (s *Server) handleListIndex(w http.ResponseWriter, r *http.Request) {
	body, err := buildIndex(s.lists, buildBaseURL(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=1800")
	_, _ = w.Write(body)
}

// handleList handles /lists/{name} requests
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(strings.TrimSpace(r.PathValue("name")))
	listURL, ok := s.lists[name]
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: %s", errUnknownList, name))
		return
	}

	q := r.URL.Query()
	opts, err := s.parseOutputOptions(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body, etag, err := s.fetcher.Fetch(r.Context(), listURL)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errUpstream, err))
		return
	}

	cacheKey := cache.ResultKey(name, opts.encoding.Name(), opts.style.String(), opts.format, q.Get("where"))
	if result, ok := s.resultCache.Get(cacheKey, etag); ok {
		s.logger.Debug("result cache hit", "list", name, "key", cacheKey, "etag", truncateETag(etag))
		writeResult(w, opts.format, result, "public, max-age=1800")
		return
	}

	s.logger.Debug("result cache miss, converting", "list", name, "key", cacheKey)

	out, err := opts.convert(fetcher.SplitLines(body), config.ModeList)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.resultCache.Set(cacheKey, out, etag)
	s.logger.Info("converted and cached list", "list", name, "bytes", len(out), "etag", truncateETag(etag))

	writeResult(w, opts.format, out, "public, max-age=1800")
}

func writeResult(w http.ResponseWriter, format string, body []byte, cacheControl string) {
	contentType := "application/json"
	if format == "yaml" {
		contentType = "text/yaml; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)
	_, _ = w.Write(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	var parseErr *filters.ParseError
	switch {
	case errors.As(err, &parseErr), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errUnknownList):
		return http.StatusNotFound
	case errors.Is(err, errUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func parseLineMode(name string) (filters.Mode, error) {
	if name == "" {
		return filters.ModeBody, nil
	}
	return filters.ParseMode(name)
}

// outputOptions are the query parameters shared by every conversion route.
type outputOptions struct {
	encoding normalizer.Encoding
	style    normalizer.KeyStyle
	format   string
	where    *query.Selector
}

func (s *Server) parseOutputOptions(q url.Values) (outputOptions, error) {
	var opts outputOptions

	encName := q.Get("encoding")
	if encName == "" {
		encName = s.defaults.Encoding
	}
	enc, err := normalizer.LookupEncoding(encName)
	if err != nil {
		return opts, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	opts.encoding = enc

	styleName := q.Get("key_style")
	if styleName == "" {
		styleName = s.defaults.KeyStyle
	}
	opts.style, err = normalizer.ParseKeyStyle(styleName)
	if err != nil {
		return opts, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	opts.format = q.Get("format")
	if opts.format == "" {
		opts.format = s.defaults.Format
	}
	if err := config.ValidateFormat(opts.format); err != nil {
		return opts, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	if expr := q.Get("where"); expr != "" {
		opts.where, err = query.Compile(expr)
		if err != nil {
			return opts, fmt.Errorf("%w: where: %v", errBadRequest, err)
		}
	}
	return opts, nil
}

// newNormalizer converts to native text so selection sees plain strings; the
// requested encoding is applied afterwards.
func (o outputOptions) newNormalizer() *normalizer.Normalizer {
	return normalizer.New(nil, normalizer.Options{Encoding: normalizer.Native, KeyStyle: o.style})
}

func (o outputOptions) match(m normalizer.Map) (bool, error) {
	if o.where == nil {
		return true, nil
	}
	ok, err := o.where.Match(m)
	if err != nil {
		return false, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return ok, nil
}

// convert runs lines through parse, select, encode and render.
func (o outputOptions) convert(lines []string, mode string) ([]byte, error) {
	n := o.newNormalizer()

	var (
		maps []normalizer.Map
		err  error
	)
	if mode == config.ModeList {
		maps, err = n.ListToMaps(lines)
	} else {
		m, perr := filters.ParseMode(mode)
		if perr != nil {
			return nil, perr
		}
		maps, err = n.LinesToMaps(lines, m)
	}
	if err != nil {
		return nil, err
	}

	maps, err = o.where.Filter(maps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	maps, err = normalizer.EncodeMaps(maps, o.encoding)
	if err != nil {
		return nil, err
	}

	if o.format == "yaml" {
		return normalizer.RenderYAML(maps)
	}
	return normalizer.RenderJSON(maps)
}

// indexEntry describes one subscription in the /lists index.
type indexEntry struct {
	Source string `json:"source"`
	URL    string `json:"url"`
}

func buildIndex(lists map[string]string, baseURL string) ([]byte, error) {
	// encoding/json sorts map keys
	index := make(map[string]indexEntry, len(lists))
	for name, source := range lists {
		index[name] = indexEntry{
			Source: source,
			URL:    strings.TrimRight(baseURL, "/") + "/" + name,
		}
	}
	return json.MarshalIndent(index, "", "  ")
}

func buildBaseURL(r *http.Request) string {
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		if r.TLS != nil {
			proto = "https"
		} else {
			proto = "http"
		}
	}
	return proto + "://" + host + "/lists"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware logs all HTTP requests
func LoggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// truncateETag truncates ETag for logging
func truncateETag(etag string) string {
	if len(etag) > 8 {
		return etag[:8]
	}
	return etag
}
