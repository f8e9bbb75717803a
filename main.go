// filterdict server
// Converts Adblock Plus filter lists into plain JSON or YAML records
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/xxxbrian/filterdict/internal/cache"
	"github.com/xxxbrian/filterdict/internal/config"
	"github.com/xxxbrian/filterdict/internal/fetcher"
	"github.com/xxxbrian/filterdict/internal/filters"
	"github.com/xxxbrian/filterdict/internal/normalizer"
	"github.com/xxxbrian/filterdict/internal/query"
	"github.com/xxxbrian/filterdict/internal/server"
)

func main() {
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(2)
	}

	if cfg.ConvertPath != "" {
		if err := convertFile(os.Stdout, cfg); err != nil {
			logger.Error("conversion failed", "path", cfg.ConvertPath, "err", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(cfg, logger); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

// convertFile converts a local filter list and writes the rendered records to w.
func convertFile(w io.Writer, cfg *config.Config) error {
	body, err := fetcher.ReadFile(cfg.ConvertPath)
	if err != nil {
		return err
	}
	lines := fetcher.SplitLines(body)

	style, err := normalizer.ParseKeyStyle(cfg.KeyStyle)
	if err != nil {
		return err
	}
	enc, err := normalizer.LookupEncoding(cfg.Encoding)
	if err != nil {
		return err
	}

	// select on native text, encode afterwards
	n := normalizer.New(nil, normalizer.Options{Encoding: normalizer.Native, KeyStyle: style})
	var maps []normalizer.Map
	if cfg.Mode == config.ModeList {
		maps, err = n.ListToMaps(lines)
	} else {
		mode, perr := filters.ParseMode(cfg.Mode)
		if perr != nil {
			return perr
		}
		maps, err = n.LinesToMaps(lines, mode)
	}
	if err != nil {
		return err
	}

	if cfg.Where != "" {
		sel, err := query.Compile(cfg.Where)
		if err != nil {
			return err
		}
		if maps, err = sel.Filter(maps); err != nil {
			return err
		}
	}

	if maps, err = normalizer.EncodeMaps(maps, enc); err != nil {
		return err
	}

	var out []byte
	if cfg.Format == "yaml" {
		out, err = normalizer.RenderYAML(maps)
	} else {
		out, err = normalizer.RenderJSON(maps)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	// Initialize caches
	listCache := cache.NewListCache(cfg.ListTTL)
	resultCache := cache.NewResultCache(cfg.ResultTTL)
	if cfg.ListCachePath != "" {
		listCache.SetPersistPath(cfg.ListCachePath)
		if err := listCache.LoadFromFile(cfg.ListCachePath); err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("failed to load list cache", "path", cfg.ListCachePath, "err", err)
			}
		} else {
			logger.Info("loaded list cache", "path", cfg.ListCachePath)
		}
	}

	f := fetcher.NewFetcher(listCache, logger)

	// request parameters fall back to the configured output settings
	defaults := server.Defaults{
		Encoding: cfg.Encoding,
		KeyStyle: cfg.KeyStyle,
		Format:   cfg.Format,
	}
	srv := server.NewServer(f, resultCache, server.Config{
		RepoURL:  cfg.RepoURL,
		Lists:    cfg.Lists,
		Defaults: defaults,
		Logger:   logger,
	})

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	handler := server.LoggingMiddleware(logger, mux)

	// Start cache cleanup goroutine
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resultCache.Cleanup()
		}
	}()

	if cfg.RefreshInterval > 0 && len(cfg.Lists) > 0 {
		go refreshLists(f, listCache, cfg, logger)
	}

	addr := ":" + cfg.Port
	logger.Info("starting filterdict server",
		"addr", addr,
		"list_ttl", cfg.ListTTL,
		"result_ttl", cfg.ResultTTL,
		"lists", len(cfg.Lists),
		"refresh_interval", cfg.RefreshInterval)

	return http.ListenAndServe(addr, handler)
}

// refreshLists keeps subscribed lists warm, logging when upstream changes.
func refreshLists(f *fetcher.Fetcher, lists *cache.ListCache, cfg *config.Config, logger *slog.Logger) {
	names := make([]string, 0, len(cfg.Lists))
	for name := range cfg.Lists {
		names = append(names, name)
	}
	sort.Strings(names)

	refresh := func() {
		for _, name := range names {
			url := cfg.Lists[name]
			before := lists.GetETag(url)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			_, after, err := f.Refresh(ctx, url)
			cancel()
			if err != nil {
				logger.Warn("list refresh failed", "list", name, "err", err)
				continue
			}
			if after != "" && after != before {
				logger.Info("list refreshed", "list", name, "etag", after)
			}
		}
	}

	refresh()
	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()
	for range ticker.C {
		refresh()
	}
}
