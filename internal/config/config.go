// Package config loads filterdict settings from flags and an optional YAML file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xxxbrian/filterdict/internal/filters"
	"github.com/xxxbrian/filterdict/internal/normalizer"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// ModeList selects list position rules instead of a fixed parsing mode.
const ModeList = "list"

// Config holds application configuration.
type Config struct {
	Port            string            `yaml:"port"`
	ListTTL         time.Duration     `yaml:"list_ttl"`
	ResultTTL       time.Duration     `yaml:"result_ttl"`
	ListCachePath   string            `yaml:"list_cache_path"`
	RefreshInterval time.Duration     `yaml:"refresh_interval"`
	RepoURL         string            `yaml:"repo_url"`
	Encoding        string            `yaml:"encoding"`
	KeyStyle        string            `yaml:"key_style"`
	Format          string            `yaml:"format"`
	Lists           map[string]string `yaml:"lists"`

	// One-shot conversion settings, flags only.
	ConvertPath string `yaml:"-"`
	Mode        string `yaml:"-"`
	Where       string `yaml:"-"`
	Verbose     bool   `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:            "8080",
		ListTTL:         30 * time.Minute,
		ResultTTL:       24 * time.Hour,
		RefreshInterval: 30 * time.Minute,
		RepoURL:         "https://github.com/xxxbrian/filterdict",
		Encoding:        "native",
		KeyStyle:        "as-is",
		Format:          "json",
		Mode:            ModeList,
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Parse builds a Config from command line arguments. When -config names a
// YAML file it is loaded first and flags given explicitly override it.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	def := Default()
	flags := *def

	var path string
	fs.StringVar(&path, "config", "", "Optional YAML config path")
	fs.StringVar(&flags.Port, "port", def.Port, "Port to listen on")
	fs.DurationVar(&flags.ListTTL, "list-ttl", def.ListTTL, "Filter list cache TTL")
	fs.DurationVar(&flags.ResultTTL, "result-ttl", def.ResultTTL, "Result cache TTL")
	fs.StringVar(&flags.ListCachePath, "list-cache-path", "", "List cache persistence file path (optional)")
	fs.DurationVar(&flags.RefreshInterval, "refresh-interval", def.RefreshInterval, "Interval to refresh subscribed lists (0 to disable)")
	fs.StringVar(&flags.RepoURL, "repo-url", def.RepoURL, "Redirect target for /")
	fs.StringVar(&flags.Encoding, "encoding", def.Encoding, "Default output encoding for -convert and HTTP requests: native, utf-8 or a charset name")
	fs.StringVar(&flags.KeyStyle, "key-style", def.KeyStyle, "Default field name style: as-is, snake or camel")
	fs.StringVar(&flags.Format, "format", def.Format, "Default output format: json or yaml")
	fs.StringVar(&flags.ConvertPath, "convert", "", "Convert a local filter list and exit")
	fs.StringVar(&flags.Mode, "mode", def.Mode, "Parsing mode for -convert: list, body, start or metadata")
	fs.StringVar(&flags.Where, "where", "", "CEL expression selecting records")
	fs.BoolVar(&flags.Verbose, "v", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := def
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = flags.Port
		case "list-ttl":
			cfg.ListTTL = flags.ListTTL
		case "result-ttl":
			cfg.ResultTTL = flags.ResultTTL
		case "list-cache-path":
			cfg.ListCachePath = flags.ListCachePath
		case "refresh-interval":
			cfg.RefreshInterval = flags.RefreshInterval
		case "repo-url":
			cfg.RepoURL = flags.RepoURL
		case "encoding":
			cfg.Encoding = flags.Encoding
		case "key-style":
			cfg.KeyStyle = flags.KeyStyle
		case "format":
			cfg.Format = flags.Format
		}
	})
	cfg.ConvertPath = flags.ConvertPath
	cfg.Mode = flags.Mode
	cfg.Where = flags.Where
	cfg.Verbose = flags.Verbose

	return cfg, nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %q", ErrInvalid, c.Port)
	}
	if c.ListTTL <= 0 {
		return fmt.Errorf("%w: list_ttl must be positive", ErrInvalid)
	}
	if c.ResultTTL <= 0 {
		return fmt.Errorf("%w: result_ttl must be positive", ErrInvalid)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("%w: refresh_interval must not be negative", ErrInvalid)
	}
	if _, err := normalizer.LookupEncoding(c.Encoding); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := normalizer.ParseKeyStyle(c.KeyStyle); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := ValidateFormat(c.Format); err != nil {
		return err
	}
	if c.Mode != ModeList {
		if _, err := filters.ParseMode(c.Mode); err != nil {
			return fmt.Errorf("%w: mode %q", ErrInvalid, c.Mode)
		}
	}
	seen := make(map[string]string, len(c.Lists))
	for name, raw := range c.Lists {
		if name == "" || strings.Contains(name, "/") {
			return fmt.Errorf("%w: list name %q", ErrInvalid, name)
		}
		// names are matched case-insensitively
		folded := strings.ToLower(name)
		if other, ok := seen[folded]; ok {
			return fmt.Errorf("%w: list names %q and %q collide", ErrInvalid, other, name)
		}
		seen[folded] = name
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: list %s url %q", ErrInvalid, name, raw)
		}
	}
	return nil
}

// ValidateFormat accepts the supported output formats.
func ValidateFormat(format string) error {
	switch format {
	case "json", "yaml":
		return nil
	}
	return fmt.Errorf("%w: format %q", ErrInvalid, format)
}
