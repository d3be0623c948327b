package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable the gateway reads.
// API_GW_PORT maps to "port", API_GW_PARSER__LIMIT to "parser.limit".
const EnvPrefix = "API_GW_"

// DefaultConfigFile is loaded when present and API_GW_CONFIG is not set.
const DefaultConfigFile = "gateway.yaml"

// Pipe names known by default.
const (
	PipeSwaggerControllers = "swagger_controllers"
	PipeAnyControllers     = "any_controllers"
)

type Config struct {
	Port      int                 `koanf:"port"`
	Server    ServerConfig        `koanf:"server"`
	Log       LogConfig           `koanf:"log"`
	CORS      CORSConfig          `koanf:"cors"`
	Parser    ParserConfig        `koanf:"parser"`
	Router    RouterConfig        `koanf:"router"`
	Pipelines map[string][]string `koanf:"pipelines"`
	Metrics   MetricsConfig       `koanf:"metrics"`
	Tracing   TracingConfig       `koanf:"tracing"`
}

type ServerConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

// CORSConfig drives the cors stage. AllowOrigin is always the request Origin.
type CORSConfig struct {
	AllowMethods  []string `koanf:"allow_methods"`
	AllowHeaders  []string `koanf:"allow_headers"`
	ExposeHeaders []string `koanf:"expose_headers"`
	MaxAge        int      `koanf:"max_age"` // seconds
}

// ParserConfig drives the params_parser stage.
type ParserConfig struct {
	Types []string `koanf:"types"` // "json" or media ranges like "application/*+json"
	Limit int64    `koanf:"limit"` // bytes
}

type RouterConfig struct {
	DefaultPipe string `koanf:"default_pipe"`
	MockMode    bool   `koanf:"mock_mode"`
}

type MetricsConfig struct {
	Addr string `koanf:"addr"` // empty disables the metrics listener
	Path string `koanf:"path"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// DefaultAllowHeaders is the fixed header allow-list answered to pre-flights.
var DefaultAllowHeaders = []string{
	"Accept",
	"Accept-Encoding",
	"Accept-Version",
	"Allow",
	"Authorization",
	"Cache-Control",
	"Content-Type",
	"Origin",
	"Pragma",
	"Set-Cookie",
	"X-Prototype-Version",
	"X-Requested-With",
	"X-Sagely-Client",
}

// defaults holds every default value. Each key is only set when no source
// provided it.
var defaults = map[string]any{
	"port":                 7111,
	"server.timeout":       "30s",
	"log.level":            "info",
	"log.format":           "json",
	"cors.allow_methods":   []string{"POST", "GET", "PUT", "DELETE", "OPTIONS"},
	"cors.allow_headers":   DefaultAllowHeaders,
	"cors.expose_headers":  []string{"X-Server-Version"},
	"cors.max_age":         60 * 60 * 24 * 365,
	"parser.types":         []string{"json", "application/*+json"},
	"parser.limit":         5 * 1024 * 1024,
	"router.default_pipe":  PipeSwaggerControllers,
	"router.mock_mode":     true,
	"metrics.path":         "/metrics",
	"tracing.service_name": "openapi-gateway",
}

// DefaultPipelines returns the two built-in pipe definitions.
func DefaultPipelines() map[string][]string {
	return map[string][]string{
		PipeSwaggerControllers: {"cors", "params_parser", "router"},
		PipeAnyControllers:     {"cors", "any_handler", "params_parser", "router"},
	}
}

// Load reads configuration from the optional YAML file and the environment.
// Environment variables override the file.
func Load() (*Config, error) {
	k := koanf.New(".")

	path := os.Getenv(EnvPrefix + "CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// A missing default file is fine, a missing explicit one is not
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	return unmarshal(k)
}

// Default returns the configuration with only defaults applied.
func Default() *Config {
	cfg, err := unmarshal(koanf.New("."))
	if err != nil {
		// defaults are static; failing here is a programming error
		panic(err)
	}
	return cfg
}

// AnyPipes returns the sorted names of the pipes that run any_handler. Routes
// using one of them also answer methods the document does not declare.
func (c *Config) AnyPipes() []string {
	var names []string
	for name, stages := range c.Pipelines {
		if slices.Contains(stages, "any_handler") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if key == "config" {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Comma separated env values arrive as a single string element
	cfg.CORS.AllowMethods = splitList(cfg.CORS.AllowMethods)
	cfg.CORS.AllowHeaders = splitList(cfg.CORS.AllowHeaders)
	cfg.CORS.ExposeHeaders = splitList(cfg.CORS.ExposeHeaders)
	cfg.Parser.Types = splitList(cfg.Parser.Types)

	pipes := DefaultPipelines()
	for name, stages := range cfg.Pipelines {
		pipes[name] = splitList(stages)
	}
	cfg.Pipelines = pipes

	return &cfg, nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
