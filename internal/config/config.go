package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/colsearch/internal/domain"
)

// Environment variables that override the core serving settings.
const (
	EnvIndexRoot    = "COLBERT_SERVICE_INDEX_ROOT"
	EnvIndexName    = "COLBERT_SERVICE_INDEX_NAME"
	EnvMetadataPath = "COLBERT_SERVICE_METADATA_PATH"
	EnvDefaultK     = "COLBERT_SERVICE_DEFAULT_K"
	EnvEngineURL    = "COLBERT_SERVICE_ENGINE_URL"
)

// Backend initialization modes.
const (
	InitEager = "eager"
	InitLazy  = "lazy"
)

// Config holds the colsearch service configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Index   IndexConfig   `yaml:"index"`
	Search  SearchConfig  `yaml:"search"`
	Engine  EngineConfig  `yaml:"engine"`
	Backend BackendConfig `yaml:"backend"`
	Cache   CacheConfig   `yaml:"cache"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// IndexConfig locates the index artifact and the metadata file.
type IndexConfig struct {
	Root         string `yaml:"root"`
	Name         string `yaml:"name"`
	MetadataPath string `yaml:"metadata_path"`
}

// Dir returns the directory holding the named index.
func (c IndexConfig) Dir() string {
	return filepath.Join(c.Root, c.Name)
}

// SearchConfig holds request defaults and limits.
type SearchConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
}

// EngineConfig holds the retrieval engine endpoint settings.
type EngineConfig struct {
	URL               string `yaml:"url"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	ReadyTimeoutSec   int    `yaml:"ready_timeout_sec"`
}

// BackendConfig controls when the backend is constructed.
type BackendConfig struct {
	InitMode string `yaml:"init_mode"` // eager (default) | lazy
}

// CacheConfig holds the optional search result cache settings.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Driver           string   `yaml:"driver"` // redis, valkey (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLSec           int      `yaml:"ttl_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process environment.
// Variables already set are kept. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if !fileExists(p) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("%w: load %s: %w", domain.ErrConfiguration, p, err)
		}
	}
	return nil
}

// Load reads configuration by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from a YAML file, then applies environment overrides and defaults.
// A missing file is allowed: the service can be configured from the environment alone.
func LoadFile(configPath string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(filepath.Clean(configPath))
	switch {
	case err == nil:
		// Substitute env variables of the form ${VAR}
		data = expandEnvVars(data)
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %w", domain.ErrConfiguration, configPath, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("%w: read %s: %w", domain.ErrConfiguration, configPath, err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyEnv overrides the core serving settings from COLBERT_SERVICE_* variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvIndexRoot); ok && v != "" {
		c.Index.Root = v
	}
	if v, ok := os.LookupEnv(EnvIndexName); ok && v != "" {
		c.Index.Name = v
	}
	if v, ok := os.LookupEnv(EnvMetadataPath); ok && v != "" {
		c.Index.MetadataPath = v
	}
	if v, ok := os.LookupEnv(EnvEngineURL); ok && v != "" {
		c.Engine.URL = v
	}
	if v, ok := os.LookupEnv(EnvDefaultK); ok && v != "" {
		k, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrConfiguration, EnvDefaultK, v)
		}
		if k <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", domain.ErrConfiguration, EnvDefaultK, k)
		}
		c.Search.DefaultK = k
	}
	return nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Index.Root == "" {
		c.Index.Root = "data/index"
	}
	if c.Index.Name == "" {
		c.Index.Name = "wiki17_abstracts"
	}
	if c.Index.MetadataPath == "" {
		c.Index.MetadataPath = "data/raw/wiki17/documents.jsonl"
	}
	if c.Search.DefaultK == 0 {
		c.Search.DefaultK = 10
	}
	if c.Search.MaxK <= 0 {
		c.Search.MaxK = 100
	}
	if c.Engine.URL == "" {
		c.Engine.URL = "http://127.0.0.1:8893"
	}
	if c.Engine.RequestTimeoutSec <= 0 {
		c.Engine.RequestTimeoutSec = 30
	}
	if c.Engine.ReadyTimeoutSec <= 0 {
		c.Engine.ReadyTimeoutSec = 300
	}
	if c.Backend.InitMode == "" {
		c.Backend.InitMode = InitEager
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "valkey"
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 3600
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
// Every error wraps domain.ErrConfiguration.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return configErrorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.DefaultK <= 0 {
		return configErrorf("search.default_k must be positive, got %d", c.Search.DefaultK)
	}
	if c.Search.DefaultK > c.Search.MaxK {
		return configErrorf("search.default_k (%d) exceeds search.max_k (%d)", c.Search.DefaultK, c.Search.MaxK)
	}
	if c.Index.Name == "" {
		return configErrorf("index.name is required")
	}
	if !dirExists(c.Index.Root) {
		return configErrorf("index.root %q does not exist or is not a directory", c.Index.Root)
	}
	if !fileExists(c.Index.MetadataPath) {
		return configErrorf("index.metadata_path %q does not exist", c.Index.MetadataPath)
	}
	switch c.Backend.InitMode {
	case InitEager, InitLazy:
		// ok
	default:
		return configErrorf("backend.init_mode must be %q or %q, got %q", InitEager, InitLazy, c.Backend.InitMode)
	}
	u, err := url.Parse(c.Engine.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return configErrorf("engine.url must be an absolute URL, got %q", c.Engine.URL)
	}
	if c.Cache.Enabled {
		switch c.Cache.Driver {
		case "valkey", "redis":
			// ok
		default:
			return configErrorf("cache.driver must be \"valkey\" or \"redis\", got %q", c.Cache.Driver)
		}
		if len(c.Cache.Addrs) == 0 {
			return configErrorf("cache.addrs is required when cache is enabled")
		}
	}
	return nil
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrConfiguration, fmt.Sprintf(format, args...))
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
