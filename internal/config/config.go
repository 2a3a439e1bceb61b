package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"bundlegraph/internal/module"
)

// ConfigName is the base name searched for in the project root; viper accepts .toml, .yaml and .json
const ConfigName = "bundler"

// ConfigFile is the file written by Save when no path is given
const ConfigFile = ConfigName + ".toml"

// EnvPrefix prefixes environment overrides, e.g. BUNDLER_BAIL=true or BUNDLER_CACHE_PERSISTENT=false
const EnvPrefix = "BUNDLER"

// CurrentVersion is the only supported schema version
const CurrentVersion = 1

// Config represents the complete bundler configuration
type Config struct {
	Version int `json:"version" mapstructure:"version" toml:"version"`
	// Context is the project root entries resolve from. Relative paths are taken from the config file's directory.
	Context     string            `json:"context" mapstructure:"context" toml:"context"`
	Entries     map[string]string `json:"entries" mapstructure:"entries" toml:"entries"`
	Bail        bool              `json:"bail" mapstructure:"bail" toml:"bail"`
	Parallelism int               `json:"parallelism" mapstructure:"parallelism" toml:"parallelism"`
	// Externals are requests left out of the graph, e.g. runtime-provided packages
	Externals []string `json:"externals" mapstructure:"externals" toml:"externals"`

	Resolve ResolveConfig `json:"resolve" mapstructure:"resolve" toml:"resolve"`
	Cache   CacheConfig   `json:"cache" mapstructure:"cache" toml:"cache"`
	Watch   WatchConfig   `json:"watch" mapstructure:"watch" toml:"watch"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics" toml:"metrics"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging" toml:"logging"`
}

// ResolveConfig configures the filesystem resolver.
// Alias keys go through viper's key handling, which lowercases them and splits on dots;
// aliases with such keys belong in AliasFile.
type ResolveConfig struct {
	Extensions []string          `json:"extensions" mapstructure:"extensions" toml:"extensions"`
	MainFiles  []string          `json:"mainFiles" mapstructure:"mainFiles" toml:"mainFiles"`
	Modules    []string          `json:"modules" mapstructure:"modules" toml:"modules"`
	Alias      map[string]string `json:"alias" mapstructure:"alias" toml:"alias,omitempty"`
	AliasFile  string            `json:"aliasFile" mapstructure:"aliasFile" toml:"aliasFile,omitempty"`
}

// CacheConfig configures the build cache
type CacheConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled" toml:"enabled"`
	Persistent bool   `json:"persistent" mapstructure:"persistent" toml:"persistent"`
	Directory  string `json:"directory" mapstructure:"directory" toml:"directory"`
	// MaxAgeHours prunes persisted entries older than this when a session opens; 0 keeps everything
	MaxAgeHours int `json:"maxAgeHours" mapstructure:"maxAgeHours" toml:"maxAgeHours"`
}

// WatchConfig configures watch mode. Ignore patterns use filepath.Match syntax and are
// tested against every segment of a changed path.
type WatchConfig struct {
	DebounceMs int      `json:"debounceMs" mapstructure:"debounceMs" toml:"debounceMs"`
	Ignore     []string `json:"ignore" mapstructure:"ignore" toml:"ignore"`
}

// MetricsConfig configures the Prometheus endpoint served in watch mode
type MetricsConfig struct {
	Listen string `json:"listen" mapstructure:"listen" toml:"listen,omitempty"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format" toml:"format"`
	Level  string `json:"level" mapstructure:"level" toml:"level"`
	File   string `json:"file" mapstructure:"file" toml:"file,omitempty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:     CurrentVersion,
		Context:     ".",
		Entries:     map[string]string{"main": "./src/index.js"},
		Bail:        false,
		Parallelism: 0,
		Externals:   []string{},
		Resolve: ResolveConfig{
			Extensions: []string{".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx", ".json"},
			MainFiles:  []string{"index"},
			Modules:    []string{"node_modules"},
		},
		Cache: CacheConfig{
			Enabled:     true,
			Persistent:  false,
			Directory:   ".bundler-cache",
			MaxAgeHours: 24 * 7,
		},
		Watch: WatchConfig{
			DebounceMs: 100,
			Ignore:     []string{"node_modules", ".git", ".bundler-cache", "*.swp", "*~"},
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// setDefaults registers every default so that environment overrides apply to all keys
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("version", cfg.Version)
	v.SetDefault("context", cfg.Context)
	v.SetDefault("bail", cfg.Bail)
	v.SetDefault("parallelism", cfg.Parallelism)
	v.SetDefault("externals", cfg.Externals)
	v.SetDefault("resolve.extensions", cfg.Resolve.Extensions)
	v.SetDefault("resolve.mainFiles", cfg.Resolve.MainFiles)
	v.SetDefault("resolve.modules", cfg.Resolve.Modules)
	v.SetDefault("resolve.aliasFile", cfg.Resolve.AliasFile)
	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.persistent", cfg.Cache.Persistent)
	v.SetDefault("cache.directory", cfg.Cache.Directory)
	v.SetDefault("cache.maxAgeHours", cfg.Cache.MaxAgeHours)
	v.SetDefault("watch.debounceMs", cfg.Watch.DebounceMs)
	v.SetDefault("watch.ignore", cfg.Watch.Ignore)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads bundler.{toml,yaml,json} from root. Without a config file the defaults
// apply, still subject to environment overrides.
func LoadConfig(root string) (*Config, error) {
	v := newViper()
	v.SetConfigName(ConfigName)
	v.AddConfigPath(root)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return unmarshal(v, root)
}

// LoadConfigFromPath loads the configuration from an explicit file
func LoadConfigFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return unmarshal(v, filepath.Dir(path))
}

func unmarshal(v *viper.Viper, base string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if !filepath.IsAbs(cfg.Context) {
		abs, err := filepath.Abs(filepath.Join(base, cfg.Context))
		if err != nil {
			return nil, err
		}
		cfg.Context = abs
	}
	return &cfg, nil
}

// Save writes the configuration as TOML to path
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: fmt.Sprintf("unsupported version %d", c.Version)}
	}
	if c.Parallelism < 0 {
		return &ConfigError{Field: "parallelism", Message: "must not be negative"}
	}
	for name, request := range c.Entries {
		if request == "" {
			return &ConfigError{Field: "entries." + name, Message: "empty request"}
		}
	}
	for _, ext := range c.Resolve.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return &ConfigError{Field: "resolve.extensions", Message: fmt.Sprintf("extension %q must start with a dot", ext)}
		}
	}
	if c.Cache.Persistent && !c.Cache.Enabled {
		return &ConfigError{Field: "cache.persistent", Message: "requires cache.enabled"}
	}
	if c.Cache.MaxAgeHours < 0 {
		return &ConfigError{Field: "cache.maxAgeHours", Message: "must not be negative"}
	}
	if c.Watch.DebounceMs < 0 {
		return &ConfigError{Field: "watch.debounceMs", Message: "must not be negative"}
	}
	for _, pattern := range c.Watch.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return &ConfigError{Field: "watch.ignore", Message: fmt.Sprintf("bad pattern %q", pattern)}
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	return nil
}

// Workers returns the worker count, defaulting to GOMAXPROCS
func (c *Config) Workers() int {
	if c.Parallelism > 0 {
		return c.Parallelism
	}
	return runtime.GOMAXPROCS(0)
}

// ResolveOptions converts the resolve section for factories
func (c *Config) ResolveOptions() *module.ResolveOptions {
	opts := &module.ResolveOptions{
		Extensions: append([]string(nil), c.Resolve.Extensions...),
		MainFiles:  append([]string(nil), c.Resolve.MainFiles...),
		Modules:    append([]string(nil), c.Resolve.Modules...),
	}
	if len(c.Resolve.Alias) > 0 {
		opts.Alias = make(map[string]string, len(c.Resolve.Alias))
		for k, v := range c.Resolve.Alias {
			opts.Alias[k] = v
		}
	}
	return opts
}

// CacheDirectory returns the persistent cache directory resolved against the context
func (c *Config) CacheDirectory() string {
	if filepath.IsAbs(c.Cache.Directory) {
		return c.Cache.Directory
	}
	return filepath.Join(c.Context, c.Cache.Directory)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
