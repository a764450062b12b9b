package config

import (
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr string         `mapstructure:"listen_addr"`
	LogLevel   string         `mapstructure:"log_level"`
	Artifact   ArtifactConfig `mapstructure:"artifact"`
	Upstream   UpstreamConfig `mapstructure:"upstream"`
	Wasm       WasmConfig     `mapstructure:"wasm"`
}

// ArtifactConfig says where the wasm artifact comes from. Exactly one of
// Dir, Path, or URL should be set; Dir points at a directory carrying a
// manifest.yaml, Path at a bare .wasm file, URL at a remote artifact.
type ArtifactConfig struct {
	// Directory containing manifest.yaml and the wasm file.
	Dir string `mapstructure:"dir"`
	// Direct path to a wasm file (no manifest).
	Path string `mapstructure:"path"`
	// Remote artifact URL, fetched on startup (or on cold start).
	URL string `mapstructure:"url"`
	// Hex SHA-256 of the artifact. When set, a mismatch is fatal.
	SHA256 string `mapstructure:"sha256"`
	// Directory for caching remotely fetched artifacts.
	CacheDir string `mapstructure:"cache_dir"`
}

// UpstreamConfig controls the outbound fetch capability exposed to the guest.
type UpstreamConfig struct {
	// Base URL that relative guest URIs resolve against.
	BaseURL string `mapstructure:"base_url"`
	// Hosts (by suffix) the guest may fetch from.
	AllowedHosts []string `mapstructure:"allowed_hosts"`
	// Outbound request timeout (seconds).
	TimeoutSeconds int `mapstructure:"timeout"`
	// User-Agent applied when the guest didn't set one.
	UserAgent string `mapstructure:"user_agent"`
	// GET response cache.
	CacheSize       int `mapstructure:"cache_size"`
	CacheTTLSeconds int `mapstructure:"cache_ttl"`
}

// WasmConfig holds guest runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Enable debug logging.
	Debug bool `mapstructure:"debug"`
	// Guest execution timeout per request (seconds).
	ExecutionTimeout int `mapstructure:"execution_timeout"`
}

// Load reads configuration from an optional file, with env overrides
// (LIBREDGE_ prefix, dots as underscores) and defaults below.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LIBREDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	// Env values arrive as plain strings; list-valued keys like
	// upstream.allowed_hosts are comma-separated there.
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// FromEnv builds configuration from environment variables only. Used by the
// edge function entry point, where no config file is deployed.
func FromEnv() (*Config, error) {
	return Load("")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")

	v.SetDefault("artifact.dir", "")
	v.SetDefault("artifact.path", "")
	v.SetDefault("artifact.url", "")
	v.SetDefault("artifact.sha256", "")
	v.SetDefault("artifact.cache_dir", "./build/artifact-cache")

	v.SetDefault("upstream.base_url", "https://www.reddit.com")
	v.SetDefault("upstream.allowed_hosts", []string{
		"reddit.com",
		"redd.it",
		"redditmedia.com",
		"redditstatic.com",
	})
	v.SetDefault("upstream.timeout", 30)
	v.SetDefault("upstream.user_agent", "web:libredge:1.0")
	v.SetDefault("upstream.cache_size", 100)
	v.SetDefault("upstream.cache_ttl", 30)

	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.execution_timeout", 30)
}
