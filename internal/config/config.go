package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sitewright/sitewright/internal/foundation/errors"
	"github.com/sitewright/sitewright/internal/logfields"
)

// Config represents the application configuration.
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Content ContentConfig `yaml:"content"`
	Output  OutputConfig  `yaml:"output"`
	Watch   WatchConfig   `yaml:"watch"`
	Serve   ServeConfig   `yaml:"serve"`
	History HistoryConfig `yaml:"history"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// SiteConfig holds site-wide presentation settings.
type SiteConfig struct {
	Title         string         `yaml:"title"`
	Description   string         `yaml:"description,omitempty"`
	BaseURL       string         `yaml:"base_url,omitempty"`
	IncludeDrafts bool           `yaml:"include_drafts,omitempty"`
	AllowHTML     bool           `yaml:"allow_html,omitempty"` // pass raw HTML in Markdown through to output
	Params        map[string]any `yaml:"params,omitempty"`
}

// ContentConfig locates the source tree.
type ContentConfig struct {
	Dir     string `yaml:"dir"`               // Markdown sources
	Layouts string `yaml:"layouts,omitempty"` // optional template overrides
	Assets  string `yaml:"assets,omitempty"`  // optional static files copied verbatim
}

// OutputConfig locates the published tree. The staging and holding directories
// are derived as siblings of Dir and must live on the same filesystem volume,
// or the atomic publish rename cannot work.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// WatchConfig tunes watch mode. Durations are strings in time.ParseDuration
// syntax ("250ms", "2s").
type WatchConfig struct {
	Debounce     string   `yaml:"debounce,omitempty"`      // quiet window before a burst triggers a build
	MaxDelay     string   `yaml:"max_delay,omitempty"`     // upper bound on debounce deferral
	RebuildEvery string   `yaml:"rebuild_every,omitempty"` // optional periodic rebuild, empty disables
	Ignore       []string `yaml:"ignore,omitempty"`        // extra path substrings to ignore
}

// ServeConfig tunes the preview HTTP server used in watch mode.
type ServeConfig struct {
	Enabled    bool   `yaml:"enabled,omitempty"`
	Addr       string `yaml:"addr,omitempty"`
	LiveReload *bool  `yaml:"live_reload,omitempty"`
}

// HistoryConfig tunes the build-history store.
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
	Keep    int    `yaml:"keep,omitempty"` // retained build records, oldest pruned first
}

// NotifyConfig configures the optional NATS build announcer. Empty URL
// disables it.
type NotifyConfig struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// MetricsConfig toggles Prometheus metrics collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// LoggingConfig tunes log output.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Load loads configuration from the specified file, expanding ${VAR}
// references from the environment after loading any .env files.
func Load(configPath string) (*Config, error) {
	loadDotEnv()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, errors.ConfigError("failed to read configuration file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.ConfigError("failed to parse configuration file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	example := Config{
		Site: SiteConfig{
			Title:       "My Site",
			Description: "Built with sitewright",
			BaseURL:     "https://example.com",
		},
		Content: ContentConfig{
			Dir:     "content",
			Layouts: "layouts",
			Assets:  "static",
		},
		Output: OutputConfig{
			Dir: "public",
		},
		Watch: WatchConfig{
			Debounce: defaultDebounce,
			MaxDelay: defaultMaxDelay,
		},
		Serve: ServeConfig{
			Addr: defaultServeAddr,
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return errors.InternalError("failed to marshal example configuration").
			WithCause(err).
			Build()
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.FileSystemError("failed to write configuration file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}

	return nil
}

// loadDotEnv loads .env files if present. Values already set in the
// environment win.
func loadDotEnv() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Failed to load env file", logfields.File(name), logfields.Error(err))
			continue
		}
		slog.Debug("Loaded environment variables", logfields.File(name))
	}
}

// LiveReloadEnabled reports whether live reload is on. Defaults to on when
// serving.
func (s ServeConfig) LiveReloadEnabled() bool {
	if s.LiveReload == nil {
		return true
	}
	return *s.LiveReload
}

// HistoryEnabled reports whether build history is recorded. Defaults to on.
func (h HistoryConfig) HistoryEnabled() bool {
	if h.Enabled == nil {
		return true
	}
	return *h.Enabled
}

// Clean returns p cleaned, or empty when p is empty.
func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}
