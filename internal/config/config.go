package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samsaffron/markview/internal/markdown"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AppName names the config directory.
const AppName = "markview"

type Config struct {
	Markdown MarkdownConfig `mapstructure:"markdown" yaml:"markdown"`
	Emoji    EmojiConfig    `mapstructure:"emoji" yaml:"emoji"`
	Serve    ServeConfig    `mapstructure:"serve" yaml:"serve"`
	Export   ExportConfig   `mapstructure:"export" yaml:"export"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// MarkdownConfig toggles pipeline features
type MarkdownConfig struct {
	Style      string `mapstructure:"style" yaml:"style"` // chroma style name
	Math       bool   `mapstructure:"math" yaml:"math"`
	Emoji      bool   `mapstructure:"emoji" yaml:"emoji"`
	Shortcodes bool   `mapstructure:"shortcodes" yaml:"shortcodes"`
}

// EmojiConfig holds the emoji image URL templates. {code} is replaced by the
// dash-joined hex code points of the sequence.
type EmojiConfig struct {
	PrimaryURL  string `mapstructure:"primary_url" yaml:"primary_url"`
	FallbackURL string `mapstructure:"fallback_url" yaml:"fallback_url"`
}

// ServeConfig configures the HTTP service
type ServeConfig struct {
	Host        string   `mapstructure:"host" yaml:"host"`
	Port        int      `mapstructure:"port" yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	CacheSize   int      `mapstructure:"cache_size" yaml:"cache_size"`     // render store capacity
	ConvertRate float64  `mapstructure:"convert_rate" yaml:"convert_rate"` // conversions per second, 0 disables the limit
}

// ExportConfig configures document conversion
type ExportConfig struct {
	GotenbergURL string `mapstructure:"gotenberg_url" yaml:"gotenberg_url"`
	Timeout      string `mapstructure:"timeout" yaml:"timeout"` // Go duration, e.g. 30s
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Markdown: MarkdownConfig{
			Style:      markdown.DefaultStyle,
			Math:       true,
			Emoji:      true,
			Shortcodes: true,
		},
		Emoji: EmojiConfig{
			PrimaryURL:  markdown.DefaultEmojiPrimaryURL,
			FallbackURL: markdown.DefaultEmojiFallbackURL,
		},
		Serve: ServeConfig{
			Host:        "127.0.0.1",
			Port:        8081,
			CORSOrigins: []string{"*"},
			CacheSize:   256,
			ConvertRate: 2,
		},
		Export: ExportConfig{
			GotenbergURL: "http://gotenberg:3000",
			Timeout:      "30s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration. An explicit path must exist; otherwise
// $XDG_CONFIG_HOME/markview/config.yaml and ./config.yaml are tried and a
// missing file just means defaults. MARKVIEW_<SECTION>_<KEY> environment
// variables and GOTENBERG_URL override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		configPath, err := GetConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config dir: %w", err)
		}
		v.SetConfigName("config")
		v.AddConfigPath(configPath)
		v.AddConfigPath(".")
	}

	d := Defaults()
	v.SetDefault("markdown.style", d.Markdown.Style)
	v.SetDefault("markdown.math", d.Markdown.Math)
	v.SetDefault("markdown.emoji", d.Markdown.Emoji)
	v.SetDefault("markdown.shortcodes", d.Markdown.Shortcodes)
	v.SetDefault("emoji.primary_url", d.Emoji.PrimaryURL)
	v.SetDefault("emoji.fallback_url", d.Emoji.FallbackURL)
	v.SetDefault("serve.host", d.Serve.Host)
	v.SetDefault("serve.port", d.Serve.Port)
	v.SetDefault("serve.cors_origins", d.Serve.CORSOrigins)
	v.SetDefault("serve.cache_size", d.Serve.CacheSize)
	v.SetDefault("serve.convert_rate", d.Serve.ConvertRate)
	v.SetDefault("export.gotenberg_url", d.Export.GotenbergURL)
	v.SetDefault("export.timeout", d.Export.Timeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)

	v.SetEnvPrefix("MARKVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("export.gotenberg_url", "MARKVIEW_EXPORT_GOTENBERG_URL", "GOTENBERG_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	// Read config file (optional - won't error if missing)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Emoji.PrimaryURL = expandEnv(cfg.Emoji.PrimaryURL)
	cfg.Emoji.FallbackURL = expandEnv(cfg.Emoji.FallbackURL)
	cfg.Export.GotenbergURL = expandEnv(cfg.Export.GotenbergURL)
	cfg.Log.File = expandEnv(cfg.Log.File)

	return &cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Serve.Port < 1 || c.Serve.Port > 65535 {
		errs = append(errs, fmt.Errorf("serve.port %d out of range 1-65535", c.Serve.Port))
	}
	if c.Serve.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("serve.cache_size must not be negative, got %d", c.Serve.CacheSize))
	}
	if c.Serve.ConvertRate < 0 {
		errs = append(errs, fmt.Errorf("serve.convert_rate must not be negative, got %g", c.Serve.ConvertRate))
	}
	if !strings.Contains(c.Emoji.PrimaryURL, markdown.EmojiCodePlaceholder) {
		errs = append(errs, fmt.Errorf("emoji.primary_url must contain %s", markdown.EmojiCodePlaceholder))
	}
	if !strings.Contains(c.Emoji.FallbackURL, markdown.EmojiCodePlaceholder) {
		errs = append(errs, fmt.Errorf("emoji.fallback_url must contain %s", markdown.EmojiCodePlaceholder))
	}
	if _, err := time.ParseDuration(c.Export.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("export.timeout: %w", err))
	}
	return errors.Join(errs...)
}

// MarkdownOptions converts the markdown and emoji sections to renderer
// options.
func (c *Config) MarkdownOptions() markdown.Options {
	return markdown.Options{
		Style:      c.Markdown.Style,
		Math:       c.Markdown.Math,
		Emoji:      c.Markdown.Emoji,
		Shortcodes: c.Markdown.Shortcodes,
		EmojiURLs: markdown.EmojiConfig{
			PrimaryURL:  c.Emoji.PrimaryURL,
			FallbackURL: c.Emoji.FallbackURL,
		},
	}
}

// ExportTimeout returns export.timeout, or 30s when it does not parse.
func (c *Config) ExportTimeout() time.Duration {
	d, err := time.ParseDuration(c.Export.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Serve.Host, c.Serve.Port)
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for markview.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, AppName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", AppName), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

const fileHeader = `# markview configuration
# Emoji URL templates replace {code} with dash-joined hex code points.
# GOTENBERG_URL overrides export.gotenberg_url.

`

// Save writes cfg as YAML to path, or to the default config path when path
// is empty.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, append([]byte(fileHeader), data...), 0600)
}
