package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/distantorigin/field-updater/internal/paths"
)

// EnvPrefix prefixes every environment override, e.g. UPDATER_REGISTRY_TAG
const EnvPrefix = "UPDATER"

// Config holds everything a run needs
type Config struct {
	Root        string         `mapstructure:"root"`
	Layout      LayoutConfig   `mapstructure:"layout"`
	Registry    RegistryConfig `mapstructure:"registry"`
	Media       MediaConfig    `mapstructure:"media"`
	Log         LogConfig      `mapstructure:"log"`
	Chime       bool           `mapstructure:"chime"`
	Interactive bool           `mapstructure:"interactive"`
	// Seconds to wait for a running packaged executable to exit before it is replaced
	ExitWaitSeconds int `mapstructure:"exit_wait_seconds"`
}

// LayoutConfig overrides names in the default device layout
type LayoutConfig struct {
	LegacyDir      string   `mapstructure:"legacy_dir"`
	Preserve       []string `mapstructure:"preserve"`
	PackagedDir    string   `mapstructure:"packaged_dir"`
	Executable     string   `mapstructure:"executable"`
	AssetsDir      string   `mapstructure:"assets_dir"`
	LauncherScript string   `mapstructure:"launcher_script"`
	BackupDir      string   `mapstructure:"backup_dir"`
}

// RegistryConfig identifies the release catalog
type RegistryConfig struct {
	Owner          string `mapstructure:"owner"`
	Repo           string `mapstructure:"repo"`
	Tag            string `mapstructure:"tag"`
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	Retries        int    `mapstructure:"retries"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// MediaConfig controls removable-media discovery
type MediaConfig struct {
	Disabled bool     `mapstructure:"disabled"`
	Path     string   `mapstructure:"path"`
	Roots    []string `mapstructure:"roots"`
}

// LogConfig selects structured log output
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the stock configuration
func Default() *Config {
	return &Config{
		Registry: RegistryConfig{
			BaseURL:        "https://api.github.com",
			Retries:        3,
			TimeoutSeconds: 600,
		},
		Media: MediaConfig{
			Roots: []string{"/media", "/mnt", "/run/media"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Chime:           true,
		Interactive:     true,
		ExitWaitSeconds: 10,
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("root", cfg.Root)
	v.SetDefault("layout.legacy_dir", "")
	v.SetDefault("layout.preserve", []string{})
	v.SetDefault("layout.packaged_dir", "")
	v.SetDefault("layout.executable", "")
	v.SetDefault("layout.assets_dir", "")
	v.SetDefault("layout.launcher_script", "")
	v.SetDefault("layout.backup_dir", "")
	v.SetDefault("registry.owner", cfg.Registry.Owner)
	v.SetDefault("registry.repo", cfg.Registry.Repo)
	v.SetDefault("registry.tag", cfg.Registry.Tag)
	v.SetDefault("registry.base_url", cfg.Registry.BaseURL)
	v.SetDefault("registry.token", cfg.Registry.Token)
	v.SetDefault("registry.retries", cfg.Registry.Retries)
	v.SetDefault("registry.timeout_seconds", cfg.Registry.TimeoutSeconds)
	v.SetDefault("media.disabled", cfg.Media.Disabled)
	v.SetDefault("media.path", cfg.Media.Path)
	v.SetDefault("media.roots", cfg.Media.Roots)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("chime", cfg.Chime)
	v.SetDefault("interactive", cfg.Interactive)
	v.SetDefault("exit_wait_seconds", cfg.ExitWaitSeconds)
}

// Load reads cfgFile, or updater.yaml from $HOME and /etc/field-updater when
// cfgFile is empty, then applies UPDATER_* environment overrides. A missing
// default config file is not an error.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("updater")
		v.SetConfigType("yaml")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(configDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configDir() string {
	return filepath.Join("/etc", "field-updater")
}

// Validate rejects settings a run cannot work with
func (c *Config) Validate() error {
	if (c.Registry.Owner == "") != (c.Registry.Repo == "") {
		return errors.New("registry.owner and registry.repo must be set together")
	}
	if c.Registry.Retries < 0 {
		return fmt.Errorf("registry.retries must not be negative, got %d", c.Registry.Retries)
	}
	if c.Registry.TimeoutSeconds < 0 {
		return fmt.Errorf("registry.timeout_seconds must not be negative, got %d", c.Registry.TimeoutSeconds)
	}
	if c.ExitWaitSeconds < 0 {
		return fmt.Errorf("exit_wait_seconds must not be negative, got %d", c.ExitWaitSeconds)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// RegistryEnabled reports whether a release catalog is configured
func (c *Config) RegistryEnabled() bool {
	return c.Registry.Owner != "" && c.Registry.Repo != ""
}

// Timeout bounds the network portion of a run. Zero means unbounded.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Registry.TimeoutSeconds) * time.Second
}

// ExitWait is how long to wait for the packaged executable to stop
func (c *Config) ExitWait() time.Duration {
	return time.Duration(c.ExitWaitSeconds) * time.Second
}

// DeviceLayout builds the filesystem layout, applying any name overrides
func (c *Config) DeviceLayout() (paths.Layout, error) {
	root := c.Root
	if root != "" {
		expanded, err := homedir.Expand(root)
		if err != nil {
			return paths.Layout{}, fmt.Errorf("failed to expand root: %w", err)
		}
		root = expanded
	}

	l, err := paths.DefaultLayout(root)
	if err != nil {
		return paths.Layout{}, err
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&l.LegacyDir, c.Layout.LegacyDir)
	override(&l.PackagedDir, c.Layout.PackagedDir)
	override(&l.Executable, c.Layout.Executable)
	override(&l.AssetsDir, c.Layout.AssetsDir)
	override(&l.LauncherScript, c.Layout.LauncherScript)
	override(&l.BackupDir, c.Layout.BackupDir)
	if len(c.Layout.Preserve) > 0 {
		l.Preserve = c.Layout.Preserve
	}

	if err := l.Validate(); err != nil {
		return paths.Layout{}, fmt.Errorf("invalid layout: %w", err)
	}
	return l, nil
}
