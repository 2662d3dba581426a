package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DotenvFile is the file name searched for when no config path is given.
const DotenvFile = ".env"

// TemplateMode selects how the greeting is rendered.
type TemplateMode string

const (
	// ModeUnsafe interpolates request values into the template source and evaluates it.
	ModeUnsafe TemplateMode = "unsafe"
	// ModeSafe escapes request values and never evaluates them.
	ModeSafe TemplateMode = "safe"
)

// Config holds the process-wide settings. It is built once by Load and passed by value.
type Config struct {
	Debug              bool          `mapstructure:"-"`
	PublicIPServiceURL string        `mapstructure:"public_ip_service_url"`
	PublicIPTimeout    time.Duration `mapstructure:"public_ip_timeout"`
	DefaultName        string        `mapstructure:"default_name"`
	SecretToken        string        `mapstructure:"secret_token"`
	TemplateMode       TemplateMode  `mapstructure:"template_mode"`
	ListenAddr         string        `mapstructure:"listen_addr"`

	LogLevel string `mapstructure:"log_level"`

	TracingEnabled     bool   `mapstructure:"tracing_enabled"`
	TracingEndpoint    string `mapstructure:"tracing_endpoint"`
	TracingServiceName string `mapstructure:"tracing_service_name"`

	RateLimitRPS   int `mapstructure:"rate_limit_rps"`
	RateLimitBurst int `mapstructure:"rate_limit_burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", "false")
	v.SetDefault("public_ip_service_url", "")
	v.SetDefault("public_ip_timeout", "5s")
	v.SetDefault("default_name", "John Ripper")
	v.SetDefault("secret_token", "5u93R53Cr3tT0k3n")
	v.SetDefault("template_mode", string(ModeUnsafe))
	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("tracing_endpoint", "localhost:4318")
	v.SetDefault("tracing_service_name", "tryhackme")
	v.SetDefault("rate_limit_rps", 0)
	v.SetDefault("rate_limit_burst", 0)
}

// ParseBool reports whether s is one of true, 1, yes or y, ignoring case.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y":
		return true
	}
	return false
}

// FindDotenv walks from dir up to the filesystem root and returns the first .env file
// found, or "" if there is none.
func FindDotenv(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, DotenvFile)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if filepath.Base(path) == DotenvFile {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Debug = ParseBool(v.GetString("debug"))

	switch cfg.TemplateMode {
	case ModeUnsafe, ModeSafe:
	default:
		return Config{}, fmt.Errorf("invalid template_mode %q (want %q or %q)", cfg.TemplateMode, ModeUnsafe, ModeSafe)
	}
	if cfg.PublicIPTimeout < 0 {
		return Config{}, fmt.Errorf("public_ip_timeout must not be negative, got %s", cfg.PublicIPTimeout)
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return Config{}, fmt.Errorf("rate limit values must not be negative")
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// Load builds the configuration from defaults, the optional file at path and the
// environment, in increasing order of precedence. An empty path reads no file; callers
// wanting .env discovery resolve the path with FindDotenv first.
func Load(path string) (Config, error) {
	v, err := newViper(path)
	if err != nil {
		return Config{}, err
	}
	return decode(v)
}

// Watch re-reads the file at path whenever it changes and hands the fresh Config to
// onChange. Invalid revisions are reported through onError and otherwise ignored.
func Watch(path string, onChange func(Config), onError func(error)) error {
	if path == "" {
		return fmt.Errorf("no config file to watch")
	}
	v, err := newViper(path)
	if err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
