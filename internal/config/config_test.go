package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "TRUE", "True", "1", "yes", "YES", "y", "Y", " yes "} {
		assert.True(t, ParseBool(s), "%q", s)
	}
	for _, s := range []string{"", "false", "0", "no", "n", "on", "enabled", "truthy"} {
		assert.False(t, ParseBool(s), "%q", s)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, t.TempDir(), "config.yaml", "{}\n"))
	require.NoError(t, err)

	assert.False(t, cfg.Debug)
	assert.Equal(t, "John Ripper", cfg.DefaultName)
	assert.Equal(t, "5u93R53Cr3tT0k3n", cfg.SecretToken)
	assert.Equal(t, ModeUnsafe, cfg.TemplateMode)
	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.PublicIPTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.PublicIPServiceURL)
	assert.Zero(t, cfg.RateLimitRPS)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
public_ip_service_url: http://ip.example.test
public_ip_timeout: 750ms
default_name: Alice
template_mode: safe
rate_limit_rps: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://ip.example.test", cfg.PublicIPServiceURL)
	assert.Equal(t, 750*time.Millisecond, cfg.PublicIPTimeout)
	assert.Equal(t, "Alice", cfg.DefaultName)
	assert.Equal(t, ModeSafe, cfg.TemplateMode)
	assert.Equal(t, 4, cfg.RateLimitRPS)
	assert.Equal(t, 4, cfg.RateLimitBurst, "burst defaults to rps")
}

func TestLoadDotenvAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, DotenvFile, "DEBUG=yes\nPUBLIC_IP_SERVICE_URL=http://from-file.test\nDEFAULT_NAME=File\n")
	t.Setenv("DEFAULT_NAME", "Env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "debug", cfg.LogLevel, "DEBUG forces debug logging")
	assert.Equal(t, "http://from-file.test", cfg.PublicIPServiceURL)
	assert.Equal(t, "Env", cfg.DefaultName)
}

func TestLoadFromEnvOnly(t *testing.T) {
	for _, value := range []string{"Y", "yes", "TRUE", "1"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("DEBUG", value)
			t.Setenv("TEMPLATE_MODE", "safe")

			cfg, err := Load("")
			require.NoError(t, err)
			assert.True(t, cfg.Debug)
			assert.Equal(t, "debug", cfg.LogLevel)
			assert.Equal(t, ModeSafe, cfg.TemplateMode)
		})
	}

	t.Setenv("DEBUG", "off")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Debug)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"template mode":    "template_mode: jinja\n",
		"negative timeout": "public_ip_timeout: -1s\n",
		"negative rps":     "rate_limit_rps: -3\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, t.TempDir(), "config.yaml", content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestFindDotenvWalksUp(t *testing.T) {
	root := t.TempDir()
	want := writeFile(t, root, DotenvFile, "DEBUG=1\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got := FindDotenv(nested)
	assert.Equal(t, want, got)
}

func TestWatchRequiresPath(t *testing.T) {
	assert.Error(t, Watch("", func(Config) {}, nil))
}

func TestWatchReportsChanges(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "log_level: info\n")

	changes := make(chan Config, 4)
	require.NoError(t, Watch(path, func(c Config) { changes <- c }, nil))

	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))

	// A single write may surface as several events; wait for the final content.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.LogLevel == "warn" {
				return
			}
		case <-timeout:
			t.Fatal("no change notification")
		}
	}
}
