package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/s155cp/memberctl/pkg/auth"
	"github.com/s155cp/memberctl/pkg/auth/types"
	"github.com/spf13/pflag"
)

func newTestLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	l := NewLoader("memberctl")
	l.SetConfigFile(path)
	return l, path
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader("member-ctl")

	if loader.cliName != "member-ctl" {
		t.Errorf("expected cliName 'member-ctl', got %s", loader.cliName)
	}
	if loader.envPrefix != "MEMBER_CTL" {
		t.Errorf("expected envPrefix 'MEMBER_CTL', got %s", loader.envPrefix)
	}
}

func TestLoad_Defaults(t *testing.T) {
	l, _ := newTestLoader(t)

	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIURL != "http://localhost:8080" {
		t.Errorf("APIURL = %s", cfg.APIURL)
	}
	if cfg.WebURL != cfg.APIURL {
		t.Errorf("WebURL should fall back to APIURL, got %q", cfg.WebURL)
	}
	if cfg.Storage.Type != types.StorageTypeFile {
		t.Errorf("Storage.Type = %s", cfg.Storage.Type)
	}
	if cfg.Refresh != auth.DefaultRefreshConfig() {
		t.Errorf("Refresh = %+v, want defaults", cfg.Refresh)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if !cfg.Google.OpenBrowser {
		t.Error("Google.OpenBrowser should default to true")
	}
	if cfg.Progress.Type != "spinner" {
		t.Errorf("Progress.Type = %s", cfg.Progress.Type)
	}
	if cfg.Cache.TTL != time.Hour || cfg.Cache.Dir != "" {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if !cfg.History.Enabled || cfg.History.MaxEntries != 500 {
		t.Errorf("History = %+v", cfg.History)
	}
}

func TestLoad_File(t *testing.T) {
	l, path := newTestLoader(t)
	writeConfig(t, path, `
api_url: https://api.riders.example
web_url: https://riders.example
storage:
  type: memory
refresh:
  buffer: 2m
  min_delay: 500ms
  max_retries: 5
  retry_delay: 3s
  redirect_to: /profile
log:
  level: debug
  format: json
google:
  client_id: club.apps.googleusercontent.com
  open_browser: false
  callback_port: 8765
progress:
  type: overlay
cache:
  dir: /tmp/memberctl-cache
  ttl: 0s
history:
  enabled: false
  max_entries: 50
`)

	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := auth.RefreshConfig{
		RefreshBuffer:   2 * time.Minute,
		MinRefreshDelay: 500 * time.Millisecond,
		MaxRetries:      5,
		RetryDelay:      3 * time.Second,
		RedirectTo:      "/profile",
	}
	if cfg.Refresh != want {
		t.Errorf("Refresh = %+v, want %+v", cfg.Refresh, want)
	}
	if cfg.APIURL != "https://api.riders.example" || cfg.WebURL != "https://riders.example" {
		t.Errorf("urls = %s, %s", cfg.APIURL, cfg.WebURL)
	}
	if cfg.Storage.Type != types.StorageTypeMemory {
		t.Errorf("Storage.Type = %s", cfg.Storage.Type)
	}
	if cfg.Google.ClientID != "club.apps.googleusercontent.com" || cfg.Google.OpenBrowser || cfg.Google.CallbackPort != 8765 {
		t.Errorf("Google = %+v", cfg.Google)
	}
	if cfg.Progress.Type != "overlay" {
		t.Errorf("Progress.Type = %s", cfg.Progress.Type)
	}
	if cfg.Cache.Dir != "/tmp/memberctl-cache" || cfg.Cache.TTL != 0 {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.History.Enabled || cfg.History.MaxEntries != 50 {
		t.Errorf("History = %+v", cfg.History)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	l, path := newTestLoader(t)
	writeConfig(t, path, "refresh: [unclosed")

	if _, err := l.Load(); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	l, path := newTestLoader(t)
	writeConfig(t, path, "api_url: https://file.example\nrefresh:\n  buffer: 2m\n")

	t.Setenv("MEMBERCTL_API_URL", "https://env.example")
	t.Setenv("MEMBERCTL_REFRESH_BUFFER", "10m")
	t.Setenv("MEMBERCTL_REFRESH_MAX_RETRIES", "1")
	t.Setenv("MEMBERCTL_STORAGE_TYPE", "keyring")

	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIURL != "https://env.example" {
		t.Errorf("APIURL = %s, want env value", cfg.APIURL)
	}
	if cfg.Refresh.RefreshBuffer != 10*time.Minute {
		t.Errorf("RefreshBuffer = %v, want 10m", cfg.Refresh.RefreshBuffer)
	}
	if cfg.Refresh.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1", cfg.Refresh.MaxRetries)
	}
	if cfg.Storage.Type != types.StorageTypeKeyring {
		t.Errorf("Storage.Type = %s", cfg.Storage.Type)
	}
}

func TestLoad_FlagsWin(t *testing.T) {
	l, path := newTestLoader(t)
	writeConfig(t, path, "api_url: https://file.example\n")
	t.Setenv("MEMBERCTL_API_URL", "https://env.example")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("api-url", "", "")
	fs.String("log-level", "", "")
	fs.Bool("unrelated", false, "")
	if err := fs.Parse([]string{"--api-url", "https://flag.example"}); err != nil {
		t.Fatal(err)
	}
	if err := l.BindFlags(fs); err != nil {
		t.Fatalf("BindFlags() error = %v", err)
	}

	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIURL != "https://flag.example" {
		t.Errorf("APIURL = %s, want flag value", cfg.APIURL)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("unset flag should not override default, got %s", cfg.Log.Level)
	}
}

func TestConfigPath(t *testing.T) {
	l := NewLoader("memberctl")

	t.Setenv("MEMBERCTL_CONFIG", "/tmp/custom/memberctl.yaml")
	if got := l.ConfigPath(); got != "/tmp/custom/memberctl.yaml" {
		t.Errorf("ConfigPath() = %s, want env path", got)
	}

	t.Setenv("MEMBERCTL_CONFIG", "")
	if got := l.ConfigPath(); !strings.HasSuffix(got, filepath.Join("memberctl", "config.yaml")) {
		t.Errorf("ConfigPath() = %s", got)
	}

	l.SetConfigFile("/etc/memberctl.yaml")
	if got := l.ConfigPath(); got != "/etc/memberctl.yaml" {
		t.Errorf("ConfigPath() = %s, want explicit path", got)
	}
}

func TestEnsureConfigDirs(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader("memberctl")
	l.SetConfigFile(filepath.Join(dir, "nested", "config.yaml"))

	if err := l.EnsureConfigDirs(); err != nil {
		t.Fatalf("EnsureConfigDirs() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "nested")); err != nil {
		t.Errorf("config dir not created: %v", err)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	l, path := newTestLoader(t)

	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.APIURL = "https://api.riders.example"
	cfg.Refresh.RefreshBuffer = 90 * time.Second
	cfg.Refresh.RetryDelay = 0
	cfg.Google.OpenBrowser = false

	if err := l.Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "buffer: 1m30s") {
		t.Errorf("durations should be saved as strings:\n%s", data)
	}

	reloaded, err := loaderAt(t, path).Load()
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if reloaded.APIURL != cfg.APIURL {
		t.Errorf("APIURL = %s", reloaded.APIURL)
	}
	if reloaded.Refresh.RefreshBuffer != 90*time.Second {
		t.Errorf("RefreshBuffer = %v", reloaded.Refresh.RefreshBuffer)
	}
	if reloaded.Refresh.RetryDelay != 0 {
		t.Errorf("RetryDelay = %v, want 0", reloaded.Refresh.RetryDelay)
	}
	if reloaded.Google.OpenBrowser {
		t.Error("OpenBrowser should round-trip as false")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}
}

func loaderAt(t *testing.T, path string) *Loader {
	t.Helper()
	l := NewLoader("memberctl")
	l.SetConfigFile(path)
	return l
}
