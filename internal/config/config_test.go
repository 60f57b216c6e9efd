package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("unit_name: thermostat\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "config.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("unit_name: thermostat\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("unit_name: thermostat\npassword: ${MUF_TEST_PASSWORD}\n"), 0600)
	os.Setenv("MUF_TEST_PASSWORD", "secret123")
	defer os.Unsetenv("MUF_TEST_PASSWORD")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Store.Password != "secret123" {
		t.Errorf("password = %q, want %q", cfg.Store.Password, "secret123")
	}
}

func TestLoad_RedisEnvFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("unit_name: thermostat\n"), 0600)

	os.Setenv("MUF_REDIS_HOST", "redis.internal")
	os.Setenv("REDIS_PASSWORD", "envpass")
	defer os.Unsetenv("MUF_REDIS_HOST")
	defer os.Unsetenv("REDIS_PASSWORD")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Store.Host != "redis.internal" {
		t.Errorf("host = %q, want %q", cfg.Store.Host, "redis.internal")
	}
	if cfg.Store.Password != "envpass" {
		t.Errorf("password = %q, want %q", cfg.Store.Password, "envpass")
	}
}

func TestLoad_MissingUnit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("host: localhost\n"), 0600)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for missing unit")
	}
}

func TestApplyDefaults_StorePort(t *testing.T) {
	cfg := Default()
	if cfg.Store.Port != 6379 {
		t.Errorf("expected default store.port 6379, got %d", cfg.Store.Port)
	}
}

func TestApplyDefaults_LogLevel(t *testing.T) {
	cfg := Default()
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log_level info, got %q", cfg.LogLevel)
	}
}

func TestValidate_PortOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Store.Port = 99999
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-range port")
	}
}

func TestValidate_NegativeDB(t *testing.T) {
	cfg := Default()
	cfg.Store.DB = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for negative db")
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown log level")
	}
}

func TestStoreConfig_Options(t *testing.T) {
	cfg := Default()
	cfg.Store.Host = "store.example.com"
	cfg.Store.Port = 6380
	opts := cfg.Store.Options()
	if opts.Host != "store.example.com" || opts.Port != 6380 {
		t.Errorf("Options() = %+v, want host/port carried over", opts)
	}
}
