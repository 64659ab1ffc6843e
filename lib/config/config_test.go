package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Provider.Kind != ProviderML || cfg.Provider.Timeout != 5*time.Second {
		t.Errorf("Provider = %+v", cfg.Provider)
	}
	if cfg.Import.Interval != 50*time.Millisecond {
		t.Errorf("Import.Interval = %v", cfg.Import.Interval)
	}
	if !reflect.DeepEqual(cfg.Server.CORSOrigins, []string{"*"}) {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Server.Addr() != ":8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr())
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  cors_origins: ["https://a.example"]
provider:
  url: http://ml.internal:8000/recommend
  timeout: 2s
logging:
  level: debug
`)
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("PORT", "9100")
	t.Setenv("ML_SERVICE_TIMEOUT", "750ms")
	t.Setenv("CORS_ORIGINS", "https://b.example, https://c.example")
	t.Setenv("DB_PATH", "/tmp/catalog.db")
	t.Setenv("SOME_UNRELATED_VAR", "ignored")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("env should override file: Port = %d", cfg.Server.Port)
	}
	if cfg.Provider.URL != "http://ml.internal:8000/recommend" {
		t.Errorf("file should override defaults: URL = %q", cfg.Provider.URL)
	}
	if cfg.Provider.Timeout != 750*time.Millisecond {
		t.Errorf("Timeout = %v", cfg.Provider.Timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
	if cfg.Database.Path != "/tmp/catalog.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if want := []string{"https://b.example", "https://c.example"}; !reflect.DeepEqual(cfg.Server.CORSOrigins, want) {
		t.Errorf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown provider", map[string]string{"RECOMMENDER_PROVIDER": "magic"}, "Kind"},
		{"ml without url", map[string]string{"ML_SERVICE_URL": ""}, "URL"},
		{"openai without key", map[string]string{"RECOMMENDER_PROVIDER": "openai"}, "OPENAI_API_KEY"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "Level"},
		{"zero timeout", map[string]string{"ML_SERVICE_TIMEOUT": "0s"}, "Timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(ConfigPathEnvVar, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadNoProvider(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("RECOMMENDER_PROVIDER", "none")
	t.Setenv("ML_SERVICE_URL", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Kind != ProviderNone {
		t.Fatalf("Kind = %q", cfg.Provider.Kind)
	}
}
