package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.MetricsPort != 0 {
		t.Errorf("Expected metrics on main port, got %d", cfg.MetricsPort)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("Unexpected upload limit %d", cfg.MaxUploadBytes)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "custom.yaml")
	content := `port: 9000
model_path: /models/pets.onnx
metadata_path: /models/pets.json
feedback_dir: /var/feedback
shutdown_timeout: 3s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Environment should override file, got port %d", cfg.Port)
	}
	if cfg.ModelPath != "/models/pets.onnx" {
		t.Errorf("Unexpected model path %q", cfg.ModelPath)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("Unexpected shutdown timeout %v", cfg.ShutdownTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Unexpected log level %q", cfg.LogLevel)
	}
}

func TestLoad_DefaultFileDiscovered(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "classifier.yaml"), []byte("port: 7000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 7000 {
		t.Errorf("Expected port from classifier.yaml, got %d", cfg.Port)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing explicit config file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("port: [not a number"), 0o644)
	if _, err := Load(bad); err == nil {
		t.Error("Expected parse error")
	}

	clash := filepath.Join(dir, "clash.yaml")
	os.WriteFile(clash, []byte("port: 8080\nmetrics_port: 8080\n"), 0o644)
	if _, err := Load(clash); err == nil {
		t.Error("Expected error when metrics port equals main port")
	}
}

func TestGetEnvHelpers_IgnoreGarbage(t *testing.T) {
	t.Setenv("TEST_INT", "abc")
	t.Setenv("TEST_DURATION", "soon")
	t.Setenv("TEST_BOOL", "maybe")

	if got := getEnvAsInt("TEST_INT", 5); got != 5 {
		t.Errorf("Expected fallback 5, got %d", got)
	}
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("Expected fallback 1s, got %v", got)
	}
	if got := getEnvAsBool("TEST_BOOL", true); !got {
		t.Error("Expected fallback true")
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "origins.yaml")
	os.WriteFile(path, []byte("allowed_origins:\n  - https://grafana.local\n"), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://grafana.local" {
		t.Errorf("Unexpected origins from file %v", cfg.AllowedOrigins)
	}

	t.Setenv("ALLOWED_ORIGINS", " https://a.local , ,https://b.local")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.local" {
		t.Errorf("Unexpected origins from env %v", cfg.AllowedOrigins)
	}
}
