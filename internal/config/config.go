package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port         int    `yaml:"port"`
	MetricsPort  int    `yaml:"metrics_port"` // 0 serves /metrics on the main port
	ModelPath    string `yaml:"model_path"`
	MetadataPath string `yaml:"metadata_path"`
	// OnnxLibrary is the onnxruntime shared library; empty uses the default.
	OnnxLibrary     string        `yaml:"onnxruntime_library"`
	FeedbackDir     string        `yaml:"feedback_dir"`
	LogDir          string        `yaml:"log_dir"`
	LogLevel        string        `yaml:"log_level"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RuntimeMetrics  bool          `yaml:"runtime_metrics"`
	// AllowedOrigins may open the live feed in addition to same-origin pages.
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

func Default() *Config {
	return &Config{
		Port:            8080,
		ModelPath:       filepath.Join(".", "models", "model.onnx"),
		MetadataPath:    filepath.Join(".", "models", "model_metadata.json"),
		FeedbackDir:     filepath.Join(".", "data", "feedback"),
		LogDir:          filepath.Join(".", "data", "logs"),
		LogLevel:        "info",
		MaxUploadBytes:  10 << 20,
		ShutdownTimeout: 10 * time.Second,
		RuntimeMetrics:  true,
	}
}

var defaultFiles = []string{"classifier.yaml", "config.yaml"}

// Load builds the configuration from, in increasing precedence: defaults,
// a yaml file (path, or the first default file found), a .env file, and
// the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, path, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, path, fmt.Errorf("failed to read config file: %w", err)
		}
		return data, path, nil
	}
	for _, name := range defaultFiles {
		if data, err := os.ReadFile(name); err == nil {
			return data, name, nil
		}
	}
	return nil, "", nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.MetricsPort = getEnvAsInt("METRICS_PORT", c.MetricsPort)
	c.ModelPath = getEnv("MODEL_PATH", c.ModelPath)
	c.MetadataPath = getEnv("METADATA_PATH", c.MetadataPath)
	c.OnnxLibrary = getEnv("ONNXRUNTIME_LIB", c.OnnxLibrary)
	c.FeedbackDir = getEnv("FEEDBACK_DIR", c.FeedbackDir)
	c.LogDir = getEnv("LOG_DIR", c.LogDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.RuntimeMetrics = getEnvAsBool("RUNTIME_METRICS", c.RuntimeMetrics)
	c.AllowedOrigins = getEnvAsSlice("ALLOWED_ORIGINS", c.AllowedOrigins)
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 || (c.MetricsPort != 0 && c.MetricsPort == c.Port) {
		return fmt.Errorf("invalid metrics port %d", c.MetricsPort)
	}
	if c.ModelPath == "" || c.MetadataPath == "" {
		return errors.New("model_path and metadata_path are required")
	}
	if c.FeedbackDir == "" {
		return errors.New("feedback_dir is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid max_upload_bytes %d", c.MaxUploadBytes)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
