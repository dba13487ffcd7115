package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ultrabooks/ultrabooks/pkg/types"
	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file on top of GetDefault.
// It also supports environment variable overrides with UB_ prefix
func Load(configPath string) (*types.Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := GetDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadDefault returns GetDefault with environment overrides applied, for
// running without a config file
func LoadDefault() (*types.Config, error) {
	cfg := GetDefault()
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid and fills in defaults for
// optional tuning values
func Validate(cfg *types.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Storage.Adapter != "local" && cfg.Storage.Adapter != "s3" {
		return fmt.Errorf("invalid storage adapter: %s (must be 'local' or 's3')", cfg.Storage.Adapter)
	}

	if cfg.Storage.Adapter == "local" {
		if cfg.Storage.Local.BasePath == "" {
			return fmt.Errorf("local storage base_path is required")
		}
		if !filepath.IsAbs(cfg.Storage.Local.BasePath) {
			return fmt.Errorf("local storage base_path must be absolute: %s", cfg.Storage.Local.BasePath)
		}
	}

	if cfg.Storage.Adapter == "s3" {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("s3 region is required")
		}
	}

	if cfg.Upload.MaxFileSizeMB <= 0 {
		cfg.Upload.MaxFileSizeMB = 100
	}
	if len(cfg.Upload.AcceptedFormats) == 0 {
		cfg.Upload.AcceptedFormats = []string{types.FormatEPUB, types.FormatPDF, types.FormatMOBI}
	}
	for i, format := range cfg.Upload.AcceptedFormats {
		format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
		if !slices.Contains(supportedFormats, format) {
			return fmt.Errorf("unsupported upload format: %s", cfg.Upload.AcceptedFormats[i])
		}
		cfg.Upload.AcceptedFormats[i] = format
	}

	if cfg.Covers.ThumbnailWidth < 0 {
		return fmt.Errorf("invalid thumbnail width: %d", cfg.Covers.ThumbnailWidth)
	}
	if cfg.Covers.JPEGQuality <= 0 || cfg.Covers.JPEGQuality > 100 {
		cfg.Covers.JPEGQuality = 85
	}
	if cfg.Covers.MaxMemberBytes <= 0 {
		cfg.Covers.MaxMemberBytes = 64 << 20
	}

	if cfg.Pipeline.WorkerPoolSize <= 0 {
		cfg.Pipeline.WorkerPoolSize = 2
	}
	if cfg.Pipeline.QueueSize <= 0 {
		cfg.Pipeline.QueueSize = 64
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "":
		cfg.Logging.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "":
		cfg.Logging.Format = "auto"
	case "auto", "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s (must be 'auto', 'json' or 'console')", cfg.Logging.Format)
	}

	return nil
}

var supportedFormats = []string{types.FormatEPUB, types.FormatPDF, types.FormatMOBI}

// applyEnvOverrides applies environment variable overrides
// Environment variables should be prefixed with UB_ (Ultrabooks)
func applyEnvOverrides(cfg *types.Config) {
	if val := os.Getenv("UB_SERVER_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("UB_SERVER_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}

	if val := os.Getenv("UB_STORAGE_ADAPTER"); val != "" {
		cfg.Storage.Adapter = val
	}
	if val := os.Getenv("UB_STORAGE_LOCAL_BASE_PATH"); val != "" {
		cfg.Storage.Local.BasePath = val
	}
	if val := os.Getenv("UB_STORAGE_S3_BUCKET"); val != "" {
		cfg.Storage.S3.Bucket = val
	}
	if val := os.Getenv("UB_STORAGE_S3_REGION"); val != "" {
		cfg.Storage.S3.Region = val
	}
	if val := os.Getenv("UB_STORAGE_S3_ENDPOINT"); val != "" {
		cfg.Storage.S3.Endpoint = val
	}
	if val := os.Getenv("UB_STORAGE_S3_ACCESS_KEY_ID"); val != "" {
		cfg.Storage.S3.AccessKeyID = val
	}
	if val := os.Getenv("UB_STORAGE_S3_SECRET_ACCESS_KEY"); val != "" {
		cfg.Storage.S3.SecretAccessKey = val
	}

	if val := os.Getenv("UB_UPLOAD_MAX_FILE_SIZE_MB"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Upload.MaxFileSizeMB = n
		}
	}
	if val := os.Getenv("UB_COVERS_THUMBNAIL_WIDTH"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Covers.ThumbnailWidth = n
		}
	}

	if val := os.Getenv("UB_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("UB_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
}

// GetDefault returns a default configuration
func GetDefault() *types.Config {
	return &types.Config{
		Server: types.ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  60,
			WriteTimeout: 60,
		},
		Storage: types.StorageConfig{
			Adapter: "local",
			Local: types.LocalStorageOpts{
				BasePath: "/var/lib/ultrabooks/storage",
			},
		},
		Upload: types.UploadConfig{
			MaxFileSizeMB:   100,
			AcceptedFormats: []string{types.FormatEPUB, types.FormatPDF, types.FormatMOBI},
		},
		Covers: types.CoverConfig{
			ThumbnailWidth: 320,
			JPEGQuality:    85,
			MaxMemberBytes: 64 << 20,
		},
		Pipeline: types.PipelineConfig{
			WorkerPoolSize: 2,
			QueueSize:      64,
		},
		Logging: types.LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}
