package types

// Config represents the overall application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Upload   UploadConfig   `yaml:"upload" json:"upload"`
	Covers   CoverConfig    `yaml:"covers" json:"covers"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	ReadTimeout  int    `yaml:"read_timeout" json:"read_timeout"`   // seconds
	WriteTimeout int    `yaml:"write_timeout" json:"write_timeout"` // seconds
}

// StorageConfig defines storage adapter settings
type StorageConfig struct {
	Adapter string            `yaml:"adapter" json:"adapter"` // "local" or "s3"
	Local   LocalStorageOpts  `yaml:"local" json:"local"`
	S3      S3StorageOpts     `yaml:"s3" json:"s3"`
	Options map[string]string `yaml:"options" json:"options"`
}

// LocalStorageOpts configures the local filesystem adapter
type LocalStorageOpts struct {
	BasePath string `yaml:"base_path" json:"base_path"`
}

// S3StorageOpts configures the S3-compatible adapter
type S3StorageOpts struct {
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	Region          string `yaml:"region" json:"region"`
	Bucket          string `yaml:"bucket" json:"bucket"`
	AccessKeyID     string `yaml:"access_key_id" json:"-"`
	SecretAccessKey string `yaml:"secret_access_key" json:"-"`
	UseSSL          bool   `yaml:"use_ssl" json:"use_ssl"`
}

// UploadConfig limits what the upload endpoint accepts
type UploadConfig struct {
	MaxFileSizeMB   int      `yaml:"max_file_size_mb" json:"max_file_size_mb"`
	AcceptedFormats []string `yaml:"accepted_formats" json:"accepted_formats"`
}

// CoverConfig controls cover extraction and thumbnails
type CoverConfig struct {
	ThumbnailWidth int   `yaml:"thumbnail_width" json:"thumbnail_width"` // pixels, 0 disables thumbnails
	JPEGQuality    int   `yaml:"jpeg_quality" json:"jpeg_quality"`
	MaxMemberBytes int64 `yaml:"max_member_bytes" json:"max_member_bytes"`
}

// PipelineConfig holds background worker settings
type PipelineConfig struct {
	WorkerPoolSize int `yaml:"worker_pool_size" json:"worker_pool_size"`
	QueueSize      int `yaml:"queue_size" json:"queue_size"`
}

// LoggingConfig selects log level and encoding
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" json:"format"` // "json", "console" or "auto"
}
