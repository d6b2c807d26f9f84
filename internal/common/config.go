package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the optional YAML file applied before environment variables.
const ConfigFileEnv = "DOCEXTRACT_CONFIG"

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	OCR      OCRConfig      `yaml:"ocr"`
	Queue    QueueConfig    `yaml:"queue"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Notify   NotifyConfig   `yaml:"notify"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // sqlite | postgres
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// StorageConfig holds local data locations
type StorageConfig struct {
	DataDir  string `yaml:"data_dir"`
	BlobPath string `yaml:"blob_path"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine         string  `yaml:"engine"` // tesseract | cli
	TesseractBin   string  `yaml:"tesseract_bin"`
	Lang           string  `yaml:"lang"`
	TessdataDir    string  `yaml:"tessdata_dir"`
	PSM            int     `yaml:"psm"`
	MaxConcurrency int     `yaml:"max_concurrency"`
	RenderScale    float64 `yaml:"render_scale"`
	HeicConverter  string  `yaml:"heic_converter"`
}

// QueueConfig holds extraction queue configuration
type QueueConfig struct {
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// IngestConfig holds upload watcher configuration
type IngestConfig struct {
	WatchDirs   []string      `yaml:"watch_dirs"`
	Debounce    time.Duration `yaml:"debounce"`
	MaxFileSize int64         `yaml:"max_file_size"`
}

// NotifyConfig holds indexer notification configuration
type NotifyConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Channel       string `yaml:"channel"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			MaxConns:        20,
			MinConns:        5,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Storage: StorageConfig{DataDir: "./data"},
		OCR: OCRConfig{
			Engine:        "tesseract",
			TesseractBin:  "tesseract",
			Lang:          "eng",
			RenderScale:   2.0,
			HeicConverter: "magick",
		},
		Queue:  QueueConfig{JobTimeout: 30 * time.Minute},
		Ingest: IngestConfig{Debounce: 500 * time.Millisecond, MaxFileSize: 100 << 20},
		Notify: NotifyConfig{Channel: "docextract.extracted"},
		Server: ServerConfig{GRPCAddr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by DOCEXTRACT_CONFIG, then environment variables, in that order.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError(CodeConfig, "read config file", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, NewAppError(CodeConfig, fmt.Sprintf("parse %s", path), err)
		}
	}
	cfg.applyEnv()
	cfg.fillDerived()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	c.Storage.DataDir = getEnv("DATA_DIR", c.Storage.DataDir)
	c.Storage.BlobPath = getEnv("BLOB_PATH", c.Storage.BlobPath)

	c.OCR.Engine = getEnv("OCR_ENGINE", c.OCR.Engine)
	c.OCR.TesseractBin = getEnv("TESSERACT_BIN", c.OCR.TesseractBin)
	c.OCR.Lang = getEnv("OCR_LANG", c.OCR.Lang)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.PSM = getEnvAsInt("OCR_PSM", c.OCR.PSM)
	c.OCR.MaxConcurrency = getEnvAsInt("OCR_MAX_CONCURRENCY", c.OCR.MaxConcurrency)
	c.OCR.RenderScale = getEnvAsFloat64("OCR_RENDER_SCALE", c.OCR.RenderScale)
	c.OCR.HeicConverter = getEnv("HEIC_CONVERTER", c.OCR.HeicConverter)

	c.Queue.JobTimeout = getEnvAsDuration("JOB_TIMEOUT", c.Queue.JobTimeout)

	c.Ingest.WatchDirs = getEnvAsList("WATCH_DIRS", c.Ingest.WatchDirs)
	c.Ingest.Debounce = getEnvAsDuration("WATCH_DEBOUNCE", c.Ingest.Debounce)
	c.Ingest.MaxFileSize = int64(getEnvAsInt("MAX_FILE_SIZE", int(c.Ingest.MaxFileSize)))

	c.Notify.RedisAddr = getEnv("REDIS_ADDR", c.Notify.RedisAddr)
	c.Notify.RedisPassword = getEnv("REDIS_PASSWORD", c.Notify.RedisPassword)
	c.Notify.RedisDB = getEnvAsInt("REDIS_DB", c.Notify.RedisDB)
	c.Notify.Channel = getEnv("NOTIFY_CHANNEL", c.Notify.Channel)

	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// fillDerived places unset file locations under the data directory.
func (c *Config) fillDerived() {
	if c.Storage.BlobPath == "" {
		c.Storage.BlobPath = filepath.Join(c.Storage.DataDir, "blobs.db")
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = "file:" + filepath.Join(c.Storage.DataDir, "docextract.db")
	}
	if c.OCR.TessdataDir == "" {
		dir := filepath.Join(c.Storage.DataDir, "tessdata")
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			c.OCR.TessdataDir = dir
		}
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("DB_DRIVER", c.Database.Driver, OneOf("sqlite", "postgres")).
		Field("DB_URL", c.Database.DSN, Required).
		Field("DATA_DIR", c.Storage.DataDir, Required).
		Field("OCR_ENGINE", c.OCR.Engine, OneOf("tesseract", "cli")).
		Field("OCR_LANG", c.OCR.Lang, Required).
		Field("OCR_MAX_CONCURRENCY", c.OCR.MaxConcurrency, NonNegative).
		Field("OCR_RENDER_SCALE", c.OCR.RenderScale, Positive).
		Field("JOB_TIMEOUT", c.Queue.JobTimeout, NonNegative).
		Field("WATCH_DEBOUNCE", c.Ingest.Debounce, NonNegative).
		Field("GRPC_ADDR", c.Server.GRPCAddr, Required).
		Field("LOG_FORMAT", c.Log.Format, OneOf("text", "json"))
	return v.Err(CodeConfig)
}
