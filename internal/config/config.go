package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the framecheck server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Detector DetectorConfig `yaml:"detector"`
	Upload   UploadConfig   `yaml:"upload"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port               int    `yaml:"port"`
	Env                string `yaml:"env"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	// BootstrapAPIKey, when set, is stored as an admin key on startup if no
	// key with the bootstrap name exists yet.
	BootstrapAPIKey string `yaml:"bootstrap_api_key"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// DetectorConfig points at the external detection service.
type DetectorConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	FlagThreshold float64       `yaml:"flag_threshold"`
}

type UploadConfig struct {
	MaxBytes          int64    `yaml:"max_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// ArchiveConfig configures the MinIO upload archive. Archiving is off when
// Endpoint is empty.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether uploads should be archived.
func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != ""
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ConfigFileEnv names the variable holding an optional YAML config path.
const ConfigFileEnv = "FRAMECHECK_CONFIG"

const minBootstrapKeyLen = 16

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration and returns a validated Config.
// Sources, lowest precedence first: built-in defaults, the YAML file named by
// FRAMECHECK_CONFIG, a .env file in the working directory, the environment.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient reads the same sources as Load but only validates what the
// command-line client needs: the detection service, upload and logging sections.
func LoadClient() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateClient(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			Env:                "development",
			RateLimitPerMinute: 60,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Detector: DetectorConfig{
			Timeout:       60 * time.Second,
			PollInterval:  2 * time.Second,
			FlagThreshold: 0.6,
		},
		Upload: UploadConfig{
			MaxBytes:          100 << 20,
			AllowedExtensions: []string{".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv"},
		},
		Archive: ArchiveConfig{
			Bucket: "framecheck-uploads",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applyEnv overrides every field whose environment variable is set.
func (c *Config) applyEnv() {
	c.Server.Port = envInt("FRAMECHECK_PORT", c.Server.Port)
	c.Server.Env = envString("FRAMECHECK_ENV", c.Server.Env)
	c.Server.RateLimitPerMinute = envInt("RATE_LIMIT_PER_MINUTE", c.Server.RateLimitPerMinute)
	c.Server.BootstrapAPIKey = envString("FRAMECHECK_BOOTSTRAP_KEY", c.Server.BootstrapAPIKey)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = envDuration("DATABASE_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Redis.URL = envString("REDIS_URL", c.Redis.URL)

	c.Detector.BaseURL = strings.TrimRight(envString("DETECTOR_BASE_URL", c.Detector.BaseURL), "/")
	c.Detector.APIKey = envString("DETECTOR_API_KEY", c.Detector.APIKey)
	c.Detector.Timeout = envDuration("DETECTOR_TIMEOUT", c.Detector.Timeout)
	c.Detector.PollInterval = envDuration("DETECTOR_POLL_INTERVAL", c.Detector.PollInterval)
	c.Detector.FlagThreshold = envFloat("DETECTOR_FLAG_THRESHOLD", c.Detector.FlagThreshold)

	c.Upload.MaxBytes = envInt64("UPLOAD_MAX_BYTES", c.Upload.MaxBytes)
	c.Upload.AllowedExtensions = envList("UPLOAD_ALLOWED_EXTENSIONS", c.Upload.AllowedExtensions)

	c.Archive.Endpoint = envString("MINIO_ENDPOINT", c.Archive.Endpoint)
	c.Archive.AccessKey = envString("MINIO_ACCESS_KEY", c.Archive.AccessKey)
	c.Archive.SecretKey = envString("MINIO_SECRET_KEY", c.Archive.SecretKey)
	c.Archive.Bucket = envString("MINIO_BUCKET", c.Archive.Bucket)
	c.Archive.UseSSL = envBool("MINIO_USE_SSL", c.Archive.UseSSL)

	c.Logging.Level = strings.ToLower(envString("FRAMECHECK_LOG_LEVEL", c.Logging.Level))
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if err := c.validateClient(); err != nil {
		return err
	}

	if k := c.Server.BootstrapAPIKey; k != "" && len(k) < minBootstrapKeyLen {
		return fmt.Errorf("FRAMECHECK_BOOTSTRAP_KEY must be at least %d characters", minBootstrapKeyLen)
	}

	if c.Archive.Enabled() {
		if c.Archive.AccessKey == "" || c.Archive.SecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
		}
		if c.Archive.Bucket == "" {
			return fmt.Errorf("MINIO_BUCKET is required when MINIO_ENDPOINT is set")
		}
	}

	return nil
}

func (c *Config) validateClient() error {
	if c.Detector.BaseURL == "" {
		return fmt.Errorf("DETECTOR_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Detector.BaseURL, "http://") && !strings.HasPrefix(c.Detector.BaseURL, "https://") {
		return fmt.Errorf("DETECTOR_BASE_URL must start with http:// or https://, got %q", c.Detector.BaseURL)
	}
	if c.Detector.PollInterval <= 0 {
		return fmt.Errorf("DETECTOR_POLL_INTERVAL must be positive, got %s", c.Detector.PollInterval)
	}
	if c.Detector.FlagThreshold < 0 || c.Detector.FlagThreshold > 1 {
		return fmt.Errorf("DETECTOR_FLAG_THRESHOLD must be between 0 and 1, got %v", c.Detector.FlagThreshold)
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.Upload.MaxBytes)
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("UPLOAD_ALLOWED_EXTENSIONS must list at least one extension")
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("FRAMECHECK_LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
