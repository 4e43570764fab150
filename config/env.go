package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix 进程环境变量前缀
const EnvPrefix = "INFERKIT"

// Env 进程级配置，来自 INFERKIT_* 环境变量。
//
// 用例相关的配置（schema、制品路径、节点链）在 UseCases 指向的 YAML 中。
type Env struct {
	// Server
	Port            int           `envconfig:"PORT" default:"8000"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"*"`

	// RateLimit 每秒请求数，0 表示不限流
	RateLimit float64 `envconfig:"RATE_LIMIT" default:"0"`
	RateBurst int     `envconfig:"RATE_BURST" default:"20"`

	// Use cases
	UseCases        string        `envconfig:"USECASES" default:"configs/usecases.yaml"`
	ArtifactRoot    string        `envconfig:"ARTIFACT_ROOT" default:"artifacts"`
	ArtifactTimeout time.Duration `envconfig:"ARTIFACT_TIMEOUT" default:"10s"`
	GCSCredentials  string        `envconfig:"GCS_CREDENTIALS_FILE"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev   bool   `envconfig:"LOG_DEV" default:"false"`

	// Metrics
	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`

	// Prediction cache
	CacheBackend  string `envconfig:"CACHE_BACKEND" default:"none"`
	CacheTTL      int    `envconfig:"CACHE_TTL" default:"300"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	// Feature store（可选）
	FeastHost    string        `envconfig:"FEAST_HOST"`
	FeastPort    int           `envconfig:"FEAST_PORT" default:"6566"`
	FeastProject string        `envconfig:"FEAST_PROJECT"`
	FeastToken   string        `envconfig:"FEAST_TOKEN"`
	FeastTimeout time.Duration `envconfig:"FEAST_TIMEOUT" default:"2s"`
}

// LoadEnv 从环境变量加载并校验进程配置
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate 校验取值范围
func (e *Env) Validate() error {
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("invalid port: %d", e.Port)
	}
	if e.UseCases == "" {
		return fmt.Errorf("use case config path is required")
	}
	if e.RateLimit < 0 {
		return fmt.Errorf("rate limit must be >= 0, got %v", e.RateLimit)
	}
	if e.RateLimit > 0 && e.RateBurst <= 0 {
		return fmt.Errorf("rate burst must be > 0 when rate limiting is enabled")
	}
	if e.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be > 0")
	}
	switch strings.ToLower(e.CacheBackend) {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache backend: %s (want none|memory|redis)", e.CacheBackend)
	}
	if e.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must be >= 0")
	}
	switch strings.ToLower(e.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", e.LogLevel)
	}
	if e.FeastHost != "" && e.FeastProject == "" {
		return fmt.Errorf("feast project is required when feast host is set")
	}
	return nil
}

// Addr 返回 HTTP 监听地址
func (e *Env) Addr() string {
	return fmt.Sprintf(":%d", e.Port)
}
