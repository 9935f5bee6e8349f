package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Zitadel   ZitadelConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	Suno      SunoConfig
	Poll      PollConfig
	Worker    WorkerConfig
	R2        R2Config
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	GeneratePerHour int
	CatalogPerMin   int
}

type SunoConfig struct {
	BaseURL string
	Model   string
	Timeout int // seconds
}

// Readiness criteria for a polled clip
const (
	ReadinessAudio      = "audio"
	ReadinessAudioVideo = "audio_video"
)

// Polling schedulers
const (
	SchedulerCron   = "cron"
	SchedulerTicker = "ticker"
)

type PollConfig struct {
	IntervalMs int
	Readiness  string
	Scheduler  string
	MaxWait    time.Duration
}

// Interval returns the poll interval as a duration
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

type WorkerConfig struct {
	Concurrency int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = v.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = v.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = v.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = v.BindEnv("ratelimit.catalog_per_min", "RATELIMIT_CATALOG_PER_MIN")
	_ = v.BindEnv("suno.base_url", "SUNO_BASE_URL")
	_ = v.BindEnv("suno.model", "SUNO_MODEL")
	_ = v.BindEnv("suno.timeout", "SUNO_TIMEOUT")
	_ = v.BindEnv("poll.interval_ms", "POLL_INTERVAL_MS")
	_ = v.BindEnv("poll.readiness", "POLL_READINESS")
	_ = v.BindEnv("poll.scheduler", "POLL_SCHEDULER")
	_ = v.BindEnv("poll.max_wait", "POLL_MAX_WAIT")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("gateway.enabled", false)
	v.SetDefault("ratelimit.generate_per_hour", 10)
	v.SetDefault("ratelimit.catalog_per_min", 60)

	// Remote song API defaults
	v.SetDefault("suno.base_url", "https://suno.deno.dev")
	v.SetDefault("suno.model", "chirp-v3-5")
	v.SetDefault("suno.timeout", 60)

	// Polling defaults
	v.SetDefault("poll.interval_ms", 5000)
	v.SetDefault("poll.readiness", ReadinessAudio)
	v.SetDefault("poll.scheduler", SchedulerCron)
	v.SetDefault("poll.max_wait", "30m")
	v.SetDefault("worker.concurrency", 10)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
		},
		Zitadel: ZitadelConfig{
			Domain:   v.GetString("zitadel.domain"),
			ClientID: v.GetString("zitadel.client_id"),
			Issuer:   v.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
			CatalogPerMin:   v.GetInt("ratelimit.catalog_per_min"),
		},
		Suno: SunoConfig{
			BaseURL: strings.TrimRight(v.GetString("suno.base_url"), "/"),
			Model:   v.GetString("suno.model"),
			Timeout: v.GetInt("suno.timeout"),
		},
		Poll: PollConfig{
			IntervalMs: v.GetInt("poll.interval_ms"),
			Readiness:  strings.ToLower(v.GetString("poll.readiness")),
			Scheduler:  strings.ToLower(v.GetString("poll.scheduler")),
			MaxWait:    v.GetDuration("poll.max_wait"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Poll.IntervalMs <= 0 {
		return fmt.Errorf("poll.interval_ms must be positive, got %d", c.Poll.IntervalMs)
	}
	switch c.Poll.Readiness {
	case ReadinessAudio, ReadinessAudioVideo:
	default:
		return fmt.Errorf("poll.readiness must be %q or %q, got %q", ReadinessAudio, ReadinessAudioVideo, c.Poll.Readiness)
	}
	switch c.Poll.Scheduler {
	case SchedulerCron, SchedulerTicker:
	default:
		return fmt.Errorf("poll.scheduler must be %q or %q, got %q", SchedulerCron, SchedulerTicker, c.Poll.Scheduler)
	}
	if c.Poll.Scheduler == SchedulerCron && c.Poll.IntervalMs%1000 != 0 {
		return fmt.Errorf("poll.interval_ms must be a multiple of 1000 with the %q scheduler, got %d (use %q for sub-second precision)",
			SchedulerCron, c.Poll.IntervalMs, SchedulerTicker)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	return nil
}
