// Package config loads server settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DevJWTSecret is the fallback signing key. Validate rejects it when GIN_MODE is release.
const DevJWTSecret = "change-me-in-production"

// Config holds every setting the server reads at startup.
type Config struct {
	Port            string
	DataDir         string
	DBPath          string
	DatasetPath     string
	ModelPath       string
	JWTSecret       string
	SessionTTL      time.Duration
	DefaultClassNum int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LoginLimitPerMin int
	AllowedOrigins   []string
	ChartAssetsHost  string
	CacheTTL         time.Duration
	RequestTimeout   time.Duration

	LogLevel      slog.Level
	GinMode       string
	EnableSwagger bool
	EnableHSTS    bool
}

// Load reads the .env file named by ENV_FILE (default ".env") when present and
// layers environment variables over the defaults.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("db_path", "")
	v.SetDefault("dataset_path", "")
	v.SetDefault("model_path", "")
	v.SetDefault("jwt_secret", DevJWTSecret)
	v.SetDefault("session_ttl", "12h")
	v.SetDefault("default_class_number", 9)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("login_limit_per_min", 10)
	v.SetDefault("allowed_origins", "http://localhost:8080")
	v.SetDefault("chart_assets_host", "")
	v.SetDefault("cache_ttl", "5m")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("gin_mode", "debug")
	v.SetDefault("enable_swagger", true)
	v.SetDefault("enable_hsts", false)
}

func fromViper(v *viper.Viper) (*Config, error) {
	dataDir := v.GetString("data_dir")
	orDataFile := func(key, name string) string {
		if p := v.GetString(key); p != "" {
			return p
		}
		return filepath.Join(dataDir, name)
	}

	cfg := &Config{
		Port:             v.GetString("port"),
		DataDir:          dataDir,
		DBPath:           orDataFile("db_path", "website_data.db"),
		DatasetPath:      orDataFile("dataset_path", "data.csv"),
		ModelPath:        orDataFile("model_path", "model.json"),
		JWTSecret:        v.GetString("jwt_secret"),
		SessionTTL:       v.GetDuration("session_ttl"),
		DefaultClassNum:  v.GetInt("default_class_number"),
		RedisAddr:        v.GetString("redis_addr"),
		RedisPassword:    v.GetString("redis_password"),
		RedisDB:          v.GetInt("redis_db"),
		LoginLimitPerMin: v.GetInt("login_limit_per_min"),
		AllowedOrigins:   splitList(v.GetString("allowed_origins")),
		ChartAssetsHost:  v.GetString("chart_assets_host"),
		CacheTTL:         v.GetDuration("cache_ttl"),
		RequestTimeout:   v.GetDuration("request_timeout"),
		GinMode:          v.GetString("gin_mode"),
		EnableSwagger:    v.GetBool("enable_swagger"),
		EnableHSTS:       v.GetBool("enable_hsts"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.DefaultClassNum <= 0 {
		return fmt.Errorf("DEFAULT_CLASS_NUMBER must be positive, got %d", c.DefaultClassNum)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.LoginLimitPerMin <= 0 {
		return fmt.Errorf("LOGIN_LIMIT_PER_MIN must be positive, got %d", c.LoginLimitPerMin)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.JWTSecret == DevJWTSecret {
		if c.GinMode == "release" {
			return fmt.Errorf("JWT_SECRET must be set in release mode")
		}
		slog.Warn("JWT_SECRET is the development default; set it before exposing the server")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
