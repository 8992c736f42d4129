package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           int                `json:"port"`
	PublicURL      string             `json:"public_url"`
	JWTSecret      string             `json:"jwt_secret"`
	AdminIDs       []int64            `json:"admin_ids"`
	HowToVerifyURL string             `json:"how_to_verify_url"`
	VIPAccessURL   string             `json:"vip_access_url"`
	LogConfig      logger.LogConfig   `json:"log_config"`
	Database       DatabaseConfig     `json:"database"`
	Telegram       TelegramConfig     `json:"telegram"`
	Verification   VerificationConfig `json:"verification"`
	LikeAPI        EndpointConfig     `json:"like_api"`
	PlayerInfoAPI  PlayerInfoConfig   `json:"player_info_api"`
	Shortener      EndpointConfig     `json:"shortener"`
	RateLimit      RateLimitConfig    `json:"rate_limit"`
}

type DatabaseConfig struct {
	Type     string `json:"type"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
	// pool sizing, zero keeps the defaults below
	MaxOpenConns       int `json:"max_open_conns"`
	MaxIdleConns       int `json:"max_idle_conns"`
	ConnMaxLifetimeSec int `json:"conn_max_lifetime_sec"`
}

type TelegramConfig struct {
	Token          string `json:"token"`
	PollTimeout    int    `json:"poll_timeout"`
	MaxConcurrency int    `json:"max_concurrency"`
	Debug          bool   `json:"debug"`
}

type VerificationConfig struct {
	CodeTTLMinutes      int    `json:"code_ttl_minutes"`
	FreshnessGraceHours int    `json:"freshness_grace_hours"`
	CooldownHours       int    `json:"cooldown_hours"`
	RetentionDays       int    `json:"retention_days"`
	PurgeCron           string `json:"purge_cron"`
}

// EndpointConfig describes an outbound HTTP API addressed by a URL template.
type EndpointConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type PlayerInfoConfig struct {
	EndpointConfig
	CacheSize       int `json:"cache_size"`
	CacheTTLMinutes int `json:"cache_ttl_minutes"`
}

type RateLimitConfig struct {
	VerifyWindowSeconds int `json:"verify_window_seconds"`
}

func (c EndpointConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c VerificationConfig) CodeTTL() time.Duration {
	return time.Duration(c.CodeTTLMinutes) * time.Minute
}

func (c VerificationConfig) FreshnessGrace() time.Duration {
	return time.Duration(c.FreshnessGraceHours) * time.Hour
}

func (c VerificationConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownHours) * time.Hour
}

func (c VerificationConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Load reads a JSON or YAML (by extension) config file and applies defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	return Parse(raw, filepath.Ext(path))
}

func Parse(raw []byte, ext string) (*Config, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		// decode to a generic tree first so the json tags stay the single source of key names
		var tree map[string]interface{}
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
		data, err := json.Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("convert yaml config: %w", err)
		}
		raw = data
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.PublicURL == "" {
		return fmt.Errorf("public_url is required")
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if cfg.LikeAPI.URL == "" {
		return fmt.Errorf("like_api.url is required")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	switch cfg.Database.Type {
	case "postgres":
		if cfg.Database.DSN == "" && cfg.Database.Host == "" {
			return fmt.Errorf("database.dsn or database.host is required for postgres")
		}
		if cfg.Database.Port == 0 {
			cfg.Database.Port = 5432
		}
		if cfg.Database.MaxOpenConns <= 0 {
			cfg.Database.MaxOpenConns = 16
		}
		if cfg.Database.MaxIdleConns <= 0 || cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns {
			cfg.Database.MaxIdleConns = cfg.Database.MaxOpenConns / 2
		}
		if cfg.Database.ConnMaxLifetimeSec <= 0 {
			cfg.Database.ConnMaxLifetimeSec = 1800
		}
	case "memory":
	default:
		return fmt.Errorf("database.type must be postgres or memory")
	}
	if cfg.Telegram.PollTimeout <= 0 {
		cfg.Telegram.PollTimeout = 60
	}
	if cfg.Telegram.MaxConcurrency <= 0 {
		cfg.Telegram.MaxConcurrency = 32
	}
	if cfg.Verification.CodeTTLMinutes <= 0 {
		cfg.Verification.CodeTTLMinutes = 60
	}
	if cfg.Verification.FreshnessGraceHours <= 0 {
		cfg.Verification.FreshnessGraceHours = 6
	}
	if cfg.Verification.CooldownHours <= 0 {
		cfg.Verification.CooldownHours = 24
	}
	if cfg.Verification.RetentionDays <= 0 {
		cfg.Verification.RetentionDays = 7
	}
	if cfg.Verification.PurgeCron == "" {
		cfg.Verification.PurgeCron = "0 * * * *"
	}
	if cfg.LikeAPI.TimeoutSeconds <= 0 {
		cfg.LikeAPI.TimeoutSeconds = 10
	}
	if cfg.PlayerInfoAPI.TimeoutSeconds <= 0 {
		cfg.PlayerInfoAPI.TimeoutSeconds = 5
	}
	if cfg.PlayerInfoAPI.CacheSize <= 0 {
		cfg.PlayerInfoAPI.CacheSize = 1024
	}
	if cfg.PlayerInfoAPI.CacheTTLMinutes <= 0 {
		cfg.PlayerInfoAPI.CacheTTLMinutes = 30
	}
	if cfg.Shortener.TimeoutSeconds <= 0 {
		cfg.Shortener.TimeoutSeconds = 5
	}
	if cfg.RateLimit.VerifyWindowSeconds < 0 {
		cfg.RateLimit.VerifyWindowSeconds = 0
	}
	return nil
}

func (cfg *Config) IsAdmin(userID int64) bool {
	for _, id := range cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
