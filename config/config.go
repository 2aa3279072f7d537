package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultSecretKey is only meant for local development; main warns when it is in use.
const DefaultSecretKey = "a-very-secret-secret"

// AppConfig holds file and environment driven configuration values.
type AppConfig struct {
	AppPort     string
	SecretKey   string
	DatabaseURL string
	// Gin framework configuration
	GinMode string
	GinPath string
	// HTTP surface
	AllowedOrigins       []string
	RateLimitPerMinute   int
	SessionLifetimeHours int
	CookieSecure         bool
	CSRFEnabled          bool
	// Admins
	AdminUsernames []string
	// Redis backs the token revocation list when configured
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Activity events
	AMQPURL   string
	AMQPQueue string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// envKeys maps config keys to the environment variables overriding them.
var envKeys = map[string]string{
	"AppPort":              "APP_PORT",
	"SecretKey":            "SECRET_KEY",
	"DatabaseURL":          "DATABASE_URL",
	"GinMode":              "GIN_MODE",
	"GinPath":              "GIN_PATH",
	"AllowedOrigins":       "CORS_ALLOWED_ORIGINS",
	"RateLimitPerMinute":   "RATE_LIMIT_PER_MINUTE",
	"SessionLifetimeHours": "SESSION_LIFETIME_HOURS",
	"CookieSecure":         "COOKIE_SECURE",
	"CSRFEnabled":          "CSRF_ENABLED",
	"AdminUsernames":       "ADMIN_USERNAMES",
	"RedisHost":            "REDIS_HOST",
	"RedisPort":            "REDIS_PORT",
	"RedisDB":              "REDIS_DB",
	"RedisPassword":        "REDIS_PASSWORD",
	"AMQPURL":              "AMQP_URL",
	"AMQPQueue":            "AMQP_QUEUE",
	"LogLevel":             "LOG_LEVEL",
	"LogPath":              "LOG_PATH",
	"LogMaxSizeMB":         "LOG_MAX_SIZE_MB",
	"LogMaxBackups":        "LOG_MAX_BACKUPS",
	"LogMaxAgeDays":        "LOG_MAX_AGE_DAYS",
	"LogCompress":          "LOG_COMPRESS",
}

// Load reads config/config.json (or the file named by BLOG_CONFIG) and applies environment overrides.
func Load() (AppConfig, error) {
	path := os.Getenv("BLOG_CONFIG")
	if path == "" {
		path = filepath.Join("config", "config.json")
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration with precedence defaults -> file at path -> environment.
// A missing file is not an error.
func LoadFrom(path string) (AppConfig, error) {
	v := viper.New()
	applyDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return AppConfig{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.AllowedOrigins = splitAndTrim(cfg.AllowedOrigins)
	cfg.AdminUsernames = splitAndTrim(cfg.AdminUsernames)
	return cfg, nil
}

// applyDefaults sets sane defaults for every key.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("AppPort", "8080")
	v.SetDefault("SecretKey", DefaultSecretKey)
	v.SetDefault("DatabaseURL", "sqlite:///app.db")
	v.SetDefault("GinMode", "release")
	v.SetDefault("GinPath", "logs/go_gin.log")
	v.SetDefault("AllowedOrigins", []string{"*"})
	v.SetDefault("RateLimitPerMinute", 60)
	v.SetDefault("SessionLifetimeHours", 72)
	v.SetDefault("CookieSecure", false)
	v.SetDefault("CSRFEnabled", true)
	v.SetDefault("AdminUsernames", []string{})
	v.SetDefault("RedisHost", "")
	v.SetDefault("RedisPort", 6379)
	v.SetDefault("RedisDB", 0)
	v.SetDefault("RedisPassword", "")
	v.SetDefault("AMQPURL", "")
	v.SetDefault("AMQPQueue", "blog.activity")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogPath", "")
	v.SetDefault("LogMaxSizeMB", 100)
	v.SetDefault("LogMaxBackups", 3)
	v.SetDefault("LogMaxAgeDays", 7)
	v.SetDefault("LogCompress", false)
}

// splitAndTrim flattens comma separated entries (as they arrive from the environment) and drops blanks.
func splitAndTrim(raw []string) []string {
	items := []string{}
	for _, entry := range raw {
		for _, item := range strings.Split(entry, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
	}
	return items
}
