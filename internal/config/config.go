package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Env       string          `mapstructure:"env"` // 环境: development, production
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Keycloak  KeycloakConfig  `mapstructure:"keycloak"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Retention RetentionConfig `mapstructure:"retention"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Path            string `mapstructure:"path"`   // sqlite 文件路径
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 秒
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 秒
}

// KeycloakConfig Keycloak 配置
type KeycloakConfig struct {
	Issuer  string `mapstructure:"issuer"`
	JWKSURL string `mapstructure:"jwks_url"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error
	Format string `mapstructure:"format"` // 日志格式: json, text
	Output string `mapstructure:"output"` // 输出位置: stdout, file, both
	File   string `mapstructure:"file"`
}

// RateLimitConfig 登录接口限流配置
type RateLimitConfig struct {
	LoginRPS   float64 `mapstructure:"login_rps"`
	LoginBurst int     `mapstructure:"login_burst"`
}

// AuditConfig 审计配置
type AuditConfig struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LifecycleConfig 变更申请生命周期配置
type LifecycleConfig struct {
	DeletePolicy     string `mapstructure:"delete_policy"` // permissive, draft_or_rejected
	NumberRetryLimit int    `mapstructure:"number_retry_limit"`
	BatchWorkers     int    `mapstructure:"batch_workers"`
}

// AuthConfig 本地认证配置
type AuthConfig struct {
	MaxFailedLogins int           `mapstructure:"max_failed_logins"`
	LockoutMinutes  int           `mapstructure:"lockout_minutes"`
	AdminUsername   string        `mapstructure:"admin_username"`
	AdminPassword   string        `mapstructure:"admin_password"`
	TokenSecret     string        `mapstructure:"token_secret"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
}

// RetentionConfig 审计与登录日志保留配置
type RetentionConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	AuditDays int           `mapstructure:"audit_days"` // 0 表示不清理
	LoginDays int           `mapstructure:"login_days"`
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// Load 加载配置,支持配置文件、.env 文件和环境变量
func Load(configPath string) (*Config, error) {
	// .env 文件可选
	_ = godotenv.Load()

	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果提供了配置文件路径,从文件加载
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.shipchange")
		// 忽略配置文件不存在的错误,使用默认值
		_ = v.ReadInConfig()
	}

	// 支持环境变量
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// IsProduction 判断是否为生产环境
func IsProduction(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.Env == "production"
}

// Default 返回默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	v.SetDefault("env", env)

	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// 数据库默认配置
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "shipchange.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "shipchange")
	v.SetDefault("database.sslmode", "disable")

	// 数据库连接池配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("database.max_idle_conns", 20)
		v.SetDefault("database.max_open_conns", 200)
		v.SetDefault("database.conn_max_lifetime", 3600)
		v.SetDefault("database.conn_max_idle_time", 300)
	} else {
		v.SetDefault("database.max_idle_conns", 10)
		v.SetDefault("database.max_open_conns", 100)
		v.SetDefault("database.conn_max_lifetime", 3600)
		v.SetDefault("database.conn_max_idle_time", 600)
	}

	// Keycloak 默认配置
	v.SetDefault("keycloak.issuer", "")
	v.SetDefault("keycloak.jwks_url", "")

	// CORS 默认配置
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-ID"})
	v.SetDefault("cors.max_age", 86400)

	// 日志配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("log.level", "warn")
		v.SetDefault("log.format", "json")
	} else {
		v.SetDefault("log.level", "debug")
		v.SetDefault("log.format", "text")
	}
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/shipchange.log")

	v.SetDefault("rate_limit.login_rps", 1.0)
	v.SetDefault("rate_limit.login_burst", 5)

	v.SetDefault("audit.write_timeout", 5*time.Second)

	v.SetDefault("lifecycle.delete_policy", "permissive")
	v.SetDefault("lifecycle.number_retry_limit", 5)
	v.SetDefault("lifecycle.batch_workers", 8)

	v.SetDefault("auth.max_failed_logins", 5)
	v.SetDefault("auth.lockout_minutes", 15)
	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.admin_password", "admin123")
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_ttl", 8*time.Hour)

	v.SetDefault("retention.interval", 24*time.Hour)
	v.SetDefault("retention.audit_days", 0)
	v.SetDefault("retention.login_days", 0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
}
