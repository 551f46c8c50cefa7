package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config coachsync（HTTP API + reconciliation loop）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       struct {
		Level  string
		Format string
	}
	Identity  IdentityConfig
	Reconcile ReconcileConfig
}

// IdentityConfig identity hashing 配置。HashKey 没有默认值：缺失时进程
// 必须 fail loudly，绝不能用弱默认 key 写出错误的 hash。
type IdentityConfig struct {
	HashKey       string // IDENTITY_HASH_KEY, required
	DefaultRegion string // phone 归一化的默认地区
}

// ReconcileConfig 周期性 reconciliation run 的参数
type ReconcileConfig struct {
	LookbackHours    int
	ProximityMinutes int
	IntervalSeconds  int // 0 禁用周期 run（仅手动触发）
	MaxRuntimeSec    int // 0 不限时
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// Default to true for local dev: if DB is unavailable, coachsync falls
	// back to the in-memory store so the API still comes up with `go run`.
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "coachsync")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Identity.HashKey = os.Getenv("IDENTITY_HASH_KEY")
	cfg.Identity.DefaultRegion = getEnv("PHONE_DEFAULT_REGION", "US")

	cfg.Reconcile.LookbackHours = parseInt(getEnv("RECONCILE_LOOKBACK_HOURS", "72"), 72)
	cfg.Reconcile.ProximityMinutes = parseInt(getEnv("RECONCILE_PROXIMITY_MINUTES", "15"), 15)
	cfg.Reconcile.IntervalSeconds = parseInt(getEnv("RECONCILE_INTERVAL_SECONDS", "900"), 900)
	cfg.Reconcile.MaxRuntimeSec = parseInt(getEnv("RECONCILE_MAX_RUNTIME_SECONDS", "0"), 0)

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
