package config

import (
	"os"
	"strconv"
	"time"
)

// Config 保存服务运行所需的全部配置项，全部可由环境变量覆盖
type Config struct {
	// 服务器配置
	ServerPort string

	// 数据库配置
	DBDriver   string // mysql 或 sqlite
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	SQLitePath string

	// Redis配置（快照缓存，可选）
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// 限流配置
	RateLimitRequests int           // 窗口内允许的最大请求数
	RateLimitWindow   time.Duration // 滑动窗口大小
	GlobalRateLimit   int           // 全局每秒请求数
	GlobalRateBurst   int           // 全局突发容量

	// 投票业务限制
	PollCodeLength    int
	MinOptions        int
	MaxOptions        int
	MaxQuestionLength int
	MaxOptionLength   int

	// 快照缓存TTL
	SnapshotCacheTTL time.Duration
}

// Load 从环境变量加载配置，未设置的项使用默认值
func Load() *Config {
	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8090"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBUser:     getEnv("DB_USER", "polluser"),
		DBPassword: getEnv("DB_PASSWORD", "pollpassword"),
		DBHost:     getEnv("DB_HOST", "mysql"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBName:     getEnv("DB_NAME", "polldb"),
		SQLitePath: getEnv("SQLITE_PATH", "polls.db"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 10),
		RateLimitWindow:   time.Duration(getEnvInt("RATE_LIMIT_WINDOW", 60)) * time.Second,
		GlobalRateLimit:   getEnvInt("GLOBAL_RATE_LIMIT", 100),
		GlobalRateBurst:   getEnvInt("GLOBAL_RATE_BURST", 200),

		PollCodeLength:    8,
		MinOptions:        getEnvInt("MIN_OPTIONS", 2),
		MaxOptions:        getEnvInt("MAX_OPTIONS", 10),
		MaxQuestionLength: getEnvInt("MAX_QUESTION_LENGTH", 500),
		MaxOptionLength:   getEnvInt("MAX_OPTION_LENGTH", 200),

		SnapshotCacheTTL: time.Duration(getEnvInt("SNAPSHOT_CACHE_TTL", 10)) * time.Second,
	}
}

// getEnv 获取环境变量值或使用默认值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt 获取整数类型的环境变量值或使用默认值
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
