package config

import (
	"os"
	"strconv"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// GetRedisConfig reads the event stream connection from the environment, falling back
// to the file values when a config is loaded
func GetRedisConfig() RedisConfig {
	fileCfg := RedisConfig{Addr: "localhost:6379", Stream: "gridcast_events"}
	if instance != nil {
		if instance.Redis.Addr != "" {
			fileCfg.Addr = instance.Redis.Addr
		}
		if instance.Redis.Stream != "" {
			fileCfg.Stream = instance.Redis.Stream
		}
		fileCfg.Password = instance.Redis.Password
		fileCfg.DB = instance.Redis.DB
	}

	db := fileCfg.DB
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if parsed, err := strconv.Atoi(dbStr); err == nil {
			db = parsed
		}
	}

	return RedisConfig{
		Addr:     getEnv("REDIS_ADDR", fileCfg.Addr),
		Password: getEnv("REDIS_PASSWORD", fileCfg.Password),
		DB:       db,
		Stream:   getEnv("REDIS_STREAM", fileCfg.Stream),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
