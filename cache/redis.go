package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"realtime-poll-backend/config"

	"github.com/redis/go-redis/v9"
)

// Connect 建立Redis连接并验证可用性。
// Redis在本服务中只承担快照缓存，连接失败时调用方应降级运行而不是退出
func Connect(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis连接失败: %v", err)
	}

	log.Printf("Redis连接成功: %s", cfg.RedisAddr)
	return client, nil
}

// CloseRedis 关闭Redis连接
func CloseRedis(client *redis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Printf("关闭Redis连接失败: %v", err)
		return
	}
	log.Println("Redis连接已关闭")
}
