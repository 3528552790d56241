package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"realtime-poll-backend/cache"
	"realtime-poll-backend/config"
	"realtime-poll-backend/database"
	"realtime-poll-backend/handlers"
	"realtime-poll-backend/limiter"
	"realtime-poll-backend/routes"
	"realtime-poll-backend/service"
	"realtime-poll-backend/websocket"
)

func main() {
	// 加载.env文件（不存在时直接使用进程环境变量）
	if err := godotenv.Load(); err != nil {
		log.Println("未找到.env文件，使用环境变量")
	}

	cfg := config.Load()

	// 初始化数据库连接
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("数据库连接初始化成功")

	// 初始化Redis连接，失败时降级为无缓存运行
	redisClient, err := cache.Connect(cfg)
	if err != nil {
		log.Printf("警告: Redis初始化失败，快照缓存降级为直查数据库: %v", err)
		redisClient = nil
	}
	snapshots := cache.NewSnapshotCache(redisClient, cfg.SnapshotCacheTTL)

	// 初始化限流器
	rateLimit := limiter.NewSlidingWindow(cfg.RateLimitRequests, cfg.RateLimitWindow)
	globalLimiter := limiter.NewGlobalLimiter(cfg.GlobalRateLimit, cfg.GlobalRateBurst)

	// 启动WebSocket房间管理器
	hub := websocket.NewHub()
	go hub.Run()

	// 装配服务和处理器
	pollService := service.NewPollService(db, cfg, rateLimit, snapshots, hub)
	wsHandler := websocket.NewHandler(hub, func(pollCode string) ([]byte, error) {
		return pollService.GetResultsPayload(context.Background(), pollCode)
	})

	// 设置路由
	router := routes.SetupRouter(routes.Dependencies{
		PollHandler:   handlers.NewPollHandler(pollService),
		HealthHandler: handlers.NewHealthHandler(db),
		WSHandler:     wsHandler,
		GlobalLimiter: globalLimiter,
	})
	log.Println("路由设置完成")

	// 启动服务器
	srv := routes.StartServer(router, cfg.ServerPort)

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("关闭服务器...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 不接受新请求并等待现有请求完成
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务器强制关闭: %v", err)
	}

	// 关闭数据库和Redis连接
	database.Close(db)
	cache.CloseRedis(redisClient)

	log.Println("服务器优雅关闭")
}
