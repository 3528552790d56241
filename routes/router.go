package routes

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"realtime-poll-backend/handlers"
	"realtime-poll-backend/limiter"
	"realtime-poll-backend/websocket"
)

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// Dependencies 路由装配所需的全部处理器，由main构造后注入
type Dependencies struct {
	PollHandler   *handlers.PollHandler
	HealthHandler *handlers.HealthHandler
	WSHandler     *websocket.Handler
	GlobalLimiter *limiter.GlobalLimiter
}

// SetupRouter 设置和配置Gin路由
func SetupRouter(deps Dependencies) *gin.Engine {
	// 创建Gin路由器
	router := gin.Default()

	// 配置CORS中间件
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // 生产环境中应限制为前端域名
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 定义API路由
	api := router.Group("/api")
	{
		// 全局API限流中间件
		api.Use(deps.GlobalLimiter.Middleware())

		// 健康检查端点
		api.GET("/health", deps.HealthHandler.HealthCheck)
		api.GET("/status", deps.HealthHandler.SystemStatus)

		// 全局限流器统计
		api.GET("/ratelimit/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.GlobalLimiter.Statistics())
		})

		// 投票端点
		polls := api.Group("/polls")
		{
			polls.POST("", deps.PollHandler.CreatePoll)
			polls.GET("/:code", deps.PollHandler.GetPoll)
			polls.POST("/:code/vote", deps.PollHandler.SubmitVote)
			polls.GET("/:code/results", deps.PollHandler.GetResults)

			// 实时更新端点
			polls.GET("/:code/ws", deps.WSHandler.HandleConnection)
		}
	}

	return router
}

// StartServer 启动HTTP服务器
func StartServer(router *gin.Engine, port string) *Server {
	addr := ":" + port

	srv := &Server{
		&http.Server{
			Addr:    addr,
			Handler: router,
		},
	}

	// 在单独的goroutine中启动服务器
	go func() {
		log.Printf("服务器启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	return srv
}
