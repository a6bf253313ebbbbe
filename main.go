package main

import (
	"context"
	"fmt"
	"os"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/TIANLI0/CutoutKit/handler"
	"github.com/TIANLI0/CutoutKit/middleware"
	"github.com/TIANLI0/CutoutKit/service"
	"github.com/TIANLI0/CutoutKit/utils"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 加载 .env 与配置
	_ = godotenv.Load()
	cfg := config.New()

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting CutoutKit server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("engine", cfg.Segmenter.Engine))

	// 确保调试输出目录存在
	if cfg.Scratch.Dir != "" {
		if err := os.MkdirAll(cfg.Scratch.Dir, 0755); err != nil {
			utils.Logger.Fatal("failed to create scratch directory", zap.Error(err))
		}
	}

	// 初始化Redis
	redisService := service.NewRedisService(&cfg.Redis)
	ctx := context.Background()
	if err := redisService.Ping(ctx); err != nil {
		utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
	} else {
		utils.Logger.Info("redis connected successfully")
	}
	defer redisService.Close()

	// 初始化分割引擎
	segmenter, err := service.NewSegmenter(&cfg.Segmenter)
	if err != nil {
		utils.Logger.Fatal("failed to initialize segmenter", zap.Error(err))
	}

	// 启动定期清理
	cleanup := service.NewCleanupService(&cfg.Scratch)
	if err := cleanup.Start(); err != nil {
		utils.Logger.Warn("failed to start cleanup job", zap.Error(err))
	}
	defer cleanup.Stop()

	// 初始化Handler
	removeHandler := handler.NewRemoveHandler(cfg, redisService, segmenter)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 创建路由
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	// 静态文件服务
	r.Static("/static", "./static")
	r.StaticFile("/", "./static/index.html")

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"version": Version,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	// 业务路由
	r.POST("/remove-background", removeHandler.RemoveBackground)

	// 启动服务器
	utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := r.Run(cfg.Server.Port); err != nil {
		utils.Logger.Fatal("failed to start server", zap.Error(err))
	}
}
