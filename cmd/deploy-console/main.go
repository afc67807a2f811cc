package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"deploy-console/internal/adapter/joblog"
	"deploy-console/internal/adapter/trigger"
	"deploy-console/internal/api/router"
	"deploy-console/internal/core"
	"deploy-console/internal/pkg/config"
	"deploy-console/internal/pkg/database"
	"deploy-console/internal/pkg/logger"
	"deploy-console/internal/repository"
	"deploy-console/internal/scheduler"
	"deploy-console/internal/service"

	_ "deploy-console/docs" // Swagger docs
)

// @title Deploy Console API
// @version 1.0
// @description 波次部署控制台 API 文档
// @description 提供凭据管理、部署实例管理、波次部署与状态轮询等功能

// @contact.name API Support
// @contact.email support@example.com

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1

var (
	configFile = flag.String("config", "", "配置文件路径 (例如: -config=configs/config.yaml)")
	version    = flag.Bool("version", false, "显示版本信息")
)

const (
	appVersion = "1.0.0"
	appName    = "deploy-console"
)

func main() {
	// 解析命令行参数
	flag.Parse()

	// 显示版本信息
	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	// init config logger
	var cfg *config.Config
	{
		// 优先级: 命令行参数 > 环境变量 > 默认路径
		configPath := getConfigPath()

		// 加载配置
		c, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("加载配置失败: %v\n", err)
			fmt.Println("\n使用方式:")
			fmt.Println("  1. 命令行参数指定:")
			fmt.Println("     ./deploy-console -config=configs/config.yaml")
			fmt.Println("  2. 环境变量指定:")
			fmt.Println("     export CONFIG_FILE=configs/config.yaml")
			fmt.Println("     ./deploy-console")
			fmt.Println("  3. 使用默认配置:")
			fmt.Println("     ./deploy-console  (将使用 configs/config.yaml)")
			os.Exit(1)
		}
		cfg = c

		// 初始化日志
		if err := logger.Init(&cfg.Log); err != nil {
			fmt.Printf("初始化日志失败: %v\n", err)
			os.Exit(1)
		}
		logger.Info(fmt.Sprintf("Load config file: %s", configPath))

		defer func() {
			_ = logger.Close()
		}()
	}

	logger.Info(fmt.Sprintf("服务 %s 启动中...", appName), zap.String("version", appVersion))

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer func() {
		_ = database.Close()
	}()

	logger.Info(fmt.Sprintf("数据库连接成功 %s:%v", cfg.Database.Host, cfg.Database.Port), zap.String("database", cfg.Database.Database))

	// 注入数据库连接到配置
	cfg.DB = database.GetDB()

	db := database.GetDB()

	// 上游适配器
	triggerClient := trigger.NewClient(cfg.Trigger.BaseURL, cfg.Trigger.Timeout)
	logRetriever := joblog.NewClient()

	// 编排引擎依赖
	credentialRepo := repository.NewCredentialRepository(db)
	instanceRepo := repository.NewInstanceRepository(db)
	credentialService := service.NewCredentialService(credentialRepo, triggerClient)

	scan, poll, waveWait, waveTimeout := cfg.Core.ParseDurations()
	engine := core.NewEngine(instanceRepo, credentialService, triggerClient, logRetriever, logger.Log, core.Options{
		ScanInterval: scan,
		PollInterval: poll,
		WaveWait:     waveWait,
		WaveTimeout:  waveTimeout,
		LogTailLimit: cfg.Core.LogTailLimit,
	})

	// 启动编排引擎
	engine.Start()
	logger.Info("编排引擎启动成功", zap.Duration("scan_interval", scan), zap.Duration("poll_interval", poll))

	// 初始化并启动定时任务调度器
	taskScheduler := scheduler.NewScheduler(credentialService, logger.Log)
	if err := taskScheduler.Start(cfg); err != nil {
		logger.Warn("定时任务调度器启动失败", zap.Error(err))
	}

	// 设置路由
	r := router.Setup(cfg, engine, triggerClient, logger.Log)

	// 创建HTTP服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// 启动服务器
	go func() {
		logger.Info(fmt.Sprintf("%s 服务启动成功", cfg.Server.Name),
			zap.String("address", addr),
			zap.String("mode", cfg.Server.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务正在关闭...")

	// 关闭定时任务调度器
	taskScheduler.Stop()
	logger.Info("定时任务调度器已停止")

	// 关闭编排引擎
	engine.Stop()
	logger.Info("编排引擎已停止")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	logger.Info("服务已关闭")
}

// getConfigPath 获取配置文件路径
// 优先级: 命令行参数 > 环境变量 > 默认路径
func getConfigPath() string {
	// 1. 命令行参数
	if *configFile != "" {
		return *configFile
	}

	// 2. 环境变量
	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		return envConfig
	}

	// 3. 默认路径
	return "configs/config.yaml"
}
