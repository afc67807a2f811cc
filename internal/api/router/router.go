package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"deploy-console/internal/adapter/trigger"
	"deploy-console/internal/api/handler"
	"deploy-console/internal/api/middleware"
	"deploy-console/internal/core"
	"deploy-console/internal/pkg/config"
	"deploy-console/internal/pkg/git"
	"deploy-console/internal/repository"
	"deploy-console/internal/service"
)

// Setup 设置路由
func Setup(cfg *config.Config, engine *core.Engine, triggerClient trigger.Client, logger *zap.Logger) *gin.Engine {
	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Swagger API 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 获取数据库连接
	db := cfg.DB.(*gorm.DB)

	// 初始化Repository
	credentialRepo := repository.NewCredentialRepository(db)
	instanceRepo := repository.NewInstanceRepository(db)

	// 代码仓库平台客户端
	gitClient, err := git.NewClient(&git.ClientConfig{
		BaseURL:      cfg.Repo.BaseURL,
		Token:        cfg.Repo.Token,
		PlatformType: git.PlatformType(cfg.Repo.Platform),
	})
	if err != nil {
		logger.Fatal("初始化代码仓库客户端失败", zap.Error(err))
	}

	// 初始化Service
	credentialService := service.NewCredentialService(credentialRepo, triggerClient)
	instanceService := service.NewInstanceService(instanceRepo, engine)
	envResolverService := service.NewEnvResolverService(instanceRepo, gitClient, logger)
	templateService := service.NewTemplateService(credentialRepo, instanceRepo)

	// 初始化Handler
	credentialHandler := handler.NewCredentialHandler(credentialService)
	instanceHandler := handler.NewInstanceHandler(instanceService, envResolverService)
	deployHandler := handler.NewDeployHandler(engine, instanceService)
	templateHandler := handler.NewTemplateHandler(templateService)

	// API v1
	v1 := r.Group("/api/v1")
	{
		store := v1.Group("/credential-store/:type")
		{
			store.GET("", credentialHandler.Store)
			store.POST("/entries", credentialHandler.Add)
			store.PUT("/selection", credentialHandler.Select)
			store.DELETE("/entries/:id", credentialHandler.Delete)
			store.POST("/entries/:id/verify", credentialHandler.Verify)
			store.POST("/entries/:id/mark-primed", credentialHandler.MarkPrimed)
		}
		v1.POST("/prime", credentialHandler.Prime)

		v1.POST("/instance", instanceHandler.Add)
		v1.GET("/instances", instanceHandler.List)
		v1.GET("/instance", instanceHandler.Get)
		v1.PUT("/instance", instanceHandler.Update)
		v1.POST("/instance/delete", instanceHandler.Delete)
		v1.POST("/instance/database", instanceHandler.ToggleDatabase)
		v1.POST("/instance/env", instanceHandler.EnvVar)
		v1.POST("/instance/env/source", instanceHandler.SelectEnvSource)
		v1.POST("/instance/env/resolve", instanceHandler.ResolveEnv)
		v1.GET("/repo/branches", instanceHandler.Branches)

		v1.POST("/deploy", deployHandler.Submit)
		v1.POST("/deploy/waves", deployHandler.DeployWaves)
		v1.GET("/deploy/status", deployHandler.Status)
		v1.POST("/deploy/poll", deployHandler.ManualPoll)

		v1.GET("/tenant-stack/template", templateHandler.TenantStack)
	}

	return r
}
