package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/gradebook-api/api/swagger"
	"github.com/noah-isme/gradebook-api/internal/handler"
	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/repository"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/pkg/cache"
	"github.com/noah-isme/gradebook-api/pkg/config"
	"github.com/noah-isme/gradebook-api/pkg/database"
	"github.com/noah-isme/gradebook-api/pkg/export"
	"github.com/noah-isme/gradebook-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gradebook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gradebook-api/pkg/middleware/requestid"
)

// @title Gradebook API
// @version 1.0.0
// @description Multi-tenant teacher gradebook with score analytics
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, analytics cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Analytics.CacheTTL, logr, cfg.Analytics.Enabled && redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	componentRepo := repository.NewComponentRepository(db)
	scoreRepo := repository.NewScoreRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	studentSvc := service.NewStudentService(studentRepo, cacheSvc, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, componentRepo, cacheSvc, validate, logr)
	scoreSvc := service.NewScoreService(scoreRepo, studentRepo, subjectRepo, componentRepo, cacheSvc, metricsSvc, validate, logr, cfg.Grading.DefaultComponentWeights)
	insightsSvc := service.NewInsightsService(studentRepo, subjectRepo, scoreRepo, cacheSvc, metricsSvc, cfg.Analytics.CacheTTL, logr)
	exportSvc := service.NewExportService(scoreSvc, insightsSvc, subjectRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	scoreHandler := handler.NewScoreHandler(scoreSvc)
	insightsHandler := handler.NewInsightsHandler(insightsSvc)
	exportHandler := handler.NewExportHandler(exportSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	students := protected.Group("/students")
	students.GET("", studentHandler.List)
	students.POST("", studentHandler.Create)
	students.GET("/:id", studentHandler.Get)
	students.PUT("/:id", studentHandler.Update)
	students.DELETE("/:id", studentHandler.Deactivate)

	subjects := protected.Group("/subjects")
	subjects.GET("", subjectHandler.List)
	subjects.POST("", subjectHandler.Create)
	subjects.GET("/:id", subjectHandler.Get)
	subjects.PUT("/:id", subjectHandler.Update)
	subjects.DELETE("/:id", subjectHandler.Delete)
	subjects.GET("/:id/components", subjectHandler.ListComponents)
	subjects.POST("/:id/components", subjectHandler.CreateComponent)
	subjects.PUT("/:id/components/:componentId", subjectHandler.UpdateComponent)
	subjects.DELETE("/:id/components/:componentId", subjectHandler.DeleteComponent)
	subjects.GET("/:id/scores", scoreHandler.Ranking)

	scores := protected.Group("/scores")
	scores.PUT("", scoreHandler.Upsert)
	scores.POST("/import", scoreHandler.Import)

	analytics := protected.Group("/analytics")
	analytics.GET("/at-risk", insightsHandler.AtRisk)
	analytics.GET("/top-performers", insightsHandler.TopPerformers)
	analytics.GET("/anomalies", insightsHandler.Anomalies)
	analytics.GET("/summary", insightsHandler.Summary)
	analytics.GET("/system", insightsHandler.System)

	if cfg.Exports.Enabled {
		exports := protected.Group("/exports")
		exports.GET("/subjects/:id/ranking", exportHandler.SubjectRanking)
		exports.GET("/class-summary", exportHandler.ClassSummary)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
