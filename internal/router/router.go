// Package router assembles the HTTP surface of the academy API.
package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-api/internal/handler"
	"github.com/noah-isme/academy-api/internal/middleware"
	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/service"
	"github.com/noah-isme/academy-api/pkg/config"
	"github.com/noah-isme/academy-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academy-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academy-api/pkg/middleware/requestid"
)

// Config carries everything New needs to build the engine.
type Config struct {
	App    *config.Config
	Logger *zap.Logger

	Tokens  middleware.TokenValidator
	Audit   middleware.AuditWriter
	Metrics *service.MetricsService

	AuthHandler            *handler.AuthHandler
	EnrollmentHandler      *handler.EnrollmentHandler
	AdminEnrollmentHandler *handler.AdminEnrollmentHandler
	MetricsHandler         *handler.MetricsHandler
	// FileHandler is nil when screenshots are served from object storage.
	FileHandler *handler.FileHandler
}

// New builds the gin engine with every route registered.
func New(cfg Config) *gin.Engine {
	app := cfg.App
	if app == nil {
		app = &config.Config{}
	}
	logr := cfg.Logger
	if logr == nil {
		logr = zap.NewNop()
	}

	r := gin.New()
	r.MaxMultipartMemory = app.Uploads.MaxBytes + 1<<20
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(app.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(cfg.Metrics))
	r.Use(middleware.WithResponseMeta())

	if cfg.MetricsHandler != nil {
		r.GET("/health", cfg.MetricsHandler.Health)
		r.GET("/ready", cfg.MetricsHandler.Ready)
		r.GET("/metrics", cfg.MetricsHandler.Prometheus)
	}
	if app.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(app.APIPrefix)

	if cfg.AuthHandler != nil {
		api.POST("/auth/login", cfg.AuthHandler.Login)
	}
	if cfg.FileHandler != nil {
		api.GET("/files/screenshots", cfg.FileHandler.Screenshot)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(cfg.Tokens))

	if cfg.AuthHandler != nil {
		secured.GET("/auth/me", cfg.AuthHandler.Me)
	}

	if h := cfg.EnrollmentHandler; h != nil {
		secured.POST("/enrollments/payment", h.SubmitPayment)

		mine := secured.Group("/me/enrollments")
		mine.GET("", h.ListMine)
		mine.GET("/:id", h.Get)
		mine.POST("/:id/topics/:index/start", h.StartTopic)
		mine.POST("/:id/topics/:index/complete", h.CompleteTopic)
	}

	if h := cfg.AdminEnrollmentHandler; h != nil {
		admin := secured.Group("/admin/enrollments")
		admin.Use(middleware.RequireStaff())
		admin.GET("", h.List)
		admin.GET("/export",
			middleware.Audit(cfg.Audit, logr, models.AuditActionEnrollmentExport, models.AuditResourceEnrollment),
			h.Export,
		)
		admin.GET("/:id", h.Get)
		admin.POST("/:id/verify", h.Verify)
		admin.POST("/:id/reject", h.Reject)
		admin.PATCH("/:id/status", h.UpdateStatus)
	}

	return r
}
