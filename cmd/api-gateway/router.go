package main

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/transfer-board-api/api/swagger"
	"github.com/noah-isme/transfer-board-api/internal/handler"
	"github.com/noah-isme/transfer-board-api/internal/middleware"
	"github.com/noah-isme/transfer-board-api/internal/models"
	"github.com/noah-isme/transfer-board-api/pkg/config"
	"github.com/noah-isme/transfer-board-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/transfer-board-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/transfer-board-api/pkg/middleware/requestid"
)

type routerDeps struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics middleware.RequestObserver
	auth    middleware.TokenValidator
	audit   middleware.AuditWriter
	limiter *middleware.IPRateLimiter

	authH     *handler.AuthHandler
	transfers *handler.TransferHandler
	reference *handler.ReferenceHandler
	analytics *handler.AnalyticsHandler
	stream    *handler.StreamHandler
	reports   *handler.ReportHandler
	ops       *handler.MetricsHandler
}

func newRouter(d routerDeps) *gin.Engine {
	prefix := "/" + strings.Trim(d.cfg.APIPrefix, "/")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(d.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics, "/metrics", prefix+"/transfers/stream"))

	r.GET("/health", d.ops.Health)
	r.GET("/ready", d.ops.Ready)
	r.GET("/metrics", d.ops.Prometheus)

	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(prefix)
	limited := middleware.RateLimit(d.limiter)

	api.POST("/auth/login", limited, d.authH.Login)
	if d.reports != nil {
		api.GET("/export/:token", middleware.Audit(d.audit, d.logger, models.AuditActionReportDownload, "report"), d.reports.DownloadReport)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(d.auth))
	secured.GET("/auth/me", d.authH.Me)
	secured.POST("/auth/logout", d.authH.Logout)
	secured.GET("/sectors", d.reference.Sectors)
	secured.GET("/transfer-types", d.reference.TransferTypes)

	transfers := secured.Group("/transfers")
	transfers.GET("/active", d.transfers.Active)
	transfers.GET("/stream", d.stream.Stream)
	transfers.GET("/history",
		middleware.RequireRoles(models.RoleAdmin),
		middleware.Audit(d.audit, d.logger, models.AuditActionHistoryView, "transfer"),
		d.transfers.History)
	transfers.GET("/:id", d.transfers.Get)
	transfers.POST("", limited, d.transfers.Create)
	transfers.PUT("/:id", limited, d.transfers.Update)
	transfers.DELETE("/:id", limited, d.transfers.Delete)
	transfers.POST("/:id/accept", limited, d.transfers.Accept)
	transfers.POST("/:id/complete", limited, d.transfers.Complete)
	transfers.POST("/:id/transition", limited, d.transfers.Transition)
	transfers.POST("/:id/cancel", limited, d.transfers.Cancel)

	admin := secured.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/stats/transfers", d.analytics.Transfers)
	admin.GET("/stats/system", d.analytics.System)
	if d.reports != nil {
		admin.POST("/reports/transfers", limited, d.reports.GenerateReport)
		admin.GET("/reports/status/:id", d.reports.ReportStatus)
	}

	return r
}
