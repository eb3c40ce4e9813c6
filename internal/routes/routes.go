package routes

import (
	"github.com/asterlearn/aster-backend/internal/domain"
	"github.com/asterlearn/aster-backend/internal/handler"
	"github.com/asterlearn/aster-backend/internal/middleware"
	"github.com/asterlearn/aster-backend/internal/service"
	"github.com/asterlearn/aster-backend/pkg/jwt"
	"github.com/asterlearn/aster-backend/pkg/limiter"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rate limit bucket names, configured in main
const (
	BucketCode     = "code"
	BucketDownload = "download"
)

// Setup configures all API routes
func Setup(
	router *gin.Engine,
	assetHandler *handler.AssetHandler,
	downloadHandler *handler.DownloadHandler,
	adminHandler *handler.AdminHandler,
	jwtManager *jwt.Manager,
	rateLimiter *limiter.Limiter,
	auditSvc service.AuditService,
) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Token-gated file streaming. No JWT here: the download token is the
	// sole credential, bound to the minting IP.
	router.GET("/download/:token",
		middleware.DownloadHeaders(),
		middleware.RateLimit(rateLimiter, BucketDownload, domain.ActionDownloadRequest, auditSvc),
		downloadHandler.Serve)

	api := router.Group("/api/v1")

	// Public catalog; identity is optional but logged when present
	assets := api.Group("/assets")
	assets.GET("", middleware.OptionalJWTAuth(jwtManager), assetHandler.List)
	assets.GET("/:slug", middleware.OptionalJWTAuth(jwtManager), assetHandler.Get)

	// Download grants (auth required)
	assets.POST("/:slug/download",
		middleware.JWTAuth(jwtManager),
		middleware.RateLimit(rateLimiter, BucketDownload, domain.ActionDownloadRequest, auditSvc),
		assetHandler.RequestDownload)
	assets.POST("/:slug/redeem",
		middleware.JWTAuth(jwtManager),
		middleware.RateLimit(rateLimiter, BucketCode, domain.ActionCodeAttempt, auditSvc),
		assetHandler.Redeem)

	// Admin surface
	admin := api.Group("/admin", middleware.JWTAuth(jwtManager), middleware.RequireAdmin())
	admin.POST("/assets", adminHandler.CreateAsset)
	admin.POST("/assets/:slug/codes", adminHandler.GenerateCodes)
	admin.GET("/audit-logs", adminHandler.ListAuditLogs)
	admin.GET("/audit-logs/suspicious", adminHandler.SuspiciousIPs)
}
