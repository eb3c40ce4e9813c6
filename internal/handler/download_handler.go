package handler

import (
	"net/http"
	"time"

	"github.com/asterlearn/aster-backend/internal/common"
	"github.com/asterlearn/aster-backend/internal/domain"
	"github.com/asterlearn/aster-backend/internal/middleware"
	"github.com/asterlearn/aster-backend/internal/repository"
	"github.com/asterlearn/aster-backend/internal/service"
	"github.com/asterlearn/aster-backend/pkg/logger"
	"github.com/asterlearn/aster-backend/pkg/pathsafe"
	"github.com/asterlearn/aster-backend/pkg/storage"
	"github.com/gin-gonic/gin"
)

// presignTTL bounds how long an S3 redirect URL stays usable
const presignTTL = 2 * time.Minute

// DownloadHandler serves GET /download/:token, the only endpoint that
// touches file content. Every rejection before the file lookup is a
// uniform 403 so a caller cannot probe which check failed; 404 exists
// only for a missing file behind a fully valid token.
type DownloadHandler struct {
	assets repository.AssetRepository
	tokens service.TokenService
	audit  service.AuditService
	local  *storage.LocalStore
	s3     *storage.S3Client
}

// NewDownloadHandler creates a new DownloadHandler. s3 may be nil, in
// which case all assets are served from the local store.
func NewDownloadHandler(
	assets repository.AssetRepository,
	tokens service.TokenService,
	audit service.AuditService,
	local *storage.LocalStore,
	s3 *storage.S3Client,
) *DownloadHandler {
	return &DownloadHandler{assets: assets, tokens: tokens, audit: audit, local: local, s3: s3}
}

// Serve handles GET /download/:token
func (h *DownloadHandler) Serve(c *gin.Context) {
	ip := c.ClientIP()
	userAgent := c.GetHeader("User-Agent")
	plaintext := c.Param("token")

	record, err := h.tokens.Validate(plaintext, ip)
	if err != nil {
		h.audit.LogAttempt(nil, nil, ip, userAgent,
			domain.ActionDownloadRequest, domain.ResultFailed,
			map[string]interface{}{"reason": "invalid_token"})
		middleware.CountDownload("stream", "forbidden")
		h.forbidden(c)
		return
	}

	consumed, err := h.tokens.Consume(plaintext)
	if err != nil || !consumed {
		// A concurrent request spent the token first
		h.audit.LogAttempt(&record.AssetID, &record.UserID, ip, userAgent,
			domain.ActionDownloadRequest, domain.ResultFailed,
			map[string]interface{}{"reason": "token_already_consumed"})
		middleware.CountDownload("stream", "forbidden")
		h.forbidden(c)
		return
	}

	asset, err := h.assets.FindByID(record.AssetID)
	if err != nil {
		middleware.CountDownload("stream", "error")
		h.forbidden(c)
		return
	}

	if h.s3 != nil {
		h.redirectToS3(c, asset, record)
		return
	}
	h.streamLocal(c, asset, record)
}

func (h *DownloadHandler) streamLocal(c *gin.Context, asset *domain.Asset, record *domain.DownloadToken) {
	ip := c.ClientIP()
	userAgent := c.GetHeader("User-Agent")

	absPath, err := h.local.Resolve(asset.FilePath)
	if err != nil {
		h.audit.LogAttempt(&asset.ID, &record.UserID, ip, userAgent,
			domain.ActionDownloadRequest, domain.ResultBlocked,
			map[string]interface{}{"reason": "unsafe_path"})
		middleware.CountDownload("stream", "blocked")
		h.forbidden(c)
		return
	}

	if _, err := h.local.Stat(absPath); err != nil {
		h.audit.LogAttempt(&asset.ID, &record.UserID, ip, userAgent,
			domain.ActionDownloadRequest, domain.ResultFailed,
			map[string]interface{}{"reason": "file_missing"})
		middleware.CountDownload("stream", "missing")
		common.ErrorResponse(c, http.StatusNotFound, "File not found", err)
		return
	}

	h.recordCompleted(asset, record, ip, userAgent)
	c.FileAttachment(absPath, pathsafe.SanitizeFilename(asset.FileName))
}

func (h *DownloadHandler) redirectToS3(c *gin.Context, asset *domain.Asset, record *domain.DownloadToken) {
	ip := c.ClientIP()
	userAgent := c.GetHeader("User-Agent")

	if err := pathsafe.ValidateOrErr(asset.FilePath); err != nil {
		h.audit.LogAttempt(&asset.ID, &record.UserID, ip, userAgent,
			domain.ActionDownloadRequest, domain.ResultBlocked,
			map[string]interface{}{"reason": "unsafe_path"})
		middleware.CountDownload("stream", "blocked")
		h.forbidden(c)
		return
	}

	ctx := c.Request.Context()
	exists, _ := h.s3.Exists(ctx, asset.FilePath)
	if !exists {
		h.audit.LogAttempt(&asset.ID, &record.UserID, ip, userAgent,
			domain.ActionDownloadRequest, domain.ResultFailed,
			map[string]interface{}{"reason": "file_missing"})
		middleware.CountDownload("stream", "missing")
		common.ErrorResponse(c, http.StatusNotFound, "File not found", nil)
		return
	}

	url, err := h.s3.GetPresignedURL(ctx, asset.FilePath, presignTTL)
	if err != nil {
		middleware.CountDownload("stream", "error")
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to prepare download", err)
		return
	}

	h.recordCompleted(asset, record, ip, userAgent)
	c.Redirect(http.StatusFound, url)
}

func (h *DownloadHandler) recordCompleted(asset *domain.Asset, record *domain.DownloadToken, ip, userAgent string) {
	h.audit.LogAttempt(&asset.ID, &record.UserID, ip, userAgent,
		domain.ActionDownloadComplete, domain.ResultSuccess, nil)
	middleware.CountDownload("stream", "success")

	if err := h.assets.IncrementDownloadCount(asset.ID); err != nil {
		logger.Get().Error().Err(err).Uint64("asset_id", asset.ID).
			Msg("failed to increment download count")
	}
}

func (h *DownloadHandler) forbidden(c *gin.Context) {
	common.ErrorResponse(c, http.StatusForbidden, "Forbidden", nil)
}
