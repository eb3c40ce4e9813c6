package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/asterlearn/aster-backend/internal/common"
	"github.com/asterlearn/aster-backend/internal/domain"
	"github.com/asterlearn/aster-backend/internal/middleware"
	"github.com/asterlearn/aster-backend/internal/repository"
	"github.com/asterlearn/aster-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// AssetHandler handles the catalog and download-grant HTTP requests
type AssetHandler struct {
	assets repository.AssetRepository
	codes  service.CodeService
	tokens service.TokenService
	audit  service.AuditService
}

// NewAssetHandler creates a new AssetHandler
func NewAssetHandler(
	assets repository.AssetRepository,
	codes service.CodeService,
	tokens service.TokenService,
	audit service.AuditService,
) *AssetHandler {
	return &AssetHandler{assets: assets, codes: codes, tokens: tokens, audit: audit}
}

// List handles GET /api/v1/assets
// @Summary List published assets
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]domain.Asset}
// @Router /assets [get]
func (h *AssetHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	assets, total, err := h.assets.ListPublished(page, limit)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to list assets", err)
		return
	}

	common.SuccessResponse(c, assets, &common.Meta{Page: page, Limit: limit, Total: total})
}

// Get handles GET /api/v1/assets/:slug
// @Summary Get a published asset by slug
// @Produce json
// @Success 200 {object} common.APIResponse{data=domain.Asset}
// @Failure 404 {object} common.APIResponse
// @Router /assets/{slug} [get]
func (h *AssetHandler) Get(c *gin.Context) {
	asset, err := h.assets.FindBySlug(c.Param("slug"))
	if err != nil {
		if errors.Is(err, common.ErrAssetNotFound) {
			common.ErrorResponse(c, http.StatusNotFound, "Asset not found", err)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to load asset", err)
		return
	}
	if !asset.IsPublished {
		common.ErrorResponse(c, http.StatusNotFound, "Asset not found", nil)
		return
	}

	common.SuccessResponse(c, asset, nil)
}

// RequestDownload handles POST /api/v1/assets/:slug/download.
// Free assets only; paid assets must go through code redemption.
// @Summary Request a download URL for a free asset
// @Produce json
// @Success 200 {object} common.APIResponse{data=domain.DownloadURLResponse}
// @Failure 401 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /assets/{slug}/download [post]
func (h *AssetHandler) RequestDownload(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ip := c.ClientIP()
	userAgent := c.GetHeader("User-Agent")

	asset, err := h.assets.FindBySlug(c.Param("slug"))
	if err != nil || !asset.IsPublished {
		h.audit.LogAttempt(nil, &userID, ip, userAgent,
			domain.ActionDownloadRequest, domain.ResultFailed,
			map[string]interface{}{"slug": c.Param("slug"), "reason": "asset_not_found"})
		common.ErrorResponse(c, http.StatusNotFound, "Asset not found", err)
		return
	}

	if !asset.IsFree() {
		h.audit.LogAttempt(&asset.ID, &userID, ip, userAgent,
			domain.ActionDownloadRequest, domain.ResultBlocked,
			map[string]interface{}{"reason": "paid_asset_without_code"})
		middleware.CountDownload("grant", "forbidden")
		common.ErrorResponse(c, http.StatusForbidden, "This asset requires a redemption code", nil)
		return
	}

	plaintext, err := h.tokens.Generate(asset, userID, ip)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to prepare download", err)
		return
	}

	h.audit.LogAttempt(&asset.ID, &userID, ip, userAgent,
		domain.ActionDownloadRequest, domain.ResultSuccess, nil)
	middleware.CountDownload("grant", "success")

	common.SuccessResponse(c, domain.DownloadURLResponse{
		DownloadURL: "/download/" + plaintext,
	}, nil)
}

// Redeem handles POST /api/v1/assets/:slug/redeem.
// An existing valid redemption by the same user short-circuits into
// re-download accounting instead of consuming a fresh code.
// @Summary Redeem a code or re-download an already redeemed asset
// @Accept json
// @Produce json
// @Success 200 {object} common.APIResponse{data=domain.DownloadURLResponse}
// @Failure 400 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Failure 422 {object} common.APIResponse
// @Router /assets/{slug}/redeem [post]
func (h *AssetHandler) Redeem(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ip := c.ClientIP()
	userAgent := c.GetHeader("User-Agent")

	var req domain.RedeemRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.ErrorResponse(c, http.StatusUnprocessableEntity, "Invalid request body", err)
			return
		}
	}

	asset, err := h.assets.FindBySlug(c.Param("slug"))
	if err != nil || !asset.IsPublished {
		h.audit.LogAttempt(nil, &userID, ip, userAgent,
			domain.ActionCodeAttempt, domain.ResultFailed,
			map[string]interface{}{"slug": c.Param("slug"), "reason": "asset_not_found"})
		common.ErrorResponse(c, http.StatusNotFound, "Asset not found", err)
		return
	}

	redemption, err := h.codes.GetValidRedemption(userID, asset.ID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to process redemption", err)
		return
	}

	if redemption == nil {
		// A code is only required when no valid redemption exists yet.
		if strings.TrimSpace(req.Code) == "" {
			common.ErrorResponse(c, http.StatusUnprocessableEntity, "A redemption code is required", nil)
			return
		}
		redemption, err = h.codes.Redeem(req.Code, asset, userID)
		if err != nil {
			h.failRedeem(c, asset.ID, userID, ip, userAgent, err)
			return
		}
		h.audit.LogAttempt(&asset.ID, &userID, ip, userAgent,
			domain.ActionCodeSuccess, domain.ResultSuccess, nil)
		middleware.CountRedemption("success")
	}

	updated, err := h.codes.ProcessRedownload(redemption)
	if err != nil {
		h.failRedeem(c, asset.ID, userID, ip, userAgent, err)
		return
	}

	plaintext, err := h.tokens.Generate(asset, userID, ip)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to prepare download", err)
		return
	}

	h.audit.LogAttempt(&asset.ID, &userID, ip, userAgent,
		domain.ActionDownloadRequest, domain.ResultSuccess,
		map[string]interface{}{"downloads_remaining": updated.DownloadsRemaining()})
	middleware.CountDownload("grant", "success")

	remaining := updated.DownloadsRemaining()
	common.SuccessResponse(c, domain.DownloadURLResponse{
		DownloadURL:        "/download/" + plaintext,
		DownloadsRemaining: &remaining,
	}, nil)
}

// failRedeem maps redemption errors to responses and writes the audit entry
func (h *AssetHandler) failRedeem(c *gin.Context, assetID uint64, userID, ip, userAgent string, err error) {
	middleware.CountRedemption("failed")

	switch {
	case errors.Is(err, common.ErrCodeNotFound):
		h.audit.LogAttempt(&assetID, &userID, ip, userAgent,
			domain.ActionCodeAttempt, domain.ResultFailed,
			map[string]interface{}{"reason": "code_not_found"})
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid redemption code", err)
	case errors.Is(err, common.ErrCodeExpired):
		h.audit.LogAttempt(&assetID, &userID, ip, userAgent,
			domain.ActionCodeAttempt, domain.ResultFailed,
			map[string]interface{}{"reason": "code_expired"})
		common.ErrorResponse(c, http.StatusBadRequest, "This code has expired", err)
	case errors.Is(err, common.ErrCodeAlreadyUsed):
		h.audit.LogAttempt(&assetID, &userID, ip, userAgent,
			domain.ActionCodeAttempt, domain.ResultFailed,
			map[string]interface{}{"reason": "code_already_used"})
		common.ErrorResponse(c, http.StatusConflict, "This code has already been redeemed", err)
	case errors.Is(err, common.ErrHourlyQuota):
		h.audit.LogAttempt(&assetID, &userID, ip, userAgent,
			domain.ActionDownloadRequest, domain.ResultBlocked,
			map[string]interface{}{"reason": "hourly_quota"})
		common.ErrorResponse(c, http.StatusTooManyRequests, "Hourly download limit reached", err)
	case errors.Is(err, common.ErrQuotaExhausted):
		h.audit.LogAttempt(&assetID, &userID, ip, userAgent,
			domain.ActionDownloadRequest, domain.ResultBlocked,
			map[string]interface{}{"reason": "quota_exhausted"})
		common.ErrorResponse(c, http.StatusForbidden, "Download quota exhausted", err)
	default:
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to process redemption", err)
	}
}
