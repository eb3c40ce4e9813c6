package handler

import (
	"net/http"
	"strconv"

	"github.com/asterlearn/aster-backend/internal/common"
	"github.com/asterlearn/aster-backend/internal/domain"
	"github.com/asterlearn/aster-backend/internal/repository"
	"github.com/asterlearn/aster-backend/internal/service"
	"github.com/asterlearn/aster-backend/pkg/pathsafe"
	"github.com/gin-gonic/gin"
)

// AdminHandler handles the admin asset and audit surface
type AdminHandler struct {
	assets repository.AssetRepository
	codes  service.CodeService
	audit  service.AuditService
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(
	assets repository.AssetRepository,
	codes service.CodeService,
	audit service.AuditService,
) *AdminHandler {
	return &AdminHandler{assets: assets, codes: codes, audit: audit}
}

// CreateAsset handles POST /api/v1/admin/assets
// @Summary Register a downloadable asset
// @Accept json
// @Produce json
// @Success 200 {object} common.APIResponse{data=domain.Asset}
// @Failure 422 {object} common.APIResponse
// @Router /admin/assets [post]
func (h *AdminHandler) CreateAsset(c *gin.Context) {
	var req domain.CreateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusUnprocessableEntity, "Invalid asset payload", err)
		return
	}

	// A stored path that fails validation would make the asset permanently
	// unservable, so reject it at the door.
	if err := pathsafe.ValidateOrErr(req.FilePath); err != nil {
		common.ErrorResponse(c, http.StatusUnprocessableEntity, "Invalid file path", err)
		return
	}

	asset := &domain.Asset{
		Slug:        req.Slug,
		Title:       req.Title,
		FilePath:    pathsafe.SanitizePath(req.FilePath),
		FileName:    pathsafe.SanitizeFilename(req.FileName),
		FileSize:    req.FileSize,
		Type:        req.Type,
		IsPublished: req.IsPublished,
	}
	if err := h.assets.Create(asset); err != nil {
		common.ErrorResponse(c, http.StatusConflict, "Failed to create asset", err)
		return
	}

	common.SuccessResponse(c, asset, nil)
}

// GenerateCodes handles POST /api/v1/admin/assets/:slug/codes.
// The response is the only place the plaintext codes ever exist.
// @Summary Generate a batch of redemption codes
// @Accept json
// @Produce json
// @Success 200 {object} common.APIResponse{data=domain.CodeBatchResponse}
// @Failure 404 {object} common.APIResponse
// @Failure 422 {object} common.APIResponse
// @Router /admin/assets/{slug}/codes [post]
func (h *AdminHandler) GenerateCodes(c *gin.Context) {
	var req domain.GenerateCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusUnprocessableEntity, "Invalid batch request", err)
		return
	}

	asset, err := h.assets.FindBySlug(c.Param("slug"))
	if err != nil {
		common.ErrorResponse(c, http.StatusNotFound, "Asset not found", err)
		return
	}

	codes, err := h.codes.GenerateBatch(asset, req)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to generate codes", err)
		return
	}

	common.SuccessResponse(c, domain.CodeBatchResponse{
		AssetID: asset.ID,
		Codes:   codes,
	}, nil)
}

// ListAuditLogs handles GET /api/v1/admin/audit-logs
// @Summary List audit log entries
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]domain.AuditLogEntry}
// @Router /admin/audit-logs [get]
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	filter := repository.AuditFilter{
		Action:    c.Query("action"),
		Result:    c.Query("result"),
		IPAddress: c.Query("ip"),
	}

	entries, total, err := h.audit.List(filter, page, perPage)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to list audit logs", err)
		return
	}

	common.SuccessResponse(c, entries, &common.Meta{Page: page, Limit: perPage, Total: total})
}

// SuspiciousIPs handles GET /api/v1/admin/audit-logs/suspicious
// @Summary Report IPs with dense recent failures
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]domain.SuspiciousIP}
// @Router /admin/audit-logs/suspicious [get]
func (h *AdminHandler) SuspiciousIPs(c *gin.Context) {
	report, err := h.audit.SuspiciousIPs()
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to build report", err)
		return
	}
	common.SuccessResponse(c, report, nil)
}
