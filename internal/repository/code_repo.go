package repository

import (
	"errors"
	"time"

	"github.com/asterlearn/aster-backend/internal/domain"
	"gorm.io/gorm"
)

// CodeRepository redemption code data access. The mutating operations are
// single conditional UPDATEs so the check-then-write stays atomic per row
// even across multiple server instances.
type CodeRepository interface {
	FindByHash(prefix, hash string) (*domain.RedemptionCode, error)
	FindByID(id uint64) (*domain.RedemptionCode, error)
	// FindRedeemedByUser returns the user's redemption for the asset, used or not expired checks are the caller's
	FindRedeemedByUser(userID string, assetID uint64) (*domain.RedemptionCode, error)
	CreateBatch(codes []*domain.RedemptionCode) error
	// MarkRedeemed binds the code to a user iff it is still unused, filling
	// in asset-policy defaults for quota and expiry where the batch left
	// them unset. Returns false when another user won the race.
	MarkRedeemed(id uint64, userID string, now time.Time, defaultMaxDownloads int, defaultExpiresAt time.Time) (bool, error)
	// RecordRedownload increments the lifetime and rolling-hour counters in
	// one statement guarded by both quotas. Returns false when either quota
	// rejects the download.
	RecordRedownload(id uint64, now time.Time, windowStart time.Time, hourlyCap int) (bool, error)
}

type codeRepository struct {
	db *gorm.DB
}

// NewCodeRepository creates a new CodeRepository
func NewCodeRepository(db *gorm.DB) CodeRepository {
	return &codeRepository{db: db}
}

func (r *codeRepository) FindByHash(prefix, hash string) (*domain.RedemptionCode, error) {
	var code domain.RedemptionCode
	// code_prefix narrows the scan before the hash comparison hits the index
	err := r.db.Where("code_prefix = ? AND code_hash = ?", prefix, hash).First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &code, nil
}

func (r *codeRepository) FindByID(id uint64) (*domain.RedemptionCode, error) {
	var code domain.RedemptionCode
	if err := r.db.First(&code, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &code, nil
}

func (r *codeRepository) FindRedeemedByUser(userID string, assetID uint64) (*domain.RedemptionCode, error) {
	var code domain.RedemptionCode
	err := r.db.Where("user_id = ? AND asset_id = ? AND is_used = ?", userID, assetID, true).
		Order("used_at DESC").
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &code, nil
}

func (r *codeRepository) CreateBatch(codes []*domain.RedemptionCode) error {
	return r.db.Create(codes).Error
}

func (r *codeRepository) MarkRedeemed(id uint64, userID string, now time.Time, defaultMaxDownloads int, defaultExpiresAt time.Time) (bool, error) {
	res := r.db.Model(&domain.RedemptionCode{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]interface{}{
			"is_used":       true,
			"user_id":       userID,
			"used_at":       now,
			"max_downloads": gorm.Expr("IF(max_downloads > 0, max_downloads, ?)", defaultMaxDownloads),
			"expires_at":    gorm.Expr("IFNULL(expires_at, ?)", defaultExpiresAt),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *codeRepository) RecordRedownload(id uint64, now, windowStart time.Time, hourlyCap int) (bool, error) {
	// SET clauses are evaluated left to right in MySQL, so the hourly CASE
	// still sees the pre-update last_download_at.
	res := r.db.Exec(`
		UPDATE redemption_codes
		SET download_count = download_count + 1,
		    hourly_download_count = CASE
		        WHEN last_download_at IS NOT NULL AND last_download_at >= ?
		        THEN hourly_download_count + 1
		        ELSE 1
		    END,
		    last_download_at = ?,
		    updated_at = ?
		WHERE id = ?
		  AND is_used = 1
		  AND download_count < max_downloads
		  AND (last_download_at IS NULL OR last_download_at < ? OR hourly_download_count < ?)`,
		windowStart, now, now, id, windowStart, hourlyCap,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
