package domain

import "time"

// RedemptionCode unlocks a paid asset. Only the SHA-256 hash of the
// plaintext code is persisted; code_prefix narrows lookups without
// revealing the secret. Once redeemed, the binding to user_id is final.
type RedemptionCode struct {
	ID                  uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AssetID             uint64     `gorm:"column:asset_id;index" json:"asset_id"`
	CodeHash            string     `gorm:"column:code_hash;type:char(64);uniqueIndex" json:"-"`
	CodePrefix          string     `gorm:"column:code_prefix;type:varchar(8);index" json:"-"`
	UserID              *string    `gorm:"column:user_id;type:varchar(50);index" json:"user_id,omitempty"`
	IsUsed              bool       `gorm:"column:is_used;default:false" json:"is_used"`
	UsedAt              *time.Time `gorm:"column:used_at" json:"used_at,omitempty"`
	ExpiresAt           *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	DownloadCount       int        `gorm:"column:download_count;default:0" json:"download_count"`
	MaxDownloads        int        `gorm:"column:max_downloads;default:3" json:"max_downloads"`
	LastDownloadAt      *time.Time `gorm:"column:last_download_at" json:"last_download_at,omitempty"`
	HourlyDownloadCount int        `gorm:"column:hourly_download_count;default:0" json:"-"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (RedemptionCode) TableName() string { return "redemption_codes" }

// DownloadsRemaining returns how many downloads are left on the code
func (r *RedemptionCode) DownloadsRemaining() int {
	remaining := r.MaxDownloads - r.DownloadCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsExpired reports whether the code's validity window has passed
func (r *RedemptionCode) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// RedeemRequest is the body of POST /assets/:slug/redeem. Code may be
// omitted by a caller who already holds a valid redemption; re-download
// accounting then runs without consuming a new code.
type RedeemRequest struct {
	Code string `json:"code"`
}

// RedownloadEligibility is the outcome of a quota check
type RedownloadEligibility struct {
	CanRedownload      bool       `json:"can_redownload"`
	DownloadsRemaining int        `json:"downloads_remaining"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	Reason             string     `json:"reason,omitempty"`
}

// GenerateCodesRequest is the admin batch-generation request
type GenerateCodesRequest struct {
	Count         int `json:"count" binding:"required,min=1,max=1000"`
	MaxDownloads  int `json:"max_downloads" binding:"omitempty,min=1"`
	ExpiresInDays int `json:"expires_in_days" binding:"omitempty,min=1"`
}

// CodeBatchResponse returns freshly generated plaintext codes. This is
// the only moment plaintext exists outside the admin's hands.
type CodeBatchResponse struct {
	AssetID uint64   `json:"asset_id"`
	Codes   []string `json:"codes"`
}
