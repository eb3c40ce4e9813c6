package domain

import "time"

// Asset types
const (
	AssetTypeFree = "free"
	AssetTypePaid = "paid"
)

// Asset represents a downloadable digital asset in the assets table.
// Owned by the catalog; immutable once published except for counters.
type Asset struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Slug          string    `gorm:"column:slug;type:varchar(100);uniqueIndex" json:"slug"`
	Title         string    `gorm:"column:title;type:varchar(200)" json:"title"`
	FilePath      string    `gorm:"column:file_path;type:varchar(500)" json:"-"`
	FileName      string    `gorm:"column:file_name;type:varchar(255)" json:"file_name"`
	FileSize      int64     `gorm:"column:file_size;default:0" json:"file_size"`
	Type          string    `gorm:"column:type;type:enum('free','paid');default:'paid'" json:"type"`
	IsPublished   bool      `gorm:"column:is_published;default:false" json:"is_published"`
	DownloadCount uint64    `gorm:"column:download_count;default:0" json:"download_count"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Asset) TableName() string { return "assets" }

// IsFree reports whether the asset can be downloaded without a code
func (a *Asset) IsFree() bool { return a.Type == AssetTypeFree }

// CreateAssetRequest is the admin API request for registering an asset
type CreateAssetRequest struct {
	Slug        string `json:"slug" binding:"required"`
	Title       string `json:"title" binding:"required"`
	FilePath    string `json:"file_path" binding:"required"`
	FileName    string `json:"file_name" binding:"required"`
	FileSize    int64  `json:"file_size"`
	Type        string `json:"type" binding:"required,oneof=free paid"`
	IsPublished bool   `json:"is_published"`
}

// DownloadURLResponse is returned when a download grant succeeds.
// DownloadsRemaining is only present for code-based grants.
type DownloadURLResponse struct {
	DownloadURL        string `json:"download_url"`
	DownloadsRemaining *int   `json:"downloads_remaining,omitempty"`
}
