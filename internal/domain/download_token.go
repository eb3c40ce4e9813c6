package domain

import "time"

// DownloadToken is a short-lived, single-use, IP-bound credential
// authorizing exactly one file stream. Only the hash of the opaque token
// value is persisted; the plaintext exists solely in the returned URL.
// A token is valid iff now < expires_at and consumed_at is null.
type DownloadToken struct {
	ID         uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TokenHash  string     `gorm:"column:token_hash;type:char(64);uniqueIndex" json:"-"`
	AssetID    uint64     `gorm:"column:asset_id;index" json:"asset_id"`
	UserID     string     `gorm:"column:user_id;type:varchar(50)" json:"user_id"`
	IPAddress  string     `gorm:"column:ip_address;type:varchar(45)" json:"-"`
	Nonce      string     `gorm:"column:nonce;type:char(36);uniqueIndex" json:"-"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;index" json:"expires_at"`
	ConsumedAt *time.Time `gorm:"column:consumed_at" json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (DownloadToken) TableName() string { return "download_tokens" }
