package domain

import "time"

// Audit actions
const (
	ActionCodeAttempt      = "code_attempt"
	ActionCodeSuccess      = "code_success"
	ActionDownloadRequest  = "download_request"
	ActionDownloadComplete = "download_complete"
)

// Audit results
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultBlocked = "blocked"
)

// AuditLogEntry records one security-relevant action. Rows are append-only;
// nothing in the service mutates or deletes them. Suspicion is derived at
// read time from failure density, never stamped onto rows.
type AuditLogEntry struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AssetID   *uint64   `gorm:"column:asset_id;index" json:"asset_id,omitempty"`
	UserID    *string   `gorm:"column:user_id;type:varchar(50);index" json:"user_id,omitempty"`
	IPAddress string    `gorm:"column:ip_address;type:varchar(45);index" json:"ip_address"`
	UserAgent string    `gorm:"column:user_agent;type:varchar(500)" json:"user_agent"`
	Action    string    `gorm:"column:action;type:varchar(32);index" json:"action"`
	Result    string    `gorm:"column:result;type:varchar(16);index" json:"result"`
	Details   string    `gorm:"column:details;type:text" json:"details"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (AuditLogEntry) TableName() string { return "audit_logs" }

// SuspiciousIP is one row of the suspicious-activity report: an IP with
// enough recent failed attempts to warrant attention.
type SuspiciousIP struct {
	IPAddress      string    `json:"ip_address"`
	FailedAttempts int64     `json:"failed_attempts"`
	LastSeen       time.Time `json:"last_seen"`
}
