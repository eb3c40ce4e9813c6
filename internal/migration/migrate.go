package migration

import (
	"github.com/asterlearn/aster-backend/internal/domain"
	"gorm.io/gorm"
)

// Run executes AutoMigrate for the download subsystem tables.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Asset{},
		&domain.RedemptionCode{},
		&domain.DownloadToken{},
		&domain.AuditLogEntry{},
	)
}
