package repository

import (
	"time"

	"github.com/asterlearn/aster-backend/internal/domain"
	"gorm.io/gorm"
)

// AuditFilter narrows audit log listings
type AuditFilter struct {
	Action    string
	Result    string
	IPAddress string
}

// AuditRepository append-only audit log access. No update or delete
// methods exist on purpose.
type AuditRepository interface {
	Create(entry *domain.AuditLogEntry) error
	List(filter AuditFilter, page, perPage int) ([]domain.AuditLogEntry, int64, error)
	// FindSuspiciousIPs returns IPs with at least threshold non-success
	// code_attempt/download_request entries since the given time.
	FindSuspiciousIPs(since time.Time, threshold int64) ([]domain.SuspiciousIP, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(entry *domain.AuditLogEntry) error {
	return r.db.Create(entry).Error
}

func (r *auditRepository) List(filter AuditFilter, page, perPage int) ([]domain.AuditLogEntry, int64, error) {
	var entries []domain.AuditLogEntry
	var total int64

	query := r.db.Model(&domain.AuditLogEntry{})
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Result != "" {
		query = query.Where("result = ?", filter.Result)
	}
	if filter.IPAddress != "" {
		query = query.Where("ip_address = ?", filter.IPAddress)
	}

	query.Count(&total)
	err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&entries).Error

	return entries, total, err
}

func (r *auditRepository) FindSuspiciousIPs(since time.Time, threshold int64) ([]domain.SuspiciousIP, error) {
	var report []domain.SuspiciousIP
	err := r.db.Model(&domain.AuditLogEntry{}).
		Select("ip_address, COUNT(*) AS failed_attempts, MAX(created_at) AS last_seen").
		Where("action IN ?", []string{domain.ActionCodeAttempt, domain.ActionDownloadRequest}).
		Where("result <> ?", domain.ResultSuccess).
		Where("created_at >= ?", since).
		Group("ip_address").
		Having("COUNT(*) >= ?", threshold).
		Order("failed_attempts DESC").
		Scan(&report).Error
	return report, err
}
