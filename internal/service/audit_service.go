package service

import (
	"encoding/json"
	"time"

	"github.com/asterlearn/aster-backend/internal/domain"
	"github.com/asterlearn/aster-backend/internal/repository"
	"github.com/asterlearn/aster-backend/pkg/logger"
)

// SuspicionConfig tunes the read-side suspicious-activity derivation
type SuspicionConfig struct {
	FailureThreshold int64
	Window           time.Duration
}

// AuditService writes the append-only security trail. Writes are
// fire-and-forget: they never block the request path and a failed write
// never changes the response given to the client.
type AuditService interface {
	LogAttempt(assetID *uint64, userID *string, ip, userAgent, action, result string, details map[string]interface{})
	List(filter repository.AuditFilter, page, perPage int) ([]domain.AuditLogEntry, int64, error)
	SuspiciousIPs() ([]domain.SuspiciousIP, error)
}

type auditService struct {
	audits repository.AuditRepository
	cfg    SuspicionConfig
	now    func() time.Time

	// async toggles the goroutine write; tests disable it for determinism
	async bool
}

// NewAuditService creates an AuditService
func NewAuditService(audits repository.AuditRepository, cfg SuspicionConfig) AuditService {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	return &auditService{audits: audits, cfg: cfg, now: time.Now, async: true}
}

func (s *auditService) LogAttempt(assetID *uint64, userID *string, ip, userAgent, action, result string, details map[string]interface{}) {
	detailText := ""
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			detailText = string(raw)
		}
	}

	entry := &domain.AuditLogEntry{
		AssetID:   assetID,
		UserID:    userID,
		IPAddress: ip,
		UserAgent: userAgent,
		Action:    action,
		Result:    result,
		Details:   detailText,
	}

	write := func() {
		if err := s.audits.Create(entry); err != nil {
			logger.Get().Error().Err(err).
				Str("action", action).
				Str("ip", ip).
				Msg("audit log write failed")
		}
	}

	if s.async {
		go write()
	} else {
		write()
	}
}

func (s *auditService) List(filter repository.AuditFilter, page, perPage int) ([]domain.AuditLogEntry, int64, error) {
	return s.audits.List(filter, page, perPage)
}

func (s *auditService) SuspiciousIPs() ([]domain.SuspiciousIP, error) {
	return s.audits.FindSuspiciousIPs(s.now().Add(-s.cfg.Window), s.cfg.FailureThreshold)
}
