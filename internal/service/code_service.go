package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/asterlearn/aster-backend/internal/common"
	"github.com/asterlearn/aster-backend/internal/domain"
	"github.com/asterlearn/aster-backend/internal/repository"
)

// codePrefixLen is how many leading plaintext characters are stored for
// index-narrowed lookup.
const codePrefixLen = 4

// codeAlphabet avoids ambiguous characters (0/O, 1/I/L)
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CodeQuotaConfig carries the asset-policy defaults applied at redeem time
// and the re-download ceilings.
type CodeQuotaConfig struct {
	DefaultMaxDownloads int
	DefaultExpiryDays   int
	HourlyCap           int
}

// CodeService redeems codes and accounts for re-downloads
type CodeService interface {
	// Redeem binds an unused code to the user. Already-redeemed-by-same-user
	// returns the existing redemption; another user's code is a conflict.
	Redeem(code string, asset *domain.Asset, userID string) (*domain.RedemptionCode, error)
	// GetValidRedemption returns the user's live redemption for the asset,
	// nil when none exists. Repeated calls with no intervening redemption
	// return the same result.
	GetValidRedemption(userID string, assetID uint64) (*domain.RedemptionCode, error)
	// CheckRedownloadEligibility is a pure quota computation; the hourly
	// ceiling is evaluated before the lifetime quota.
	CheckRedownloadEligibility(code *domain.RedemptionCode) domain.RedownloadEligibility
	// ProcessRedownload performs the atomic check-then-increment and
	// returns the refreshed redemption row.
	ProcessRedownload(code *domain.RedemptionCode) (*domain.RedemptionCode, error)
	// GenerateBatch creates codes for an asset and returns the plaintexts
	GenerateBatch(asset *domain.Asset, req domain.GenerateCodesRequest) ([]string, error)
}

type codeService struct {
	codes repository.CodeRepository
	cfg   CodeQuotaConfig
	now   func() time.Time
}

// NewCodeService creates a CodeService
func NewCodeService(codes repository.CodeRepository, cfg CodeQuotaConfig) CodeService {
	if cfg.DefaultMaxDownloads <= 0 {
		cfg.DefaultMaxDownloads = 3
	}
	if cfg.DefaultExpiryDays <= 0 {
		cfg.DefaultExpiryDays = 365
	}
	if cfg.HourlyCap <= 0 {
		cfg.HourlyCap = 3
	}
	return &codeService{codes: codes, cfg: cfg, now: time.Now}
}

func (s *codeService) Redeem(code string, asset *domain.Asset, userID string) (*domain.RedemptionCode, error) {
	normalized := normalizeCode(code)
	if len(normalized) < codePrefixLen {
		return nil, common.ErrCodeNotFound
	}

	record, err := s.codes.FindByHash(normalized[:codePrefixLen], hashCode(normalized))
	if err != nil {
		return nil, err
	}
	if record == nil || record.AssetID != asset.ID {
		return nil, common.ErrCodeNotFound
	}

	now := s.now()
	if record.IsExpired(now) {
		return nil, common.ErrCodeExpired
	}

	if record.IsUsed {
		if record.UserID != nil && *record.UserID == userID {
			return record, nil
		}
		return nil, common.ErrCodeAlreadyUsed
	}

	defaultExpiry := now.AddDate(0, 0, s.cfg.DefaultExpiryDays)
	won, err := s.codes.MarkRedeemed(record.ID, userID, now, s.cfg.DefaultMaxDownloads, defaultExpiry)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the race: re-read to distinguish same-user retry from a
		// code claimed by someone else.
		fresh, ferr := s.codes.FindByID(record.ID)
		if ferr != nil {
			return nil, ferr
		}
		if fresh != nil && fresh.UserID != nil && *fresh.UserID == userID {
			return fresh, nil
		}
		return nil, common.ErrCodeAlreadyUsed
	}

	return s.codes.FindByID(record.ID)
}

func (s *codeService) GetValidRedemption(userID string, assetID uint64) (*domain.RedemptionCode, error) {
	record, err := s.codes.FindRedeemedByUser(userID, assetID)
	if err != nil {
		return nil, err
	}
	if record == nil || record.IsExpired(s.now()) {
		return nil, nil
	}
	return record, nil
}

func (s *codeService) CheckRedownloadEligibility(code *domain.RedemptionCode) domain.RedownloadEligibility {
	now := s.now()

	if !code.IsUsed {
		return domain.RedownloadEligibility{Reason: "code not redeemed"}
	}
	if code.IsExpired(now) {
		return domain.RedownloadEligibility{Reason: "code expired", ExpiresAt: code.ExpiresAt}
	}

	// Hourly ceiling is checked before the lifetime quota.
	windowStart := now.Add(-time.Hour)
	if code.LastDownloadAt != nil && code.LastDownloadAt.After(windowStart) &&
		code.HourlyDownloadCount >= s.cfg.HourlyCap {
		return domain.RedownloadEligibility{
			Reason:             "hourly download limit reached",
			DownloadsRemaining: code.DownloadsRemaining(),
			ExpiresAt:          code.ExpiresAt,
		}
	}

	if code.DownloadCount >= code.MaxDownloads {
		return domain.RedownloadEligibility{
			Reason:    "download quota exhausted",
			ExpiresAt: code.ExpiresAt,
		}
	}

	return domain.RedownloadEligibility{
		CanRedownload:      true,
		DownloadsRemaining: code.DownloadsRemaining(),
		ExpiresAt:          code.ExpiresAt,
	}
}

func (s *codeService) ProcessRedownload(code *domain.RedemptionCode) (*domain.RedemptionCode, error) {
	eligibility := s.CheckRedownloadEligibility(code)
	if !eligibility.CanRedownload {
		switch eligibility.Reason {
		case "hourly download limit reached":
			return nil, common.ErrHourlyQuota
		case "code expired":
			return nil, common.ErrCodeExpired
		default:
			return nil, common.ErrQuotaExhausted
		}
	}

	now := s.now()
	ok, err := s.codes.RecordRedownload(code.ID, now, now.Add(-time.Hour), s.cfg.HourlyCap)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent download spent the last slot between the check and
		// the conditional update.
		return nil, common.ErrQuotaExhausted
	}

	return s.codes.FindByID(code.ID)
}

func (s *codeService) GenerateBatch(asset *domain.Asset, req domain.GenerateCodesRequest) ([]string, error) {
	maxDownloads := req.MaxDownloads
	if maxDownloads <= 0 {
		maxDownloads = s.cfg.DefaultMaxDownloads
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := s.now().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}

	plaintexts := make([]string, 0, req.Count)
	records := make([]*domain.RedemptionCode, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		plaintext, err := randomCode()
		if err != nil {
			return nil, err
		}
		normalized := normalizeCode(plaintext)
		plaintexts = append(plaintexts, plaintext)
		records = append(records, &domain.RedemptionCode{
			AssetID:      asset.ID,
			CodeHash:     hashCode(normalized),
			CodePrefix:   normalized[:codePrefixLen],
			MaxDownloads: maxDownloads,
			ExpiresAt:    expiresAt,
		})
	}

	if err := s.codes.CreateBatch(records); err != nil {
		return nil, err
	}
	return plaintexts, nil
}

// normalizeCode upper-cases and trims user input before hashing
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// hashCode hashes a normalized code for storage and lookup; plaintext
// codes are never persisted or compared directly.
func hashCode(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// randomCode produces a XXXX-XXXX-XXXX code from the unambiguous alphabet
func randomCode() (string, error) {
	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	var b strings.Builder
	for i, r := range raw {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[int(r)%len(codeAlphabet)])
	}
	return b.String(), nil
}
