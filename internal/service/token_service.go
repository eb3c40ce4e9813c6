package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/asterlearn/aster-backend/internal/common"
	"github.com/asterlearn/aster-backend/internal/domain"
	"github.com/asterlearn/aster-backend/internal/repository"
	"github.com/google/uuid"
)

// TokenService mints, validates and single-use-consumes download tokens
type TokenService interface {
	// Generate returns the opaque plaintext token. Only its hash is stored.
	Generate(asset *domain.Asset, userID, ip string) (string, error)
	// Validate returns the token record when the presented token is live,
	// unconsumed and presented from the mint IP. Every failure mode returns
	// common.ErrInvalidToken so callers cannot tell which check rejected.
	Validate(token, ip string) (*domain.DownloadToken, error)
	// Consume stamps the token used; exactly one concurrent caller wins.
	Consume(token string) (bool, error)
	// SweepExpired deletes tokens that expired before now minus grace
	SweepExpired(grace time.Duration) (int64, error)
}

type tokenService struct {
	tokens repository.TokenRepository
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given token TTL
func NewTokenService(tokens repository.TokenRepository, ttl time.Duration) TokenService {
	return &tokenService{tokens: tokens, ttl: ttl, now: time.Now}
}

func (s *tokenService) Generate(asset *domain.Asset, userID, ip string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate download token: %w", err)
	}
	plaintext := hex.EncodeToString(raw)

	token := &domain.DownloadToken{
		TokenHash: hashToken(plaintext),
		AssetID:   asset.ID,
		UserID:    userID,
		IPAddress: ip,
		Nonce:     uuid.New().String(),
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.tokens.Create(token); err != nil {
		return "", err
	}

	return plaintext, nil
}

func (s *tokenService) Validate(token, ip string) (*domain.DownloadToken, error) {
	record, err := s.tokens.FindByHash(hashToken(token))
	if err != nil {
		return nil, err
	}
	// One uniform rejection: missing, expired, consumed and wrong-IP are
	// indistinguishable to the caller.
	if record == nil ||
		!s.now().Before(record.ExpiresAt) ||
		record.ConsumedAt != nil ||
		record.IPAddress != ip {
		return nil, common.ErrInvalidToken
	}
	return record, nil
}

func (s *tokenService) Consume(token string) (bool, error) {
	return s.tokens.Consume(hashToken(token), s.now())
}

func (s *tokenService) SweepExpired(grace time.Duration) (int64, error) {
	return s.tokens.DeleteExpired(s.now().Add(-grace))
}

// hashToken hashes the opaque token value for storage and lookup
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
