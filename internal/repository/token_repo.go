package repository

import (
	"errors"
	"time"

	"github.com/asterlearn/aster-backend/internal/domain"
	"gorm.io/gorm"
)

// TokenRepository download token data access
type TokenRepository interface {
	Create(token *domain.DownloadToken) error
	FindByHash(hash string) (*domain.DownloadToken, error)
	// Consume stamps consumed_at iff the token is still live. The
	// conditional UPDATE is the at-most-once guarantee: of two concurrent
	// consumers exactly one sees RowsAffected == 1.
	Consume(hash string, now time.Time) (bool, error)
	// DeleteExpired removes tokens whose expiry passed before cutoff
	DeleteExpired(cutoff time.Time) (int64, error)
}

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Create(token *domain.DownloadToken) error {
	return r.db.Create(token).Error
}

func (r *tokenRepository) FindByHash(hash string) (*domain.DownloadToken, error) {
	var token domain.DownloadToken
	err := r.db.Where("token_hash = ?", hash).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepository) Consume(hash string, now time.Time) (bool, error) {
	res := r.db.Model(&domain.DownloadToken{}).
		Where("token_hash = ? AND consumed_at IS NULL AND expires_at > ?", hash, now).
		Update("consumed_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *tokenRepository) DeleteExpired(cutoff time.Time) (int64, error) {
	res := r.db.Where("expires_at < ?", cutoff).Delete(&domain.DownloadToken{})
	return res.RowsAffected, res.Error
}
