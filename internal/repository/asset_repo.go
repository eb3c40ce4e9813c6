package repository

import (
	"errors"

	"github.com/asterlearn/aster-backend/internal/common"
	"github.com/asterlearn/aster-backend/internal/domain"
	"gorm.io/gorm"
)

// AssetRepository asset data access
type AssetRepository interface {
	FindBySlug(slug string) (*domain.Asset, error)
	FindByID(id uint64) (*domain.Asset, error)
	ListPublished(page, limit int) ([]domain.Asset, int64, error)
	Create(asset *domain.Asset) error
	// IncrementDownloadCount bumps the aggregate counter atomically
	IncrementDownloadCount(id uint64) error
}

type assetRepository struct {
	db *gorm.DB
}

// NewAssetRepository creates a new AssetRepository
func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepository{db: db}
}

func (r *assetRepository) FindBySlug(slug string) (*domain.Asset, error) {
	var asset domain.Asset
	err := r.db.Where("slug = ?", slug).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrAssetNotFound
		}
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepository) FindByID(id uint64) (*domain.Asset, error) {
	var asset domain.Asset
	if err := r.db.First(&asset, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrAssetNotFound
		}
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepository) ListPublished(page, limit int) ([]domain.Asset, int64, error) {
	var assets []domain.Asset
	var total int64

	query := r.db.Model(&domain.Asset{}).Where("is_published = ?", true)
	query.Count(&total)

	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&assets).Error

	return assets, total, err
}

func (r *assetRepository) Create(asset *domain.Asset) error {
	return r.db.Create(asset).Error
}

func (r *assetRepository) IncrementDownloadCount(id uint64) error {
	return r.db.Model(&domain.Asset{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}
