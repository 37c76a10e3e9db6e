package repository

import (
	"context"

	"shieldpool/internal/models"

	"gorm.io/gorm"
)

// NullifierRepository defines the interface for spent nullifier records
type NullifierRepository interface {
	// Create fails with gorm.ErrDuplicatedKey when the nullifier is spent
	Create(ctx context.Context, record *models.NullifierRecord) error
	Exists(ctx context.Context, nullifierHash string) (bool, error)
	GetByHash(ctx context.Context, nullifierHash string) (*models.NullifierRecord, error)
}

type nullifierRepository struct {
	db *gorm.DB
}

// NewNullifierRepository creates a new NullifierRepository instance
func NewNullifierRepository(db *gorm.DB) NullifierRepository {
	return &nullifierRepository{db: db}
}

func (r *nullifierRepository) Create(ctx context.Context, record *models.NullifierRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *nullifierRepository) Exists(ctx context.Context, nullifierHash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.NullifierRecord{}).
		Where("nullifier_hash = ?", nullifierHash).
		Count(&count).Error
	return count > 0, err
}

func (r *nullifierRepository) GetByHash(ctx context.Context, nullifierHash string) (*models.NullifierRecord, error) {
	var record models.NullifierRecord
	err := r.db.WithContext(ctx).Where("nullifier_hash = ?", nullifierHash).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}
