package repository

import (
	"context"

	"shieldpool/internal/models"

	"gorm.io/gorm"
)

// CommitmentRepository defines the interface for deposit leaf records
type CommitmentRepository interface {
	// Create fails with gorm.ErrDuplicatedKey when the leaf index is taken
	Create(ctx context.Context, record *models.CommitmentRecord) error
	GetByLeafIndex(ctx context.Context, leafIndex int64) (*models.CommitmentRecord, error)
	GetByCommitment(ctx context.Context, commitment string) (*models.CommitmentRecord, error)

	// Query methods
	ListFrom(ctx context.Context, fromIndex int64, limit int) ([]*models.CommitmentRecord, error)
	Count(ctx context.Context) (int64, error)
}

// commitmentRepository implements CommitmentRepository
type commitmentRepository struct {
	db *gorm.DB
}

// NewCommitmentRepository creates a new CommitmentRepository instance
func NewCommitmentRepository(db *gorm.DB) CommitmentRepository {
	return &commitmentRepository{db: db}
}

// Create inserts a commitment record
func (r *commitmentRepository) Create(ctx context.Context, record *models.CommitmentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// GetByLeafIndex retrieves a record by leaf index
func (r *commitmentRepository) GetByLeafIndex(ctx context.Context, leafIndex int64) (*models.CommitmentRecord, error) {
	var record models.CommitmentRecord
	err := r.db.WithContext(ctx).Where("leaf_index = ?", leafIndex).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetByCommitment retrieves the earliest record carrying commitment
func (r *commitmentRepository) GetByCommitment(ctx context.Context, commitment string) (*models.CommitmentRecord, error) {
	var record models.CommitmentRecord
	err := r.db.WithContext(ctx).
		Where("commitment = ?", commitment).
		Order("leaf_index ASC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListFrom returns records with leaf_index >= fromIndex in index order
func (r *commitmentRepository) ListFrom(ctx context.Context, fromIndex int64, limit int) ([]*models.CommitmentRecord, error) {
	var records []*models.CommitmentRecord
	query := r.db.WithContext(ctx).
		Where("leaf_index >= ?", fromIndex).
		Order("leaf_index ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

// Count returns the number of deposit records
func (r *commitmentRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.CommitmentRecord{}).Count(&total).Error
	return total, err
}
