package repository

import (
	"context"

	"shieldpool/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// poolLockKey is the advisory lock every writing transaction takes.
const poolLockKey int64 = 0x73686c64

// PoolStateRepository defines the interface for the singleton pool rows
type PoolStateRepository interface {
	// Lock serializes writers until the enclosing transaction ends
	Lock(ctx context.Context) error

	// Config
	CreateConfig(ctx context.Context, cfg *models.PoolConfig) error
	GetConfig(ctx context.Context) (*models.PoolConfig, error)
	SaveConfig(ctx context.Context, cfg *models.PoolConfig) error

	// Tree and root history
	CreateTree(ctx context.Context, tree *models.CommitmentTree, slots []models.RootHistorySlot) error
	GetTree(ctx context.Context) (*models.CommitmentTree, error)
	SaveTree(ctx context.Context, tree *models.CommitmentTree) error
	GetRootHistory(ctx context.Context) ([]models.RootHistorySlot, error)
	SaveRootSlots(ctx context.Context, slots []models.RootHistorySlot) error
}

type poolStateRepository struct {
	db *gorm.DB
}

// NewPoolStateRepository creates a new PoolStateRepository instance
func NewPoolStateRepository(db *gorm.DB) PoolStateRepository {
	return &poolStateRepository{db: db}
}

func (r *poolStateRepository) Lock(ctx context.Context) error {
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", poolLockKey).Error
}

func (r *poolStateRepository) CreateConfig(ctx context.Context, cfg *models.PoolConfig) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

func (r *poolStateRepository) GetConfig(ctx context.Context) (*models.PoolConfig, error) {
	var cfg models.PoolConfig
	err := r.db.WithContext(ctx).Where("id = ?", models.PoolConfigID).First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig overwrites the existing config row, gorm.ErrRecordNotFound if
// there is none
func (r *poolStateRepository) SaveConfig(ctx context.Context, cfg *models.PoolConfig) error {
	result := r.db.WithContext(ctx).
		Model(&models.PoolConfig{}).
		Select("*").Omit("id", "created_at").
		Where("id = ?", cfg.ID).
		Updates(cfg)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *poolStateRepository) CreateTree(ctx context.Context, tree *models.CommitmentTree, slots []models.RootHistorySlot) error {
	if err := r.db.WithContext(ctx).Create(tree).Error; err != nil {
		return err
	}
	return r.SaveRootSlots(ctx, slots)
}

func (r *poolStateRepository) GetTree(ctx context.Context) (*models.CommitmentTree, error) {
	var tree models.CommitmentTree
	err := r.db.WithContext(ctx).Where("id = ?", models.PoolConfigID).First(&tree).Error
	if err != nil {
		return nil, err
	}
	return &tree, nil
}

// SaveTree overwrites the existing tree row, gorm.ErrRecordNotFound if
// there is none
func (r *poolStateRepository) SaveTree(ctx context.Context, tree *models.CommitmentTree) error {
	result := r.db.WithContext(ctx).
		Model(&models.CommitmentTree{}).
		Select("*").Omit("id").
		Where("id = ?", tree.ID).
		Updates(tree)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *poolStateRepository) GetRootHistory(ctx context.Context) ([]models.RootHistorySlot, error) {
	var slots []models.RootHistorySlot
	err := r.db.WithContext(ctx).Order("slot ASC").Find(&slots).Error
	return slots, err
}

// SaveRootSlots upserts the given slots
func (r *poolStateRepository) SaveRootSlots(ctx context.Context, slots []models.RootHistorySlot) error {
	if len(slots) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slot"}},
			DoUpdates: clause.AssignmentColumns([]string{"root"}),
		}).
		Create(&slots).Error
}
