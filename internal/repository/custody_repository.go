package repository

import (
	"context"
	"errors"

	"shieldpool/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CustodyRepository defines the interface for asset ledger accounts
type CustodyRepository interface {
	// GetBalance returns "0" for accounts that were never credited
	GetBalance(ctx context.Context, asset, owner string) (string, error)
	SetBalance(ctx context.Context, asset, owner, balance string) error
	ListByAsset(ctx context.Context, asset string) ([]*models.CustodyBalance, error)
}

type custodyRepository struct {
	db *gorm.DB
}

// NewCustodyRepository creates a new CustodyRepository instance
func NewCustodyRepository(db *gorm.DB) CustodyRepository {
	return &custodyRepository{db: db}
}

func (r *custodyRepository) GetBalance(ctx context.Context, asset, owner string) (string, error) {
	var account models.CustodyBalance
	err := r.db.WithContext(ctx).
		Where("asset = ? AND owner = ?", asset, owner).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	return account.Balance, nil
}

func (r *custodyRepository) SetBalance(ctx context.Context, asset, owner, balance string) error {
	account := models.CustodyBalance{Asset: asset, Owner: owner, Balance: balance}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "asset"}, {Name: "owner"}},
			DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
		}).
		Create(&account).Error
}

func (r *custodyRepository) ListByAsset(ctx context.Context, asset string) ([]*models.CustodyBalance, error) {
	var accounts []*models.CustodyBalance
	err := r.db.WithContext(ctx).
		Where("asset = ?", asset).
		Order("owner ASC").
		Find(&accounts).Error
	return accounts, err
}
