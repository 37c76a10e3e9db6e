package repository

import (
	"context"
	"time"

	"shieldpool/internal/models"

	"gorm.io/gorm"
)

// EventRepository defines the interface for the pool event outbox
type EventRepository interface {
	Create(ctx context.Context, event *models.PoolEvent) error
	FindPending(ctx context.Context, limit int) ([]*models.PoolEvent, error)
	MarkPublished(ctx context.Context, eventIDs []string, at time.Time) error
	CountPending(ctx context.Context) (int64, error)
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository instance
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, event *models.PoolEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// FindPending returns unpublished events in commit order
func (r *eventRepository) FindPending(ctx context.Context, limit int) ([]*models.PoolEvent, error) {
	var events []*models.PoolEvent
	query := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("seq ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&events).Error
	return events, err
}

func (r *eventRepository) MarkPublished(ctx context.Context, eventIDs []string, at time.Time) error {
	if len(eventIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.PoolEvent{}).
		Where("event_id IN ? AND published_at IS NULL", eventIDs).
		Update("published_at", at).Error
}

func (r *eventRepository) CountPending(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.PoolEvent{}).
		Where("published_at IS NULL").
		Count(&total).Error
	return total, err
}
