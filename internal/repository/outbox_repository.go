package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/livesync/internal/model"
)

type OutboxRepository interface {
	Append(ctx context.Context, room, event, payload string) (*model.Outbox, error)
	// Pending 按 Seq 顺序取待投递事件
	Pending(ctx context.Context, limit int) ([]model.Outbox, error)
	MarkDone(ctx context.Context, seq int64, delivered int64) error
}

type outboxRepository struct{ db *gorm.DB }

func NewOutboxRepository(db *gorm.DB) OutboxRepository { return &outboxRepository{db: db} }

func (r *outboxRepository) Append(ctx context.Context, room, event, payload string) (*model.Outbox, error) {
	ob := &model.Outbox{Room: room, Event: event, Payload: payload, Status: model.OutboxPending, CreatedAt: time.Now()}
	if err := r.db.WithContext(ctx).Create(ob).Error; err != nil {
		return nil, err
	}
	return ob, nil
}

func (r *outboxRepository) Pending(ctx context.Context, limit int) ([]model.Outbox, error) {
	var res []model.Outbox
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("seq ASC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *outboxRepository) MarkDone(ctx context.Context, seq int64, delivered int64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("seq = ?", seq).
		Updates(map[string]any{"status": model.OutboxDone, "processed_at": now, "fanout_count": delivered}).Error
}
