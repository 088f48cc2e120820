package service

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/d60-Lab/livesync/internal/repository"
)

// RoomBroadcast 发给所有在线连接
const RoomBroadcast = ""

// UserRoom is the per-user room joined with join_user_room.
func UserRoom(userID int64) string { return fmt.Sprintf("user_%d", userID) }

// Events 收集一次事务内要推送的事件，和业务写入同一事务落地到 outbox
type Events struct {
	tx  *gorm.DB
	ctx context.Context
}

func (e *Events) Emit(room, event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	_, err = repository.NewOutboxRepository(e.tx).Append(e.ctx, room, event, string(b))
	return err
}

// Publisher 负责事务内写业务表 + outbox
type Publisher struct{ db *gorm.DB }

func NewPublisher(db *gorm.DB) *Publisher { return &Publisher{db: db} }

// Publish runs fn in one transaction. Events emitted through ev become
// visible to the fanout worker only if fn commits.
func (p *Publisher) Publish(ctx context.Context, fn func(tx *gorm.DB, ev *Events) error) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, &Events{tx: tx, ctx: ctx})
	})
}
