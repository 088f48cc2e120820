package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/livesync/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	// ListByConversation 按时间正序
	ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error)
	Last(ctx context.Context, conversationID int64) (*model.Message, error)
	UnreadCount(ctx context.Context, conversationID, readerID int64) (int, error)
	// MarkRead 把对方发给 readerID 的消息标记已读
	MarkRead(ctx context.Context, conversationID, readerID int64) error
}

type messageRepository struct{ db *gorm.DB }

func NewMessageRepository(db *gorm.DB) MessageRepository { return &messageRepository{db: db} }

func (r *messageRepository) Create(ctx context.Context, m *model.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	res := []model.Message{}
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&res).Error
	return res, err
}

func (r *messageRepository) Last(ctx context.Context, conversationID int64) (*model.Message, error) {
	var m model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *messageRepository) UnreadCount(ctx context.Context, conversationID, readerID int64) (int, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, readerID, false).
		Count(&cnt).Error
	return int(cnt), err
}

func (r *messageRepository) MarkRead(ctx context.Context, conversationID, readerID int64) error {
	return r.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, readerID, false).
		Update("is_read", true).Error
}
