package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/livesync/internal/model"
)

type ConversationRepository interface {
	// GetOrCreate 两人之间唯一会话，幂等；created 表示本次新建
	GetOrCreate(ctx context.Context, userA, userB int64) (row *model.ConversationRow, created bool, err error)
	Get(ctx context.Context, id int64) (*model.ConversationRow, error)
	// ListForUser 返回 userID 视角的会话列表，按最后消息时间倒序
	ListForUser(ctx context.Context, userID int64) ([]model.Conversation, error)
	Touch(ctx context.Context, id int64, at time.Time) error
	Disconnect(ctx context.Context, id int64) error
}

type conversationRepository struct{ db *gorm.DB }

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) GetOrCreate(ctx context.Context, userA, userB int64) (*model.ConversationRow, bool, error) {
	if userA > userB {
		userA, userB = userB, userA
	}
	now := time.Now()
	row := &model.ConversationRow{UserAID: userA, UserBID: userB, LastMessageAt: now, CreatedAt: now}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	var out model.ConversationRow
	if err := r.db.WithContext(ctx).Where("user_a_id = ? AND user_b_id = ?", userA, userB).First(&out).Error; err != nil {
		return nil, false, notFound(err)
	}
	return &out, res.RowsAffected > 0, nil
}

func (r *conversationRepository) Get(ctx context.Context, id int64) (*model.ConversationRow, error) {
	var out model.ConversationRow
	if err := r.db.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID int64) ([]model.Conversation, error) {
	var rows []model.ConversationRow
	if err := r.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("last_message_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	others := make([]int64, 0, len(rows))
	for _, row := range rows {
		others = append(others, Other(row, userID))
	}
	users, err := NewUserRepository(r.db).GetMany(ctx, others)
	if err != nil {
		return nil, err
	}
	msgs := NewMessageRepository(r.db)

	out := make([]model.Conversation, 0, len(rows))
	for _, row := range rows {
		c := model.Conversation{
			ID:                    row.ID,
			LastMessageAt:         row.LastMessageAt,
			IsDisconnectedByAdmin: row.IsDisconnectedByAdmin,
			OtherUserID:           Other(row, userID),
		}
		if u, ok := users[c.OtherUserID]; ok {
			c.OtherUserName = u.Name
			c.OtherUserRole = u.Role
			c.StudentID = u.StudentID
			c.EmployeeCode = u.EmployeeCode
		}
		if last, err := msgs.Last(ctx, row.ID); err == nil {
			c.LastMessage = last.Content
		} else if err != ErrNotFound {
			return nil, err
		}
		if c.UnreadCount, err = msgs.UnreadCount(ctx, row.ID, userID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *conversationRepository) Touch(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.ConversationRow{}).Where("id = ?", id).Update("last_message_at", at).Error
}

func (r *conversationRepository) Disconnect(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Model(&model.ConversationRow{}).Where("id = ?", id).Update("is_disconnected_by_admin", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Other returns the participant that is not userID.
func Other(row model.ConversationRow, userID int64) int64 {
	if row.UserAID == userID {
		return row.UserBID
	}
	return row.UserAID
}

// Participant reports whether userID is in the conversation.
func Participant(row model.ConversationRow, userID int64) bool {
	return row.UserAID == userID || row.UserBID == userID
}
