package model

import "time"

// Conversation 会话列表项（当前用户视角）
type Conversation struct {
	ID                    int64     `json:"id"`
	LastMessageAt         time.Time `json:"last_message_at"`
	IsDisconnectedByAdmin bool      `json:"is_disconnected_by_admin"`
	OtherUserID           int64     `json:"other_user_id"`
	OtherUserName         string    `json:"other_user_name"`
	OtherUserRole         string    `json:"other_user_role"`
	StudentID             string    `json:"student_id,omitempty"`
	EmployeeCode          string    `json:"employee_code,omitempty"`
	LastMessage           string    `json:"last_message,omitempty"`
	UnreadCount           int       `json:"unread_count"`
}

// ConversationRow 会话存储（开发后端）
// 复合唯一键 idx_conv_pair = (user_a_id, user_b_id)，且 user_a_id < user_b_id
type ConversationRow struct {
	ID                    int64     `gorm:"primaryKey;autoIncrement"`
	UserAID               int64     `gorm:"column:user_a_id;index:idx_conv_pair,unique;not null"`
	UserBID               int64     `gorm:"column:user_b_id;index:idx_conv_pair,unique;index;not null"`
	LastMessageAt         time.Time `gorm:"index"`
	IsDisconnectedByAdmin bool
	CreatedAt             time.Time
}

func (ConversationRow) TableName() string { return "conversations" }
