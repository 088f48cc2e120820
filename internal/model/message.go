package model

import "time"

// Message 私信消息
type Message struct {
	ID             int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ConversationID int64     `json:"conversation_id" gorm:"index:idx_msg_conv_created;not null"`
	SenderID       int64     `json:"sender_id" gorm:"index;not null"`
	SenderName     string    `json:"sender_name" gorm:"-"`
	Content        string    `json:"content" gorm:"type:text;not null"`
	IsRead         bool      `json:"is_read" gorm:"index;not null;default:false"`
	CreatedAt      time.Time `json:"created_at" gorm:"index:idx_msg_conv_created"`
}

func (Message) TableName() string { return "messages" }

// NewMessageEvent new_message 推送负载
type NewMessageEvent struct {
	ConversationID int64   `json:"conversationId"`
	Message        Message `json:"message"`
}

// ChatDisconnectedEvent chat_disconnected 推送负载
type ChatDisconnectedEvent struct {
	ConversationID int64 `json:"conversationId"`
}
