package model

import "time"

const (
	OutboxPending = "pending"
	OutboxDone    = "done"
)

// Outbox 推送事件外发盒：业务写入与事件落地在同一事务，fanout worker 按 Seq 顺序投递
type Outbox struct {
	Seq         int64     `gorm:"primaryKey;autoIncrement"`
	Room        string    `gorm:"type:varchar(64);index"` // "" 表示广播；否则 user_<id>
	Event       string    `gorm:"type:varchar(128);not null"`
	Payload     string    `gorm:"type:text"`
	Status      string    `gorm:"type:varchar(16);index"` // pending, done
	CreatedAt   time.Time `gorm:"index"`
	ProcessedAt *time.Time
	FanoutCount int64
}

func (Outbox) TableName() string { return "outbox" }
