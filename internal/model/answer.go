package model

import "time"

// Answer 问题的回答
type Answer struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	QuestionID string    `json:"question_id" gorm:"type:varchar(36);index;not null"`
	AuthorID   int64     `json:"author_id" gorm:"index"`
	AuthorName string    `json:"author_name" gorm:"type:varchar(128)"`
	Body       string    `json:"body" gorm:"type:text;not null"`
	Votes      int       `json:"votes" gorm:"not null;default:0"`
	Accepted   bool      `json:"accepted" gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Answer) TableName() string { return "answers" }
