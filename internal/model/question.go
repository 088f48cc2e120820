package model

import "time"

// Question 社区问题
type Question struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Slug         string    `json:"slug" gorm:"type:varchar(160);uniqueIndex;not null"`
	Title        string    `json:"title" gorm:"type:varchar(255);not null"`
	Body         string    `json:"body" gorm:"type:text"`
	Tags         Tags      `json:"tags" gorm:"type:text"`
	Votes        int       `json:"votes" gorm:"not null;default:0"`
	Likes        int       `json:"likes" gorm:"not null;default:0"`
	Views        int       `json:"views" gorm:"not null;default:0"`
	AuthorID     int64     `json:"author_id" gorm:"index"`
	AuthorName   string    `json:"author_name" gorm:"type:varchar(128)"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
	AnswersCount int       `json:"answersCount" gorm:"-"`
}

func (Question) TableName() string { return "questions" }

// QuestionDetail GET /questions/{slug} 的响应：问题本身加上全部回答
type QuestionDetail struct {
	Question
	Answers []Answer `json:"answers"`
}

// QuestionLike 点赞关系（开发后端），(question_id, user_id) 唯一
type QuestionLike struct {
	QuestionID string `gorm:"primaryKey;type:varchar(36)"`
	UserID     int64  `gorm:"primaryKey"`
	CreatedAt  time.Time
}

func (QuestionLike) TableName() string { return "question_likes" }

// LikeResult like 接口的响应
type LikeResult struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

// LikedEvent question_liked_<id> 推送负载
type LikedEvent struct {
	Likes int `json:"likes"`
}

// ViewedEvent question_viewed_<id> 推送负载
type ViewedEvent struct {
	Views int `json:"views"`
}

// VoteResult vote 接口的响应
type VoteResult struct {
	Votes int `json:"votes"`
}
