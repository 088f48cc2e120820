package model

import "time"

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// User 用户（开发后端）
type User struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name         string    `json:"name" gorm:"type:varchar(128);index;not null"`
	Role         string    `json:"role" gorm:"type:varchar(16);not null"`
	StudentID    string    `json:"student_id,omitempty" gorm:"type:varchar(32)"`
	EmployeeCode string    `json:"employee_code,omitempty" gorm:"type:varchar(32)"`
	PasswordHash string    `json:"-" gorm:"type:varchar(72)"`
	CreatedAt    time.Time `json:"-"`
}

func (User) TableName() string { return "users" }

// UserSummary 用户搜索结果
type UserSummary struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	StudentID    string `json:"student_id,omitempty"`
	EmployeeCode string `json:"employee_code,omitempty"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Role: u.Role, StudentID: u.StudentID, EmployeeCode: u.EmployeeCode}
}
