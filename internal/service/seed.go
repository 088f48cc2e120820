package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/livesync/internal/model"
	"github.com/d60-Lab/livesync/internal/repository"
	"github.com/d60-Lab/livesync/pkg/logger"
)

// SeedPassword 种子用户统一密码
const SeedPassword = "password"

// SeedUsers 开发环境内置账号
var SeedUsers = []model.User{
	{ID: 1, Name: "Admin", Role: model.RoleAdmin, EmployeeCode: "ADM001"},
	{ID: 2, Name: "Ravi Kumar", Role: model.RoleTeacher, EmployeeCode: "EMP102"},
	{ID: 3, Name: "Meera Nair", Role: model.RoleStudent, StudentID: "STU2024001"},
	{ID: 4, Name: "Arjun Das", Role: model.RoleStudent, StudentID: "STU2024002"},
}

var seedQuestions = []struct {
	author      int64
	title, body string
	tags        []string
}{
	{2, "How do I submit the lab report", "Upload the PDF under Assignments before Friday.", []string{"labs", "assignments"}},
	{3, "What is a heap", "Is it the same thing as the memory heap?", []string{"dsa"}},
}

// Seed inserts the built-in users and a few questions. Running it again is
// a no-op for rows that already exist.
func Seed(ctx context.Context, db *gorm.DB) error {
	hash, err := HashPassword(SeedPassword)
	if err != nil {
		return err
	}
	users := repository.NewUserRepository(db)
	for _, u := range SeedUsers {
		u := u
		u.PasswordHash = hash
		if err := users.Upsert(ctx, &u); err != nil {
			return err
		}
	}

	questions := repository.NewQuestionRepository(db)
	for i, sq := range seedQuestions {
		slug := Slugify(sq.title)
		_, err := questions.GetBySlug(ctx, slug)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		author, err := users.Get(ctx, sq.author)
		if err != nil {
			return err
		}
		q := &model.Question{
			ID:         uuid.NewString(),
			Slug:       slug,
			Title:      sq.title,
			Body:       sq.body,
			Tags:       model.Tags(sq.tags),
			AuthorID:   author.ID,
			AuthorName: author.Name,
			CreatedAt:  time.Now().Add(time.Duration(i-len(seedQuestions)) * time.Minute),
		}
		if err := questions.Create(ctx, q); err != nil {
			return err
		}
	}
	logger.Info("seeded", zap.Int("users", len(SeedUsers)), zap.Int("questions", len(seedQuestions)))
	return nil
}
