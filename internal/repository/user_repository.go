package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/livesync/internal/model"
)

var ErrNotFound = errors.New("record not found")

type UserRepository interface {
	// Upsert 按 ID 插入或更新
	Upsert(ctx context.Context, u *model.User) error
	Get(ctx context.Context, id int64) (*model.User, error)
	// Search 按姓名/学号/工号模糊匹配，排除 excludeID
	Search(ctx context.Context, query string, excludeID int64, limit int) ([]*model.User, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]*model.User, error)
}

type userRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) Upsert(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "role", "student_id", "employee_code", "password_hash"}),
	}).Create(u).Error
}

func (r *userRepository) Get(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *userRepository) Search(ctx context.Context, query string, excludeID int64, limit int) ([]*model.User, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + strings.ToLower(query) + "%"
	var res []*model.User
	err := r.db.WithContext(ctx).
		Where("id <> ?", excludeID).
		Where("LOWER(name) LIKE ? OR LOWER(student_id) LIKE ? OR LOWER(employee_code) LIKE ?", like, like, like).
		Order("name").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *userRepository) GetMany(ctx context.Context, ids []int64) (map[int64]*model.User, error) {
	out := make(map[int64]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var res []*model.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&res).Error; err != nil {
		return nil, err
	}
	for _, u := range res {
		out[u.ID] = u
	}
	return out, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
