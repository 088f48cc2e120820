package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/livesync/internal/model"
)

type QuestionRepository interface {
	Create(ctx context.Context, q *model.Question) error
	// List 全部问题，按创建时间倒序，带回答数
	List(ctx context.Context) ([]model.Question, error)
	Get(ctx context.Context, id string) (*model.Question, error)
	GetBySlug(ctx context.Context, slug string) (*model.Question, error)
	// Delete 连同回答和点赞一起删除
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) (int, error)
	AddVotes(ctx context.Context, id string, delta int) (int, error)
	// ToggleLike 切换 userID 对问题的点赞，返回切换后的状态与点赞数
	ToggleLike(ctx context.Context, id string, userID int64) (bool, int, error)
}

type questionRepository struct{ db *gorm.DB }

func NewQuestionRepository(db *gorm.DB) QuestionRepository { return &questionRepository{db: db} }

func (r *questionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.db.WithContext(ctx).Create(q).Error
}

func (r *questionRepository) List(ctx context.Context) ([]model.Question, error) {
	res := []model.Question{}
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&res).Error; err != nil {
		return nil, err
	}
	counts, err := r.answerCounts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].AnswersCount = counts[res[i].ID]
	}
	return res, nil
}

func (r *questionRepository) answerCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		QuestionID string
		N          int
	}
	if err := r.db.WithContext(ctx).Model(&model.Answer{}).
		Select("question_id, COUNT(*) AS n").
		Group("question_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.QuestionID] = row.N
	}
	return out, nil
}

func (r *questionRepository) Get(ctx context.Context, id string) (*model.Question, error) {
	var q model.Question
	if err := r.db.WithContext(ctx).First(&q, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

func (r *questionRepository) GetBySlug(ctx context.Context, slug string) (*model.Question, error) {
	var q model.Question
	if err := r.db.WithContext(ctx).First(&q, "slug = ?", slug).Error; err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

func (r *questionRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", id).Delete(&model.Answer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("question_id = ?", id).Delete(&model.QuestionLike{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Question{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *questionRepository) IncrementViews(ctx context.Context, id string) (int, error) {
	return r.bump(ctx, id, "views", 1)
}

func (r *questionRepository) AddVotes(ctx context.Context, id string, delta int) (int, error) {
	return r.bump(ctx, id, "votes", delta)
}

// bump 原子加减计数列并返回新值
func (r *questionRepository) bump(ctx context.Context, id, column string, delta int) (int, error) {
	var out int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Question{}).Where("id = ?", id).Update(column, gorm.Expr(column+" + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&model.Question{}).Where("id = ?", id).Pluck(column, &out).Error
	})
	return out, err
}

func (r *questionRepository) ToggleLike(ctx context.Context, id string, userID int64) (bool, int, error) {
	var (
		liked bool
		likes int
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q model.Question
		if err := tx.Select("id").First(&q, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		res := tx.Where("question_id = ? AND user_id = ?", id, userID).Delete(&model.QuestionLike{})
		if res.Error != nil {
			return res.Error
		}
		delta := -1
		if res.RowsAffected == 0 {
			if err := tx.Create(&model.QuestionLike{QuestionID: id, UserID: userID}).Error; err != nil {
				return err
			}
			liked, delta = true, 1
		}
		if err := tx.Model(&model.Question{}).Where("id = ?", id).Update("likes", gorm.Expr("likes + ?", delta)).Error; err != nil {
			return err
		}
		return tx.Model(&model.Question{}).Where("id = ?", id).Pluck("likes", &likes).Error
	})
	return liked, likes, err
}
