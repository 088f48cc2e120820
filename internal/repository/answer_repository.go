package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/livesync/internal/model"
)

type AnswerRepository interface {
	Create(ctx context.Context, a *model.Answer) error
	Get(ctx context.Context, id string) (*model.Answer, error)
	ListByQuestion(ctx context.Context, questionID string) ([]model.Answer, error)
	AddVotes(ctx context.Context, id string, delta int) (int, error)
	// Accept 标记为采纳，同一问题下其它回答取消采纳
	Accept(ctx context.Context, id string) (*model.Answer, error)
}

type answerRepository struct{ db *gorm.DB }

func NewAnswerRepository(db *gorm.DB) AnswerRepository { return &answerRepository{db: db} }

func (r *answerRepository) Create(ctx context.Context, a *model.Answer) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *answerRepository) Get(ctx context.Context, id string) (*model.Answer, error) {
	var a model.Answer
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *answerRepository) ListByQuestion(ctx context.Context, questionID string) ([]model.Answer, error) {
	res := []model.Answer{}
	err := r.db.WithContext(ctx).Where("question_id = ?", questionID).Order("created_at ASC").Find(&res).Error
	return res, err
}

func (r *answerRepository) AddVotes(ctx context.Context, id string, delta int) (int, error) {
	var out int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Answer{}).Where("id = ?", id).Update("votes", gorm.Expr("votes + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&model.Answer{}).Where("id = ?", id).Pluck("votes", &out).Error
	})
	return out, err
}

func (r *answerRepository) Accept(ctx context.Context, id string) (*model.Answer, error) {
	var a model.Answer
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&a, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Model(&model.Answer{}).Where("question_id = ? AND id <> ?", a.QuestionID, id).Update("accepted", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Answer{}).Where("id = ?", id).Update("accepted", true).Error; err != nil {
			return err
		}
		a.Accepted = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}
