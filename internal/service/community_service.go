package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/livesync/internal/model"
	"github.com/d60-Lab/livesync/internal/realtime"
	"github.com/d60-Lab/livesync/internal/repository"
	"github.com/d60-Lab/livesync/internal/session"
)

// CommunityService 社区问答。新问题/新回答/点赞/浏览都广播给所有连接
type CommunityService interface {
	List(ctx context.Context) ([]model.Question, error)
	Ask(ctx context.Context, me session.Identity, title, body string, tags []string) (*model.Question, error)
	GetBySlug(ctx context.Context, slug string) (*model.QuestionDetail, error)
	// Delete 只有作者或管理员可以删除
	Delete(ctx context.Context, me session.Identity, id string) error
	Answer(ctx context.Context, me session.Identity, questionID, body string) (*model.Answer, error)
	ToggleLike(ctx context.Context, me session.Identity, id string) (*model.LikeResult, error)
	View(ctx context.Context, id string) (int, error)
	VoteQuestion(ctx context.Context, id string, delta int) (int, error)
	VoteAnswer(ctx context.Context, id string, delta int) (int, error)
	// Accept 只有问题作者可以采纳
	Accept(ctx context.Context, me session.Identity, answerID string) (*model.Answer, error)
}

type communityService struct {
	pub       *Publisher
	users     repository.UserRepository
	questions repository.QuestionRepository
	answers   repository.AnswerRepository
}

func NewCommunityService(db *gorm.DB, pub *Publisher) CommunityService {
	return &communityService{
		pub:       pub,
		users:     repository.NewUserRepository(db),
		questions: repository.NewQuestionRepository(db),
		answers:   repository.NewAnswerRepository(db),
	}
}

var (
	slugStrip = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpace = regexp.MustCompile(`\s+`)
)

// Slugify lowercases the title, strips everything but letters, digits,
// spaces and dashes, then joins words with dashes.
func Slugify(title string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "")
	return slugSpace.ReplaceAllString(strings.TrimSpace(s), "-")
}

func (s *communityService) List(ctx context.Context) ([]model.Question, error) {
	return s.questions.List(ctx)
}

func (s *communityService) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := Slugify(title)
	if base == "" {
		base = "question"
	}
	slug := base
	for i := 0; i < 5; i++ {
		_, err := s.questions.GetBySlug(ctx, slug)
		if errors.Is(err, repository.ErrNotFound) {
			return slug, nil
		}
		if err != nil {
			return "", err
		}
		slug = base + "-" + uuid.NewString()[:8]
	}
	return "", ErrInvalid
}

func (s *communityService) Ask(ctx context.Context, me session.Identity, title, body string, tags []string) (*model.Question, error) {
	title = strings.TrimSpace(title)
	if title == "" || strings.TrimSpace(body) == "" {
		return nil, ErrInvalid
	}
	slug, err := s.uniqueSlug(ctx, title)
	if err != nil {
		return nil, err
	}
	q := &model.Question{
		ID:         uuid.NewString(),
		Slug:       slug,
		Title:      title,
		Body:       body,
		Tags:       model.Tags(tags),
		AuthorID:   me.ID,
		AuthorName: s.authorName(ctx, me),
		CreatedAt:  time.Now(),
	}
	err = s.pub.Publish(ctx, func(tx *gorm.DB, ev *Events) error {
		if err := repository.NewQuestionRepository(tx).Create(ctx, q); err != nil {
			return err
		}
		return ev.Emit(RoomBroadcast, realtime.SessionKey(realtime.KindNewQuestion).String(), q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (s *communityService) authorName(ctx context.Context, me session.Identity) string {
	if u, err := s.users.Get(ctx, me.ID); err == nil {
		return u.Name
	}
	return me.Name
}

func (s *communityService) GetBySlug(ctx context.Context, slug string) (*model.QuestionDetail, error) {
	q, err := s.questions.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers.ListByQuestion(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	q.AnswersCount = len(answers)
	return &model.QuestionDetail{Question: *q, Answers: answers}, nil
}

func (s *communityService) Delete(ctx context.Context, me session.Identity, id string) error {
	q, err := s.questions.Get(ctx, id)
	if err != nil {
		return err
	}
	if q.AuthorID != me.ID && !me.IsAdmin() {
		return ErrForbidden
	}
	return s.questions.Delete(ctx, id)
}

func (s *communityService) Answer(ctx context.Context, me session.Identity, questionID, body string) (*model.Answer, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrInvalid
	}
	if _, err := s.questions.Get(ctx, questionID); err != nil {
		return nil, err
	}
	a := &model.Answer{
		ID:         uuid.NewString(),
		QuestionID: questionID,
		AuthorID:   me.ID,
		AuthorName: s.authorName(ctx, me),
		Body:       body,
		CreatedAt:  time.Now(),
	}
	err := s.pub.Publish(ctx, func(tx *gorm.DB, ev *Events) error {
		if err := repository.NewAnswerRepository(tx).Create(ctx, a); err != nil {
			return err
		}
		return ev.Emit(RoomBroadcast, realtime.EntityKey(realtime.KindNewAnswer, questionID).String(), a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *communityService) ToggleLike(ctx context.Context, me session.Identity, id string) (*model.LikeResult, error) {
	var res model.LikeResult
	err := s.pub.Publish(ctx, func(tx *gorm.DB, ev *Events) error {
		liked, likes, err := repository.NewQuestionRepository(tx).ToggleLike(ctx, id, me.ID)
		if err != nil {
			return err
		}
		res = model.LikeResult{Liked: liked, Likes: likes}
		return ev.Emit(RoomBroadcast, realtime.EntityKey(realtime.KindQuestionLiked, id).String(), model.LikedEvent{Likes: likes})
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *communityService) View(ctx context.Context, id string) (int, error) {
	var views int
	err := s.pub.Publish(ctx, func(tx *gorm.DB, ev *Events) error {
		var err error
		if views, err = repository.NewQuestionRepository(tx).IncrementViews(ctx, id); err != nil {
			return err
		}
		return ev.Emit(RoomBroadcast, realtime.EntityKey(realtime.KindQuestionViewed, id).String(), model.ViewedEvent{Views: views})
	})
	return views, err
}

func validDelta(delta int) bool { return delta == 1 || delta == -1 }

func (s *communityService) VoteQuestion(ctx context.Context, id string, delta int) (int, error) {
	if !validDelta(delta) {
		return 0, ErrInvalid
	}
	return s.questions.AddVotes(ctx, id, delta)
}

func (s *communityService) VoteAnswer(ctx context.Context, id string, delta int) (int, error) {
	if !validDelta(delta) {
		return 0, ErrInvalid
	}
	return s.answers.AddVotes(ctx, id, delta)
}

func (s *communityService) Accept(ctx context.Context, me session.Identity, answerID string) (*model.Answer, error) {
	a, err := s.answers.Get(ctx, answerID)
	if err != nil {
		return nil, err
	}
	q, err := s.questions.Get(ctx, a.QuestionID)
	if err != nil {
		return nil, err
	}
	if q.AuthorID != me.ID && !me.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.answers.Accept(ctx, answerID)
}
