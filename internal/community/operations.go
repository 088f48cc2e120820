package community

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/internal/apiclient"
	"github.com/d60-Lab/livesync/internal/model"
	"github.com/d60-Lab/livesync/internal/worker"
)

// ErrInvalidInput 本地校验失败，没有发出请求
var ErrInvalidInput = errors.New("invalid input")

type answerInput struct {
	QuestionID string `validate:"required"`
	Body       string `validate:"required,max=20000"`
}

type voteInput struct {
	ID    string `validate:"required"`
	Delta int    `validate:"oneof=-1 1"`
}

// FetchQuestions replaces the feed with a fresh snapshot. On failure the
// feed keeps its previous value.
func (s *Synchronizer) FetchQuestions(ctx context.Context) {
	if !s.sess.Authenticated() {
		return
	}
	s.mu.Lock()
	s.feedToken++
	token := s.feedToken
	s.mu.Unlock()

	qs, err := s.api.ListQuestions(ctx)
	if err != nil {
		s.log.Warn("fetch questions", zap.Error(err))
		return
	}

	s.mu.Lock()
	if token != s.feedToken {
		s.mu.Unlock()
		return
	}
	if qs == nil {
		qs = []model.Question{}
	}
	s.questions = qs
	s.mu.Unlock()
	s.changes.Notify()
}

// AddQuestion posts a new question and puts the canonical record at the top
// of the feed. The new_question broadcast for the same id is then ignored.
func (s *Synchronizer) AddQuestion(ctx context.Context, in apiclient.NewQuestion) (model.Question, error) {
	if err := s.validate.Struct(in); err != nil {
		return model.Question{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	q, err := s.api.CreateQuestion(ctx, in)
	if err != nil {
		s.log.Warn("add question", zap.String("title", in.Title), zap.Error(err))
		return model.Question{}, err
	}
	s.mu.Lock()
	s.upsertFrontLocked(*q)
	s.mu.Unlock()
	s.changes.Notify()
	return cloneQuestion(*q), nil
}

func (s *Synchronizer) upsertFrontLocked(q model.Question) bool {
	if i := s.indexLocked(q.ID); i >= 0 {
		q.AnswersCount = s.questions[i].AnswersCount
		s.questions[i] = q
		return false
	}
	s.questions = append([]model.Question{q}, s.questions...)
	return true
}

// DeleteQuestion drops the question and everything hanging off it locally,
// then tells the server without waiting for the outcome.
func (s *Synchronizer) DeleteQuestion(ctx context.Context, id string) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i >= 0 {
		s.questions = append(s.questions[:i:i], s.questions[i+1:]...)
	}
	kept := s.answers[:0:0]
	for _, a := range s.answers {
		if a.QuestionID != id {
			kept = append(kept, a)
		}
	}
	s.answers = kept
	_, wasLiked := s.likedIDs[id]
	delete(s.likedIDs, id)
	_, wasOpen := s.open[id]
	delete(s.open, id)
	s.mu.Unlock()

	if wasOpen {
		s.unsubscribeQuestion(id)
	}
	if wasLiked {
		if err := s.liked.Forget(ctx, s.sess.Identity().ID, id); err != nil {
			s.log.Warn("forget liked", zap.String("question_id", id), zap.Error(err))
		}
	}
	s.changes.Notify()

	s.enqueue(worker.Job{Name: "community.delete", Run: func(ctx context.Context) error {
		return s.api.DeleteQuestion(ctx, id)
	}})
}

// AddAnswer posts an answer. The returned answer and the matching
// new_answer push share one idempotent insert.
func (s *Synchronizer) AddAnswer(ctx context.Context, questionID, body string) (model.Answer, error) {
	if err := s.validate.Struct(answerInput{QuestionID: questionID, Body: body}); err != nil {
		return model.Answer{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	a, err := s.api.CreateAnswer(ctx, questionID, body)
	if err != nil {
		s.log.Warn("add answer", zap.String("question_id", questionID), zap.Error(err))
		return model.Answer{}, err
	}
	if a.QuestionID == "" {
		a.QuestionID = questionID
	}
	s.mu.Lock()
	added := s.insertAnswerLocked(*a)
	s.mu.Unlock()
	if added {
		s.changes.Notify()
	}
	return *a, nil
}

// GetQuestionBySlug opens a question: it loads the detail, replaces every
// local answer of that question with the server's, and subscribes to the
// question's events until CloseQuestion. Only the latest call per slug is
// applied, and a response for a question closed after the call started is
// dropped.
func (s *Synchronizer) GetQuestionBySlug(ctx context.Context, slug string) (model.Question, bool) {
	if !s.sess.Authenticated() {
		return model.Question{}, false
	}
	s.mu.Lock()
	s.slugTokens[slug]++
	token := s.slugTokens[slug]
	closeMark := s.closeSeq
	s.mu.Unlock()

	detail, err := s.api.GetQuestion(ctx, slug)
	if err != nil {
		s.log.Warn("get question", zap.String("slug", slug), zap.Error(err))
		return model.Question{}, false
	}
	if detail.ID == "" {
		s.log.Warn("get question: missing id", zap.String("slug", slug))
		return model.Question{}, false
	}

	q := detail.Question
	s.mu.Lock()
	if token != s.slugTokens[slug] || s.closedAt[q.ID] > closeMark {
		s.mu.Unlock()
		s.log.Debug("discard stale question", zap.String("slug", slug))
		return model.Question{}, false
	}
	delete(s.closedAt, q.ID)
	kept := s.answers[:0:0]
	for _, a := range s.answers {
		if a.QuestionID != q.ID {
			kept = append(kept, a)
		}
	}
	s.answers = kept
	seen := make(map[string]struct{}, len(detail.Answers))
	for _, a := range detail.Answers {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		if a.QuestionID == "" {
			a.QuestionID = q.ID
		}
		s.answers = append(s.answers, a)
	}
	q.AnswersCount = len(seen)
	if i := s.indexLocked(q.ID); i >= 0 {
		s.questions[i] = q
	} else {
		s.questions = append(s.questions, q)
	}
	s.open[q.ID] = struct{}{}
	s.mu.Unlock()

	s.subscribeQuestion(q.ID)
	s.changes.Notify()
	return cloneQuestion(q), true
}

// CloseQuestion tears down the question's subscriptions and invalidates
// detail fetches still in flight. Its answers stay in the local set.
func (s *Synchronizer) CloseQuestion(id string) {
	s.mu.Lock()
	_, ok := s.open[id]
	delete(s.open, id)
	s.closeSeq++
	s.closedAt[id] = s.closeSeq
	s.mu.Unlock()
	if ok {
		s.unsubscribeQuestion(id)
	}
}

// ToggleLikeQuestion flips membership right away, then reconciles with the
// server's {liked, likes} when this is still the latest toggle for id. The
// count from the response is only used while no question_liked push has
// arrived since the toggle. A rejected request rolls the flip back.
func (s *Synchronizer) ToggleLikeQuestion(ctx context.Context, id string) {
	if !s.sess.Authenticated() {
		return
	}
	uid := s.sess.Identity().ID

	s.mu.Lock()
	_, was := s.likedIDs[id]
	s.setLikedLocked(id, !was)
	s.likeTokens[id]++
	token := s.likeTokens[id]
	events := s.likeEvents[id]
	s.mu.Unlock()
	s.changes.Notify()
	s.persistLiked(ctx, uid, id, !was)

	res, err := s.api.LikeQuestion(ctx, id)

	s.mu.Lock()
	if token != s.likeTokens[id] {
		s.mu.Unlock()
		return
	}
	final := was
	if err == nil {
		final = res.Liked
		if i := s.indexLocked(id); i >= 0 && s.likeEvents[id] == events {
			s.questions[i].Likes = res.Likes
		}
	}
	s.setLikedLocked(id, final)
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("toggle like, rolled back", zap.String("question_id", id), zap.Error(err))
	}
	if final != !was {
		s.persistLiked(ctx, uid, id, final)
	}
	s.changes.Notify()
}

func (s *Synchronizer) setLikedLocked(id string, liked bool) {
	if liked {
		s.likedIDs[id] = struct{}{}
	} else {
		delete(s.likedIDs, id)
	}
}

func (s *Synchronizer) persistLiked(ctx context.Context, uid int64, id string, liked bool) {
	var err error
	if liked {
		err = s.liked.Add(ctx, uid, id)
	} else {
		err = s.liked.Remove(ctx, uid, id)
	}
	if err != nil {
		s.log.Warn("persist liked", zap.String("question_id", id), zap.Error(err))
	}
}

// IncrementQuestionViews records a view. The local count only moves when
// question_viewed comes back.
func (s *Synchronizer) IncrementQuestionViews(id string) {
	s.enqueue(worker.Job{Name: "community.view", Run: func(ctx context.Context) error {
		return s.api.ViewQuestion(ctx, id)
	}})
}

func (s *Synchronizer) enqueue(job worker.Job) {
	if s.jobs == nil {
		go func() {
			if err := job.Run(context.Background()); err != nil {
				s.log.Warn("job failed", zap.String("job", job.Name), zap.Error(err))
			}
		}()
		return
	}
	s.jobs.Enqueue(job)
}

// VoteQuestion applies the server's vote total.
func (s *Synchronizer) VoteQuestion(ctx context.Context, id string, delta int) {
	if err := s.validate.Struct(voteInput{ID: id, Delta: delta}); err != nil {
		s.log.Warn("vote question", zap.Error(err))
		return
	}
	votes, err := s.api.VoteQuestion(ctx, id, delta)
	if err != nil {
		s.log.Warn("vote question", zap.String("question_id", id), zap.Error(err))
		return
	}
	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		s.questions[i].Votes = votes
	}
	s.mu.Unlock()
	s.changes.Notify()
}

func (s *Synchronizer) VoteAnswer(ctx context.Context, id string, delta int) {
	if err := s.validate.Struct(voteInput{ID: id, Delta: delta}); err != nil {
		s.log.Warn("vote answer", zap.Error(err))
		return
	}
	votes, err := s.api.VoteAnswer(ctx, id, delta)
	if err != nil {
		s.log.Warn("vote answer", zap.String("answer_id", id), zap.Error(err))
		return
	}
	s.mu.Lock()
	if i := s.answerIndexLocked(id); i >= 0 {
		s.answers[i].Votes = votes
	}
	s.mu.Unlock()
	s.changes.Notify()
}

// AcceptAnswer marks id accepted; any other accepted answer on the same
// question is cleared locally.
func (s *Synchronizer) AcceptAnswer(ctx context.Context, id string) {
	a, err := s.api.AcceptAnswer(ctx, id)
	if err != nil {
		s.log.Warn("accept answer", zap.String("answer_id", id), zap.Error(err))
		return
	}
	s.mu.Lock()
	qid := a.QuestionID
	if i := s.answerIndexLocked(id); i >= 0 && qid == "" {
		qid = s.answers[i].QuestionID
	}
	for i := range s.answers {
		if s.answers[i].QuestionID == qid {
			s.answers[i].Accepted = s.answers[i].ID == id
		}
	}
	s.mu.Unlock()
	s.changes.Notify()
}
