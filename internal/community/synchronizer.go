// Package community keeps the question feed, per-question answers and the
// caller's liked set consistent with snapshots, push events and optimistic
// mutations.
package community

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/internal/apiclient"
	"github.com/d60-Lab/livesync/internal/cache"
	"github.com/d60-Lab/livesync/internal/model"
	"github.com/d60-Lab/livesync/internal/notify"
	"github.com/d60-Lab/livesync/internal/realtime"
	"github.com/d60-Lab/livesync/internal/session"
	"github.com/d60-Lab/livesync/internal/worker"
	"github.com/d60-Lab/livesync/pkg/logger"
)

type API interface {
	ListQuestions(ctx context.Context) ([]model.Question, error)
	CreateQuestion(ctx context.Context, in apiclient.NewQuestion) (*model.Question, error)
	GetQuestion(ctx context.Context, slug string) (*model.QuestionDetail, error)
	DeleteQuestion(ctx context.Context, id string) error
	CreateAnswer(ctx context.Context, questionID, body string) (*model.Answer, error)
	LikeQuestion(ctx context.Context, id string) (*model.LikeResult, error)
	ViewQuestion(ctx context.Context, id string) error
	VoteQuestion(ctx context.Context, id string, delta int) (int, error)
	VoteAnswer(ctx context.Context, id string, delta int) (int, error)
	AcceptAnswer(ctx context.Context, id string) (*model.Answer, error)
}

type Channel interface {
	Subscribe(key realtime.Key, h realtime.Handler) error
	Unsubscribe(key realtime.Key)
	OnStateChange(fn realtime.StateListener) func()
}

type Session interface {
	Authenticated() bool
	Identity() session.Identity
}

// Dispatcher runs mutations nobody waits for.
type Dispatcher interface {
	Enqueue(job worker.Job) bool
}

// perQuestion 打开问题详情期间订阅的事件
var perQuestion = []realtime.Kind{realtime.KindNewAnswer, realtime.KindQuestionLiked, realtime.KindQuestionViewed}

// Synchronizer 社区问答同步器，状态全部由 mu 保护，网络请求在锁外
type Synchronizer struct {
	api      API
	ch       Channel
	sess     Session
	liked    cache.LikedStore
	jobs     Dispatcher
	validate *validator.Validate
	changes  *notify.Broadcaster
	log      *zap.Logger

	mu         sync.Mutex
	questions  []model.Question
	answers    []model.Answer
	likedIDs   map[string]struct{}
	open       map[string]struct{}
	feedToken  uint64
	slugTokens map[string]uint64
	likeTokens map[string]uint64
	// likeEvents 每个问题收到的 question_liked 次数；有更新的推送时不再用 POST 结果覆盖计数
	likeEvents map[string]uint64
	// closeSeq/closedAt 让关闭之前发出的详情请求失效
	closeSeq uint64
	closedAt map[string]uint64

	unwatch func()
}

func New(api API, ch Channel, sess Session, liked cache.LikedStore, jobs Dispatcher) *Synchronizer {
	if liked == nil {
		liked = cache.NewMemoryLikedStore()
	}
	return &Synchronizer{
		api:        api,
		ch:         ch,
		sess:       sess,
		liked:      liked,
		jobs:       jobs,
		validate:   validator.New(),
		changes:    notify.New(),
		log:        logger.Named("community"),
		likedIDs:   make(map[string]struct{}),
		open:       make(map[string]struct{}),
		slugTokens: make(map[string]uint64),
		likeTokens: make(map[string]uint64),
		likeEvents: make(map[string]uint64),
		closedAt:   make(map[string]uint64),
	}
}

func (s *Synchronizer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unwatch != nil {
		return
	}
	s.unwatch = s.ch.OnStateChange(s.onState)
}

func (s *Synchronizer) Stop() {
	s.mu.Lock()
	unwatch := s.unwatch
	s.unwatch = nil
	open := s.openIDsLocked()
	s.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
	s.ch.Unsubscribe(realtime.SessionKey(realtime.KindNewQuestion))
	for _, id := range open {
		s.unsubscribeQuestion(id)
	}
}

func (s *Synchronizer) onState(_, next realtime.State) {
	switch next {
	case realtime.Connected:
		s.attach()
	case realtime.Disconnected:
		s.reset()
	}
}

// attach re-subscribes everything after a (re)connect and refreshes the
// snapshot. Questions that were open keep their per-question handlers.
func (s *Synchronizer) attach() {
	if err := s.ch.Subscribe(realtime.SessionKey(realtime.KindNewQuestion), s.handleNewQuestion); err != nil {
		s.log.Error("subscribe new_question", zap.Error(err))
	}
	s.mu.Lock()
	open := s.openIDsLocked()
	s.mu.Unlock()
	for _, id := range open {
		s.subscribeQuestion(id)
	}
	go func() {
		ctx := context.Background()
		s.loadLiked(ctx)
		s.FetchQuestions(ctx)
	}()
}

func (s *Synchronizer) reset() {
	s.mu.Lock()
	s.questions = nil
	s.answers = nil
	s.likedIDs = make(map[string]struct{})
	s.open = make(map[string]struct{})
	s.feedToken++
	s.slugTokens = make(map[string]uint64)
	s.likeTokens = make(map[string]uint64)
	s.likeEvents = make(map[string]uint64)
	s.closedAt = make(map[string]uint64)
	s.mu.Unlock()
	s.changes.Notify()
}

func (s *Synchronizer) loadLiked(ctx context.Context) {
	uid := s.sess.Identity().ID
	ids, err := s.liked.Load(ctx, uid)
	if err != nil {
		s.log.Warn("load liked set", zap.Int64("user_id", uid), zap.Error(err))
		return
	}
	s.mu.Lock()
	for _, id := range ids {
		s.likedIDs[id] = struct{}{}
	}
	s.mu.Unlock()
	s.changes.Notify()
}

func (s *Synchronizer) subscribeQuestion(id string) {
	handlers := map[realtime.Kind]realtime.Handler{
		realtime.KindNewAnswer:      s.answerHandler(id),
		realtime.KindQuestionLiked:  s.likedHandler(id),
		realtime.KindQuestionViewed: s.viewedHandler(id),
	}
	for _, kind := range perQuestion {
		if err := s.ch.Subscribe(realtime.EntityKey(kind, id), handlers[kind]); err != nil {
			s.log.Error("subscribe question", zap.String("kind", string(kind)), zap.String("question_id", id), zap.Error(err))
		}
	}
}

func (s *Synchronizer) unsubscribeQuestion(id string) {
	for _, kind := range perQuestion {
		s.ch.Unsubscribe(realtime.EntityKey(kind, id))
	}
}

func (s *Synchronizer) openIDsLocked() []string {
	out := make([]string, 0, len(s.open))
	for id := range s.open {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Synchronizer) Watch() (<-chan struct{}, func()) { return s.changes.Watch() }

// Questions returns the feed in arrival order, newest first.
func (s *Synchronizer) Questions() []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneQuestions(s.questions)
}

func (s *Synchronizer) Question(id string) (model.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return cloneQuestion(s.questions[i]), true
	}
	return model.Question{}, false
}

// Answers returns every materialized answer across open questions.
func (s *Synchronizer) Answers() []model.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.answers)
}

// GetAnswersForQuestion filters the local answer set. No network.
func (s *Synchronizer) GetAnswersForQuestion(questionID string) []model.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Answer{}
	for _, a := range s.answers {
		if a.QuestionID == questionID {
			out = append(out, a)
		}
	}
	return out
}

func (s *Synchronizer) LikedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.likedIDs))
	for id := range s.likedIDs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Synchronizer) IsLiked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.likedIDs[id]
	return ok
}

// IsOpen reports whether the question's detail subscriptions are live.
func (s *Synchronizer) IsOpen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.open[id]
	return ok
}

func (s *Synchronizer) indexLocked(id string) int {
	return slices.IndexFunc(s.questions, func(q model.Question) bool { return q.ID == id })
}

func (s *Synchronizer) answerIndexLocked(id string) int {
	return slices.IndexFunc(s.answers, func(a model.Answer) bool { return a.ID == id })
}

// insertAnswerLocked appends a and bumps the question's count, once per
// distinct answer id.
func (s *Synchronizer) insertAnswerLocked(a model.Answer) bool {
	if s.answerIndexLocked(a.ID) >= 0 {
		return false
	}
	s.answers = append(s.answers, a)
	if i := s.indexLocked(a.QuestionID); i >= 0 {
		s.questions[i].AnswersCount++
	}
	return true
}

func cloneQuestion(q model.Question) model.Question {
	q.Tags = slices.Clone(q.Tags)
	return q
}

func cloneQuestions(in []model.Question) []model.Question {
	out := make([]model.Question, len(in))
	for i, q := range in {
		out[i] = cloneQuestion(q)
	}
	return out
}
