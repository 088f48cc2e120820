package community

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/internal/model"
	"github.com/d60-Lab/livesync/internal/realtime"
)

func (s *Synchronizer) handleNewQuestion(data json.RawMessage) {
	var q model.Question
	if err := json.Unmarshal(data, &q); err != nil || q.ID == "" {
		s.log.Warn("bad new_question payload", zap.Error(err))
		return
	}
	s.mu.Lock()
	added := s.indexLocked(q.ID) < 0
	if added {
		s.questions = append([]model.Question{q}, s.questions...)
	}
	s.mu.Unlock()
	if added {
		s.changes.Notify()
	}
}

func (s *Synchronizer) answerHandler(questionID string) realtime.Handler {
	return func(data json.RawMessage) {
		var a model.Answer
		if err := json.Unmarshal(data, &a); err != nil || a.ID == "" {
			s.log.Warn("bad new_answer payload", zap.String("question_id", questionID), zap.Error(err))
			return
		}
		a.QuestionID = questionID
		s.mu.Lock()
		added := s.insertAnswerLocked(a)
		s.mu.Unlock()
		if added {
			s.changes.Notify()
		}
	}
}

func (s *Synchronizer) likedHandler(questionID string) realtime.Handler {
	return func(data json.RawMessage) {
		var ev model.LikedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Warn("bad question_liked payload", zap.String("question_id", questionID), zap.Error(err))
			return
		}
		s.mu.Lock()
		s.likeEvents[questionID]++
		s.mu.Unlock()
		s.setCounter(questionID, func(q *model.Question) { q.Likes = ev.Likes })
	}
}

func (s *Synchronizer) viewedHandler(questionID string) realtime.Handler {
	return func(data json.RawMessage) {
		var ev model.ViewedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Warn("bad question_viewed payload", zap.String("question_id", questionID), zap.Error(err))
			return
		}
		s.setCounter(questionID, func(q *model.Question) { q.Views = ev.Views })
	}
}

func (s *Synchronizer) setCounter(questionID string, set func(q *model.Question)) {
	s.mu.Lock()
	i := s.indexLocked(questionID)
	if i >= 0 {
		set(&s.questions[i])
	}
	s.mu.Unlock()
	if i >= 0 {
		s.changes.Notify()
	}
}
