package community

import (
	"sort"
	"strings"

	"github.com/d60-Lab/livesync/internal/model"
)

type Tab string

const (
	TabRecent     Tab = "recent"
	TabTrending   Tab = "trending"
	TabUnanswered Tab = "unanswered"
)

// 热门阈值
const (
	trendingVotes = 5
	trendingViews = 200
)

// FeedQuery filters the question list the way the community page does.
type FeedQuery struct {
	Tab  Tab
	Tag  string // 精确匹配归一化后的标签
	Text string // 标题/正文，不区分大小写
}

// Feed returns the questions matching q. Recent and unanswered are newest
// first; trending is ordered by votes, then views.
func (s *Synchronizer) Feed(q FeedQuery) []model.Question {
	s.mu.Lock()
	all := cloneQuestions(s.questions)
	s.mu.Unlock()

	text := strings.ToLower(strings.TrimSpace(q.Text))
	out := all[:0]
	for _, qu := range all {
		if q.Tag != "" && !qu.Tags.Has(q.Tag) {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(qu.Title), text) && !strings.Contains(strings.ToLower(qu.Body), text) {
			continue
		}
		switch q.Tab {
		case TabTrending:
			if qu.Votes <= trendingVotes && qu.Views <= trendingViews {
				continue
			}
		case TabUnanswered:
			if qu.AnswersCount > 0 {
				continue
			}
		}
		out = append(out, qu)
	}

	if q.Tab == TabTrending {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Votes != out[j].Votes {
				return out[i].Votes > out[j].Votes
			}
			return out[i].Views > out[j].Views
		})
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out
}

// TagFacet is one tag with the number of questions carrying it.
type TagFacet struct {
	Tag   string
	Count int
}

// TagFacets counts tags across the feed, most used first.
func (s *Synchronizer) TagFacets() []TagFacet {
	s.mu.Lock()
	counts := make(map[string]int)
	for _, q := range s.questions {
		for _, t := range q.Tags {
			counts[t]++
		}
	}
	s.mu.Unlock()

	out := make([]TagFacet, 0, len(counts))
	for t, n := range counts {
		out = append(out, TagFacet{Tag: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// SortedAnswers is the display order: accepted first, then by votes, then
// oldest first.
func (s *Synchronizer) SortedAnswers(questionID string) []model.Answer {
	out := s.GetAnswersForQuestion(questionID)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Accepted != b.Accepted {
			return a.Accepted
		}
		if a.Votes != b.Votes {
			return a.Votes > b.Votes
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}
