package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/d60-Lab/livesync/internal/model"
)

// NewQuestion is the ask-question payload.
type NewQuestion struct {
	Title string   `json:"title" validate:"required,min=3,max=255"`
	Body  string   `json:"body" validate:"required"`
	Tags  []string `json:"tags" validate:"max=10,dive,required,max=32"`
}

const questionsPath = "/api/community/questions"

func (c *Client) ListQuestions(ctx context.Context) ([]model.Question, error) {
	var out []model.Question
	err := c.do(ctx, request{op: "community.questions", method: http.MethodGet, path: questionsPath}, &out)
	return out, err
}

func (c *Client) CreateQuestion(ctx context.Context, in NewQuestion) (*model.Question, error) {
	var out model.Question
	if err := c.do(ctx, request{op: "community.ask", method: http.MethodPost, path: questionsPath, body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetQuestion(ctx context.Context, slug string) (*model.QuestionDetail, error) {
	var out model.QuestionDetail
	err := c.do(ctx, request{
		op:     "community.question",
		method: http.MethodGet,
		path:   questionsPath + "/" + url.PathEscape(slug),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteQuestion(ctx context.Context, id string) error {
	return c.do(ctx, request{
		op:     "community.delete",
		method: http.MethodDelete,
		path:   questionsPath + "/" + url.PathEscape(id),
	}, nil)
}

func (c *Client) CreateAnswer(ctx context.Context, questionID, body string) (*model.Answer, error) {
	var out model.Answer
	err := c.do(ctx, request{
		op:     "community.answer",
		method: http.MethodPost,
		path:   questionsPath + "/" + url.PathEscape(questionID) + "/answers",
		body:   map[string]string{"body": body},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LikeQuestion(ctx context.Context, id string) (*model.LikeResult, error) {
	var out model.LikeResult
	err := c.do(ctx, request{
		op:     "community.like",
		method: http.MethodPost,
		path:   questionsPath + "/" + url.PathEscape(id) + "/like",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ViewQuestion(ctx context.Context, id string) error {
	return c.do(ctx, request{
		op:     "community.view",
		method: http.MethodPost,
		path:   questionsPath + "/" + url.PathEscape(id) + "/view",
	}, nil)
}

func (c *Client) VoteQuestion(ctx context.Context, id string, delta int) (int, error) {
	var out model.VoteResult
	err := c.do(ctx, request{
		op:     "community.vote_question",
		method: http.MethodPost,
		path:   questionsPath + "/" + url.PathEscape(id) + "/vote",
		body:   map[string]int{"delta": delta},
	}, &out)
	return out.Votes, err
}

func (c *Client) VoteAnswer(ctx context.Context, id string, delta int) (int, error) {
	var out model.VoteResult
	err := c.do(ctx, request{
		op:     "community.vote_answer",
		method: http.MethodPost,
		path:   "/api/community/answers/" + url.PathEscape(id) + "/vote",
		body:   map[string]int{"delta": delta},
	}, &out)
	return out.Votes, err
}

func (c *Client) AcceptAnswer(ctx context.Context, id string) (*model.Answer, error) {
	var out model.Answer
	err := c.do(ctx, request{
		op:     "community.accept",
		method: http.MethodPost,
		path:   "/api/community/answers/" + url.PathEscape(id) + "/accept",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
