package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/d60-Lab/livesync/internal/model"
)

func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	err := c.do(ctx, request{op: "messages.conversations", method: http.MethodGet, path: "/api/messages/conversations"}, &out)
	return out, err
}

func (c *Client) ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	var out []model.Message
	err := c.do(ctx, request{
		op:     "messages.list",
		method: http.MethodGet,
		path:   "/api/messages/conversations/" + strconv.FormatInt(conversationID, 10),
	}, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, conversationID int64, content string) (*model.Message, error) {
	var out model.Message
	err := c.do(ctx, request{
		op:     "messages.send",
		method: http.MethodPost,
		path:   "/api/messages/send",
		body: map[string]any{
			"conversationId": conversationID,
			"content":        content,
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.UserSummary, error) {
	var out struct {
		Users []model.UserSummary `json:"users"`
	}
	err := c.do(ctx, request{
		op:     "messages.search_users",
		method: http.MethodGet,
		path:   "/api/messages/search-users",
		query:  url.Values{"query": {query}},
	}, &out)
	return out.Users, err
}

func (c *Client) GetOrCreateConversation(ctx context.Context, targetUserID int64) (int64, error) {
	var out struct {
		ConversationID int64 `json:"conversationId"`
	}
	err := c.do(ctx, request{
		op:     "messages.get_or_create",
		method: http.MethodPost,
		path:   "/api/messages/conversation/get-or-create",
		body:   map[string]any{"targetUserId": targetUserID},
	}, &out)
	return out.ConversationID, err
}

func (c *Client) DisconnectChat(ctx context.Context, conversationID int64) error {
	return c.do(ctx, request{
		op:     "messages.admin_disconnect",
		method: http.MethodPost,
		path:   "/api/messages/admin/disconnect",
		body:   map[string]any{"conversationId": conversationID},
	}, nil)
}

// Login exchanges dev-backend credentials for a bearer token.
func (c *Client) Login(ctx context.Context, userID int64, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, request{
		op:     "auth.login",
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   map[string]any{"user_id": userID, "password": password},
		noAuth: true,
	}, &out)
	return out.Token, err
}
