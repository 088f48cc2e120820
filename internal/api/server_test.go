package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/livesync/config"
	"github.com/d60-Lab/livesync/internal/api"
	"github.com/d60-Lab/livesync/internal/apiclient"
	"github.com/d60-Lab/livesync/internal/livesync"
	"github.com/d60-Lab/livesync/internal/model"
	"github.com/d60-Lab/livesync/internal/realtime"
	"github.com/d60-Lab/livesync/internal/service"
	"github.com/d60-Lab/livesync/pkg/database"
)

const (
	wait = 3 * time.Second
	tick = 10 * time.Millisecond
)

func newBackend(t *testing.T) (*config.Config, *api.Server, *httptest.Server) {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Name = "livesync-test"
	cfg.App.Env = "test"
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	cfg.Server.JWTSecret = "test-secret"
	cfg.Server.TokenTTL = time.Hour
	cfg.Server.FanoutTick = 5 * time.Millisecond

	db, err := database.InitDB(cfg)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, service.Seed(context.Background(), db))

	srv := api.NewServer(cfg, db)
	srv.Start()
	ts := httptest.NewServer(srv.Engine)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Stop(context.Background())
	})

	cfg.Client.APIBase = ts.URL
	cfg.Client.RequestTimeout = 2 * time.Second
	cfg.Client.DispatchQueue = 64
	cfg.Client.DispatchWorker = 1
	cfg.Realtime.URL = "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	cfg.Realtime.ReconnectTimeout = 20 * time.Millisecond
	return cfg, srv, ts
}

func login(t *testing.T, cfg *config.Config, uid int64) *livesync.Client {
	t.Helper()
	c := livesync.New(cfg, nil, livesync.Deps{})
	c.Start()
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
	require.NoError(t, c.Login(context.Background(), uid, service.SeedPassword))
	require.Eventually(t, func() bool { return c.Conn.State() == realtime.Connected }, wait, tick)
	return c
}

func TestMessagingEndToEnd(t *testing.T) {
	cfg, srv, _ := newBackend(t)
	ctx := context.Background()

	meera := login(t, cfg, 3)
	ravi := login(t, cfg, 2)
	require.Eventually(t, func() bool {
		return srv.Hub.RoomSize(service.UserRoom(3)) == 1 && srv.Hub.RoomSize(service.UserRoom(2)) == 1
	}, wait, tick)

	convID := meera.Messaging.GetOrCreateConversation(ctx, 2)
	require.NotEqual(t, int64(0), convID)
	meera.Messaging.FetchMessages(ctx, convID)

	require.NoError(t, ravi.Messaging.SendMessage(ctx, convID, "lab is due friday"))

	require.Eventually(t, func() bool {
		msgs := meera.Messaging.Messages()
		return len(msgs) == 1 && msgs[0].Content == "lab is due friday"
	}, wait, tick)
	require.Eventually(t, func() bool {
		c, ok := ravi.Messaging.Conversation(convID)
		return ok && c.LastMessage == "lab is due friday"
	}, wait, tick)
	c, ok := meera.Messaging.Conversation(convID)
	require.True(t, ok)
	assert.Equal(t, 1, c.UnreadCount)

	admin := login(t, cfg, 1)
	admin.Messaging.DisconnectChat(ctx, convID)
	require.Eventually(t, func() bool {
		c, ok := meera.Messaging.Conversation(convID)
		return ok && c.IsDisconnectedByAdmin
	}, wait, tick)

	err := meera.Messaging.SendMessage(ctx, convID, "hello?")
	require.Error(t, err)
	var se *apiclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Status)
}

func TestCommunityEndToEnd(t *testing.T) {
	cfg, _, _ := newBackend(t)
	ctx := context.Background()

	meera := login(t, cfg, 3)
	arjun := login(t, cfg, 4)
	require.Eventually(t, func() bool { return len(arjun.Community.Questions()) == 2 }, wait, tick)

	q, err := meera.Community.AddQuestion(ctx, apiclient.NewQuestion{Title: "Is recursion slow", Body: "in python?", Tags: []string{"python"}})
	require.NoError(t, err)
	assert.Equal(t, "is-recursion-slow", q.Slug)

	require.Eventually(t, func() bool { _, ok := arjun.Community.Question(q.ID); return ok }, wait, tick)
	_, ok := arjun.Community.GetQuestionBySlug(ctx, q.Slug)
	require.True(t, ok)

	_, err = meera.Community.AddAnswer(ctx, q.ID, "not inherently")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(arjun.Community.GetAnswersForQuestion(q.ID)) == 1 }, wait, tick)

	arjun.Community.ToggleLikeQuestion(ctx, q.ID)
	assert.True(t, arjun.Community.IsLiked(q.ID))
	require.Eventually(t, func() bool {
		got, _ := arjun.Community.Question(q.ID)
		return got.Likes == 1
	}, wait, tick)

	arjun.Community.IncrementQuestionViews(q.ID)
	require.Eventually(t, func() bool {
		got, _ := arjun.Community.Question(q.ID)
		return got.Views == 1
	}, wait, tick)
}

func TestRESTContract(t *testing.T) {
	_, srv, ts := newBackend(t)

	tok, err := srv.Auth.Login(context.Background(), 3, service.SeedPassword)
	require.NoError(t, err)

	do := func(method, path string, body any) *http.Response {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, err := http.NewRequest(method, ts.URL+path, &buf)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp, err := http.Get(ts.URL + "/api/messages/conversations")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(http.MethodPost, "/api/messages/conversation/get-or-create", map[string]any{"targetUserId": 2})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(http.MethodPost, "/api/messages/conversation/get-or-create", map[string]any{"targetUserId": 2})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(http.MethodGet, "/api/messages/search-users?query=a", nil)
	var search struct {
		Users []model.UserSummary `json:"users"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&search))
	assert.NotNil(t, search.Users)
	assert.Empty(t, search.Users)

	resp = do(http.MethodPost, "/api/messages/admin/disconnect", map[string]any{"conversationId": 1})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(http.MethodGet, "/api/community/questions/no-such-question", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(http.MethodGet, "/api/community/questions", nil)
	var questions []model.Question
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&questions))
	require.Len(t, questions, 2)

	resp = do(http.MethodPost, "/api/community/questions/"+questions[0].ID+"/vote", map[string]any{"delta": 3})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(http.MethodPost, "/api/community/questions/"+questions[0].ID+"/view", nil)
	var viewed model.ViewedEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&viewed))
	assert.Equal(t, 1, viewed.Views)
}
