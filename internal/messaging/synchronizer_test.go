package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/d60-Lab/livesync/internal/apiclient"
	"github.com/d60-Lab/livesync/internal/model"
	"github.com/d60-Lab/livesync/internal/realtime"
	"github.com/d60-Lab/livesync/internal/session"
)

const (
	wait = 2 * time.Second
	tick = 5 * time.Millisecond
	me   = int64(1)
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu            sync.Mutex
	conversations []model.Conversation
	messages      map[int64][]model.Message
	gates         map[int64]chan struct{}
	sendErr       error
	createID      int64
	createErr     error
	calls         map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{messages: map[int64][]model.Message{}, gates: map[int64]chan struct{}{}, calls: map[string]int{}}
}

func (f *fakeAPI) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) ListConversations(context.Context) ([]model.Conversation, error) {
	f.hit("conversations")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Conversation, len(f.conversations))
	copy(out, f.conversations)
	return out, nil
}

func (f *fakeAPI) ListMessages(_ context.Context, id int64) ([]model.Message, error) {
	f.hit("messages")
	f.mu.Lock()
	gate := f.gates[id]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.messages[id]...), nil
}

func (f *fakeAPI) SendMessage(_ context.Context, id int64, content string) (*model.Message, error) {
	f.hit("send")
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &model.Message{ID: 99, ConversationID: id, SenderID: me, Content: content}, nil
}

func (f *fakeAPI) SearchUsers(context.Context, string) ([]model.UserSummary, error) {
	f.hit("search")
	return []model.UserSummary{{ID: 5, Name: "Alok", Role: model.RoleTeacher}}, nil
}

func (f *fakeAPI) GetOrCreateConversation(context.Context, int64) (int64, error) {
	f.hit("get_or_create")
	return f.createID, f.createErr
}

func (f *fakeAPI) DisconnectChat(context.Context, int64) error {
	f.hit("disconnect")
	return nil
}

// fakeChannel delivers events synchronously on the test goroutine.
type fakeChannel struct {
	mu       sync.Mutex
	handlers map[realtime.Key]realtime.Handler
	emitted  []realtime.Envelope
	listener realtime.StateListener
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: map[realtime.Key]realtime.Handler{}}
}

func (c *fakeChannel) Subscribe(key realtime.Key, h realtime.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[key] = h
	return nil
}

func (c *fakeChannel) Unsubscribe(key realtime.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, key)
}

func (c *fakeChannel) Emit(_ context.Context, event string, payload any) error {
	env, err := realtime.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.emitted = append(c.emitted, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) OnStateChange(fn realtime.StateListener) func() {
	c.listener = fn
	return func() { c.listener = nil }
}

func (c *fakeChannel) connect() { c.listener(realtime.Connecting, realtime.Connected) }

func (c *fakeChannel) disconnect() {
	c.mu.Lock()
	c.handlers = map[realtime.Key]realtime.Handler{}
	c.mu.Unlock()
	c.listener(realtime.Connected, realtime.Disconnected)
}

func (c *fakeChannel) push(t *testing.T, key realtime.Key, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	c.mu.Lock()
	h := c.handlers[key]
	c.mu.Unlock()
	require.NotNil(t, h, "no handler for %s", key)
	h(data)
}

type recordingNotifier struct {
	mu      sync.Mutex
	msgs    []model.Message
	summary [][]model.Conversation
}

func (n *recordingNotifier) NewMessage(msg model.Message) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) UnreadSummary(unread []model.Conversation) {
	n.mu.Lock()
	n.summary = append(n.summary, unread)
	n.mu.Unlock()
}

type fixture struct {
	api  *fakeAPI
	ch   *fakeChannel
	note *recordingNotifier
	sync *Synchronizer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	api := newFakeAPI()
	api.conversations = []model.Conversation{
		{ID: 1, OtherUserName: "Meera", LastMessage: "ok", LastMessageAt: t0, UnreadCount: 2},
		{ID: 2, OtherUserName: "Ravi", LastMessage: "see you", LastMessageAt: t0.Add(time.Hour)},
	}
	sess := session.NewHolder()
	sess.Set("tok", session.Identity{ID: me, Name: "Asha", Role: model.RoleStudent})
	ch := newFakeChannel()
	note := &recordingNotifier{}
	s := New(api, ch, sess, Options{Notifier: note})
	s.Start()
	t.Cleanup(s.Stop)

	ch.connect()
	require.Eventually(t, func() bool { return len(s.Conversations()) == 2 }, wait, tick)
	return &fixture{api: api, ch: ch, note: note, sync: s}
}

func newMessage(id, conv, sender int64, content string, at time.Time) model.NewMessageEvent {
	return model.NewMessageEvent{
		ConversationID: conv,
		Message:        model.Message{ID: id, ConversationID: conv, SenderID: sender, Content: content, CreatedAt: at},
	}
}

func TestConnectSubscribesAndJoinsUserRoom(t *testing.T) {
	f := setup(t)

	f.ch.mu.Lock()
	emitted := f.ch.emitted
	f.ch.mu.Unlock()
	require.Len(t, emitted, 1)
	assert.Equal(t, realtime.EventJoinUserRoom, emitted[0].Event)
	assert.JSONEq(t, `1`, string(emitted[0].Data))

	convs := f.sync.Conversations()
	assert.Equal(t, int64(2), convs[0].ID, "sorted by last_message_at desc")
	assert.Equal(t, 2, f.sync.UnreadTotal())

	require.Eventually(t, func() bool {
		f.note.mu.Lock()
		defer f.note.mu.Unlock()
		return len(f.note.summary) == 1
	}, wait, tick)
	assert.Equal(t, "Meera", f.note.summary[0][0].OtherUserName)
}

func TestThirdPartyMessageBumpsUnreadAndResorts(t *testing.T) {
	f := setup(t)

	f.ch.push(t, realtime.SessionKey(realtime.KindNewMessage), newMessage(10, 1, 7, "are you coming?", t0.Add(2*time.Hour)))

	convs := f.sync.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, int64(1), convs[0].ID)
	assert.Equal(t, 3, convs[0].UnreadCount)
	assert.Equal(t, "are you coming?", convs[0].LastMessage)
	assert.True(t, convs[0].LastMessageAt.Equal(t0.Add(2*time.Hour)))
	assert.Len(t, f.note.msgs, 1)
}

func TestSelfEchoDoesNotIncrementUnread(t *testing.T) {
	f := setup(t)

	f.ch.push(t, realtime.SessionKey(realtime.KindNewMessage), newMessage(11, 2, me, "on my way", t0.Add(3*time.Hour)))

	c, ok := f.sync.Conversation(2)
	require.True(t, ok)
	assert.Zero(t, c.UnreadCount)
	assert.Equal(t, "on my way", c.LastMessage)
	assert.Empty(t, f.note.msgs)
}

func TestFetchMessagesZeroesUnreadAndDedupes(t *testing.T) {
	f := setup(t)
	f.api.messages[1] = []model.Message{
		{ID: 1, ConversationID: 1, SenderID: 7, Content: "hi", CreatedAt: t0},
		{ID: 2, ConversationID: 1, SenderID: me, Content: "hey", CreatedAt: t0.Add(time.Minute)},
	}

	f.sync.FetchMessages(context.Background(), 1)
	c, _ := f.sync.Conversation(1)
	assert.Zero(t, c.UnreadCount)
	assert.Equal(t, int64(1), f.sync.OpenConversation())
	assert.False(t, f.sync.Loading())

	key := realtime.SessionKey(realtime.KindNewMessage)
	f.ch.push(t, key, newMessage(2, 1, me, "hey", t0.Add(time.Minute)))
	f.ch.push(t, key, newMessage(3, 1, 7, "how is it going", t0.Add(2*time.Minute)))
	f.ch.push(t, key, newMessage(3, 1, 7, "how is it going", t0.Add(2*time.Minute)))
	f.ch.push(t, key, newMessage(4, 2, 8, "other chat", t0.Add(3*time.Minute)))

	ids := []int64{}
	for _, m := range f.sync.Messages() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)

	f.sync.LeaveConversation()
	assert.Empty(t, f.sync.Messages())
	assert.Zero(t, f.sync.OpenConversation())
}

func TestStaleMessageFetchIsDiscarded(t *testing.T) {
	f := setup(t)
	gate := make(chan struct{})
	f.api.mu.Lock()
	f.api.gates[1] = gate
	f.api.messages[1] = []model.Message{{ID: 1, ConversationID: 1}}
	f.api.messages[2] = []model.Message{{ID: 20, ConversationID: 2}}
	f.api.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.sync.FetchMessages(context.Background(), 1)
		close(done)
	}()
	require.Eventually(t, func() bool { return f.api.count("messages") == 1 }, wait, tick)

	f.sync.FetchMessages(context.Background(), 2)
	close(gate)
	<-done

	msgs := f.sync.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(20), msgs[0].ID)
	assert.Equal(t, int64(2), f.sync.OpenConversation())
	c, _ := f.sync.Conversation(1)
	assert.Equal(t, 2, c.UnreadCount, "stale response must not mark conversation read")
}

func TestSendMessageDoesNotAppendLocally(t *testing.T) {
	f := setup(t)
	f.sync.FetchMessages(context.Background(), 2)

	require.NoError(t, f.sync.SendMessage(context.Background(), 2, "hello"))
	assert.Empty(t, f.sync.Messages())

	f.api.sendErr = &apiclient.StatusError{Method: "POST", Path: "/api/messages/send", Status: 403}
	err := f.sync.SendMessage(context.Background(), 2, "hello again")
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.ErrorIs(t, err, apiclient.ErrMutationRejected)

	err = f.sync.SendMessage(context.Background(), 2, "")
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.Equal(t, 2, f.api.count("send"))
}

func TestSearchUsersMinimumLength(t *testing.T) {
	f := setup(t)

	assert.Empty(t, f.sync.SearchUsers(context.Background(), "a"))
	assert.Zero(t, f.api.count("search"))

	users := f.sync.SearchUsers(context.Background(), "al")
	assert.Len(t, users, 1)
	assert.Equal(t, 1, f.api.count("search"))
}

func TestUnknownConversationTriggersRefetch(t *testing.T) {
	f := setup(t)
	before := f.api.count("conversations")
	f.api.mu.Lock()
	f.api.conversations = append(f.api.conversations, model.Conversation{ID: 3, OtherUserName: "Dev", LastMessageAt: t0.Add(5 * time.Hour), UnreadCount: 1})
	f.api.mu.Unlock()

	f.ch.push(t, realtime.SessionKey(realtime.KindNewMessage), newMessage(30, 3, 9, "hello there", t0.Add(5*time.Hour)))

	require.Eventually(t, func() bool { return len(f.sync.Conversations()) == 3 }, wait, tick)
	assert.Equal(t, before+1, f.api.count("conversations"))
	assert.Equal(t, int64(3), f.sync.Conversations()[0].ID)
}

func TestGetOrCreateConversation(t *testing.T) {
	f := setup(t)
	before := f.api.count("conversations")

	f.api.createID = 2
	assert.Equal(t, int64(2), f.sync.GetOrCreateConversation(context.Background(), 8))
	assert.Equal(t, before+1, f.api.count("conversations"))

	f.api.createErr = apiclient.ErrMutationRejected
	assert.Equal(t, NoConversation, f.sync.GetOrCreateConversation(context.Background(), 8))
}

func TestDisconnectIsTerminalAndIdempotent(t *testing.T) {
	f := setup(t)

	f.sync.DisconnectChat(context.Background(), 1)
	c, _ := f.sync.Conversation(1)
	assert.True(t, c.IsDisconnectedByAdmin)

	f.ch.push(t, realtime.SessionKey(realtime.KindChatDisconnected), model.ChatDisconnectedEvent{ConversationID: 1})
	f.ch.push(t, realtime.SessionKey(realtime.KindChatDisconnected), model.ChatDisconnectedEvent{ConversationID: 2})
	c, _ = f.sync.Conversation(1)
	assert.True(t, c.IsDisconnectedByAdmin)
	c, _ = f.sync.Conversation(2)
	assert.True(t, c.IsDisconnectedByAdmin)
}

func TestDisconnectResetsState(t *testing.T) {
	f := setup(t)
	f.sync.FetchMessages(context.Background(), 1)

	changed, cancel := f.sync.Watch()
	defer cancel()
	f.ch.disconnect()

	assert.Empty(t, f.sync.Conversations())
	assert.Empty(t, f.sync.Messages())
	select {
	case <-changed:
	case <-time.After(wait):
		t.Fatal("expected change notification")
	}
}

func TestWithConnectionManager(t *testing.T) {
	lb := realtime.NewLoopback()
	m := realtime.NewManager(lb, realtime.Settings{ReconnectTimeout: 10 * time.Millisecond})
	api := newFakeAPI()
	api.conversations = []model.Conversation{{ID: 1, LastMessageAt: t0}}
	sess := session.NewHolder()
	sess.Set("tok", session.Identity{ID: me})
	s := New(api, m, sess, Options{Notifier: &recordingNotifier{}})
	s.Start()
	defer s.Stop()

	m.Open("tok")
	defer m.Close()
	require.Eventually(t, func() bool { return len(s.Conversations()) == 1 }, wait, tick)
	require.Eventually(t, func() bool { return len(lb.Emitted()) == 1 }, wait, tick)
	s.FetchMessages(context.Background(), 1)

	require.NoError(t, lb.Push("new_message", newMessage(5, 1, 4, "ping", t0.Add(time.Hour))))
	require.Eventually(t, func() bool {
		c, _ := s.Conversation(1)
		return c.UnreadCount == 1
	}, wait, tick)

	// 断线重连后重新订阅并重新加入用户房间
	lb.Drop()
	require.Eventually(t, func() bool { return len(lb.Emitted()) == 2 }, wait, tick)
	require.NoError(t, lb.Push("new_message", newMessage(6, 1, 4, "pong", t0.Add(2*time.Hour))))
	require.Eventually(t, func() bool { return len(s.Messages()) == 2 }, wait, tick)
	assert.Equal(t, "pong", s.Messages()[1].Content)
}

func TestLogNotifierAggregates(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	n.UnreadSummary([]model.Conversation{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, int64(4), logs.All()[0].ContextMap()["conversations"])

	n.UnreadSummary([]model.Conversation{{ID: 1, OtherUserName: "Meera", UnreadCount: 2}, {ID: 2, OtherUserName: "Ravi", UnreadCount: 1}})
	assert.Equal(t, 3, logs.Len())
}
