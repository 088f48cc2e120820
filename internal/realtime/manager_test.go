package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second
const tick = 5 * time.Millisecond

type transitions struct {
	mu  sync.Mutex
	got []State
}

func (r *transitions) record(_, next State) {
	r.mu.Lock()
	r.got = append(r.got, next)
	r.mu.Unlock()
}

func (r *transitions) list() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.got...)
}

func newTestManager(t *testing.T) (*Manager, *Loopback) {
	t.Helper()
	lb := NewLoopback()
	m := NewManager(lb, Settings{ReconnectTimeout: 10 * time.Millisecond})
	t.Cleanup(m.Close)
	return m, lb
}

func TestKeyWireNames(t *testing.T) {
	assert.Equal(t, "new_question", SessionKey(KindNewQuestion).String())
	assert.Equal(t, "new_answer_q1", EntityKey(KindNewAnswer, "q1").String())
}

func TestOpenIsIdempotentPerCredential(t *testing.T) {
	m, lb := newTestManager(t)
	rec := &transitions{}
	m.OnStateChange(rec.record)

	m.Open("tok-a")
	require.Eventually(t, func() bool { return m.State() == Connected }, wait, tick)
	m.Open("tok-a")

	assert.Equal(t, []string{"tok-a"}, lb.Dials())
	assert.Equal(t, []State{Connecting, Connected}, rec.list())
}

func TestOpenWithNewCredentialDropsSubscriptions(t *testing.T) {
	m, lb := newTestManager(t)
	m.Open("tok-a")
	require.Eventually(t, func() bool { return m.State() == Connected }, wait, tick)

	key := SessionKey(KindNewQuestion)
	require.NoError(t, m.Subscribe(key, func(json.RawMessage) {}))
	require.True(t, m.Subscribed(key))

	m.Open("tok-b")
	assert.False(t, m.Subscribed(key))
	require.Eventually(t, func() bool { return m.State() == Connected }, wait, tick)
	assert.Equal(t, []string{"tok-a", "tok-b"}, lb.Dials())
}

func TestSubscribeReplacesHandler(t *testing.T) {
	m, lb := newTestManager(t)
	var mu sync.Mutex
	var first, second int

	key := EntityKey(KindQuestionLiked, "q1")
	require.NoError(t, m.Subscribe(key, func(json.RawMessage) { mu.Lock(); first++; mu.Unlock() }))
	m.Open("tok")
	require.Eventually(t, func() bool { return m.State() == Connected }, wait, tick)
	// Open cleared the table; subscribe twice on the live connection.
	require.NoError(t, m.Subscribe(key, func(json.RawMessage) { mu.Lock(); first++; mu.Unlock() }))
	require.NoError(t, m.Subscribe(key, func(json.RawMessage) { mu.Lock(); second++; mu.Unlock() }))

	require.NoError(t, lb.Push("question_liked_q1", map[string]int{"likes": 3}))
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return second == 1 }, wait, tick)
	mu.Lock()
	assert.Equal(t, 0, first)
	mu.Unlock()
}

func TestSubscribeRejectsWireCollision(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Subscribe(EntityKey(KindNewAnswer, "x"), func(json.RawMessage) {}))
	err := m.Subscribe(SessionKey(Kind("new_answer_x")), func(json.RawMessage) {})
	assert.ErrorIs(t, err, ErrKeyCollision)
	assert.ErrorIs(t, m.Subscribe(Key{}, func(json.RawMessage) {}), ErrEmptyKind)
}

func TestDispatchPreservesOrderAndSkipsUnsubscribed(t *testing.T) {
	m, lb := newTestManager(t)
	var mu sync.Mutex
	var seen []int

	m.OnStateChange(func(_, next State) {
		if next == Connected {
			_ = m.Subscribe(SessionKey(KindNewMessage), func(data json.RawMessage) {
				var n int
				_ = json.Unmarshal(data, &n)
				mu.Lock()
				seen = append(seen, n)
				mu.Unlock()
			})
		}
	})
	m.Open("tok")
	require.Eventually(t, func() bool { return m.State() == Connected }, wait, tick)

	for i := 1; i <= 20; i++ {
		require.NoError(t, lb.Push("new_message", i))
		if i == 10 {
			require.NoError(t, lb.Push("something_else", i))
		}
	}
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(seen) == 20 }, wait, tick)
	for i, n := range seen {
		assert.Equal(t, i+1, n)
	}

	m.Unsubscribe(SessionKey(KindNewMessage))
	require.NoError(t, lb.Push("new_message", 99))
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Len(t, seen, 20)
	mu.Unlock()
}

func TestReconnectAfterDropRunsConnectedAgain(t *testing.T) {
	m, lb := newTestManager(t)
	rec := &transitions{}
	m.OnStateChange(rec.record)
	lb.FailNext(1)

	m.Open("tok")
	require.Eventually(t, func() bool { return m.State() == Connected }, wait, tick)
	lb.Drop()
	require.Eventually(t, func() bool {
		got := rec.list()
		return len(got) >= 4 && got[len(got)-1] == Connected
	}, wait, tick)

	assert.Equal(t, []State{Connecting, Connected, Connecting, Connected}, rec.list())
	assert.Len(t, lb.Dials(), 3)
}

func TestEmitAndClose(t *testing.T) {
	m, lb := newTestManager(t)
	assert.ErrorIs(t, m.Emit(context.Background(), EventJoinUserRoom, 1), ErrNotConnected)

	m.Open("tok")
	require.Eventually(t, func() bool { return m.State() == Connected }, wait, tick)
	require.NoError(t, m.Emit(context.Background(), EventJoinUserRoom, 7))

	emitted := lb.Emitted()
	require.Len(t, emitted, 1)
	assert.Equal(t, "join_user_room", emitted[0].Event)
	assert.JSONEq(t, "7", string(emitted[0].Data))

	m.Close()
	assert.Equal(t, Disconnected, m.State())
	assert.ErrorIs(t, m.Emit(context.Background(), EventJoinUserRoom, 7), ErrNotConnected)
}
