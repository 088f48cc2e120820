package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/livesync/internal/model"
	"github.com/d60-Lab/livesync/pkg/database"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func seedUsers(t *testing.T, db *gorm.DB) {
	t.Helper()
	users := NewUserRepository(db)
	ctx := context.Background()
	for _, u := range []*model.User{
		{ID: 1, Name: "Asha Rao", Role: model.RoleStudent, StudentID: "STU-001"},
		{ID: 2, Name: "Meera Iyer", Role: model.RoleTeacher, EmployeeCode: "EMP-042"},
		{ID: 3, Name: "Ravi Kumar", Role: model.RoleAdmin},
	} {
		require.NoError(t, users.Upsert(ctx, u))
	}
}

func TestUserSearch(t *testing.T) {
	db := setupDB(t)
	seedUsers(t, db)
	users := NewUserRepository(db)
	ctx := context.Background()

	res, err := users.Search(ctx, "MEERA", 1, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, int64(2), res[0].ID)

	res, err = users.Search(ctx, "emp-04", 1, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)

	res, err = users.Search(ctx, "asha", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, res, "caller is excluded")

	_, err = users.Get(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationListForUser(t *testing.T) {
	db := setupDB(t)
	seedUsers(t, db)
	convs := NewConversationRepository(db)
	msgs := NewMessageRepository(db)
	ctx := context.Background()

	c12, created, err := convs.GetOrCreate(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, created)
	again, created, err := convs.GetOrCreate(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c12.ID, again.ID)
	assert.Equal(t, int64(1), c12.UserAID)

	c13, _, err := convs.GetOrCreate(ctx, 1, 3)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, msgs.Create(ctx, &model.Message{ConversationID: c12.ID, SenderID: 2, Content: "hello", CreatedAt: now}))
	require.NoError(t, msgs.Create(ctx, &model.Message{ConversationID: c12.ID, SenderID: 2, Content: "are you there", CreatedAt: now.Add(time.Second)}))
	require.NoError(t, convs.Touch(ctx, c12.ID, now.Add(time.Second)))
	require.NoError(t, msgs.Create(ctx, &model.Message{ConversationID: c13.ID, SenderID: 1, Content: "hi admin", CreatedAt: now.Add(2 * time.Second)}))
	require.NoError(t, convs.Touch(ctx, c13.ID, now.Add(2*time.Second)))

	list, err := convs.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, c13.ID, list[0].ID)
	assert.Equal(t, "Ravi Kumar", list[0].OtherUserName)
	assert.Zero(t, list[0].UnreadCount)
	assert.Equal(t, "are you there", list[1].LastMessage)
	assert.Equal(t, 2, list[1].UnreadCount)
	assert.Equal(t, "EMP-042", list[1].EmployeeCode)

	require.NoError(t, msgs.MarkRead(ctx, c12.ID, 1))
	n, err := msgs.UnreadCount(ctx, c12.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, convs.Disconnect(ctx, c12.ID))
	got, err := convs.Get(ctx, c12.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDisconnectedByAdmin)
	assert.ErrorIs(t, convs.Disconnect(ctx, 999), ErrNotFound)
}

func TestQuestionCountersAndLikes(t *testing.T) {
	db := setupDB(t)
	qs := NewQuestionRepository(db)
	as := NewAnswerRepository(db)
	ctx := context.Background()

	q := &model.Question{ID: "q1", Slug: "what-is-a-heap", Title: "What is a heap", Tags: model.Tags{"dsa"}}
	require.NoError(t, qs.Create(ctx, q))
	require.NoError(t, as.Create(ctx, &model.Answer{ID: "a1", QuestionID: "q1", Body: "a tree"}))
	require.NoError(t, as.Create(ctx, &model.Answer{ID: "a2", QuestionID: "q1", Body: "an array"}))

	list, err := qs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].AnswersCount)
	assert.Equal(t, model.Tags{"dsa"}, list[0].Tags)

	views, err := qs.IncrementViews(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, 1, views)
	votes, err := qs.AddVotes(ctx, "q1", -1)
	require.NoError(t, err)
	assert.Equal(t, -1, votes)
	_, err = qs.IncrementViews(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	liked, likes, err := qs.ToggleLike(ctx, "q1", 7)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 1, likes)
	liked, likes, err = qs.ToggleLike(ctx, "q1", 7)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Zero(t, likes)

	a, err := as.Accept(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a.Accepted)
	_, err = as.Accept(ctx, "a2")
	require.NoError(t, err)
	answers, err := as.ListByQuestion(ctx, "q1")
	require.NoError(t, err)
	accepted := 0
	for _, a := range answers {
		if a.Accepted {
			accepted++
			assert.Equal(t, "a2", a.ID)
		}
	}
	assert.Equal(t, 1, accepted)

	require.NoError(t, qs.Delete(ctx, "q1"))
	answers, err = as.ListByQuestion(ctx, "q1")
	require.NoError(t, err)
	assert.Empty(t, answers)
	_, err = qs.GetBySlug(ctx, "what-is-a-heap")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutboxOrder(t *testing.T) {
	db := setupDB(t)
	ob := NewOutboxRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ob.Append(ctx, "", "new_question", fmt.Sprintf(`{"n":%d}`, i))
		require.NoError(t, err)
	}
	pending, err := ob.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Less(t, pending[0].Seq, pending[1].Seq)

	require.NoError(t, ob.MarkDone(ctx, pending[0].Seq, 2))
	pending, err = ob.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
