package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hbai-chat-go/internal/model"
)

func newSession(visitorID string, temporary bool, updated time.Time) *model.Session {
	return &model.Session{
		ID:          uuid.NewString(),
		VisitorID:   visitorID,
		Title:       model.DefaultSessionTitle,
		State:       model.StateIdle,
		Temporary:   temporary,
		CreatedAt:   updated,
		LastUpdated: updated,
	}
}

// exerciseRepository 对任意实现运行同一组行为检查。
func exerciseRepository(t *testing.T, repo SessionRepository) {
	ctx := context.Background()
	visitor := uuid.NewString()
	base := time.Now().Truncate(time.Second)

	older := newSession(visitor, false, base)
	newer := newSession(visitor, false, base.Add(time.Minute))
	temp := newSession(visitor, true, base.Add(2*time.Minute))
	for _, s := range []*model.Session{older, newer, temp} {
		require.NoError(t, repo.Create(ctx, s))
	}

	t.Run("get", func(t *testing.T) {
		got, err := repo.Get(ctx, older.ID)
		require.NoError(t, err)
		assert.Equal(t, older.ID, got.ID)
		assert.Equal(t, model.StateIdle, got.State)

		_, err = repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("list excludes temporary and orders newest first", func(t *testing.T) {
		list, err := repo.ListByVisitor(ctx, visitor)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, older.ID, list[1].ID)
	})

	t.Run("history append keeps order", func(t *testing.T) {
		turns := []model.ChatTurn{
			model.NewUserTurn("Hello", base),
			model.NewAssistantTurn("Hi there.", base),
			model.NewUserTurn("안녕", base),
		}
		require.NoError(t, repo.AppendTurns(ctx, older.ID, turns[0], turns[1]))
		require.NoError(t, repo.AppendTurns(ctx, older.ID, turns[2]))

		history, err := repo.History(ctx, older.ID)
		require.NoError(t, err)
		require.Len(t, history, 3)
		for i := range turns {
			assert.Equal(t, turns[i].Role, history[i].Role)
			assert.Equal(t, turns[i].Text, history[i].Text)
		}

		require.NoError(t, repo.ClearHistory(ctx, older.ID))
		history, err = repo.History(ctx, older.ID)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("save updates state and ordering", func(t *testing.T) {
		older.State = model.StateError
		older.LastError = "boom"
		older.LastUpdated = base.Add(5 * time.Minute)
		require.NoError(t, repo.Save(ctx, older))

		got, err := repo.Get(ctx, older.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StateError, got.State)
		assert.Equal(t, "boom", got.LastError)

		list, err := repo.ListByVisitor(ctx, visitor)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, older.ID, list[0].ID)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, newer))
		_, err := repo.Get(ctx, newer.ID)
		assert.ErrorIs(t, err, ErrSessionNotFound)

		list, err := repo.ListByVisitor(ctx, visitor)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestMemorySessionRepository(t *testing.T) {
	exerciseRepository(t, NewMemorySessionRepository(time.Hour, time.Minute))
}

func TestMemorySessionRepository_Expiry(t *testing.T) {
	repo := NewMemorySessionRepository(time.Hour, time.Minute).(*memorySessionRepository)
	now := time.Now()
	repo.now = func() time.Time { return now }

	ctx := context.Background()
	temp := newSession("v1", true, now)
	kept := newSession("v1", false, now)
	require.NoError(t, repo.Create(ctx, temp))
	require.NoError(t, repo.Create(ctx, kept))

	now = now.Add(2 * time.Minute)
	_, err := repo.Get(ctx, temp.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = repo.Get(ctx, kept.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, repo.AppendTurns(ctx, temp.ID, model.NewUserTurn("x", now)), ErrSessionNotFound)
}

func TestMemorySessionRepository_HistoryIsCopied(t *testing.T) {
	repo := NewMemorySessionRepository(0, 0)
	ctx := context.Background()
	s := newSession("v1", false, time.Now())
	require.NoError(t, repo.Create(ctx, s))
	require.NoError(t, repo.AppendTurns(ctx, s.ID, model.NewUserTurn("original", time.Now())))

	history, err := repo.History(ctx, s.ID)
	require.NoError(t, err)
	history[0].Text = "changed"

	again, err := repo.History(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Text)
}

func TestRedisSessionRepository(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	exerciseRepository(t, NewSessionRepository(client, time.Hour, time.Minute))
}
