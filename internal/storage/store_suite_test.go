package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/xiaoban/internal/model"
	"github.com/ashita-ai/xiaoban/internal/storage"
)

// runStoreSuite exercises the Store contract against a backend. open must
// return an empty, migrated store.
func runStoreSuite(t *testing.T, open func(t *testing.T) storage.Store) {
	cst := time.FixedZone("CST", 8*3600)
	day := func(h, m int) time.Time { return time.Date(2026, 5, 20, h, m, 0, 0, cst) }

	t.Run("statuses between is ascending and half-open", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		for _, ev := range []model.StatusEvent{
			{Type: model.StatusMealLunch, Detail: "面", RecordedAt: day(12, 0), Source: model.SourceCommand},
			{Type: model.StatusWake, RecordedAt: day(7, 30), Source: model.SourceCommand},
			{Type: model.StatusSleep, RecordedAt: day(0, 0).Add(-time.Minute), Source: model.SourceCommand},
			{Type: model.StatusNote, RecordedAt: day(0, 0).AddDate(0, 0, 1), Source: model.SourceAI},
		} {
			_, err := s.RecordStatus(ctx, ev)
			require.NoError(t, err)
		}

		got, err := s.StatusesBetween(ctx, day(0, 0), day(0, 0).AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, model.StatusWake, got[0].Type)
		assert.Equal(t, model.StatusMealLunch, got[1].Type)
		assert.Equal(t, "面", got[1].Detail)
		assert.True(t, got[1].RecordedAt.Equal(day(12, 0)))
		assert.NotEqual(t, uuid.Nil, got[0].ID)
	})

	t.Run("recent is newest first and limited", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for i := range 7 {
			_, err := s.RecordStatus(ctx, model.StatusEvent{
				Type: model.StatusDrink, RecordedAt: day(8+i, 0), Source: model.SourceCommand,
			})
			require.NoError(t, err)
		}

		got, err := s.RecentStatuses(ctx, 5)
		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.True(t, got[0].RecordedAt.Equal(day(14, 0)))
		assert.True(t, got[4].RecordedAt.Equal(day(10, 0)))
	})

	t.Run("record keeps a caller supplied id", func(t *testing.T) {
		s := open(t)
		id := uuid.New()
		saved, err := s.RecordStatus(context.Background(), model.StatusEvent{
			ID: id, Type: model.StatusMood, Detail: "有点累", RecordedAt: day(9, 0), Source: model.SourceAI,
		})
		require.NoError(t, err)
		assert.Equal(t, id, saved.ID)

		got, err := s.StatusesByType(context.Background(), model.StatusMood, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, id, got[0].ID)
		assert.Equal(t, model.SourceAI, got[0].Source)
	})

	t.Run("statuses by type filters", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for _, typ := range []model.StatusType{model.StatusStudyStart, model.StatusStudyEnd, model.StatusStudyStart} {
			_, err := s.RecordStatus(ctx, model.StatusEvent{Type: typ, RecordedAt: time.Now(), Source: model.SourceCommand})
			require.NoError(t, err)
		}
		got, err := s.StatusesByType(ctx, model.StatusStudyStart, 10)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("activity", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.LastActivity(ctx, "u")
		require.ErrorIs(t, err, storage.ErrNotFound)

		require.NoError(t, s.TouchActivity(ctx, "u", day(10, 0)))
		require.NoError(t, s.TouchActivity(ctx, "u", day(9, 0)))

		got, err := s.LastActivity(ctx, "u")
		require.NoError(t, err)
		assert.True(t, got.Equal(day(10, 0)), "an older touch does not move activity backwards")

		require.NoError(t, s.TouchActivity(ctx, "u", day(11, 0)))
		got, err = s.LastActivity(ctx, "u")
		require.NoError(t, err)
		assert.True(t, got.Equal(day(11, 0)))
	})

	t.Run("cooldowns", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		loaded, err := s.LoadCooldowns(ctx)
		require.NoError(t, err)
		assert.Empty(t, loaded)

		require.NoError(t, s.SaveCooldown(ctx, "no_wake_9am", day(10, 0)))
		require.NoError(t, s.SaveCooldown(ctx, "no_wake_9am", day(11, 5)))
		require.NoError(t, s.SaveCooldown(ctx, "idle_30min", day(9, 0)))

		loaded, err = s.LoadCooldowns(ctx)
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.True(t, loaded["no_wake_9am"].Equal(day(11, 5)))
	})

	t.Run("subscriptions", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		sub := model.PushSubscription{
			Endpoint:  "https://push.example.com/abc",
			Keys:      model.SubscriptionKeys{P256dh: "p1", Auth: "a1"},
			UserID:    model.DefaultUserID,
			CreatedAt: day(8, 0),
		}

		require.NoError(t, s.AddSubscription(ctx, sub))
		sub.Keys = model.SubscriptionKeys{P256dh: "p2", Auth: "a2"}
		require.NoError(t, s.AddSubscription(ctx, sub), "re-adding is idempotent")

		subs, err := s.ListSubscriptions(ctx)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "p2", subs[0].Keys.P256dh)
		assert.True(t, subs[0].CreatedAt.Equal(day(8, 0)))

		require.NoError(t, s.RemoveSubscription(ctx, sub.Endpoint))
		require.ErrorIs(t, s.RemoveSubscription(ctx, sub.Endpoint), storage.ErrNotFound)

		subs, err = s.ListSubscriptions(ctx)
		require.NoError(t, err)
		assert.Empty(t, subs)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, open(t).Ping(context.Background()))
	})
}
