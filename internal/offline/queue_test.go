package offline

import (
	"context"
	"errors"
	"testing"

	"birthdaysite/internal/content/localstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainClearsQueueOnSuccess(t *testing.T) {
	ctx := context.Background()
	storage := localstore.NewMemory()
	q := NewQueue(storage)

	require.NoError(t, q.Record(ctx, "push", "quizResults", map[string]int{"score": 1}))
	require.NoError(t, q.Record(ctx, "push", "interactions/gallery", map[string]int{"imageIndex": 2}))

	var replayed []string
	done, remaining, err := q.Drain(ctx, func(_ context.Context, a Action) error {
		replayed = append(replayed, a.Path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, done)
	assert.Zero(t, remaining)
	assert.Equal(t, []string{"quizResults", "interactions/gallery"}, replayed)

	_, ok, _ := storage.Get(ctx, StorageKey)
	assert.False(t, ok)
}

func TestDrainKeepsFailedActions(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(localstore.NewMemory())

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, q.Record(ctx, "push", p, p))
	}

	done, remaining, err := q.Drain(ctx, func(_ context.Context, a Action) error {
		if a.Path == "b" {
			return errors.New("offline")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, done)
	assert.Equal(t, 1, remaining)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].Path)
	assert.JSONEq(t, `"b"`, string(pending[0].Payload))

	done, remaining, err = q.Drain(ctx, func(context.Context, Action) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Zero(t, remaining)
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	storage := localstore.NewMemory()
	q := NewQueue(storage)
	require.NoError(t, q.Record(context.Background(), "push", "a", 1))
	require.NoError(t, q.Record(context.Background(), "push", "b", 2))

	ctx, cancel := context.WithCancel(context.Background())
	done, remaining, err := q.Drain(ctx, func(context.Context, Action) error {
		cancel()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Equal(t, 1, remaining)
}

func TestCorruptedQueueIsDiscarded(t *testing.T) {
	ctx := context.Background()
	storage := localstore.NewMemory()
	require.NoError(t, storage.Set(ctx, StorageKey, "{broken"))

	q := NewQueue(storage)
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, ok, _ := storage.Get(ctx, StorageKey)
	assert.False(t, ok)
}

func TestSetReplacesQueuedSet(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(localstore.NewMemory())

	require.NoError(t, q.Record(ctx, KindSet, "websiteData", map[string]string{"title": "first"}))
	require.NoError(t, q.Record(ctx, KindPush, "quizResults", map[string]int{"score": 1}))
	require.NoError(t, q.Record(ctx, KindSet, "websiteData", map[string]string{"title": "second"}))

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, KindPush, pending[0].Kind)
	assert.Equal(t, KindSet, pending[1].Kind)
	assert.JSONEq(t, `{"title":"second"}`, string(pending[1].Payload))
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	storage := localstore.NewMemory()
	q := NewQueue(storage)

	require.NoError(t, q.Record(ctx, KindSet, "websiteData", "doc"))
	require.NoError(t, q.Record(ctx, KindPush, "quizResults", 1))

	require.NoError(t, q.Discard(ctx, KindSet, "websiteData"))
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "quizResults", pending[0].Path)

	require.NoError(t, q.Discard(ctx, KindPush, "quizResults"))
	_, ok, _ := storage.Get(ctx, StorageKey)
	assert.False(t, ok)
}
