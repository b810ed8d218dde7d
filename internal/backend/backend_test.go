package backend

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type doc struct {
	Title    string `json:"title"`
	Progress int    `json:"progress"`
}

func backends(t *testing.T) map[string]func(t *testing.T) Backend {
	t.Helper()
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend {
			b := NewMemoryBackend(8)
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
		"sqlite": func(t *testing.T) Backend {
			b, err := OpenSQLite(filepath.Join(t.TempDir(), "docs.db"), 8)
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
		"redis": func(t *testing.T) Backend {
			srv := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
			b, err := NewRedisBackend(context.Background(), client, "test:changes", 8)
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
	}
}

func TestBackendReadWrite(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := open(t)
			ctx := context.Background()

			var got doc
			require.ErrorIs(t, b.Read(ctx, "Users/u1", &got), ErrNotFound)

			require.NoError(t, b.Write(ctx, "/Users/u1/", doc{Title: "luna", Progress: 10}))
			require.NoError(t, b.Read(ctx, "Users/u1", &got))
			assert.Equal(t, doc{Title: "luna", Progress: 10}, got)

			require.NoError(t, b.Write(ctx, "Users/u1", doc{Title: "mira"}))
			require.NoError(t, b.Read(ctx, "Users/u1", &got))
			assert.Equal(t, doc{Title: "mira"}, got)
		})
	}
}

func TestBackendUpdateMergesFields(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := open(t)
			ctx := context.Background()

			require.NoError(t, b.Update(ctx, "Sessions/u1/2024-03-01/sessions/s1", map[string]any{"progress": 50}))
			require.NoError(t, b.Update(ctx, "Sessions/u1/2024-03-01/sessions/s1", map[string]any{"title": "Study"}))

			var got doc
			require.NoError(t, b.Read(ctx, "Sessions/u1/2024-03-01/sessions/s1", &got))
			assert.Equal(t, doc{Title: "Study", Progress: 50}, got)
		})
	}
}

func TestBackendListAndDeleteAreSegmentAware(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := open(t)
			ctx := context.Background()

			require.NoError(t, b.Write(ctx, "Gallery/u1/Items/a", doc{Title: "a"}))
			require.NoError(t, b.Write(ctx, "Gallery/u1/Items/b", doc{Title: "b"}))
			require.NoError(t, b.Write(ctx, "Gallery/u10/Items/c", doc{Title: "c"}))
			require.NoError(t, b.Write(ctx, "Gallery/u1_x/Items/d", doc{Title: "d"}))

			docs, err := b.List(ctx, "Gallery/u1")
			require.NoError(t, err)
			assert.Len(t, docs, 2)
			assert.Contains(t, docs, "Gallery/u1/Items/a")
			assert.Contains(t, docs, "Gallery/u1/Items/b")

			require.NoError(t, b.Delete(ctx, "Gallery/u1"))
			docs, err = b.List(ctx, "Gallery")
			require.NoError(t, err)
			assert.Len(t, docs, 2)

			require.ErrorIs(t, b.Delete(ctx, "Gallery/u1"), ErrNotFound)
		})
	}
}

func TestBackendRejectsInvalidPaths(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := open(t)
			ctx := context.Background()
			require.ErrorIs(t, b.Write(ctx, "", doc{}), ErrInvalidPath)
			require.ErrorIs(t, b.Write(ctx, "Users//u1", doc{}), ErrInvalidPath)
			require.ErrorIs(t, b.Write(ctx, "Users/../u1", doc{}), ErrInvalidPath)
		})
	}
}

func nextSnapshot(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

// waitFor skips snapshots until one matches. Redis delivers changes
// asynchronously so an earlier write can still be in flight.
func waitFor(t *testing.T, sub *Subscription, match func(Snapshot) bool) Snapshot {
	t.Helper()
	for {
		snap := nextSnapshot(t, sub)
		if match(snap) {
			return snap
		}
	}
}

func TestBackendSubscribe(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := open(t)
			ctx := context.Background()

			require.NoError(t, b.Write(ctx, "Gallery/u1/Items/a", doc{Title: "a"}))

			sub, err := b.Subscribe(ctx, "Gallery/u1/Items")
			require.NoError(t, err)
			defer sub.Close()

			initial := nextSnapshot(t, sub)
			assert.Equal(t, "Gallery/u1/Items/a", initial.Path)

			require.NoError(t, b.Write(ctx, "Gallery/u2/Items/x", doc{Title: "other user"}))
			require.NoError(t, b.Update(ctx, "Gallery/u1/Items/a", map[string]any{"progress": 3}))

			var got doc
			changed := waitFor(t, sub, func(s Snapshot) bool {
				var d doc
				return s.Decode(&d) == nil && d.Progress == 3
			})
			assert.Equal(t, "Gallery/u1/Items/a", changed.Path)
			require.NoError(t, changed.Decode(&got))
			assert.Equal(t, doc{Title: "a", Progress: 3}, got)

			require.NoError(t, b.Delete(ctx, "Gallery/u1/Items/a"))
			deleted := waitFor(t, sub, func(s Snapshot) bool { return !s.Exists() })
			assert.Equal(t, "Gallery/u1/Items/a", deleted.Path)
			assert.False(t, deleted.Exists())
			assert.ErrorIs(t, deleted.Decode(&got), ErrNotFound)
		})
	}
}

func TestSubscriptionCancelClosesChannel(t *testing.T) {
	b := NewMemoryBackend(1)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, "Users")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewMemoryBackend(1)
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "Users")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Write(ctx, "Users/u1", doc{Progress: i}))
	}
	assert.Equal(t, uint64(4), sub.Dropped())
}

func TestSubscribeAfterCloseFails(t *testing.T) {
	b := NewMemoryBackend(1)
	require.NoError(t, b.Close())
	_, err := b.Subscribe(context.Background(), "Users")
	require.ErrorIs(t, err, ErrClosed)
}

func TestParseSessionPath(t *testing.T) {
	uid, date, sid, err := ParseSessionPath(SessionPath("u1", "2024-03-01", "s9"))
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "2024-03-01", "s9"}, []string{uid, date, sid})

	_, _, _, err = ParseSessionPath("Users/u1")
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestMergeFieldsRejectsNonObject(t *testing.T) {
	_, err := mergeFields(json.RawMessage(`[1,2]`), map[string]any{"a": 1})
	require.Error(t, err)
}

var errPublishDown = errors.New("publish unavailable")

// failPublish makes every PUBLISH sent through the client fail.
type failPublish struct{}

func (failPublish) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	if cmd.Name() == "publish" {
		return ctx, errPublishDown
	}
	return ctx, nil
}

func (failPublish) AfterProcess(context.Context, redis.Cmder) error { return nil }

func (failPublish) BeforeProcessPipeline(ctx context.Context, _ []redis.Cmder) (context.Context, error) {
	return ctx, nil
}

func (failPublish) AfterProcessPipeline(context.Context, []redis.Cmder) error { return nil }

func TestRedisStoredChangeSurvivesFailedAnnounce(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	b, err := NewRedisBackend(context.Background(), client, "test:changes", 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	core, logs := observer.New(zap.WarnLevel)
	b.log = zap.New(core)
	client.AddHook(failPublish{})
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "Gallery/u1/Items")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Write(ctx, "Gallery/u1/Items/a", doc{Title: "a"}))
	require.NoError(t, b.Update(ctx, "Gallery/u1/Items/a", map[string]any{"progress": 2}))

	var got doc
	require.NoError(t, b.Read(ctx, "Gallery/u1/Items/a", &got))
	assert.Equal(t, doc{Title: "a", Progress: 2}, got)

	changed := waitFor(t, sub, func(s Snapshot) bool {
		var d doc
		return s.Decode(&d) == nil && d.Progress == 2
	})
	assert.Equal(t, "Gallery/u1/Items/a", changed.Path)

	require.NoError(t, b.Delete(ctx, "Gallery/u1/Items/a"))
	require.ErrorIs(t, b.Read(ctx, "Gallery/u1/Items/a", &got), ErrNotFound)

	warned := logs.FilterMessage("announce change failed").All()
	require.Len(t, warned, 3)
	assert.Equal(t, "Gallery/u1/Items/a", warned[0].ContextMap()["path"])
}
