package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/mooncove/internal/account"
	"github.com/sandeepkv93/mooncove/internal/backend"
	"github.com/sandeepkv93/mooncove/internal/config"
	"github.com/sandeepkv93/mooncove/internal/puzzle"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()
	cfg.Backend.Driver = config.DriverMemory
	cfg.Puzzle.Seed = 42

	blobs := backend.NewFileBlobStore(afero.NewMemMapFs(), "/blobs", "")
	for _, name := range []string{"moon.png", "cove.png"} {
		_, err := blobs.Upload(ctx, account.GalleryPrefix+"/"+name, []byte("png"))
		require.NoError(t, err)
	}
	a, err := New(ctx, Options{
		Config: cfg,
		Blobs:  blobs,
		Now:    func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestOpenBackendRejectsUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.Driver = "etcd"
	_, err := OpenBackend(context.Background(), cfg, nil)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestWorkspaceIsCachedPerUser(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	first := a.Workspace(ctx, "u1")
	assert.Same(t, first, a.Workspace(ctx, "u1"))
	assert.NotSame(t, first, a.Workspace(ctx, "u2"))
}

func TestCompletedSessionDeliversReveal(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	user, err := a.Accounts.SignUp(ctx, account.SignUp{Username: "luna", Email: "luna@example.com", Gender: "female"})
	require.NoError(t, err)

	ws := a.Workspace(ctx, user.ID)
	sess, task, err := ws.Sessions.AddTask(ctx, "2024-03-01", "", "read chapter 3")
	require.NoError(t, err)
	_, err = ws.Sessions.ToggleStatus(ctx, "2024-03-01", sess.ID, task.ID)
	require.NoError(t, err)

	var res puzzle.Result
	select {
	case res = <-ws.Reveals:
	case <-time.After(2 * time.Second):
		t.Fatal("no reveal delivered")
	}
	assert.Len(t, res.Item.OpenIndex, 1)
	assert.True(t, res.Item.IsOpen(res.Piece))
	assert.False(t, res.Completed)
}

func TestFlushWithNothingPending(t *testing.T) {
	a := newTestApp(t)
	a.Workspace(context.Background(), "u1")
	require.NoError(t, a.Flush(context.Background()))
}

func TestNewServerServesPing(t *testing.T) {
	a := newTestApp(t)
	srv, err := a.NewServer(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunTUIRequiresKnownUser(t *testing.T) {
	a := newTestApp(t)
	err := a.RunTUI(context.Background(), "ghost")
	require.ErrorIs(t, err, account.ErrUserNotFound)
}

func TestServeStopsWithContext(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
