package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/mooncove/internal/backend"
	"github.com/sandeepkv93/mooncove/internal/model"
)

const day = "2024-03-01"

var errOffline = errors.New("offline")

// flakyBackend fails writes and deletes while down is set.
type flakyBackend struct {
	backend.Backend
	mu   sync.Mutex
	down bool
}

func (f *flakyBackend) setDown(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = v
}

func (f *flakyBackend) isDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

func (f *flakyBackend) Write(ctx context.Context, path string, value any) error {
	if f.isDown() {
		return errOffline
	}
	return f.Backend.Write(ctx, path, value)
}

func (f *flakyBackend) Delete(ctx context.Context, path string) error {
	if f.isDown() {
		return errOffline
	}
	return f.Backend.Delete(ctx, path)
}

type fixture struct {
	store   *Store
	backend *flakyBackend
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := backend.NewMemoryBackend(8)
	t.Cleanup(func() { _ = mem.Close() })
	f := &fixture{
		backend: &flakyBackend{Backend: mem},
		now:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	seq := 0
	f.store = NewStore(f.backend, "u1", Options{
		Now: func() time.Time { return f.now },
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		},
	})
	return f
}

func (f *fixture) stored(t *testing.T, sessionID string) model.Session {
	t.Helper()
	var sess model.Session
	require.NoError(t, f.backend.Read(context.Background(), backend.SessionPath("u1", day, sessionID), &sess))
	return sess
}

func TestAddTaskCreatesSessionOnFirstAdd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, task, err := f.store.AddTask(ctx, day, "", "  Read chapter 3 ")
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionTitle, sess.Title)
	assert.Equal(t, "Read chapter 3", task.Title)
	assert.Equal(t, model.TaskStatusInProgress, task.Status)
	assert.Equal(t, f.now, task.DateCreated)
	assert.Nil(t, task.DateFinish)

	stored := f.stored(t, sess.ID)
	require.Contains(t, stored.Tasks, task.ID)
	assert.Equal(t, 0, stored.Progress)
	require.Len(t, f.store.Sessions(day), 1)
}

func TestAddTaskRejectsBlankTitle(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.store.AddTask(context.Background(), day, "", "   ")
	require.ErrorIs(t, err, ErrEmptyTitle)
	assert.Empty(t, f.store.Days())
}

func TestAddTaskUnknownSessionOrDate(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.store.AddTask(context.Background(), day, "missing", "x")
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, _, err = f.store.AddTask(context.Background(), "03/01/2024", "", "x")
	require.ErrorIs(t, err, ErrInvalidDate)
}

func TestToggleStatusUpdatesProgressAndFinishTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, first, err := f.store.AddTask(ctx, day, "", "one")
	require.NoError(t, err)
	_, _, err = f.store.AddTask(ctx, day, sess.ID, "two")
	require.NoError(t, err)

	var changes []ProgressChange
	f.store.AddListener(func(c ProgressChange) { changes = append(changes, c) })

	f.now = f.now.Add(90 * time.Minute)
	done, err := f.store.ToggleStatus(ctx, day, sess.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, done.Status)
	require.NotNil(t, done.DateFinish)
	assert.Equal(t, f.now, *done.DateFinish)

	stored := f.stored(t, sess.ID)
	assert.Equal(t, 50, stored.Progress)
	assert.Equal(t, model.TaskStatusCompleted, stored.Tasks[first.ID].Status)
	assert.Equal(t, []ProgressChange{{Date: day, SessionID: sess.ID, Before: 0, After: 50}}, changes)

	reverted, err := f.store.ToggleStatus(ctx, day, sess.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusInProgress, reverted.Status)
	assert.Nil(t, reverted.DateFinish)
	assert.Equal(t, 0, f.stored(t, sess.ID).Progress)
}

func TestToggleUnknownTask(t *testing.T) {
	f := newFixture(t)
	sess, err := f.store.AddSession(context.Background(), day, "Study")
	require.NoError(t, err)
	_, err = f.store.ToggleStatus(context.Background(), day, sess.ID, "nope")
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestEditTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, task, err := f.store.AddTask(ctx, day, "", "draft")
	require.NoError(t, err)

	blank := " "
	_, err = f.store.EditTask(ctx, day, sess.ID, task.ID, TaskEdit{Title: &blank})
	require.ErrorIs(t, err, ErrEmptyTitle)

	title, desc := "final", "polish the intro"
	edited, err := f.store.EditTask(ctx, day, sess.ID, task.ID, TaskEdit{Title: &title, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Title)
	assert.Equal(t, "polish the intro", f.stored(t, sess.ID).Tasks[task.ID].Description)
}

func TestDeleteTaskRecomputesProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, a, err := f.store.AddTask(ctx, day, "", "a")
	require.NoError(t, err)
	_, b, err := f.store.AddTask(ctx, day, sess.ID, "b")
	require.NoError(t, err)
	_, err = f.store.ToggleStatus(ctx, day, sess.ID, a.ID)
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteTask(ctx, day, sess.ID, b.ID))
	stored := f.stored(t, sess.ID)
	assert.Len(t, stored.Tasks, 1)
	assert.Equal(t, 100, stored.Progress)

	require.ErrorIs(t, f.store.DeleteTask(ctx, day, sess.ID, b.ID), ErrTaskNotFound)
}

func TestRenameSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.store.AddSession(ctx, day, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionTitle, sess.Title)

	require.ErrorIs(t, f.store.RenameSession(ctx, day, sess.ID, "  "), ErrEmptyTitle)
	assert.Equal(t, DefaultSessionTitle, f.stored(t, sess.ID).Title)

	require.NoError(t, f.store.RenameSession(ctx, day, sess.ID, "Deep work"))
	assert.Equal(t, "Deep work", f.stored(t, sess.ID).Title)
}

func TestDeleteSessionNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.store.AddSession(ctx, day, "Morning")
	require.NoError(t, err)

	var prompt string
	decline := ConfirmFunc(func(p string) (bool, error) { prompt = p; return false, nil })
	require.ErrorIs(t, f.store.DeleteSession(ctx, day, sess.ID, decline), ErrNotConfirmed)
	assert.Equal(t, `Delete session "Morning"?`, prompt)
	require.ErrorIs(t, f.store.DeleteSession(ctx, day, sess.ID, nil), ErrNotConfirmed)
	require.Len(t, f.store.Sessions(day), 1)

	accept := ConfirmFunc(func(string) (bool, error) { return true, nil })
	require.NoError(t, f.store.DeleteSession(ctx, day, sess.ID, accept))
	assert.Empty(t, f.store.Sessions(day))

	var gone model.Session
	require.ErrorIs(t, f.backend.Read(ctx, backend.SessionPath("u1", day, sess.ID), &gone), backend.ErrNotFound)
}

func TestPersistFailureKeepsLocalStateAndFlushRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, task, err := f.store.AddTask(ctx, day, "", "write report")
	require.NoError(t, err)

	f.backend.setDown(true)
	_, err = f.store.ToggleStatus(ctx, day, sess.ID, task.ID)
	var perr *PersistError
	require.ErrorAs(t, err, &perr)
	require.ErrorIs(t, err, errOffline)
	assert.Equal(t, "write", perr.Op)

	local, err := f.store.Session(day, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, local.Progress)
	assert.Equal(t, 0, f.stored(t, sess.ID).Progress)
	assert.Equal(t, 1, f.store.Pending())

	require.Error(t, f.store.Flush(ctx))
	f.backend.setDown(false)
	require.NoError(t, f.store.Flush(ctx))
	assert.Equal(t, 0, f.store.Pending())
	assert.Equal(t, 100, f.stored(t, sess.ID).Progress)
}

func TestLoadAllGroupsByDateAndKeepsPendingEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := NewStore(f.backend, "u1", Options{NewID: func() string { return "remote" }})
	_, _, err := other.AddTask(ctx, "2024-02-10", "", "remote task")
	require.NoError(t, err)
	_, _, err = other.AddTask(ctx, day, "", "remote today")
	require.NoError(t, err)

	f.backend.setDown(true)
	local, _, err := f.store.AddTask(ctx, day, "", "local only")
	require.Error(t, err)
	f.backend.setDown(false)

	require.NoError(t, f.store.LoadAll(ctx))
	days := f.store.Days()
	require.Len(t, days, 2)
	require.Len(t, days["2024-02-10"], 1)
	require.Len(t, days[day], 2)
	ids := []string{days[day][0].ID, days[day][1].ID}
	assert.ElementsMatch(t, []string{"remote", local.ID}, ids)
}

func TestApplyRemoteSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, task, err := f.store.AddTask(ctx, day, "", "shared")
	require.NoError(t, err)

	var changes []ProgressChange
	f.store.AddListener(func(c ProgressChange) { changes = append(changes, c) })

	remote := f.stored(t, sess.ID)
	finished := f.now
	task.Status = model.TaskStatusCompleted
	task.DateFinish = &finished
	remote.Tasks[task.ID] = task
	remote.Progress = 0

	raw, err := jsonOf(remote)
	require.NoError(t, err)
	require.NoError(t, f.store.Apply(backend.Snapshot{Path: backend.SessionPath("u1", day, sess.ID), Value: raw}))

	got, err := f.store.Session(day, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, []ProgressChange{{Date: day, SessionID: sess.ID, Before: 0, After: 100, Remote: true}}, changes)

	require.NoError(t, f.store.Apply(backend.Snapshot{Path: backend.SessionPath("u1", day, sess.ID)}))
	assert.Empty(t, f.store.Sessions(day))
}

func jsonOf(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

func TestWatchStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.store.Watch(ctx) }()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
