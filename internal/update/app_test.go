package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/mooncove/internal/backend"
	"github.com/sandeepkv93/mooncove/internal/model"
	"github.com/sandeepkv93/mooncove/internal/puzzle"
	"github.com/sandeepkv93/mooncove/internal/report"
	"github.com/sandeepkv93/mooncove/internal/scheduler"
	"github.com/sandeepkv93/mooncove/internal/sessions"
	"github.com/sandeepkv93/mooncove/internal/timer"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// switchBackend fails every write while failing is set.
type switchBackend struct {
	backend.Backend
	mu      sync.Mutex
	failing bool
}

var errOffline = errors.New("offline")

func (b *switchBackend) setFailing(v bool) {
	b.mu.Lock()
	b.failing = v
	b.mu.Unlock()
}

func (b *switchBackend) err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return errOffline
	}
	return nil
}

func (b *switchBackend) Write(ctx context.Context, path string, value any) error {
	if err := b.err(); err != nil {
		return err
	}
	return b.Backend.Write(ctx, path, value)
}

func (b *switchBackend) Delete(ctx context.Context, path string) error {
	if err := b.err(); err != nil {
		return err
	}
	return b.Backend.Delete(ctx, path)
}

type fixture struct {
	model   Model
	backend *switchBackend
	store   *sessions.Store
	gallery *puzzle.Tracker
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	mem := backend.NewMemoryBackend(16)
	t.Cleanup(func() { _ = mem.Close() })
	b := &switchBackend{Backend: mem}

	seq := 0
	store := sessions.NewStore(b, "u1", sessions.Options{
		Now: func() time.Time { return testNow },
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		},
	})
	gallery := puzzle.NewTracker(b, "u1", puzzle.Options{Rand: rand.New(rand.NewPCG(3, 4))})
	if _, err := gallery.Provision(ctx, []string{"https://cdn.example.com/gallery/a.png", "https://cdn.example.com/gallery/b.png"}); err != nil {
		t.Fatalf("provision: %v", err)
	}
	store.AddListener(gallery.Listener(ctx, puzzle.RevealOnCompletion, nil))

	tm, err := timer.New(timer.Options{Now: func() time.Time { return testNow }})
	if err != nil {
		t.Fatalf("timer: %v", err)
	}

	m := NewModel(Deps{
		Context:  ctx,
		Sessions: store,
		Gallery:  gallery,
		Timer:    tm,
		Report:   report.Options{Slots: report.DefaultSlots},
		Rand:     rand.New(rand.NewPCG(5, 6)),
		Now:      func() time.Time { return testNow },
	})
	return fixture{model: m, backend: b, store: store, gallery: gallery}
}

func press(t *testing.T, m Model, keys ...tea.KeyMsg) Model {
	t.Helper()
	for _, k := range keys {
		updated, _ := m.Update(k)
		m = updated.(Model)
	}
	return m
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

var enter = tea.KeyMsg{Type: tea.KeyEnter}

func TestNewModelDefaults(t *testing.T) {
	m := newFixture(t).model
	if m.CurrentView != ViewSessions {
		t.Fatalf("expected default view %q, got %q", ViewSessions, m.CurrentView)
	}
	if m.Sessions.Date != "2024-03-01" {
		t.Fatalf("expected today's date, got %q", m.Sessions.Date)
	}
	if m.Keys.Quit != "q" {
		t.Fatalf("expected quit key q, got %q", m.Keys.Quit)
	}
	if m.Relax.Game == nil || len(m.Relax.Game.Swatches) != 10 {
		t.Fatal("expected a dealt color sort game")
	}
}

func TestUpdateKeySwitchesView(t *testing.T) {
	m := newFixture(t).model
	next := press(t, m, runes("2"))
	if next.CurrentView != ViewReport {
		t.Fatalf("expected report view, got %q", next.CurrentView)
	}
	if len(next.Report.Bars) != report.DefaultSlots {
		t.Fatalf("expected padded report, got %d bars", len(next.Report.Bars))
	}
	next = press(t, next, runes("5"))
	if next.CurrentView != ViewRelax {
		t.Fatalf("expected relax view, got %q", next.CurrentView)
	}
}

func TestUpdateSwitchViewMsg(t *testing.T) {
	m := newFixture(t).model
	updated, _ := m.Update(SwitchViewMsg{View: ViewGallery})
	next := updated.(Model)
	if next.CurrentView != ViewGallery {
		t.Fatalf("expected gallery view, got %q", next.CurrentView)
	}
	if len(next.Gallery.Items) != 2 {
		t.Fatalf("expected gallery items loaded, got %d", len(next.Gallery.Items))
	}

	updated, _ = next.Update(SwitchViewMsg{View: View("Unknown")})
	next = updated.(Model)
	if next.CurrentView != ViewGallery {
		t.Fatalf("expected view unchanged for unknown view, got %q", next.CurrentView)
	}
}

func TestUpdateStatusAndError(t *testing.T) {
	m := newFixture(t).model
	updated, _ := m.Update(SetStatusMsg{Text: "ready"})
	next := updated.(Model)
	if next.Status.Text != "ready" || next.Status.IsError {
		t.Fatalf("unexpected status: %+v", next.Status)
	}

	updated, _ = next.Update(AppErrorMsg{Err: errors.New("boom")})
	next = updated.(Model)
	if next.LastError == nil || next.LastError.Error() != "boom" {
		t.Fatalf("expected last error boom, got: %v", next.LastError)
	}
	if !next.Status.IsError || next.Status.Text != "boom" {
		t.Fatalf("unexpected error status: %+v", next.Status)
	}

	updated, _ = next.Update(ClearStatusMsg{})
	next = updated.(Model)
	if next.Status.Text != "" || next.Status.IsError {
		t.Fatalf("expected cleared status, got: %+v", next.Status)
	}
}

func TestUpdateQuitKey(t *testing.T) {
	m := newFixture(t).model
	updated, cmd := m.Update(runes("q"))
	next := updated.(Model)
	if !next.Quitting {
		t.Fatal("expected quitting flag true")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
}

func TestCompletingTaskWithKeyboardRevealsPiece(t *testing.T) {
	f := newFixture(t)
	m := press(t, f.model, runes("n"), runes("Study"), enter)
	list := f.store.Sessions("2024-03-01")
	if len(list) != 1 || list[0].Title != "Study" {
		t.Fatalf("expected one Study session, got %+v", list)
	}

	m = press(t, m, runes("a"), runes("read chapter"), enter)
	sess, task, ok := m.selectedTask()
	if !ok || task.Title != "read chapter" {
		t.Fatalf("expected selected task, got %+v", task)
	}
	if sess.Progress != 0 {
		t.Fatalf("expected progress 0, got %d", sess.Progress)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	sess, task, _ = m.selectedTask()
	if task.Status != model.TaskStatusCompleted || sess.Progress != 100 {
		t.Fatalf("expected completed session, got %+v", sess)
	}

	m = press(t, m, runes("3"))
	if got := len(m.Gallery.Items[0].OpenIndex); got != 1 {
		t.Fatalf("expected one revealed piece, got %d", got)
	}
	out := m.View()
	if !strings.Contains(out, "gallery:") || !strings.Contains(out, "1/35") {
		t.Fatalf("expected gallery progress in output: %q", out)
	}
}

func TestInputEscapeCancels(t *testing.T) {
	f := newFixture(t)
	m := press(t, f.model, runes("a"), runes("draft"), tea.KeyMsg{Type: tea.KeyEsc})
	if m.Sessions.Input != InputNone {
		t.Fatalf("expected input closed, got %q", m.Sessions.Input)
	}
	if len(f.store.Sessions("2024-03-01")) != 0 {
		t.Fatal("expected nothing added")
	}
}

func TestDeleteSessionNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	m := press(t, f.model, runes("n"), runes("Evening"), enter)

	m = press(t, m, runes("D"))
	if !strings.Contains(m.Sessions.ConfirmPrompt, `"Evening"`) {
		t.Fatalf("expected prompt naming the session, got %q", m.Sessions.ConfirmPrompt)
	}
	m = press(t, m, runes("n"))
	if len(f.store.Sessions("2024-03-01")) != 1 || m.Status.Text != "delete cancelled" {
		t.Fatalf("expected session kept, status %q", m.Status.Text)
	}

	m = press(t, m, runes("D"), runes("y"))
	if len(f.store.Sessions("2024-03-01")) != 0 {
		t.Fatal("expected session deleted")
	}
}

func TestDayNavigation(t *testing.T) {
	m := newFixture(t).model
	m = press(t, m, runes("l"))
	if m.Sessions.Date != "2024-03-02" {
		t.Fatalf("expected next day, got %s", m.Sessions.Date)
	}
	m = press(t, m, runes("h"), runes("h"))
	if m.Sessions.Date != "2024-02-29" {
		t.Fatalf("expected leap day, got %s", m.Sessions.Date)
	}
	m = press(t, m, runes("t"))
	if m.Sessions.Date != "2024-03-01" {
		t.Fatalf("expected today, got %s", m.Sessions.Date)
	}
}

func TestPaletteCommands(t *testing.T) {
	f := newFixture(t)
	m := press(t, f.model, runes("/"), runes("add write docs"), enter)
	if m.Palette.Active {
		t.Fatal("expected palette closed after enter")
	}
	list := f.store.Sessions("2024-03-01")
	if len(list) != 1 || list[0].Title != sessions.DefaultSessionTitle || len(list[0].Tasks) != 1 {
		t.Fatalf("expected task in a default session, got %+v", list)
	}

	m = press(t, m, runes("/"), runes("toggle 1"), enter)
	if got := f.store.Sessions("2024-03-01")[0].Progress; got != 100 {
		t.Fatalf("expected progress 100, got %d", got)
	}

	m = press(t, m, runes("/"), runes("report weekly"), enter)
	if m.CurrentView != ViewReport || m.Report.View != report.ViewWeekly {
		t.Fatalf("expected weekly report, got %s %s", m.CurrentView, m.Report.View)
	}
	if m.Report.Bars[2].Label != "Week 1" || m.Report.Bars[2].Value != 100 {
		t.Fatalf("unexpected bars: %+v", m.Report.Bars)
	}

	m = press(t, m, runes("/"), runes("date 2024-01-05"), enter)
	if m.CurrentView != ViewSessions || m.Sessions.Date != "2024-01-05" {
		t.Fatalf("expected date switch, got %s %s", m.CurrentView, m.Sessions.Date)
	}

	m = press(t, m, runes("/"), runes("toggle 4"), enter)
	if !m.Status.IsError {
		t.Fatalf("expected error for missing task, got %+v", m.Status)
	}

	m = press(t, m, runes("/"), runes("dance"), enter)
	if !m.Status.IsError || !strings.Contains(m.Status.Text, "unknown_command") {
		t.Fatalf("expected unknown command error, got %+v", m.Status)
	}
}

func TestPaletteEscapeCloses(t *testing.T) {
	m := newFixture(t).model
	m = press(t, m, runes("/"), runes("rev"), tea.KeyMsg{Type: tea.KeyEsc})
	if m.Palette.Active || m.Palette.Input != "" {
		t.Fatalf("expected palette reset, got %+v", m.Palette)
	}
}

func TestReportViewKeys(t *testing.T) {
	m := press(t, newFixture(t).model, runes("2"), runes("m"))
	if m.Report.View != report.ViewMonthly {
		t.Fatalf("expected monthly view, got %s", m.Report.View)
	}
	if !strings.Contains(m.View(), "report: monthly") {
		t.Fatal("expected report header in output")
	}
}

func TestGalleryRevealKey(t *testing.T) {
	m := press(t, newFixture(t).model, runes("3"), runes("r"))
	if !strings.Contains(m.Status.Text, "revealed") {
		t.Fatalf("expected reveal status, got %q", m.Status.Text)
	}
	if len(m.Gallery.Items[0].OpenIndex) != 1 {
		t.Fatalf("expected one open piece, got %v", m.Gallery.Items[0].OpenIndex)
	}
	if m.Gallery.LastReveal == nil || m.Gallery.LastReveal.Piece < 1 || m.Gallery.LastReveal.Piece > model.PieceCount {
		t.Fatalf("unexpected reveal: %+v", m.Gallery.LastReveal)
	}
}

func TestRevealMsgRefreshesGallery(t *testing.T) {
	f := newFixture(t)
	res, err := f.gallery.RevealActive(context.Background())
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	updated, _ := f.model.Update(RevealMsg{Result: res})
	next := updated.(Model)
	if len(next.Gallery.Items) != 2 || len(next.Gallery.Items[0].OpenIndex) != 1 {
		t.Fatalf("expected refreshed gallery, got %+v", next.Gallery.Items)
	}
}

func TestFocusTimerFromPalette(t *testing.T) {
	m := press(t, newFixture(t).model, runes("/"), runes("timer 1"), enter)
	if m.CurrentView != ViewFocus {
		t.Fatalf("expected focus view, got %s", m.CurrentView)
	}
	st := m.deps.Timer.State()
	if !st.Running || st.Seconds != 60 || st.Mode != timer.ModeCountdown {
		t.Fatalf("unexpected timer state: %+v", st)
	}

	updated, cmd := m.Update(TimerTickMsg{})
	m = updated.(Model)
	if cmd == nil {
		t.Fatal("expected tick cmd while running")
	}
	if got := m.deps.Timer.State().Seconds; got != 59 {
		t.Fatalf("expected 59 seconds left, got %d", got)
	}
	if !strings.Contains(m.View(), "00h : 00m : 59s") {
		t.Fatal("expected formatted timer in output")
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	if m.deps.Timer.State().Running {
		t.Fatal("expected paused timer")
	}
	m = press(t, m, runes("s"))
	st = m.deps.Timer.State()
	if st.Seconds != 0 || st.Mode != timer.ModeStopwatch {
		t.Fatalf("expected reset timer, got %+v", st)
	}
}

func TestCountdownEndShowsAlarm(t *testing.T) {
	m := newFixture(t).model
	m.CurrentView = ViewFocus
	if err := m.deps.Timer.Set(0, 0, 2); err != nil {
		t.Fatalf("set: %v", err)
	}
	m, _ = m.startTimer()
	updated, _ := m.Update(TimerTickMsg{})
	m = updated.(Model)
	updated, cmd := m.Update(TimerTickMsg{})
	m = updated.(Model)
	if cmd != nil {
		t.Fatal("expected ticking to stop at zero")
	}
	if m.Focus.LastAlarm != timer.AlarmLabel {
		t.Fatalf("expected alarm, got %q", m.Focus.LastAlarm)
	}
}

func TestAlarmMsgShowsLabel(t *testing.T) {
	m := newFixture(t).model
	updated, cmd := m.Update(AlarmMsg{Alarm: scheduler.Alarm{ID: timer.AlarmID, Label: timer.AlarmLabel}})
	next := updated.(Model)
	if next.Status.Text != timer.AlarmLabel {
		t.Fatalf("expected alarm status, got %q", next.Status.Text)
	}
	if cmd != nil {
		t.Fatal("expected no rearm without an engine")
	}
}

func TestRelaxSwapAndCheat(t *testing.T) {
	m := press(t, newFixture(t).model, runes("5"), runes("c"))
	game := m.Relax.Game
	if !game.Cheat {
		t.Fatal("expected cheat on")
	}
	first, second := game.Swatches[0], game.Swatches[1]
	m = press(t, m, enter, tea.KeyMsg{Type: tea.KeyRight}, enter)
	if game.Swatches[0] != second || game.Swatches[1] != first {
		t.Fatal("expected swatches swapped")
	}
	if m.Relax.Cursor != 1 {
		t.Fatalf("expected cursor 1, got %d", m.Relax.Cursor)
	}
	if !game.Sorted() {
		m = press(t, m, runes("n"))
		if game.Level != 1 || !m.Status.IsError {
			t.Fatal("expected next level refused for an unsorted grid")
		}
	}
}

func TestSessionSnapshotAppliesRemoteChange(t *testing.T) {
	f := newFixture(t)
	remote := model.Session{ID: "remote-1", Title: "From phone", Tasks: map[string]model.Task{}}
	raw, err := json.Marshal(remote)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	snap := backend.Snapshot{Path: backend.SessionPath("u1", "2024-03-01", "remote-1"), Value: raw}
	updated, _ := f.model.Update(SessionSnapshotMsg{Snapshot: snap})
	next := updated.(Model)
	if !strings.Contains(next.View(), "From phone") {
		t.Fatal("expected remote session rendered")
	}
}

func TestFailedWriteKeepsLocalChangeUntilFlush(t *testing.T) {
	f := newFixture(t)
	f.backend.setFailing(true)
	m := press(t, f.model, runes("n"), runes("Offline"), enter)
	if !m.Status.IsError || !strings.Contains(m.Status.Text, "saved locally") {
		t.Fatalf("expected local save status, got %+v", m.Status)
	}
	if f.store.Pending() != 1 || len(f.store.Sessions("2024-03-01")) != 1 {
		t.Fatal("expected local session pending sync")
	}

	f.backend.setFailing(false)
	updated, cmd := m.Update(runes("f"))
	m = updated.(Model)
	if cmd == nil || !m.spinnerActive {
		t.Fatal("expected flush to start")
	}
	updated, _ = m.Update(FlushDoneMsg{Err: f.store.Flush(context.Background())})
	m = updated.(Model)
	if m.Status.Text != "all changes synced" || f.store.Pending() != 0 {
		t.Fatalf("expected synced, got %+v pending=%d", m.Status, f.store.Pending())
	}
}

func TestViewContainsCoreState(t *testing.T) {
	m := newFixture(t).model
	m.Status = StatusBar{Text: "all good"}
	out := m.View()
	for _, want := range []string{"user: u1", "date: 2024-03-01", "status: all good", "sessions: 2024-03-01", "1 Sessions"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output: %q", want, out)
		}
	}
}

func TestHelpToggle(t *testing.T) {
	m := press(t, newFixture(t).model, runes("?"))
	if !m.HelpVisible {
		t.Fatal("expected help visible")
	}
	if !strings.Contains(m.View(), "help (sessions)") {
		t.Fatal("expected help panel in output")
	}
}
