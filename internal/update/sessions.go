package update

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/mooncove/internal/model"
	"github.com/sandeepkv93/mooncove/internal/report"
	"github.com/sandeepkv93/mooncove/internal/sessions"
	"github.com/sandeepkv93/mooncove/internal/views"
)

func (m Model) currentSessions() []model.Session {
	if m.deps.Sessions == nil {
		return nil
	}
	return m.deps.Sessions.Sessions(m.Sessions.Date)
}

func (m Model) selectedSession() (model.Session, bool) {
	list := m.currentSessions()
	if m.Sessions.SessionCursor < 0 || m.Sessions.SessionCursor >= len(list) {
		return model.Session{}, false
	}
	return list[m.Sessions.SessionCursor], true
}

func (m Model) selectedTask() (model.Session, model.Task, bool) {
	sess, ok := m.selectedSession()
	if !ok {
		return model.Session{}, model.Task{}, false
	}
	tasks := sess.OrderedTasks()
	if m.Sessions.TaskCursor < 0 || m.Sessions.TaskCursor >= len(tasks) {
		return sess, model.Task{}, false
	}
	return sess, tasks[m.Sessions.TaskCursor], true
}

func (m *Model) clampSessionCursors() {
	list := m.currentSessions()
	if m.Sessions.SessionCursor >= len(list) {
		m.Sessions.SessionCursor = len(list) - 1
	}
	if m.Sessions.SessionCursor < 0 {
		m.Sessions.SessionCursor = 0
	}
	tasks := 0
	if len(list) > 0 {
		tasks = len(list[m.Sessions.SessionCursor].Tasks)
	}
	if m.Sessions.TaskCursor >= tasks {
		m.Sessions.TaskCursor = tasks - 1
	}
	if m.Sessions.TaskCursor < 0 {
		m.Sessions.TaskCursor = 0
	}
}

// LoadDate switches the Sessions view to date and reads it from the backend.
func (m *Model) LoadDate(date string) error {
	if err := sessions.ValidateDate(date); err != nil {
		return err
	}
	m.Sessions.Date = date
	m.Sessions.SessionCursor = 0
	m.Sessions.TaskCursor = 0
	if m.deps.Sessions == nil {
		return nil
	}
	if err := m.deps.Sessions.Load(m.ctx, date); err != nil {
		return err
	}
	m.clampSessionCursors()
	return nil
}

func (m Model) shiftDate(days int) Model {
	at, err := time.Parse(sessions.DateLayout, m.Sessions.Date)
	if err != nil {
		at = m.now()
	}
	next := at.AddDate(0, 0, days).Format(sessions.DateLayout)
	if err := m.LoadDate(next); err != nil {
		m.setError(err)
		return m
	}
	m.Status = StatusBar{Text: "showing " + next}
	return m
}

func (m Model) handleSessionsKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.Sessions.Input != InputNone {
		return m.handleSessionInputKey(msg)
	}
	if m.Sessions.ConfirmDelete != "" {
		return m.handleConfirmKey(msg), nil
	}
	if m.deps.Sessions == nil {
		return m, nil
	}

	switch msg.String() {
	case "h", "left":
		return m.shiftDate(-1), nil
	case "l", "right":
		return m.shiftDate(1), nil
	case "t":
		return m.withDate(m.now()), nil
	case "[":
		m.Sessions.SessionCursor--
		m.Sessions.TaskCursor = 0
		m.clampSessionCursors()
	case "]":
		m.Sessions.SessionCursor++
		m.Sessions.TaskCursor = 0
		m.clampSessionCursors()
	case "j", "down":
		m.Sessions.TaskCursor++
		m.clampSessionCursors()
	case "k", "up":
		m.Sessions.TaskCursor--
		m.clampSessionCursors()
	case " ":
		return m.toggleSelectedTask(), nil
	case "a":
		return m.startInput(InputAddTask, ""), textinput.Blink
	case "n":
		return m.startInput(InputAddSession, ""), textinput.Blink
	case "e":
		if sess, ok := m.selectedSession(); ok {
			return m.startInput(InputRename, sess.Title), textinput.Blink
		}
	case "x":
		return m.deleteSelectedTask(), nil
	case "D":
		if sess, ok := m.selectedSession(); ok {
			m.Sessions.ConfirmDelete = sess.ID
			m.Sessions.ConfirmPrompt = fmt.Sprintf("Delete session %q?", sess.Title)
		}
	case "f":
		if m.deps.Sessions.Pending() == 0 {
			m.Status = StatusBar{Text: "nothing to sync"}
			return m, nil
		}
		m.spinnerActive = true
		m.Status = StatusBar{Text: "syncing"}
		return m, tea.Batch(m.syncSpinner.Tick, flushCmd(m.ctx, m.deps.Sessions))
	}
	return m, nil
}

func (m Model) withDate(at time.Time) Model {
	if err := m.LoadDate(at.Format(sessions.DateLayout)); err != nil {
		m.setError(err)
	}
	return m
}

func (m Model) startInput(mode InputMode, value string) Model {
	m.Sessions.Input = mode
	m.taskInput.Placeholder = string(mode)
	m.taskInput.SetValue(value)
	m.taskInput.Focus()
	return m
}

func (m Model) stopInput() Model {
	m.Sessions.Input = InputNone
	m.taskInput.SetValue("")
	m.taskInput.Blur()
	return m
}

func (m Model) handleSessionInputKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.stopInput(), nil
	case "enter":
		value := strings.TrimSpace(m.taskInput.Value())
		mode := m.Sessions.Input
		m = m.stopInput()
		switch mode {
		case InputAddTask:
			return m.addTask(value), nil
		case InputAddSession:
			return m.addSession(value), nil
		case InputRename:
			return m.renameSelected(value), nil
		}
		return m, nil
	}
	if msg.Type == tea.KeyRunes {
		m.taskInput.SetValue(m.taskInput.Value() + string(msg.Runes))
		return m, nil
	}
	var cmd tea.Cmd
	m.taskInput, cmd = m.taskInput.Update(msg)
	return m, cmd
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) Model {
	id := m.Sessions.ConfirmDelete
	m.Sessions.ConfirmDelete = ""
	m.Sessions.ConfirmPrompt = ""
	answer := strings.ToLower(msg.String())
	confirm := sessions.ConfirmFunc(func(string) (bool, error) { return answer == "y", nil })
	err := m.deps.Sessions.DeleteSession(m.ctx, m.Sessions.Date, id, confirm)
	switch {
	case errors.Is(err, sessions.ErrNotConfirmed):
		m.Status = StatusBar{Text: "delete cancelled"}
	case err != nil:
		m.setError(err)
	default:
		m.Status = StatusBar{Text: "session deleted"}
	}
	m.clampSessionCursors()
	return m
}

func (m Model) addTask(title string) Model {
	sess, _ := m.selectedSession()
	updated, task, err := m.deps.Sessions.AddTask(m.ctx, m.Sessions.Date, sess.ID, title)
	if err != nil && updated.ID == "" {
		m.setError(err)
		return m
	}
	m.selectSession(updated.ID)
	for i, t := range updated.OrderedTasks() {
		if t.ID == task.ID {
			m.Sessions.TaskCursor = i
		}
	}
	if err != nil {
		m.setError(err)
		return m
	}
	m.Status = StatusBar{Text: fmt.Sprintf("added %q (%d%%)", task.Title, updated.Progress)}
	return m
}

func (m Model) addSession(title string) Model {
	sess, err := m.deps.Sessions.AddSession(m.ctx, m.Sessions.Date, title)
	if sess.ID != "" {
		m.selectSession(sess.ID)
		m.Sessions.TaskCursor = 0
	}
	if err != nil {
		m.setError(err)
		return m
	}
	m.Status = StatusBar{Text: fmt.Sprintf("started %q", sess.Title)}
	return m
}

func (m Model) renameSelected(title string) Model {
	sess, ok := m.selectedSession()
	if !ok {
		return m
	}
	if err := m.deps.Sessions.RenameSession(m.ctx, m.Sessions.Date, sess.ID, title); err != nil {
		m.setError(err)
		return m
	}
	m.Status = StatusBar{Text: "session renamed"}
	return m
}

func (m Model) toggleSelectedTask() Model {
	sess, task, ok := m.selectedTask()
	if !ok {
		m.Status = StatusBar{Text: "no task selected", IsError: true}
		return m
	}
	toggled, err := m.deps.Sessions.ToggleStatus(m.ctx, m.Sessions.Date, sess.ID, task.ID)
	if err != nil {
		m.setError(err)
		return m
	}
	m.Status = StatusBar{Text: fmt.Sprintf("%s: %s", toggled.Title, toggled.Status)}
	return m
}

func (m Model) deleteSelectedTask() Model {
	sess, task, ok := m.selectedTask()
	if !ok {
		m.Status = StatusBar{Text: "no task selected", IsError: true}
		return m
	}
	if err := m.deps.Sessions.DeleteTask(m.ctx, m.Sessions.Date, sess.ID, task.ID); err != nil {
		m.setError(err)
	} else {
		m.Status = StatusBar{Text: fmt.Sprintf("deleted %q", task.Title)}
	}
	m.clampSessionCursors()
	return m
}

// taskAt resolves a 1-based task number within the selected session.
func (m Model) taskAt(n int) (model.Session, model.Task, error) {
	sess, ok := m.selectedSession()
	if !ok {
		return model.Session{}, model.Task{}, sessions.ErrSessionNotFound
	}
	tasks := sess.OrderedTasks()
	if n < 1 || n > len(tasks) {
		return sess, model.Task{}, fmt.Errorf("%w: no task %d", sessions.ErrTaskNotFound, n)
	}
	return sess, tasks[n-1], nil
}

func (m *Model) selectSession(id string) {
	for i, sess := range m.currentSessions() {
		if sess.ID == id {
			m.Sessions.SessionCursor = i
			return
		}
	}
}

func flushCmd(ctx context.Context, store *sessions.Store) tea.Cmd {
	return func() tea.Msg {
		return FlushDoneMsg{Err: store.Flush(ctx)}
	}
}

func (m Model) renderSessionsView() string {
	list := m.currentSessions()
	data := views.SessionsPanelData{
		Date:          m.Sessions.Date,
		SessionCursor: m.Sessions.SessionCursor,
		TaskCursor:    m.Sessions.TaskCursor,
		ConfirmPrompt: m.Sessions.ConfirmPrompt,
	}
	if m.deps.Sessions != nil {
		data.Pending = m.deps.Sessions.Pending()
	}
	if m.Sessions.Input != InputNone {
		data.InputView = fmt.Sprintf("%s: %s", m.Sessions.Input, m.taskInput.View())
	}
	if rating, ok := report.DayRating(list); ok {
		data.Rating = fmt.Sprintf("%s %s", rating.Emoji(), rating)
		for _, slice := range report.Breakdown(report.SessionTasks(list)) {
			data.BreakdownCounts = append(data.BreakdownCounts, fmt.Sprintf("%s %d", slice.Category, slice.Count))
		}
	}
	for _, sess := range list {
		sd := views.SessionData{
			Title:        sess.Title,
			Progress:     sess.Progress,
			ProgressView: m.focusProgress.ViewAs(float64(sess.Progress) / 100),
		}
		for _, task := range sess.OrderedTasks() {
			td := views.TaskData{Title: task.Title, Done: task.Status == model.TaskStatusCompleted}
			if d, ok := task.Duration(); ok {
				td.Duration = d.Round(time.Minute).String()
				td.Rating = string(report.Classify(task))
			}
			sd.Tasks = append(sd.Tasks, td)
		}
		data.Sessions = append(data.Sessions, sd)
	}
	return views.RenderSessionsPanel(data)
}
