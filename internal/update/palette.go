package update

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/mooncove/internal/commands"
	"github.com/sandeepkv93/mooncove/internal/sessions"
)

func (m Model) openPalette() Model {
	m.Palette.Active = true
	m.Palette.Input = ""
	m.commandInput.SetValue("")
	m.commandInput.Focus()
	m.Status = StatusBar{Text: "command palette active"}
	return m
}

func (m Model) closePalette() Model {
	m.Palette.Active = false
	m.Palette.Input = ""
	m.commandInput.SetValue("")
	m.commandInput.Blur()
	return m
}

func (m Model) handlePaletteKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m = m.closePalette()
		m.Status = StatusBar{Text: "command palette closed"}
		return m, nil
	case "enter":
		m.Palette.Input = m.commandInput.Value()
		return m.executePaletteCommand()
	}
	if msg.Type == tea.KeyRunes {
		m.commandInput.SetValue(m.commandInput.Value() + string(msg.Runes))
		m.Palette.Input = m.commandInput.Value()
		return m, nil
	}
	var cmd tea.Cmd
	m.commandInput, cmd = m.commandInput.Update(msg)
	m.Palette.Input = m.commandInput.Value()
	return m, cmd
}

func (m Model) executePaletteCommand() (Model, tea.Cmd) {
	raw := strings.TrimSpace(m.Palette.Input)
	m = m.closePalette()
	cmd, err := commands.Parse(raw)
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m, nil
	}

	var next tea.Cmd
	res, err := commands.Execute(cmd, commands.Handlers{
		Add: func(a commands.AddArgs) (commands.Result, error) {
			m.CurrentView = ViewSessions
			sess, _ := m.selectedSession()
			updated, task, err := m.deps.Sessions.AddTask(m.ctx, m.Sessions.Date, sess.ID, a.Title)
			m.selectSession(updated.ID)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("added %q to %s", task.Title, updated.Title)}, nil
		},
		Session: func(a commands.SessionArgs) (commands.Result, error) {
			m.CurrentView = ViewSessions
			sess, err := m.deps.Sessions.AddSession(m.ctx, m.Sessions.Date, a.Title)
			m.selectSession(sess.ID)
			m.Sessions.TaskCursor = 0
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("started %q", sess.Title)}, nil
		},
		Rename: func(a commands.RenameArgs) (commands.Result, error) {
			sess, ok := m.selectedSession()
			if !ok {
				return commands.Result{}, sessions.ErrSessionNotFound
			}
			if err := m.deps.Sessions.RenameSession(m.ctx, m.Sessions.Date, sess.ID, a.Title); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("renamed to %q", a.Title)}, nil
		},
		Toggle: func(a commands.TaskArgs) (commands.Result, error) {
			sess, task, err := m.taskAt(a.Index)
			if err != nil {
				return commands.Result{}, err
			}
			toggled, err := m.deps.Sessions.ToggleStatus(m.ctx, m.Sessions.Date, sess.ID, task.ID)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("%s: %s", toggled.Title, toggled.Status)}, nil
		},
		Delete: func(a commands.TaskArgs) (commands.Result, error) {
			sess, task, err := m.taskAt(a.Index)
			if err != nil {
				return commands.Result{}, err
			}
			if err := m.deps.Sessions.DeleteTask(m.ctx, m.Sessions.Date, sess.ID, task.ID); err != nil {
				return commands.Result{}, err
			}
			m.clampSessionCursors()
			return commands.Result{Message: fmt.Sprintf("deleted %q", task.Title)}, nil
		},
		Report: func(a commands.ReportArgs) (commands.Result, error) {
			m.CurrentView = ViewReport
			m.Report.View = a.View
			bars, err := m.buildReport()
			if err != nil {
				return commands.Result{}, err
			}
			m.Report.Bars = bars
			return commands.Result{Message: "report: " + string(a.View)}, nil
		},
		Reveal: func() (commands.Result, error) {
			m.CurrentView = ViewGallery
			m = m.revealActive()
			if m.Status.IsError {
				return commands.Result{}, m.LastError
			}
			return commands.Result{Message: m.Status.Text}, nil
		},
		Timer: func(a commands.TimerArgs) (commands.Result, error) {
			if m.deps.Timer == nil {
				return commands.Result{}, &commands.CommandError{Code: commands.ErrCodeHandlerMissing, Message: "timer unavailable"}
			}
			m.CurrentView = ViewFocus
			switch a.Action {
			case commands.TimerSet:
				if err := m.setTimer(a.Minutes); err != nil {
					return commands.Result{}, err
				}
				m, next = m.startTimer()
				return commands.Result{Message: fmt.Sprintf("timer set to %d minute(s)", a.Minutes)}, nil
			case commands.TimerPause:
				return commands.Result{Message: "focus paused"}, m.deps.Timer.Pause()
			case commands.TimerStop:
				return commands.Result{Message: "timer reset"}, m.deps.Timer.Stop()
			default:
				m, next = m.startTimer()
				return commands.Result{Message: "focus running"}, nil
			}
		},
		Date: func(a commands.DateArgs) (commands.Result, error) {
			m.CurrentView = ViewSessions
			date := a.Resolve(m.now())
			if err := m.LoadDate(date); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: "showing " + date}, nil
		},
	})
	if err != nil {
		m.setError(err)
		return m, next
	}
	m.Status = StatusBar{Text: res.Message}
	return m, next
}
