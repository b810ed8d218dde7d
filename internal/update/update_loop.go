package update

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/sandeepkv93/mooncove/internal/views"
)

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitForRevealCmd(m.deps.Reveals),
		waitForSnapshotCmd(m.deps.SessionChanges, sessionSnapshot),
		waitForSnapshotCmd(m.deps.GalleryChanges, gallerySnapshot),
	}
	if m.deps.Alarms != nil {
		cmds = append(cmds, waitForAlarmCmd(m.deps.Alarms.C()))
	}
	if m.deps.Timer != nil && m.deps.Timer.State().Running {
		cmds = append(cmds, timerTickCmd())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if m.Palette.Active {
			if typed.String() == m.Keys.Help {
				m.HelpVisible = !m.HelpVisible
				return m, nil
			}
			return m.handlePaletteKey(typed)
		}

		keyStr := typed.String()
		// text entry and confirmations swallow global keys
		if m.CurrentView == ViewSessions && (m.Sessions.Input != InputNone || m.Sessions.ConfirmDelete != "") && keyStr != "ctrl+c" {
			return m.handleSessionsKey(typed)
		}

		switch keyStr {
		case "/":
			return m.openPalette(), nil
		case m.Keys.Sessions:
			return m.switchView(ViewSessions), nil
		case m.Keys.Report:
			return m.switchView(ViewReport), nil
		case m.Keys.Gallery:
			return m.switchView(ViewGallery), nil
		case m.Keys.Focus:
			return m.switchView(ViewFocus), nil
		case m.Keys.Relax:
			return m.switchView(ViewRelax), nil
		case m.Keys.Help:
			m.HelpVisible = !m.HelpVisible
			if m.HelpVisible {
				m.Status = StatusBar{Text: "help shown"}
			} else {
				m.Status = StatusBar{Text: "help hidden"}
			}
			return m, nil
		case "ctrl+c", m.Keys.Quit:
			m.Quitting = true
			return m, tea.Quit
		}
		switch m.CurrentView {
		case ViewSessions:
			return m.handleSessionsKey(typed)
		case ViewReport:
			return m.handleReportKey(typed), nil
		case ViewGallery:
			return m.handleGalleryKey(typed), nil
		case ViewFocus:
			return m.handleFocusKey(typed)
		case ViewRelax:
			return m.handleRelaxKey(typed), nil
		}
	case spinner.TickMsg:
		if m.spinnerActive {
			var cmd tea.Cmd
			m.syncSpinner, cmd = m.syncSpinner.Update(typed)
			return m, cmd
		}
	case SwitchViewMsg:
		if isKnownView(typed.View) {
			return m.switchView(typed.View), nil
		}
		return m, nil
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case ClearStatusMsg:
		m.Status = StatusBar{}
		return m, nil
	case AppErrorMsg:
		if typed.Err != nil {
			m.setError(typed.Err)
		}
		return m, nil
	case FlushDoneMsg:
		m.spinnerActive = false
		if typed.Err != nil {
			m.setError(typed.Err)
			return m, nil
		}
		m.Status = StatusBar{Text: "all changes synced"}
		return m, nil
	case TimerTickMsg:
		return m.onTimerTick()
	case AlarmMsg:
		m = m.onAlarm(typed.Alarm)
		if m.deps.Alarms == nil {
			return m, nil
		}
		return m, waitForAlarmCmd(m.deps.Alarms.C())
	case RevealMsg:
		m = m.onReveal(typed.Result)
		return m, waitForRevealCmd(m.deps.Reveals)
	case SessionSnapshotMsg:
		if m.deps.Sessions != nil {
			if err := m.deps.Sessions.Apply(typed.Snapshot); err != nil {
				m.log.Debug("ignore session snapshot", zap.String("path", typed.Snapshot.Path), zap.Error(err))
			}
			m.clampSessionCursors()
		}
		return m, waitForSnapshotCmd(m.deps.SessionChanges, sessionSnapshot)
	case GallerySnapshotMsg:
		m = m.refreshGallery()
		return m, waitForSnapshotCmd(m.deps.GalleryChanges, gallerySnapshot)
	}

	return m, nil
}

func (m Model) switchView(v View) Model {
	m.CurrentView = v
	switch v {
	case ViewReport:
		m = m.refreshReport()
	case ViewGallery:
		m = m.refreshGallery()
	}
	return m
}

func (m Model) View() string {
	status := ""
	if m.Status.Text != "" {
		if m.Status.IsError {
			status = fmt.Sprintf("status: error: %s", m.Status.Text)
		} else {
			status = fmt.Sprintf("status: %s", m.Status.Text)
		}
	}
	leftPane := ""
	switch m.CurrentView {
	case ViewSessions:
		leftPane = m.renderSessionsView()
	case ViewReport:
		leftPane = m.renderReportView()
	case ViewGallery:
		leftPane = m.renderGalleryView()
	case ViewFocus:
		leftPane = m.renderFocusView()
	case ViewRelax:
		leftPane = m.renderRelaxView()
	}
	rightPane := views.RenderCommandPalette(m.Palette.Active, m.commandInput.View()) + m.renderHelpIfVisible()

	notification := ""
	if m.spinnerActive {
		notification = "sync: " + m.syncSpinner.View() + " running"
	}

	tabs := make([]string, 0, len(Views))
	for i, v := range Views {
		tabs = append(tabs, fmt.Sprintf("%d %s", i+1, v))
	}
	user := ""
	if m.deps.Sessions != nil {
		user = m.deps.Sessions.UserID()
	}
	return views.RenderApp(views.AppData{
		Header:       fmt.Sprintf("mooncove | user: %s | date: %s", user, m.Sessions.Date),
		Tabs:         tabs,
		ActiveTab:    m.viewIndex(),
		LeftPane:     leftPane,
		RightPane:    rightPane,
		StatusLine:   status,
		StatusError:  m.Status.IsError,
		Notification: notification,
		Footer:       fmt.Sprintf("keys: 1-5 views | / command | %s help | %s quit", m.Keys.Help, m.Keys.Quit),
	})
}
