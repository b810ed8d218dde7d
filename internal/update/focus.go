package update

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/mooncove/internal/scheduler"
	"github.com/sandeepkv93/mooncove/internal/timer"
	"github.com/sandeepkv93/mooncove/internal/views"
)

func (m Model) handleFocusKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.deps.Timer == nil {
		return m, nil
	}
	switch msg.String() {
	case " ":
		if m.deps.Timer.State().Running {
			if err := m.deps.Timer.Pause(); err != nil {
				m.setError(err)
				return m, nil
			}
			m.Status = StatusBar{Text: "focus paused"}
			return m, nil
		}
		return m.startTimer()
	case "s":
		if err := m.deps.Timer.Stop(); err != nil {
			m.setError(err)
			return m, nil
		}
		m.Focus.LastAlarm = ""
		m.Status = StatusBar{Text: "timer reset"}
	case "p":
		if err := m.deps.Timer.StartPomodoro(); err != nil {
			m.setError(err)
			return m, m.tickIfRunning()
		}
		m.Focus.LastAlarm = ""
		m.Status = StatusBar{Text: "pomodoro started"}
		return m, timerTickCmd()
	case "n":
		if err := m.deps.Timer.NextPhase(); err != nil {
			m.setError(err)
			return m, nil
		}
		m.Focus.LastAlarm = ""
		m.Status = StatusBar{Text: string(m.deps.Timer.State().Phase) + " ready"}
	}
	return m, nil
}

func (m Model) startTimer() (Model, tea.Cmd) {
	if err := m.deps.Timer.Start(); err != nil {
		m.setError(err)
		return m, m.tickIfRunning()
	}
	m.Focus.LastAlarm = ""
	m.Status = StatusBar{Text: "focus running"}
	return m, timerTickCmd()
}

// tickIfRunning keeps the display counting when the timer started but its
// alarm could not be armed.
func (m Model) tickIfRunning() tea.Cmd {
	if m.deps.Timer.State().Running {
		return timerTickCmd()
	}
	return nil
}

// setTimer arms a countdown of minutes. Zero switches to the stopwatch.
func (m Model) setTimer(minutes int) error {
	return m.deps.Timer.Set(minutes/60, minutes%60, 0)
}

func (m Model) onTimerTick() (tea.Model, tea.Cmd) {
	if m.deps.Timer == nil || !m.deps.Timer.State().Running {
		return m, nil
	}
	if m.deps.Timer.Tick() {
		m.Focus.LastAlarm = timer.AlarmLabel
		m.Status = StatusBar{Text: timer.AlarmLabel}
		return m, nil
	}
	return m, timerTickCmd()
}

func (m Model) onAlarm(alarm scheduler.Alarm) Model {
	m.Focus.LastAlarm = alarm.Label
	m.Status = StatusBar{Text: alarm.Label}
	return m
}

func timerTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return TimerTickMsg{} })
}

func waitForAlarmCmd(ch <-chan scheduler.Alarm) tea.Cmd {
	return func() tea.Msg {
		alarm, ok := <-ch
		if !ok {
			return nil
		}
		return AlarmMsg{Alarm: alarm}
	}
}

func (m Model) renderFocusView() string {
	if m.deps.Timer == nil {
		return "focus:\n(timer unavailable)"
	}
	st := m.deps.Timer.State()
	data := views.FocusPanelData{
		Mode:               string(st.Mode),
		Phase:              string(st.Phase),
		Timer:              timer.Format(st.Seconds),
		Running:            st.Running,
		CompletedPomodoros: st.CompletedPomodoros,
		LastAlarm:          m.Focus.LastAlarm,
	}
	if st.Mode == timer.ModeCountdown && st.Duration > 0 {
		elapsed := float64(st.Duration-st.Seconds) / float64(st.Duration)
		data.ProgressView = m.focusProgress.ViewAs(elapsed)
	}
	return views.RenderFocusPanel(data)
}
