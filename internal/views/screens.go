package views

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type TaskData struct {
	Title    string
	Done     bool
	Duration string
	Rating   string
}

type SessionData struct {
	Title        string
	Progress     int
	ProgressView string
	Tasks        []TaskData
}

type SessionsPanelData struct {
	Date            string
	Rating          string
	Sessions        []SessionData
	SessionCursor   int
	TaskCursor      int
	InputView       string
	ConfirmPrompt   string
	Pending         int
	BreakdownCounts []string
}

type BarData struct {
	Label string
	Value float64
}

type ReportPanelData struct {
	View   string
	Bars   []BarData
	Height int
}

type GalleryItemData struct {
	Image  string
	Status string
	Open   []bool
	Opened int
}

type GalleryPanelData struct {
	Items   []GalleryItemData
	Cursor  int
	Columns int
	Rows    int
}

type FocusPanelData struct {
	Mode               string
	Phase              string
	Timer              string
	Running            bool
	ProgressView       string
	CompletedPomodoros int
	LastAlarm          string
}

type SwatchData struct {
	Hex        string
	Brightness float64
}

type RelaxPanelData struct {
	Level    int
	Columns  int
	Swatches []SwatchData
	Cursor   int
	Selected int
	Cheat    bool
	Sorted   bool
}

type HelpPanelData struct {
	CurrentView string
	Markdown    string
	HelpView    string
}

var (
	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	doneStyle   = lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("8"))
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	openStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	closedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func RenderSessionsPanel(data SessionsPanelData) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("sessions: %s", data.Date))
	if data.Rating != "" {
		b.WriteString("  day: " + data.Rating)
	}
	b.WriteString("\n")
	b.WriteString("actions: [h/l]day [[/]]session [j/k]task [space]toggle [a]add [n]new [x]delete\n")
	if data.Pending > 0 {
		b.WriteString(errorStyle.Render(fmt.Sprintf("%d unsaved change(s), press [f] to retry", data.Pending)) + "\n")
	}
	if data.InputView != "" {
		b.WriteString(data.InputView + "\n")
	}
	if data.ConfirmPrompt != "" {
		b.WriteString(promptStyle.Render(data.ConfirmPrompt+" [y/n]") + "\n")
	}
	if len(data.Sessions) == 0 {
		b.WriteString("\n(no sessions, press [n] to start one)")
		return b.String()
	}
	for si, sess := range data.Sessions {
		marker := " "
		if si == data.SessionCursor {
			marker = cursorStyle.Render(">")
		}
		b.WriteString(fmt.Sprintf("\n%s %s %s %d%%\n", marker, sess.Title, sess.ProgressView, sess.Progress))
		if len(sess.Tasks) == 0 {
			b.WriteString("    (no tasks)\n")
			continue
		}
		for ti, task := range sess.Tasks {
			cursor := " "
			if si == data.SessionCursor && ti == data.TaskCursor {
				cursor = cursorStyle.Render(">")
			}
			check := "[ ]"
			title := task.Title
			if task.Done {
				check = "[x]"
				title = doneStyle.Render(title)
			}
			line := fmt.Sprintf("  %s %d. %s %s", cursor, ti+1, check, title)
			if task.Duration != "" {
				line += fmt.Sprintf(" (%s, %s)", task.Duration, task.Rating)
			}
			b.WriteString(line + "\n")
		}
	}
	if len(data.BreakdownCounts) > 0 {
		b.WriteString("\nbreakdown: " + strings.Join(data.BreakdownCounts, " | "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderReportPanel draws one vertical bar per slot. Padding slots have an
// empty label and stay blank.
func RenderReportPanel(data ReportPanelData) string {
	height := data.Height
	if height <= 0 {
		height = 10
	}
	columns := make([]string, 0, len(data.Bars))
	for _, bar := range data.Bars {
		filled := int(math.Round(bar.Value / 100 * float64(height)))
		lines := make([]string, 0, height+2)
		value := ""
		if bar.Label != "" {
			value = fmt.Sprintf("%.0f%%", bar.Value)
		}
		lines = append(lines, value)
		for row := height; row > 0; row-- {
			if bar.Label != "" && row <= filled {
				lines = append(lines, barStyle.Render("███"))
			} else {
				lines = append(lines, "   ")
			}
		}
		lines = append(lines, truncate(bar.Label, 9))
		columns = append(columns, lipgloss.NewStyle().Width(10).Align(lipgloss.Center).Render(strings.Join(lines, "\n")))
	}
	chart := lipgloss.JoinHorizontal(lipgloss.Bottom, columns...)
	return fmt.Sprintf("report: %s\nactions: [y]early [m]onthly [w]eekly\n\n%s", data.View, chart)
}

func RenderGalleryPanel(data GalleryPanelData) string {
	var b strings.Builder
	b.WriteString("gallery:\n")
	b.WriteString("actions: [j/k]picture [r]reveal a piece\n")
	if len(data.Items) == 0 {
		b.WriteString("\n(no pictures yet)")
		return b.String()
	}
	for i, item := range data.Items {
		cursor := " "
		if i == data.Cursor {
			cursor = cursorStyle.Render(">")
		}
		b.WriteString(fmt.Sprintf("%s %d. %s [%s] %d/%d\n", cursor, i+1, truncate(item.Image, 36), item.Status, item.Opened, data.Columns*data.Rows))
	}
	if data.Cursor >= 0 && data.Cursor < len(data.Items) {
		b.WriteString("\n" + RenderPuzzle(data.Items[data.Cursor].Open, data.Columns, data.Rows))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderPuzzle draws the piece mask row by row. open is indexed from zero.
func RenderPuzzle(open []bool, columns, rows int) string {
	var b strings.Builder
	for row := 0; row < rows; row++ {
		for col := 0; col < columns; col++ {
			idx := row*columns + col
			if idx < len(open) && open[idx] {
				b.WriteString(openStyle.Render("██"))
			} else {
				b.WriteString(closedStyle.Render("░░"))
			}
		}
		if row < rows-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func RenderFocusPanel(data FocusPanelData) string {
	var b strings.Builder
	b.WriteString("focus:\n")
	b.WriteString(fmt.Sprintf("mode: %s | phase: %s\n", data.Mode, strings.ToUpper(data.Phase)))
	state := "paused"
	if data.Running {
		state = "running"
	}
	b.WriteString(fmt.Sprintf("timer: %s (%s)\n", data.Timer, state))
	if data.ProgressView != "" {
		b.WriteString(data.ProgressView + "\n")
	}
	b.WriteString(fmt.Sprintf("pomodoros completed: %d\n", data.CompletedPomodoros))
	b.WriteString("actions: [space]start/pause [s]stop [p]pomodoro [n]next-phase\n")
	if data.LastAlarm != "" {
		b.WriteString(promptStyle.Render(data.LastAlarm))
	}
	return strings.TrimSpace(b.String())
}

func RenderRelaxPanel(data RelaxPanelData) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("relax: level %d\n", data.Level))
	b.WriteString("actions: [arrows]move [enter]pick/swap [c]cheat [n]next level\n\n")
	columns := data.Columns
	if columns <= 0 {
		columns = 2
	}
	for i, sw := range data.Swatches {
		label := "      "
		if data.Cheat {
			label = fmt.Sprintf("%6.1f", sw.Brightness)
		}
		style := lipgloss.NewStyle().Background(lipgloss.Color(sw.Hex)).Padding(0, 1)
		marker := "  "
		switch {
		case i == data.Cursor && i == data.Selected:
			marker = cursorStyle.Render(">*")
		case i == data.Cursor:
			marker = cursorStyle.Render("> ")
		case i == data.Selected:
			marker = cursorStyle.Render(" *")
		}
		b.WriteString(marker + style.Render(label))
		if (i+1)%columns == 0 {
			b.WriteString("\n")
		} else {
			b.WriteString("  ")
		}
	}
	if data.Sorted {
		b.WriteString("\nsorted! press [n] for the next level")
	}
	return strings.TrimRight(b.String(), "\n")
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return fmt.Sprintf("command: %s", input)
}

func RenderHelpPanel(data HelpPanelData) string {
	return fmt.Sprintf("help (%s):\n%s\n%s",
		strings.ToLower(data.CurrentView),
		RenderMarkdown(data.Markdown),
		data.HelpView,
	)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
