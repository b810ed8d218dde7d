package update

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"

	"github.com/sandeepkv93/mooncove/internal/commands"
	"github.com/sandeepkv93/mooncove/internal/views"
)

type KeyBinding struct {
	Key    string
	Action string
}

type helpKeyMap struct {
	short []key.Binding
	full  [][]key.Binding
}

func (k helpKeyMap) ShortHelp() []key.Binding  { return k.short }
func (k helpKeyMap) FullHelp() [][]key.Binding { return k.full }

func (m Model) renderHelpIfVisible() string {
	if !m.HelpVisible {
		return ""
	}
	return m.renderHelpView()
}

func (m Model) renderHelpView() string {
	var md strings.Builder
	md.WriteString("**" + string(m.CurrentView) + "**\n\n")
	for _, kb := range m.viewBindings() {
		md.WriteString(fmt.Sprintf("- `%s` %s\n", kb.Key, kb.Action))
	}
	md.WriteString("\n**Commands**\n\n")
	for _, t := range commands.Types {
		md.WriteString(fmt.Sprintf("- `/%s`\n", t))
	}
	global := m.keyBindings(m.globalBindings())
	return views.RenderHelpPanel(views.HelpPanelData{
		CurrentView: string(m.CurrentView),
		Markdown:    md.String(),
		HelpView: m.helpModel.View(helpKeyMap{
			short: global,
			full:  [][]key.Binding{global},
		}),
	})
}

func (m Model) globalBindings() []KeyBinding {
	return []KeyBinding{
		{Key: m.Keys.Sessions, Action: "sessions"},
		{Key: m.Keys.Report, Action: "report"},
		{Key: m.Keys.Gallery, Action: "gallery"},
		{Key: m.Keys.Focus, Action: "focus"},
		{Key: m.Keys.Relax, Action: "relax"},
		{Key: "/", Action: "command"},
		{Key: m.Keys.Help, Action: "help"},
		{Key: m.Keys.Quit, Action: "quit"},
	}
}

func (m Model) viewBindings() []KeyBinding {
	switch m.CurrentView {
	case ViewSessions:
		return []KeyBinding{
			{Key: "h/l", Action: "previous/next day"},
			{Key: "t", Action: "today"},
			{Key: "[/]", Action: "previous/next session"},
			{Key: "j/k", Action: "move task cursor"},
			{Key: "space", Action: "toggle task"},
			{Key: "a", Action: "add task"},
			{Key: "n", Action: "new session"},
			{Key: "e", Action: "rename session"},
			{Key: "x", Action: "delete task"},
			{Key: "D", Action: "delete session"},
			{Key: "f", Action: "retry unsaved changes"},
		}
	case ViewReport:
		return []KeyBinding{
			{Key: "y/m/w", Action: "yearly/monthly/weekly"},
			{Key: "r", Action: "refresh"},
		}
	case ViewGallery:
		return []KeyBinding{
			{Key: "j/k", Action: "move picture cursor"},
			{Key: "r", Action: "reveal a piece"},
		}
	case ViewFocus:
		return []KeyBinding{
			{Key: "space", Action: "start/pause timer"},
			{Key: "s", Action: "stop and reset"},
			{Key: "p", Action: "start pomodoro"},
			{Key: "n", Action: "next phase"},
		}
	case ViewRelax:
		return []KeyBinding{
			{Key: "arrows", Action: "move"},
			{Key: "enter", Action: "pick/swap"},
			{Key: "c", Action: "toggle brightness cheat"},
			{Key: "n", Action: "next level"},
		}
	default:
		return []KeyBinding{{Key: "-", Action: "no contextual bindings"}}
	}
}

func (m Model) keyBindings(kbs []KeyBinding) []key.Binding {
	out := make([]key.Binding, 0, len(kbs))
	for _, kb := range kbs {
		out = append(out, key.NewBinding(key.WithKeys(kb.Key), key.WithHelp(kb.Key, kb.Action)))
	}
	return out
}
