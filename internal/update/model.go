// Package update is the terminal UI: a bubbletea model over the session
// store, the report, the puzzle gallery, the focus timer and the relax game.
package update

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"go.uber.org/zap"

	"github.com/sandeepkv93/mooncove/internal/backend"
	"github.com/sandeepkv93/mooncove/internal/colorsort"
	"github.com/sandeepkv93/mooncove/internal/model"
	"github.com/sandeepkv93/mooncove/internal/puzzle"
	"github.com/sandeepkv93/mooncove/internal/report"
	"github.com/sandeepkv93/mooncove/internal/scheduler"
	"github.com/sandeepkv93/mooncove/internal/sessions"
	"github.com/sandeepkv93/mooncove/internal/timer"
)

type View string

const (
	ViewSessions View = "Sessions"
	ViewReport   View = "Report"
	ViewGallery  View = "Gallery"
	ViewFocus    View = "Focus"
	ViewRelax    View = "Relax"
)

var Views = []View{ViewSessions, ViewReport, ViewGallery, ViewFocus, ViewRelax}

type StatusBar struct {
	Text    string
	IsError bool
}

type GlobalKeyMap struct {
	Sessions string
	Report   string
	Gallery  string
	Focus    string
	Relax    string
	Help     string
	Quit     string
}

type InputMode string

const (
	InputNone       InputMode = ""
	InputAddTask    InputMode = "add task"
	InputAddSession InputMode = "new session"
	InputRename     InputMode = "rename session"
)

type CommandPaletteState struct {
	Active bool
	Input  string
}

// Deps are the services the UI drives. Only Sessions is required.
type Deps struct {
	Context  context.Context
	Sessions *sessions.Store
	Gallery  *puzzle.Tracker
	Timer    *timer.Timer
	Alarms   *scheduler.Engine
	Report   report.Options
	Rand     *rand.Rand
	Now      func() time.Time
	Logger   *zap.Logger
	// Reveals carries pieces unlocked by session progress.
	Reveals <-chan puzzle.Result
	// SessionChanges and GalleryChanges carry backend pushes.
	SessionChanges <-chan backend.Snapshot
	GalleryChanges <-chan backend.Snapshot
}

type SessionsState struct {
	Date          string
	SessionCursor int
	TaskCursor    int
	Input         InputMode
	// ConfirmDelete holds the id of the session waiting for a yes/no.
	ConfirmDelete string
	ConfirmPrompt string
}

type ReportState struct {
	View report.View
	Bars []report.Bar
}

type GalleryState struct {
	Items      []model.GalleryItem
	Cursor     int
	LastReveal *puzzle.Result
}

type FocusState struct {
	LastAlarm string
}

type RelaxState struct {
	Game   *colorsort.Game
	Cursor int
}

type Model struct {
	CurrentView View
	Sessions    SessionsState
	Report      ReportState
	Gallery     GalleryState
	Focus       FocusState
	Relax       RelaxState
	Palette     CommandPaletteState
	HelpVisible bool
	Status      StatusBar
	Keys        GlobalKeyMap
	Quitting    bool
	LastError   error

	deps          Deps
	ctx           context.Context
	now           func() time.Time
	log           *zap.Logger
	taskInput     textinput.Model
	commandInput  textinput.Model
	focusProgress progress.Model
	syncSpinner   spinner.Model
	helpModel     help.Model
	spinnerActive bool
}

type SwitchViewMsg struct {
	View View
}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type ClearStatusMsg struct{}

type AppErrorMsg struct {
	Err error
}

type TimerTickMsg struct{}

type AlarmMsg struct {
	Alarm scheduler.Alarm
}

type RevealMsg struct {
	Result puzzle.Result
}

type SessionSnapshotMsg struct {
	Snapshot backend.Snapshot
}

type GallerySnapshotMsg struct {
	Snapshot backend.Snapshot
}

type FlushDoneMsg struct {
	Err error
}

func NewModel(deps Deps) Model {
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Rand == nil {
		seed := uint64(deps.Now().UnixNano())
		deps.Rand = rand.New(rand.NewPCG(seed, seed>>1))
	}
	m := Model{
		CurrentView: ViewSessions,
		Sessions: SessionsState{
			Date: deps.Now().Format(sessions.DateLayout),
		},
		Report: ReportState{View: report.ViewYearly},
		Relax:  RelaxState{Game: colorsort.NewGame(deps.Rand)},
		Keys: GlobalKeyMap{
			Sessions: "1",
			Report:   "2",
			Gallery:  "3",
			Focus:    "4",
			Relax:    "5",
			Help:     "?",
			Quit:     "q",
		},
		deps: deps,
		ctx:  deps.Context,
		now:  deps.Now,
		log:  deps.Logger,
	}
	m.initBubbleComponents()
	return m
}

func (m *Model) initBubbleComponents() {
	m.taskInput = textinput.New()
	m.taskInput.CharLimit = 120
	m.taskInput.Width = 40

	m.commandInput = textinput.New()
	m.commandInput.Prompt = "/"
	m.commandInput.Placeholder = "add read chapter 3"
	m.commandInput.CharLimit = 120

	m.focusProgress = progress.New(progress.WithDefaultGradient(), progress.WithWidth(30))
	m.syncSpinner = spinner.New(spinner.WithSpinner(spinner.MiniDot))
	m.helpModel = help.New()
}
