package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/mooncove/internal/report"
)

type Type string

const (
	TypeAdd     Type = "add"
	TypeSession Type = "session"
	TypeRename  Type = "rename"
	TypeToggle  Type = "toggle"
	TypeDelete  Type = "delete"
	TypeReport  Type = "report"
	TypeReveal  Type = "reveal"
	TypeTimer   Type = "timer"
	TypeDate    Type = "date"
)

// Types lists every command in palette order.
var Types = []Type{TypeAdd, TypeSession, TypeRename, TypeToggle, TypeDelete, TypeReport, TypeReveal, TypeTimer, TypeDate}

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalid(format string, args ...any) error {
	return &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

type AddArgs struct {
	Title string
}

// SessionArgs starts a new session. An empty title gets the default.
type SessionArgs struct {
	Title string
}

type RenameArgs struct {
	Title string
}

// TaskArgs points at a task by its 1-based position in the selected session.
type TaskArgs struct {
	Index int
}

type ReportArgs struct {
	View report.View
}

type TimerAction string

const (
	TimerSet   TimerAction = "set"
	TimerStart TimerAction = "start"
	TimerPause TimerAction = "pause"
	TimerStop  TimerAction = "stop"
)

type TimerArgs struct {
	Action  TimerAction
	Minutes int
}

type DateArgs struct {
	// Date is YYYY-MM-DD, or an offset in days from today when Relative.
	Date     string
	Offset   int
	Relative bool
}

type Command struct {
	Type    Type
	Raw     string
	Add     *AddArgs
	Session *SessionArgs
	Rename  *RenameArgs
	Task    *TaskArgs
	Report  *ReportArgs
	Timer   *TimerArgs
	Date    *DateArgs
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]
	rest := strings.TrimSpace(strings.Join(args, " "))

	switch Type(head) {
	case TypeAdd:
		if rest == "" {
			return Command{}, invalid("add requires a title")
		}
		return Command{Type: TypeAdd, Raw: input, Add: &AddArgs{Title: rest}}, nil
	case TypeSession:
		return Command{Type: TypeSession, Raw: input, Session: &SessionArgs{Title: rest}}, nil
	case TypeRename:
		if rest == "" {
			return Command{}, invalid("rename requires a title")
		}
		return Command{Type: TypeRename, Raw: input, Rename: &RenameArgs{Title: rest}}, nil
	case TypeToggle, TypeDelete:
		return parseTask(input, Type(head), args)
	case TypeReport:
		view, err := report.ParseView(rest)
		if err != nil {
			return Command{}, invalid("report view must be yearly, monthly or weekly")
		}
		return Command{Type: TypeReport, Raw: input, Report: &ReportArgs{View: view}}, nil
	case TypeReveal:
		return Command{Type: TypeReveal, Raw: input}, nil
	case TypeTimer:
		return parseTimer(input, args)
	case TypeDate:
		return parseDate(input, args)
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseTask(raw string, typ Type, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, invalid("%s requires a task number", typ)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return Command{}, invalid("%s: task number must be a positive integer, got %q", typ, args[0])
	}
	return Command{Type: typ, Raw: raw, Task: &TaskArgs{Index: n}}, nil
}

func parseTimer(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{Type: TypeTimer, Raw: raw, Timer: &TimerArgs{Action: TimerStart}}, nil
	}
	switch action := TimerAction(strings.ToLower(args[0])); action {
	case TimerStart, TimerPause, TimerStop:
		return Command{Type: TypeTimer, Raw: raw, Timer: &TimerArgs{Action: action}}, nil
	}
	minutes, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(args[0]), "m"))
	if err != nil || minutes < 0 {
		return Command{}, invalid("timer takes minutes or start, pause, stop")
	}
	return Command{Type: TypeTimer, Raw: raw, Timer: &TimerArgs{Action: TimerSet, Minutes: minutes}}, nil
}

func parseDate(raw string, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, invalid("date requires YYYY-MM-DD, today, yesterday or tomorrow")
	}
	arg := strings.ToLower(args[0])
	switch arg {
	case "today":
		return Command{Type: TypeDate, Raw: raw, Date: &DateArgs{Relative: true}}, nil
	case "yesterday":
		return Command{Type: TypeDate, Raw: raw, Date: &DateArgs{Relative: true, Offset: -1}}, nil
	case "tomorrow":
		return Command{Type: TypeDate, Raw: raw, Date: &DateArgs{Relative: true, Offset: 1}}, nil
	}
	if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return Command{}, invalid("date offset %q is not a number", arg)
		}
		return Command{Type: TypeDate, Raw: raw, Date: &DateArgs{Relative: true, Offset: n}}, nil
	}
	if _, err := time.Parse("2006-01-02", arg); err != nil {
		return Command{}, invalid("date %q is not YYYY-MM-DD", arg)
	}
	return Command{Type: TypeDate, Raw: raw, Date: &DateArgs{Date: arg}}, nil
}

// Resolve turns the date argument into YYYY-MM-DD relative to today.
func (d DateArgs) Resolve(today time.Time) string {
	if !d.Relative {
		return d.Date
	}
	return today.AddDate(0, 0, d.Offset).Format("2006-01-02")
}
