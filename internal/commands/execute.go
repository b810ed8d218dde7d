package commands

import "fmt"

type Result struct {
	Message string
}

type Handlers struct {
	Add     func(AddArgs) (Result, error)
	Session func(SessionArgs) (Result, error)
	Rename  func(RenameArgs) (Result, error)
	Toggle  func(TaskArgs) (Result, error)
	Delete  func(TaskArgs) (Result, error)
	Report  func(ReportArgs) (Result, error)
	Reveal  func() (Result, error)
	Timer   func(TimerArgs) (Result, error)
	Date    func(DateArgs) (Result, error)
}

func missing(t Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", t)}
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeAdd:
		if handlers.Add == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Add(*cmd.Add)
	case TypeSession:
		if handlers.Session == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Session(*cmd.Session)
	case TypeRename:
		if handlers.Rename == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Rename(*cmd.Rename)
	case TypeToggle:
		if handlers.Toggle == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Toggle(*cmd.Task)
	case TypeDelete:
		if handlers.Delete == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Delete(*cmd.Task)
	case TypeReport:
		if handlers.Report == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Report(*cmd.Report)
	case TypeReveal:
		if handlers.Reveal == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Reveal()
	case TypeTimer:
		if handlers.Timer == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Timer(*cmd.Timer)
	case TypeDate:
		if handlers.Date == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Date(*cmd.Date)
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}
