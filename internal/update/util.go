package update

import (
	"errors"

	"go.uber.org/zap"

	"github.com/sandeepkv93/mooncove/internal/account"
	"github.com/sandeepkv93/mooncove/internal/sessions"
)

// setError shows err in the status bar. A failed backend write keeps the
// local change, so the message says so.
func (m *Model) setError(err error) {
	m.LastError = err
	var persist *sessions.PersistError
	switch {
	case errors.As(err, &persist):
		m.log.Warn("backend write failed", zap.String("path", persist.Path), zap.Error(persist.Err))
		m.Status = StatusBar{Text: "saved locally, sync failed: " + persist.Err.Error(), IsError: true}
	case errors.Is(err, account.ErrUserNotFound):
		m.Status = StatusBar{Text: "user not found, please sign in again", IsError: true}
	default:
		m.Status = StatusBar{Text: err.Error(), IsError: true}
	}
}

func (m Model) viewIndex() int {
	for i, v := range Views {
		if v == m.CurrentView {
			return i
		}
	}
	return 0
}

func isKnownView(v View) bool {
	for _, known := range Views {
		if known == v {
			return true
		}
	}
	return false
}
