package puzzle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sandeepkv93/mooncove/internal/sessions"
)

// Trigger selects which progress changes earn a puzzle piece.
type Trigger string

const (
	// RevealOnCompletion rewards a session reaching 100%.
	RevealOnCompletion Trigger = "completion"
	// RevealOnChange rewards any change in session progress.
	RevealOnChange Trigger = "change"
)

var ErrInvalidTrigger = errors.New("puzzle: invalid reveal trigger")

func ParseTrigger(raw string) (Trigger, error) {
	switch tr := Trigger(strings.ToLower(strings.TrimSpace(raw))); tr {
	case RevealOnCompletion, RevealOnChange:
		return tr, nil
	case "":
		return RevealOnCompletion, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTrigger, raw)
	}
}

// Remote changes never fire; the writer that made them already revealed.
func (tr Trigger) Fires(change sessions.ProgressChange) bool {
	if change.Remote {
		return false
	}
	switch tr {
	case RevealOnChange:
		return change.Before != change.After
	default:
		return change.After == 100 && change.Before < 100
	}
}

// Listener returns a session progress listener that reveals a piece
// whenever trigger fires. With RevealOnCompletion each session pays out
// once: reopening and finishing it again earns nothing. onReveal, when
// set, sees every successful reveal.
func (t *Tracker) Listener(ctx context.Context, trigger Trigger, onReveal func(Result)) sessions.Listener {
	var (
		mu   sync.Mutex
		paid = make(map[string]struct{})
	)
	return func(change sessions.ProgressChange) {
		if !trigger.Fires(change) {
			return
		}
		if trigger != RevealOnChange {
			key := change.Date + "/" + change.SessionID
			mu.Lock()
			_, done := paid[key]
			paid[key] = struct{}{}
			mu.Unlock()
			if done {
				return
			}
		}
		res, err := t.RevealActive(ctx)
		switch {
		case errors.Is(err, ErrNoActiveItem):
			t.log.Debug("no puzzle to reveal", zap.String("session", change.SessionID))
			return
		case err != nil:
			t.log.Warn("reveal after progress failed", zap.String("session", change.SessionID), zap.Error(err))
			mu.Lock()
			delete(paid, change.Date+"/"+change.SessionID)
			mu.Unlock()
			return
		}
		if onReveal != nil {
			onReveal(res)
		}
	}
}
