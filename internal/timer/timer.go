// Package timer is the focus timer: a countdown when a duration is set, a
// stopwatch otherwise, with pomodoro work and break phases.
package timer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sandeepkv93/mooncove/internal/scheduler"
)

const (
	AlarmID    = "focus-timer"
	AlarmLabel = "Time's up!"
)

var ErrInvalidDuration = errors.New("timer: invalid duration")

type Mode string

const (
	ModeCountdown Mode = "countdown"
	ModeStopwatch Mode = "stopwatch"
)

type Phase string

const (
	PhaseWork  Phase = "work"
	PhaseBreak Phase = "break"
)

// State is the persisted timer. Seconds counts down in countdown mode and
// up in stopwatch mode.
type State struct {
	Mode               Mode      `json:"mode"`
	Phase              Phase     `json:"phase"`
	Seconds            int       `json:"seconds"`
	Duration           int       `json:"duration"`
	Running            bool      `json:"running"`
	CompletedPomodoros int       `json:"completed_pomodoros"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Config struct {
	WorkMinutes  int
	BreakMinutes int
}

func DefaultConfig() Config {
	return Config{WorkMinutes: 25, BreakMinutes: 5}
}

type Options struct {
	Config    Config
	Now       func() time.Time
	Alarms    *scheduler.Engine
	StatePath string
}

type Timer struct {
	mu        sync.Mutex
	state     State
	cfg       Config
	now       func() time.Time
	alarms    *scheduler.Engine
	statePath string
}

// New restores the timer saved at opts.StatePath, if any. A timer that was
// running keeps counting for the time the program was closed.
func New(opts Options) (*Timer, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Config.WorkMinutes <= 0 || opts.Config.BreakMinutes <= 0 {
		opts.Config = DefaultConfig()
	}
	t := &Timer{
		cfg:       opts.Config,
		now:       opts.Now,
		alarms:    opts.Alarms,
		statePath: opts.StatePath,
		state:     State{Mode: ModeStopwatch, Phase: PhaseWork},
	}
	saved, ok, err := LoadState(opts.StatePath)
	if err != nil {
		return nil, err
	}
	if ok {
		t.state = saved
		t.catchUpLocked()
		if t.state.Running {
			if err := t.scheduleLocked(); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func (t *Timer) catchUpLocked() {
	if !t.state.Running || t.state.UpdatedAt.IsZero() {
		return
	}
	elapsed := int(t.now().Sub(t.state.UpdatedAt) / time.Second)
	if elapsed <= 0 {
		return
	}
	if t.state.Mode == ModeStopwatch {
		t.state.Seconds += elapsed
		return
	}
	t.state.Seconds -= elapsed
	if t.state.Seconds <= 0 {
		t.state.Seconds = 0
		t.state.Running = false
	}
}

func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Set selects a countdown length. Zero selects the stopwatch.
func (t *Timer) Set(hours, minutes, seconds int) error {
	if hours < 0 || minutes < 0 || seconds < 0 || minutes > 59 || seconds > 59 {
		return fmt.Errorf("%w: %dh %dm %ds", ErrInvalidDuration, hours, minutes, seconds)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	total := hours*3600 + minutes*60 + seconds
	t.state.Duration = total
	t.state.Seconds = total
	t.state.Running = false
	t.state.Mode = ModeCountdown
	if total == 0 {
		t.state.Mode = ModeStopwatch
	}
	return t.saveLocked()
}

func (t *Timer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Running {
		return nil
	}
	if t.state.Mode == ModeCountdown && t.state.Seconds <= 0 {
		if t.state.Duration <= 0 {
			t.state.Mode = ModeStopwatch
		} else {
			t.state.Seconds = t.state.Duration
		}
	}
	t.state.Running = true
	scheduleErr := t.scheduleLocked()
	if err := t.saveLocked(); err != nil {
		return err
	}
	return scheduleErr
}

func (t *Timer) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.Running {
		return nil
	}
	t.state.Running = false
	t.cancelLocked()
	return t.saveLocked()
}

// Stop resets the timer to zero and clears the selected duration.
func (t *Timer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.state.Running = false
	t.state.Seconds = 0
	t.state.Duration = 0
	t.state.Mode = ModeStopwatch
	return t.saveLocked()
}

// Tick advances a running timer by one second. It reports true when a
// countdown reaches zero.
func (t *Timer) Tick() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.Running {
		return false
	}
	if t.state.Mode == ModeStopwatch {
		t.state.Seconds++
		return false
	}
	if t.state.Seconds > 0 {
		t.state.Seconds--
	}
	if t.state.Seconds == 0 {
		t.state.Running = false
		t.cancelLocked()
		_ = t.saveLocked()
		return true
	}
	return false
}

// NextPhase moves between work and break. Finishing a work phase counts a
// pomodoro.
func (t *Timer) NextPhase() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	if t.state.Phase == PhaseBreak {
		t.state.Phase = PhaseWork
		t.state.Duration = t.cfg.WorkMinutes * 60
	} else {
		t.state.CompletedPomodoros++
		t.state.Phase = PhaseBreak
		t.state.Duration = t.cfg.BreakMinutes * 60
	}
	t.state.Mode = ModeCountdown
	t.state.Seconds = t.state.Duration
	t.state.Running = false
	return t.saveLocked()
}

// StartPomodoro arms a work countdown of the configured length.
func (t *Timer) StartPomodoro() error {
	t.mu.Lock()
	t.cancelLocked()
	t.state.Phase = PhaseWork
	t.state.Mode = ModeCountdown
	t.state.Duration = t.cfg.WorkMinutes * 60
	t.state.Seconds = t.state.Duration
	t.state.Running = false
	t.mu.Unlock()
	return t.Start()
}

// scheduleLocked arms the countdown alarm. On error the timer keeps
// running without one.
func (t *Timer) scheduleLocked() error {
	if t.alarms == nil || t.state.Mode != ModeCountdown || t.state.Seconds <= 0 {
		return nil
	}
	t.alarms.Cancel(AlarmID)
	err := t.alarms.Schedule(scheduler.Alarm{
		ID:     AlarmID,
		Label:  AlarmLabel,
		FireAt: t.now().Add(time.Duration(t.state.Seconds) * time.Second),
	})
	if err != nil {
		return fmt.Errorf("schedule alarm: %w", err)
	}
	return nil
}

func (t *Timer) cancelLocked() {
	if t.alarms != nil {
		t.alarms.Cancel(AlarmID)
	}
}

func (t *Timer) saveLocked() error {
	t.state.UpdatedAt = t.now().UTC()
	return SaveState(t.statePath, t.state)
}

// Format renders seconds as "HHh : MMm : SSs".
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02dh : %02dm : %02ds", seconds/3600, seconds%3600/60, seconds%60)
}
