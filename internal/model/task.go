package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidStatus     = errors.New("model: invalid task status")
	ErrInvalidItemStatus = errors.New("model: invalid gallery item status")
	ErrInvalidPiece      = errors.New("model: invalid piece index")
)

type TaskStatus string

const (
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusInProgress, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// Toggled returns the other of the two task states.
func (s TaskStatus) Toggled() TaskStatus {
	if s == TaskStatusCompleted {
		return TaskStatusInProgress
	}
	return TaskStatusCompleted
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	DateCreated time.Time  `json:"date_created"`
	DateFinish  *time.Time `json:"date_finish,omitempty"`
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("model: task id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("model: task title is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	if t.DateCreated.IsZero() {
		return errors.New("model: task date_created is required")
	}
	if t.Status == TaskStatusCompleted && t.DateFinish == nil {
		return errors.New("model: date_finish is required when task is completed")
	}
	if t.Status != TaskStatusCompleted && t.DateFinish != nil {
		return errors.New("model: date_finish must be nil when task is not completed")
	}
	return nil
}

// Toggle flips the task status, stamping or clearing the finish time.
func (t *Task) Toggle(now time.Time) {
	t.Status = t.Status.Toggled()
	if t.Status == TaskStatusCompleted {
		finished := now
		t.DateFinish = &finished
		return
	}
	t.DateFinish = nil
}

// Duration is the time between creation and completion; ok is false for unfinished tasks.
func (t Task) Duration() (time.Duration, bool) {
	if t.DateFinish == nil || t.DateCreated.IsZero() {
		return 0, false
	}
	return t.DateFinish.Sub(t.DateCreated), true
}

type Session struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Tasks    map[string]Task `json:"tasks"`
	Progress int             `json:"progress"`
}

// Progress is the rounded completed percentage of tasks, 0 for an empty mapping.
func Progress(tasks map[string]Task) int {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, task := range tasks {
		if task.Status == TaskStatusCompleted {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(tasks))))
}

func (s *Session) Recompute() {
	s.Progress = Progress(s.Tasks)
}

// OrderedTasks returns tasks by creation time, then id.
func (s Session) OrderedTasks() []Task {
	out := make([]Task, 0, len(s.Tasks))
	for _, task := range s.Tasks {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateCreated.Equal(out[j].DateCreated) {
			return out[i].DateCreated.Before(out[j].DateCreated)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s Session) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("model: session id is required")
	}
	for id, task := range s.Tasks {
		if id != task.ID {
			return fmt.Errorf("model: task key %q does not match id %q", id, task.ID)
		}
		if err := task.Validate(); err != nil {
			return err
		}
	}
	if s.Progress != Progress(s.Tasks) {
		return fmt.Errorf("model: session progress %d does not match tasks (%d)", s.Progress, Progress(s.Tasks))
	}
	return nil
}
