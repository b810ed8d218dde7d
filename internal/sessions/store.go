// Package sessions keeps one user's daily work sessions in memory and
// mirrors every change to the backend.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sandeepkv93/mooncove/internal/backend"
	"github.com/sandeepkv93/mooncove/internal/model"
)

const (
	DateLayout          = "2006-01-02"
	DefaultSessionTitle = "Untitled session"
)

var (
	ErrEmptyTitle      = errors.New("sessions: title is required")
	ErrNotConfirmed    = errors.New("sessions: deletion not confirmed")
	ErrSessionNotFound = errors.New("sessions: session not found")
	ErrTaskNotFound    = errors.New("sessions: task not found")
	ErrInvalidDate     = errors.New("sessions: invalid date")
)

// PersistError reports a backend write that failed after the local state
// was already changed. The change stays in memory until Flush succeeds.
type PersistError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("sessions: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

type ConfirmFunc func(prompt string) (bool, error)

func (f ConfirmFunc) Confirm(prompt string) (bool, error) { return f(prompt) }

// ProgressChange is sent to listeners whenever a session's progress moves.
type ProgressChange struct {
	Date      string
	SessionID string
	Before    int
	After     int
	// Remote is set when the change arrived from another writer.
	Remote bool
}

type Listener func(ProgressChange)

// TaskEdit holds optional field changes. Nil fields are left alone.
type TaskEdit struct {
	Title       *string
	Description *string
}

type Options struct {
	Now    func() time.Time
	NewID  func() string
	Logger *zap.Logger
}

type sessionKey struct {
	date string
	id   string
}

type Store struct {
	backend backend.Backend
	userID  string
	now     func() time.Time
	newID   func() string
	log     *zap.Logger

	mu        sync.Mutex
	days      map[string][]model.Session
	dirty     map[sessionKey]struct{}
	listeners []Listener
}

func NewStore(b backend.Backend, userID string, opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = newID
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		backend: b,
		userID:  userID,
		now:     opts.Now,
		newID:   opts.NewID,
		log:     opts.Logger.With(zap.String("user", userID)),
		days:    make(map[string][]model.Session),
		dirty:   make(map[sessionKey]struct{}),
	}
}

// newID returns a time-ordered UUID so ids sort in creation order.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Store) UserID() string { return s.userID }

func (s *Store) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}

// Load replaces the sessions of one date with the backend copy. Sessions
// with unflushed local changes keep their local version.
func (s *Store) Load(ctx context.Context, date string) error {
	if err := ValidateDate(date); err != nil {
		return err
	}
	docs, err := s.backend.List(ctx, backend.DaySessionsPath(s.userID, date))
	if err != nil {
		return fmt.Errorf("load sessions %s: %w", date, err)
	}
	loaded := make([]model.Session, 0, len(docs))
	for path, raw := range docs {
		var sess model.Session
		if err := (backend.Snapshot{Path: path, Value: raw}).Decode(&sess); err != nil {
			s.log.Warn("skip unreadable session", zap.String("path", path), zap.Error(err))
			continue
		}
		loaded = append(loaded, normalize(sess))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceDayLocked(date, loaded)
	return nil
}

// LoadAll reads every date the user has sessions for.
func (s *Store) LoadAll(ctx context.Context) error {
	docs, err := s.backend.List(ctx, backend.UserSessionsPath(s.userID))
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	byDate := make(map[string][]model.Session)
	for path, raw := range docs {
		_, date, _, perr := backend.ParseSessionPath(path)
		if perr != nil {
			continue
		}
		var sess model.Session
		if err := (backend.Snapshot{Path: path, Value: raw}).Decode(&sess); err != nil {
			s.log.Warn("skip unreadable session", zap.String("path", path), zap.Error(err))
			continue
		}
		byDate[date] = append(byDate[date], normalize(sess))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for date := range s.days {
		if _, ok := byDate[date]; !ok {
			s.replaceDayLocked(date, nil)
		}
	}
	for date, list := range byDate {
		s.replaceDayLocked(date, list)
	}
	return nil
}

func (s *Store) replaceDayLocked(date string, loaded []model.Session) {
	merged := make([]model.Session, 0, len(loaded))
	seen := make(map[string]struct{})
	for _, sess := range loaded {
		key := sessionKey{date: date, id: sess.ID}
		if _, pending := s.dirty[key]; pending {
			continue
		}
		merged = append(merged, sess)
		seen[sess.ID] = struct{}{}
	}
	for _, sess := range s.days[date] {
		if _, pending := s.dirty[sessionKey{date: date, id: sess.ID}]; pending {
			if _, dup := seen[sess.ID]; !dup {
				merged = append(merged, sess)
			}
		}
	}
	sortSessions(merged)
	if len(merged) == 0 {
		delete(s.days, date)
		return
	}
	s.days[date] = merged
}

// Apply folds a pushed backend snapshot into memory. Remote changes win
// over local state unless the session has unflushed edits.
func (s *Store) Apply(snap backend.Snapshot) error {
	uid, date, sid, err := backend.ParseSessionPath(snap.Path)
	if err != nil {
		return err
	}
	if uid != s.userID {
		return nil
	}
	var (
		sess    model.Session
		removed = !snap.Exists()
	)
	if !removed {
		if err := snap.Decode(&sess); err != nil {
			return err
		}
		sess = normalize(sess)
	}

	s.mu.Lock()
	if _, pending := s.dirty[sessionKey{date: date, id: sid}]; pending {
		s.mu.Unlock()
		return nil
	}
	var change *ProgressChange
	idx := s.indexLocked(date, sid)
	switch {
	case removed && idx >= 0:
		s.days[date] = append(s.days[date][:idx], s.days[date][idx+1:]...)
		if len(s.days[date]) == 0 {
			delete(s.days, date)
		}
	case removed:
	case idx >= 0:
		before := s.days[date][idx].Progress
		s.days[date][idx] = sess
		if before != sess.Progress {
			change = &ProgressChange{Date: date, SessionID: sid, Before: before, After: sess.Progress, Remote: true}
		}
	default:
		s.days[date] = append(s.days[date], sess)
		sortSessions(s.days[date])
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	if change != nil {
		notify(listeners, *change)
	}
	return nil
}

// Watch applies remote session changes until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	sub, err := s.backend.Subscribe(ctx, backend.UserSessionsPath(s.userID))
	if err != nil {
		return err
	}
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := s.Apply(snap); err != nil {
				s.log.Debug("ignore session snapshot", zap.String("path", snap.Path), zap.Error(err))
			}
		}
	}
}

// Days returns a copy of the date to sessions mapping.
func (s *Store) Days() map[string][]model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]model.Session, len(s.days))
	for date, list := range s.days {
		out[date] = cloneSessions(list)
	}
	return out
}

func (s *Store) Sessions(date string) []model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSessions(s.days[date])
}

func (s *Store) Session(date, sessionID string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(date, sessionID)
	if idx < 0 {
		return model.Session{}, ErrSessionNotFound
	}
	return cloneSession(s.days[date][idx]), nil
}

// Pending reports how many sessions have changes the backend has not seen.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

func (s *Store) AddSession(ctx context.Context, date, title string) (model.Session, error) {
	if err := ValidateDate(date); err != nil {
		return model.Session{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultSessionTitle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.createLocked(date, title)
	return cloneSession(sess), s.persistLocked(ctx, date, sess)
}

func (s *Store) createLocked(date, title string) model.Session {
	sess := model.Session{ID: s.newID(), Title: title, Tasks: make(map[string]model.Task)}
	s.days[date] = append(s.days[date], sess)
	return sess
}

// AddTask appends an in-progress task. An empty sessionID creates a new
// session to hold it.
func (s *Store) AddTask(ctx context.Context, date, sessionID, title string) (model.Session, model.Task, error) {
	if err := ValidateDate(date); err != nil {
		return model.Session{}, model.Task{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Session{}, model.Task{}, ErrEmptyTitle
	}

	s.mu.Lock()
	if sessionID == "" {
		sessionID = s.createLocked(date, DefaultSessionTitle).ID
	}
	idx := s.indexLocked(date, sessionID)
	if idx < 0 {
		s.mu.Unlock()
		return model.Session{}, model.Task{}, ErrSessionNotFound
	}
	task := model.Task{
		ID:          s.newID(),
		Title:       title,
		Status:      model.TaskStatusInProgress,
		DateCreated: s.now().UTC(),
	}
	change, sess, err := s.mutateLocked(ctx, date, idx, func(sess *model.Session) {
		sess.Tasks[task.ID] = task
	})
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, change...)
	return sess, task, err
}

func (s *Store) ToggleStatus(ctx context.Context, date, sessionID, taskID string) (model.Task, error) {
	var toggled model.Task
	err := s.withTask(ctx, date, sessionID, taskID, func(task *model.Task) error {
		task.Toggle(s.now().UTC())
		toggled = *task
		return nil
	})
	return toggled, err
}

func (s *Store) EditTask(ctx context.Context, date, sessionID, taskID string, edit TaskEdit) (model.Task, error) {
	var title string
	if edit.Title != nil {
		title = strings.TrimSpace(*edit.Title)
		if title == "" {
			return model.Task{}, ErrEmptyTitle
		}
	}
	var edited model.Task
	err := s.withTask(ctx, date, sessionID, taskID, func(task *model.Task) error {
		if edit.Title != nil {
			task.Title = title
		}
		if edit.Description != nil {
			task.Description = strings.TrimSpace(*edit.Description)
		}
		edited = *task
		return nil
	})
	return edited, err
}

func (s *Store) DeleteTask(ctx context.Context, date, sessionID, taskID string) error {
	s.mu.Lock()
	idx := s.indexLocked(date, sessionID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if _, ok := s.days[date][idx].Tasks[taskID]; !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	change, _, err := s.mutateLocked(ctx, date, idx, func(sess *model.Session) {
		delete(sess.Tasks, taskID)
	})
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, change...)
	return err
}

func (s *Store) RenameSession(ctx context.Context, date, sessionID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(date, sessionID)
	if idx < 0 {
		return ErrSessionNotFound
	}
	_, _, err := s.mutateLocked(ctx, date, idx, func(sess *model.Session) {
		sess.Title = title
	})
	return err
}

// DeleteSession removes a session after the confirmer agrees. A nil
// confirmer never agrees.
func (s *Store) DeleteSession(ctx context.Context, date, sessionID string, confirm Confirmer) error {
	s.mu.Lock()
	idx := s.indexLocked(date, sessionID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	title := s.days[date][idx].Title
	s.mu.Unlock()

	if confirm == nil {
		return ErrNotConfirmed
	}
	ok, err := confirm.Confirm(fmt.Sprintf("Delete session %q?", title))
	if err != nil {
		return fmt.Errorf("confirm delete: %w", err)
	}
	if !ok {
		return ErrNotConfirmed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx = s.indexLocked(date, sessionID)
	if idx < 0 {
		return ErrSessionNotFound
	}
	s.days[date] = append(s.days[date][:idx], s.days[date][idx+1:]...)
	if len(s.days[date]) == 0 {
		delete(s.days, date)
	}
	return s.removeLocked(ctx, date, sessionID)
}

// Flush retries every pending write. It stops at the first failure.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]sessionKey, 0, len(s.dirty))
	for key := range s.dirty {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].id < keys[j].id
	})
	for _, key := range keys {
		var err error
		if idx := s.indexLocked(key.date, key.id); idx >= 0 {
			err = s.persistLocked(ctx, key.date, s.days[key.date][idx])
		} else {
			err = s.removeLocked(ctx, key.date, key.id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) withTask(ctx context.Context, date, sessionID, taskID string, fn func(*model.Task) error) error {
	s.mu.Lock()
	idx := s.indexLocked(date, sessionID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	task, ok := s.days[date][idx].Tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	if err := fn(&task); err != nil {
		s.mu.Unlock()
		return err
	}
	change, _, err := s.mutateLocked(ctx, date, idx, func(sess *model.Session) {
		sess.Tasks[taskID] = task
	})
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, change...)
	return err
}

// mutateLocked edits a copy of the session, installs it, recomputes
// progress and persists the whole session document.
func (s *Store) mutateLocked(ctx context.Context, date string, idx int, fn func(*model.Session)) ([]ProgressChange, model.Session, error) {
	sess := cloneSession(s.days[date][idx])
	before := sess.Progress
	fn(&sess)
	sess.Recompute()
	s.days[date][idx] = sess

	var changes []ProgressChange
	if sess.Progress != before {
		changes = append(changes, ProgressChange{Date: date, SessionID: sess.ID, Before: before, After: sess.Progress})
	}
	return changes, cloneSession(sess), s.persistLocked(ctx, date, sess)
}

func (s *Store) persistLocked(ctx context.Context, date string, sess model.Session) error {
	key := sessionKey{date: date, id: sess.ID}
	path := backend.SessionPath(s.userID, date, sess.ID)
	if err := s.backend.Write(ctx, path, sess); err != nil {
		s.dirty[key] = struct{}{}
		s.log.Warn("persist session failed", zap.String("path", path), zap.Error(err))
		return &PersistError{Op: "write", Path: path, Err: err}
	}
	delete(s.dirty, key)
	return nil
}

func (s *Store) removeLocked(ctx context.Context, date, sessionID string) error {
	key := sessionKey{date: date, id: sessionID}
	path := backend.SessionPath(s.userID, date, sessionID)
	err := s.backend.Delete(ctx, path)
	if err != nil && !errors.Is(err, backend.ErrNotFound) {
		s.dirty[key] = struct{}{}
		s.log.Warn("delete session failed", zap.String("path", path), zap.Error(err))
		return &PersistError{Op: "delete", Path: path, Err: err}
	}
	delete(s.dirty, key)
	return nil
}

func (s *Store) indexLocked(date, sessionID string) int {
	for i, sess := range s.days[date] {
		if sess.ID == sessionID {
			return i
		}
	}
	return -1
}

func (s *Store) listenersLocked() []Listener {
	return append([]Listener(nil), s.listeners...)
}

func notify(listeners []Listener, changes ...ProgressChange) {
	for _, change := range changes {
		for _, l := range listeners {
			l(change)
		}
	}
}

// normalize makes a decoded session safe to mutate and consistent with
// its tasks.
func normalize(sess model.Session) model.Session {
	if sess.Tasks == nil {
		sess.Tasks = make(map[string]model.Task)
	}
	sess.Recompute()
	return sess
}

func sortSessions(list []model.Session) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}

func cloneSession(sess model.Session) model.Session {
	tasks := make(map[string]model.Task, len(sess.Tasks))
	for id, task := range sess.Tasks {
		tasks[id] = task
	}
	sess.Tasks = tasks
	return sess
}

func cloneSessions(list []model.Session) []model.Session {
	out := make([]model.Session, 0, len(list))
	for _, sess := range list {
		out = append(out, cloneSession(sess))
	}
	return out
}
