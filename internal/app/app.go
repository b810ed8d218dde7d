// Package app wires configuration, storage and services into the terminal
// UI and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/mooncove/internal/account"
	"github.com/sandeepkv93/mooncove/internal/api"
	"github.com/sandeepkv93/mooncove/internal/backend"
	"github.com/sandeepkv93/mooncove/internal/config"
	"github.com/sandeepkv93/mooncove/internal/puzzle"
	"github.com/sandeepkv93/mooncove/internal/report"
	"github.com/sandeepkv93/mooncove/internal/scheduler"
	"github.com/sandeepkv93/mooncove/internal/sessions"
	"github.com/sandeepkv93/mooncove/internal/timer"
	"github.com/sandeepkv93/mooncove/internal/update"
)

const (
	revealBuffer  = 16
	flushInterval = 30 * time.Second
)

// Workspace is everything one signed in user works with.
type Workspace struct {
	Sessions *sessions.Store
	Gallery  *puzzle.Tracker
	// Reveals receives pieces unlocked by session progress. Reveals are
	// dropped when nobody drains it.
	Reveals <-chan puzzle.Result
}

type Options struct {
	Config config.Config
	Logger *zap.Logger
	// Backend and Blobs replace the configured ones when set.
	Backend backend.Backend
	Blobs   backend.BlobStore
	Now     func() time.Time
}

type App struct {
	Config   config.Config
	Log      *zap.Logger
	Backend  backend.Backend
	Blobs    backend.BlobStore
	Accounts *account.Service
	Alarms   *scheduler.Engine

	now func() time.Time

	mu     sync.Mutex
	spaces map[string]*Workspace
}

func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cfg := opts.Config

	b := opts.Backend
	if b == nil {
		opened, err := OpenBackend(ctx, cfg, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("new backend: %w", err)
		}
		b = opened
	}
	blobs := opts.Blobs
	if blobs == nil {
		blobs = backend.NewFileBlobStore(afero.NewOsFs(), cfg.Blob.Root, cfg.Blob.BaseURL)
	}

	a := &App{
		Config:  cfg,
		Log:     opts.Logger,
		Backend: b,
		Blobs:   blobs,
		Alarms:  scheduler.NewEngine(cfg.SchedulerBuffer),
		now:     opts.Now,
		spaces:  make(map[string]*Workspace),
	}
	a.Accounts = account.NewService(b, blobs, account.Options{
		Logger:     opts.Logger,
		NewTracker: a.newTracker,
	})
	return a, nil
}

// OpenBackend connects to the document store named by cfg.Backend.Driver.
func OpenBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (backend.Backend, error) {
	switch cfg.Backend.Driver {
	case config.DriverMemory:
		return backend.NewMemoryBackend(cfg.SchedulerBuffer), nil
	case config.DriverSQLite:
		return backend.OpenSQLite(cfg.Backend.SQLitePath, cfg.SchedulerBuffer)
	case config.DriverRedis:
		return backend.OpenRedis(ctx, backend.RedisOptions{
			Addr:     cfg.Backend.Redis.Addr,
			Password: cfg.Backend.Redis.Password,
			DB:       cfg.Backend.Redis.DB,
			Channel:  cfg.Backend.Redis.Channel,
			Buffer:   cfg.SchedulerBuffer,
			Logger:   log,
		})
	default:
		return nil, fmt.Errorf("%w: backend.driver %q", config.ErrInvalidConfig, cfg.Backend.Driver)
	}
}

func (a *App) ReportOptions() report.Options {
	return report.Options{Slots: a.Config.Report.Slots, Collapse: a.Config.Collapse()}
}

// Today is the current day in the session date layout.
func (a *App) Today() string {
	return a.now().Format(sessions.DateLayout)
}

func (a *App) newTracker(userID string) *puzzle.Tracker {
	opts := puzzle.Options{Logger: a.Log}
	if seed := a.Config.Puzzle.Seed; seed != 0 {
		opts.Rand = rand.New(rand.NewPCG(seed, seed))
	}
	return puzzle.NewTracker(a.Backend, userID, opts)
}

// Workspace returns the cached workspace of userID, building it on first
// use. Session progress is hooked to the gallery with the configured
// reveal trigger.
func (a *App) Workspace(ctx context.Context, userID string) *Workspace {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ws, ok := a.spaces[userID]; ok {
		return ws
	}
	store := sessions.NewStore(a.Backend, userID, sessions.Options{Now: a.now, Logger: a.Log})
	gallery := a.newTracker(userID)
	reveals := make(chan puzzle.Result, revealBuffer)
	store.AddListener(gallery.Listener(ctx, a.Config.Trigger(), func(res puzzle.Result) {
		select {
		case reveals <- res:
		default:
			a.Log.Debug("reveal not delivered", zap.String("user", userID), zap.String("item", res.Item.ID))
		}
	}))
	ws := &Workspace{Sessions: store, Gallery: gallery, Reveals: reveals}
	a.spaces[userID] = ws
	return ws
}

// Flush retries the pending writes of every open workspace.
func (a *App) Flush(ctx context.Context) error {
	a.mu.Lock()
	spaces := make([]*Workspace, 0, len(a.spaces))
	for _, ws := range a.spaces {
		spaces = append(spaces, ws)
	}
	a.mu.Unlock()

	var errs []error
	for _, ws := range spaces {
		if ws.Sessions.Pending() == 0 {
			continue
		}
		if err := ws.Sessions.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.Flush(ctx); err != nil {
				a.Log.Warn("flush pending writes", zap.Error(err))
			}
		}
	}
}

// NewServer builds the HTTP API over the app's workspaces.
func (a *App) NewServer(ctx context.Context) (*api.Server, error) {
	return a.newServer(ctx, nil)
}

// newServer calls opened once for every workspace the API touches.
func (a *App) newServer(ctx context.Context, opened func(*Workspace)) (*api.Server, error) {
	return api.NewServer(api.Options{
		Accounts: a.Accounts,
		Workspace: func(userID string) *api.Workspace {
			ws := a.Workspace(ctx, userID)
			if opened != nil {
				opened(ws)
			}
			return &api.Workspace{Sessions: ws.Sessions, Gallery: ws.Gallery}
		},
		Report: a.ReportOptions(),
		Logger: a.Log,
	})
}

// Serve runs the HTTP API next to the pending write retry loop until ctx
// is done. Every workspace the API opens follows remote session and
// gallery changes.
func (a *App) Serve(ctx context.Context, addr string) error {
	g, gctx := errgroup.WithContext(ctx)
	srv, err := a.newServer(gctx, func(ws *Workspace) {
		g.Go(func() error { return ignoreCanceled(ws.Sessions.Watch(gctx)) })
		g.Go(func() error { return ignoreCanceled(ws.Gallery.Watch(gctx)) })
	})
	if err != nil {
		return err
	}
	g.Go(func() error { return srv.Serve(gctx, addr) })
	g.Go(func() error { return a.flushLoop(gctx) })
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RunTUI opens the full screen UI for userID and blocks until it quits.
func (a *App) RunTUI(ctx context.Context, userID string) error {
	if _, err := a.Accounts.Get(ctx, userID); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ws := a.Workspace(ctx, userID)
	if err := ws.Sessions.LoadAll(ctx); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	a.Alarms.Start()
	defer a.Alarms.Stop()
	clock, err := timer.New(timer.Options{
		Config: timer.Config{
			WorkMinutes:  a.Config.Focus.WorkMinutes,
			BreakMinutes: a.Config.Focus.BreakMinutes,
		},
		Now:       a.now,
		Alarms:    a.Alarms,
		StatePath: a.Config.StatePath,
	})
	if err != nil {
		return fmt.Errorf("restore timer: %w", err)
	}

	sessionSub, err := a.Backend.Subscribe(ctx, backend.UserSessionsPath(userID))
	if err != nil {
		return fmt.Errorf("subscribe sessions: %w", err)
	}
	defer sessionSub.Close()
	gallerySub, err := a.Backend.Subscribe(ctx, backend.GalleryItemsPath(userID))
	if err != nil {
		return fmt.Errorf("subscribe gallery: %w", err)
	}
	defer gallerySub.Close()

	model := update.NewModel(update.Deps{
		Context:        ctx,
		Sessions:       ws.Sessions,
		Gallery:        ws.Gallery,
		Timer:          clock,
		Alarms:         a.Alarms,
		Report:         a.ReportOptions(),
		Now:            a.now,
		Logger:         a.Log,
		Reveals:        ws.Reveals,
		SessionChanges: sessionSub.C(),
		GalleryChanges: gallerySub.C(),
	})
	watchErr := make(chan error, 1)
	go func() { watchErr <- ignoreCanceled(ws.Gallery.Watch(ctx)) }()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	cancel()
	if werr := <-watchErr; werr != nil {
		a.Log.Warn("gallery watch stopped", zap.Error(werr))
	}
	if flushErr := ws.Sessions.Flush(context.WithoutCancel(ctx)); flushErr != nil {
		a.Log.Warn("pending writes left unsaved", zap.Error(flushErr))
	}
	return err
}

func (a *App) Close() error {
	a.Alarms.Stop()
	return a.Backend.Close()
}
