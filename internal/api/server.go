// Package api exposes a user's sessions, reports and gallery over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sandeepkv93/mooncove/internal/account"
	"github.com/sandeepkv93/mooncove/internal/puzzle"
	"github.com/sandeepkv93/mooncove/internal/report"
	"github.com/sandeepkv93/mooncove/internal/sessions"
)

// Workspace is the per-user state the handlers operate on.
type Workspace struct {
	Sessions *sessions.Store
	Gallery  *puzzle.Tracker
}

type Options struct {
	Accounts *account.Service
	// Workspace builds the state of one user. It is called once per user.
	Workspace func(userID string) *Workspace
	Report    report.Options
	Logger    *zap.Logger
}

type Server struct {
	accounts  *account.Service
	workspace func(userID string) *Workspace
	report    report.Options
	log       *zap.Logger

	mu     sync.Mutex
	spaces map[string]*Workspace
}

func NewServer(opts Options) (*Server, error) {
	if opts.Accounts == nil || opts.Workspace == nil {
		return nil, errors.New("api: accounts and workspace are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		accounts:  opts.Accounts,
		workspace: opts.Workspace,
		report:    opts.Report,
		log:       opts.Logger,
		spaces:    make(map[string]*Workspace),
	}, nil
}

func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.log))
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")
	{
		v1.POST("/users", s.signUp)
	}

	user := r.Group("/api/v1/users/:uid")
	user.Use(s.requireUser())
	{
		user.GET("", s.getUser)
		user.PATCH("", s.updateProfile)
		user.PUT("/avatar", s.uploadAvatar)

		user.GET("/sessions/:date", s.listSessions)
		user.POST("/sessions/:date", s.addSession)
		user.PATCH("/sessions/:date/:sid", s.renameSession)
		user.DELETE("/sessions/:date/:sid", s.deleteSession)
		user.POST("/sessions/:date/:sid/tasks", s.addTask)
		user.PATCH("/sessions/:date/:sid/tasks/:tid", s.editTask)
		user.POST("/sessions/:date/:sid/tasks/:tid/toggle", s.toggleTask)
		user.DELETE("/sessions/:date/:sid/tasks/:tid", s.deleteTask)

		user.GET("/report", s.getReport)

		user.GET("/gallery", s.listGallery)
		user.POST("/gallery/reveal", s.revealPiece)
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
}

// Serve runs the API on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("api listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) space(userID string) *Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.spaces[userID]
	if !ok {
		ws = s.workspace(userID)
		s.spaces[userID] = ws
	}
	return ws
}
