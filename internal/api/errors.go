package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sandeepkv93/mooncove/internal/account"
	"github.com/sandeepkv93/mooncove/internal/model"
	"github.com/sandeepkv93/mooncove/internal/puzzle"
	"github.com/sandeepkv93/mooncove/internal/report"
	"github.com/sandeepkv93/mooncove/internal/sessions"
)

func statusOf(err error) int {
	var persist *sessions.PersistError
	switch {
	case errors.As(err, &persist):
		return http.StatusBadGateway
	case errors.Is(err, account.ErrUserNotFound),
		errors.Is(err, sessions.ErrSessionNotFound),
		errors.Is(err, sessions.ErrTaskNotFound),
		errors.Is(err, puzzle.ErrItemNotFound),
		errors.Is(err, puzzle.ErrNoActiveItem):
		return http.StatusNotFound
	case errors.Is(err, sessions.ErrNotConfirmed),
		errors.Is(err, puzzle.ErrItemFull),
		errors.Is(err, puzzle.ErrNotInProgress):
		return http.StatusConflict
	case errors.Is(err, sessions.ErrEmptyTitle),
		errors.Is(err, sessions.ErrInvalidDate),
		errors.Is(err, report.ErrInvalidView),
		errors.Is(err, report.ErrInvalidCollapse),
		errors.Is(err, model.ErrInvalidUser),
		errors.Is(err, account.ErrEmptyAvatar),
		errors.Is(err, account.ErrAvatarExt):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("requestID", c.GetString(requestIDKey)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
