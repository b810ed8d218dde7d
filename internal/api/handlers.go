package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sandeepkv93/mooncove/internal/account"
	"github.com/sandeepkv93/mooncove/internal/model"
	"github.com/sandeepkv93/mooncove/internal/report"
	"github.com/sandeepkv93/mooncove/internal/sessions"
)

type signUpRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Gender   string `json:"gender" binding:"required"`
	Bio      string `json:"bio"`
}

type profileRequest struct {
	Username *string `json:"username"`
	Gender   *string `json:"gender"`
	Bio      *string `json:"bio"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type taskEditRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type dayResponse struct {
	Date      string          `json:"date"`
	Sessions  []model.Session `json:"sessions"`
	Breakdown []report.Slice  `json:"breakdown"`
	Rating    report.Category `json:"rating,omitempty"`
}

func (s *Server) signUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.accounts.SignUp(c.Request.Context(), account.SignUp{
		Username: req.Username,
		Email:    req.Email,
		Gender:   req.Gender,
		Bio:      req.Bio,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) getUser(c *gin.Context) {
	user, err := s.accounts.Get(c.Request.Context(), c.Param("uid"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) updateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.accounts.UpdateProfile(c.Request.Context(), c.Param("uid"), account.ProfileUpdate{
		Username: req.Username,
		Gender:   req.Gender,
		Bio:      req.Bio,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) listSessions(c *gin.Context) {
	ws := workspaceOf(c)
	date := c.Param("date")
	if err := ws.Sessions.Load(c.Request.Context(), date); err != nil {
		s.fail(c, err)
		return
	}
	list := ws.Sessions.Sessions(date)
	resp := dayResponse{
		Date:      date,
		Sessions:  list,
		Breakdown: report.Breakdown(report.SessionTasks(list)),
	}
	if rating, ok := report.DayRating(list); ok {
		resp.Rating = rating
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) addSession(c *gin.Context) {
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := workspaceOf(c).Sessions.AddSession(c.Request.Context(), c.Param("date"), req.Title)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) renameSession(c *gin.Context) {
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ws := workspaceOf(c)
	date, sid := c.Param("date"), c.Param("sid")
	if err := ws.Sessions.RenameSession(c.Request.Context(), date, sid, req.Title); err != nil {
		s.fail(c, err)
		return
	}
	sess, err := ws.Sessions.Session(date, sid)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// deleteSession needs confirm=true, standing in for the interactive prompt.
func (s *Server) deleteSession(c *gin.Context) {
	confirmed := strings.EqualFold(c.Query("confirm"), "true")
	confirm := sessions.ConfirmFunc(func(string) (bool, error) { return confirmed, nil })
	if err := workspaceOf(c).Sessions.DeleteSession(c.Request.Context(), c.Param("date"), c.Param("sid"), confirm); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addTask(c *gin.Context) {
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, task, err := workspaceOf(c).Sessions.AddTask(c.Request.Context(), c.Param("date"), c.Param("sid"), req.Title)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task, "progress": sess.Progress})
}

func (s *Server) editTask(c *gin.Context) {
	var req taskEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := workspaceOf(c).Sessions.EditTask(c.Request.Context(), c.Param("date"), c.Param("sid"), c.Param("tid"),
		sessions.TaskEdit{Title: req.Title, Description: req.Description})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) toggleTask(c *gin.Context) {
	ws := workspaceOf(c)
	date, sid := c.Param("date"), c.Param("sid")
	task, err := ws.Sessions.ToggleStatus(c.Request.Context(), date, sid, c.Param("tid"))
	if err != nil {
		s.fail(c, err)
		return
	}
	sess, err := ws.Sessions.Session(date, sid)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task, "progress": sess.Progress})
}

func (s *Server) deleteTask(c *gin.Context) {
	if err := workspaceOf(c).Sessions.DeleteTask(c.Request.Context(), c.Param("date"), c.Param("sid"), c.Param("tid")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getReport(c *gin.Context) {
	view, err := report.ParseView(c.Query("view"))
	if err != nil {
		s.fail(c, err)
		return
	}
	opts := s.report
	if raw := c.Query("collapse"); raw != "" {
		if opts.Collapse, err = report.ParseCollapse(raw); err != nil {
			s.fail(c, err)
			return
		}
	}
	ws := workspaceOf(c)
	if err := ws.Sessions.LoadAll(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	bars, err := report.Aggregate(ws.Sessions.Days(), view, opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": view, "bars": bars})
}

func (s *Server) listGallery(c *gin.Context) {
	items, err := workspaceOf(c).Gallery.Items(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) revealPiece(c *gin.Context) {
	res, err := workspaceOf(c).Gallery.RevealActive(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item":      res.Item,
		"piece":     res.Piece,
		"completed": res.Completed,
		"promoted":  res.Promoted,
	})
}

func (s *Server) uploadAvatar(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.accounts.UploadAvatar(c.Request.Context(), c.Param("uid"), data, avatarExt(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func avatarExt(c *gin.Context) string {
	if ext := c.Query("ext"); ext != "" {
		return ext
	}
	switch c.ContentType() {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}
