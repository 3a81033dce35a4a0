package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/table-split-app/services"
	"github.com/yeremiapane/table-split-app/utils"
	"gorm.io/gorm"
)

type SessionController struct {
	DB       *gorm.DB
	Sessions *services.SessionService
}

func NewSessionController(db *gorm.DB, sessions *services.SessionService) *SessionController {
	return &SessionController{DB: db, Sessions: sessions}
}

// ResolveOrCreate -> first diner at a table opens the session and
// becomes owner; later diners are redirected into a join request.
func (sc *SessionController) ResolveOrCreate(c *gin.Context) {
	type reqBody struct {
		RestaurantID uint `json:"restaurant_id" binding:"required"`
		TableNumber  int  `json:"table_number" binding:"required"`
	}
	var req reqBody
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	user, err := currentUser(c, sc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	view, err := sc.Sessions.ResolveOrCreate(req.RestaurantID, req.TableNumber, user)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Session resolved", view)
}

// Join -> request access to an existing session
func (sc *SessionController) Join(c *gin.Context) {
	sessionID, ok := parseUintParam(c, "session_id")
	if !ok {
		return
	}

	user, err := currentUser(c, sc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	view, err := sc.Sessions.Join(sessionID, user)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Join request recorded", view)
}

// Decide -> owner approves or rejects a pending member
func (sc *SessionController) Decide(c *gin.Context) {
	sessionID, ok := parseUintParam(c, "session_id")
	if !ok {
		return
	}
	memberID, ok := parseUintParam(c, "member_id")
	if !ok {
		return
	}

	type reqBody struct {
		Approve *bool `json:"approve" binding:"required"`
	}
	var req reqBody
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	user, err := currentUser(c, sc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	member, err := sc.Sessions.Decide(sessionID, memberID, user, *req.Approve)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Member decided", member)
}

// GetView -> polled by every pending member (~3s); strictly read-only
func (sc *SessionController) GetView(c *gin.Context) {
	sessionID, ok := parseUintParam(c, "session_id")
	if !ok {
		return
	}

	user, err := currentUser(c, sc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	view, err := sc.Sessions.GetView(sessionID, user.ID)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Session view", view)
}

// Close -> owner ends the session explicitly
func (sc *SessionController) Close(c *gin.Context) {
	sessionID, ok := parseUintParam(c, "session_id")
	if !ok {
		return
	}

	user, err := currentUser(c, sc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	if err := sc.Sessions.Close(sessionID, user); err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Session closed", gin.H{"session_id": sessionID})
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		utils.RespondError(c, http.StatusBadRequest, &CustomError{"invalid " + name})
		return 0, false
	}
	return uint(id), true
}
