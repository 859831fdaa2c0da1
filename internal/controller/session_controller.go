package controller

import (
	"errors"
	"safetrain_backend/internal/repository"
	"safetrain_backend/internal/service"
	"safetrain_backend/internal/util"
	"time"

	"github.com/gin-gonic/gin"
)

type SessionController struct {
	hub           *service.SessionHub
	courseService *service.CourseService
	sessionRepo   *repository.SessionRepository
}

func NewSessionController(hub *service.SessionHub, courseService *service.CourseService, sessionRepo *repository.SessionRepository) *SessionController {
	return &SessionController{hub: hub, courseService: courseService, sessionRepo: sessionRepo}
}

type OpenSessionRequest struct {
	CourseID      uint `json:"courseId" binding:"required"`
	ExpiryMinutes int  `json:"expiryMinutes"`
}

// OpenSession godoc
// @Summary Open a live training session against the published course version
// @Description Snapshots the course title and total duration, issues the
// QR token and starts accepting attendee submissions until expiry.
// @Tags sessions
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body OpenSessionRequest true "course and expiry window"
// @Success 201 {object} util.Response
// @Router /api/sessions [post]
func (c *SessionController) OpenSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req OpenSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	course, version, err := c.courseService.GetPublishedVersion(req.CourseID)
	if err != nil {
		if errors.Is(err, util.ErrCourseNotFound) || errors.Is(err, util.ErrCourseNotPublished) {
			util.BadRequest(ctx, err.Error())
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	session, token, err := c.hub.Open(course, version, claims.UserID, req.ExpiryMinutes)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, gin.H{
		"session": session,
		"token":   token,
	})
}

// GetSessionStats godoc
// @Summary Live attendee tally for an open session
// @Tags sessions
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "session id"
// @Success 200 {object} util.Response{data=model.SessionStats}
// @Router /api/sessions/{id}/stats [get]
func (c *SessionController) GetSessionStats(ctx *gin.Context) {
	stats, err := c.hub.Stats(ctx.Param("id"), time.Now())
	if err != nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, stats)
}

// CloseSession godoc
// @Summary Close a session and freeze its record
// @Description Idempotent: closing an already-closed session returns the
// existing record. Closing is allowed after token expiry.
// @Tags sessions
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "session id"
// @Success 200 {object} util.Response{data=model.SessionRecord}
// @Router /api/sessions/{id}/close [post]
func (c *SessionController) CloseSession(ctx *gin.Context) {
	record, err := c.hub.Close(ctx.Param("id"), time.Now())
	if err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, record)
}

// GetSessionRecord godoc
// @Summary Frozen record of a closed session for certificate/report rendering
// @Tags sessions
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "session id"
// @Success 200 {object} util.Response{data=model.SessionRecord}
// @Router /api/sessions/{id}/record [get]
func (c *SessionController) GetSessionRecord(ctx *gin.Context) {
	session, err := c.sessionRepo.FindByID(ctx.Param("id"))
	if err != nil {
		util.NotFound(ctx)
		return
	}

	record, err := service.RecordFromStored(session)
	if err != nil {
		util.Conflict(ctx, util.ErrSessionNotClosed.Error())
		return
	}

	util.Success(ctx, record)
}

// GetSession godoc
// @Summary Session detail with attendees
// @Tags sessions
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "session id"
// @Success 200 {object} util.Response{data=model.TrainingSession}
// @Router /api/sessions/{id} [get]
func (c *SessionController) GetSession(ctx *gin.Context) {
	// Prefer hub memory for open sessions, fall back to the store.
	if session, err := c.hub.Session(ctx.Param("id")); err == nil {
		util.Success(ctx, session)
		return
	}

	session, err := c.sessionRepo.FindByID(ctx.Param("id"))
	if err != nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, session)
}
