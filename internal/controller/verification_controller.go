package controller

import (
	"errors"
	"fmt"
	"path/filepath"
	"safetrain_backend/internal/model"
	"safetrain_backend/internal/service"
	"safetrain_backend/internal/util"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// VerificationController exposes the trainee-facing evidence capture
// steps. These routes are public: the scanned session token is the
// only credential a trainee carries.
type VerificationController struct {
	verification *service.VerificationService
	hub          *service.SessionHub
	storage      *service.StorageService
}

func NewVerificationController(verification *service.VerificationService, hub *service.SessionHub, storage *service.StorageService) *VerificationController {
	return &VerificationController{verification: verification, hub: hub, storage: storage}
}

type StartWorkflowRequest struct {
	Token string `json:"token" binding:"required"`
}

type IdentityRequest struct {
	Name        string           `json:"name"`
	Nationality string           `json:"nationality"`
	Language    string           `json:"language"`
	DeviceType  model.DeviceType `json:"deviceType"`
}

type EvidenceRefRequest struct {
	Ref string `json:"ref"`
}

type ConsentRequest struct {
	ConsentGiven bool     `json:"consentGiven"`
	GPSLatitude  *float64 `json:"gpsLatitude"`
	GPSLongitude *float64 `json:"gpsLongitude"`
}

// StartWorkflow godoc
// @Summary Start an evidence-capture workflow after scanning the session QR
// @Tags verification
// @Accept json
// @Produce json
// @Param body body StartWorkflowRequest true "scanned session token"
// @Success 201 {object} util.Response{data=service.VerificationWorkflow}
// @Router /api/verification/start [post]
func (c *VerificationController) StartWorkflow(ctx *gin.Context) {
	var req StartWorkflowRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	workflow, err := c.verification.Start(req.Token, time.Now())
	if err != nil {
		if errors.Is(err, util.ErrTokenExpired) {
			util.Gone(ctx, err.Error())
			return
		}
		util.Unauthorized(ctx)
		return
	}

	util.Created(ctx, workflow)
}

func (c *VerificationController) workflow(ctx *gin.Context) *service.VerificationWorkflow {
	workflow, err := c.verification.Get(ctx.Param("id"))
	if err != nil {
		util.NotFound(ctx)
		return nil
	}
	return workflow
}

func respondStepError(ctx *gin.Context, err error) {
	var missing *service.MissingFieldError
	if errors.As(err, &missing) {
		util.BadRequest(ctx, missing.Error())
		return
	}
	if errors.Is(err, util.ErrWorkflowFinished) {
		util.Conflict(ctx, err.Error())
		return
	}
	util.BadRequest(ctx, err.Error())
}

// SubmitIdentity godoc
// @Summary Step 1: trainee identity
// @Tags verification
// @Accept json
// @Produce json
// @Param id path string true "workflow id"
// @Param body body IdentityRequest true "name, nationality, language, device"
// @Success 200 {object} util.Response{data=service.VerificationWorkflow}
// @Router /api/verification/{id}/identity [post]
func (c *VerificationController) SubmitIdentity(ctx *gin.Context) {
	workflow := c.workflow(ctx)
	if workflow == nil {
		return
	}

	var req IdentityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := workflow.SubmitIdentity(req.Name, req.Nationality, req.Language, req.DeviceType); err != nil {
		respondStepError(ctx, err)
		return
	}
	util.Success(ctx, workflow)
}

// SubmitSelfie godoc
// @Summary Step 2: selfie capture reference
// @Tags verification
// @Accept json
// @Produce json
// @Param id path string true "workflow id"
// @Param body body EvidenceRefRequest true "selfie storage ref"
// @Success 200 {object} util.Response{data=service.VerificationWorkflow}
// @Router /api/verification/{id}/selfie [post]
func (c *VerificationController) SubmitSelfie(ctx *gin.Context) {
	workflow := c.workflow(ctx)
	if workflow == nil {
		return
	}

	var req EvidenceRefRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := workflow.SubmitSelfie(req.Ref); err != nil {
		respondStepError(ctx, err)
		return
	}
	util.Success(ctx, workflow)
}

// SubmitSignature godoc
// @Summary Step 3: signature capture reference
// @Tags verification
// @Accept json
// @Produce json
// @Param id path string true "workflow id"
// @Param body body EvidenceRefRequest true "signature storage ref"
// @Success 200 {object} util.Response{data=service.VerificationWorkflow}
// @Router /api/verification/{id}/signature [post]
func (c *VerificationController) SubmitSignature(ctx *gin.Context) {
	workflow := c.workflow(ctx)
	if workflow == nil {
		return
	}

	var req EvidenceRefRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := workflow.SubmitSignature(req.Ref); err != nil {
		respondStepError(ctx, err)
		return
	}
	util.Success(ctx, workflow)
}

// SubmitConsent godoc
// @Summary Step 4: consent and final submission
// @Description On consent the completed candidate is handed to the
// session aggregator with the token captured at scan time. A refusal is
// terminal; the trainee must restart with a fresh workflow.
// @Tags verification
// @Accept json
// @Produce json
// @Param id path string true "workflow id"
// @Param body body ConsentRequest true "consent decision, optional GPS"
// @Success 200 {object} util.Response{data=model.Attendee}
// @Router /api/verification/{id}/consent [post]
func (c *VerificationController) SubmitConsent(ctx *gin.Context) {
	workflow := c.workflow(ctx)
	if workflow == nil {
		return
	}

	var req ConsentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	now := time.Now()
	candidate, err := workflow.SubmitConsent(req.ConsentGiven, req.GPSLatitude, req.GPSLongitude, now)
	if err != nil {
		if errors.Is(err, util.ErrConsentDenied) {
			c.verification.Remove(workflow.ID)
			util.Forbidden(ctx)
			return
		}
		respondStepError(ctx, err)
		return
	}

	if err := c.hub.Accept(workflow.SessionID, candidate, workflow.TokenString(), now); err != nil {
		c.verification.Remove(workflow.ID)
		switch {
		case errors.Is(err, util.ErrTokenExpired):
			util.Gone(ctx, err.Error())
		case errors.Is(err, util.ErrSessionClosed):
			util.Conflict(ctx, err.Error())
		case errors.Is(err, util.ErrSessionNotFound):
			util.NotFound(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	c.verification.Remove(workflow.ID)
	util.Success(ctx, candidate)
}

// AbandonWorkflow godoc
// @Summary Discard an in-flight workflow
// @Tags verification
// @Produce json
// @Param id path string true "workflow id"
// @Success 200 {object} util.Response
// @Router /api/verification/{id} [delete]
func (c *VerificationController) AbandonWorkflow(ctx *gin.Context) {
	c.verification.Remove(ctx.Param("id"))
	util.Success(ctx, nil)
}

// UploadEvidence godoc
// @Summary Upload a selfie or signature image, returns its storage ref
// @Tags verification
// @Accept multipart/form-data
// @Produce json
// @Param kind path string true "selfie or signature"
// @Param file formData file true "image"
// @Success 200 {object} util.Response
// @Router /api/verification/evidence/{kind} [post]
func (c *VerificationController) UploadEvidence(ctx *gin.Context) {
	kind := ctx.Param("kind")
	if kind != "selfie" && kind != "signature" {
		util.BadRequest(ctx, "kind must be selfie or signature")
		return
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	allowed := false
	for _, e := range util.AllowedImageExtensions {
		if e == ext {
			allowed = true
			break
		}
	}
	if !allowed {
		util.BadRequest(ctx, fmt.Sprintf("unsupported image format %q", ext))
		return
	}

	src, err := file.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer src.Close()

	filename := fmt.Sprintf("evidence/%s/%s%s", kind, uuid.New().String(), ext)
	url, err := c.storage.Upload(ctx.Request.Context(), filename, src, file.Size, util.MimeImage+strings.TrimPrefix(ext, "."))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"ref": url})
}
