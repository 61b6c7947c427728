// Package jobs implements ControlAPI (C11): the thin HTTP boundary
// over JobEngine/CreditLedger/Store — estimate, confirm (POST /jobs),
// status, cancel, and the admin force-finalize override. Structured
// directly on handlers/ingest/batch_ingest.go's handler-struct +
// utils/response envelope + utils/middleware auth conventions.
package jobs

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sahilchouksey/go-init-setup/internal/apperr"
	"github.com/sahilchouksey/go-init-setup/internal/estimate"
	"github.com/sahilchouksey/go-init-setup/internal/extractor"
	"github.com/sahilchouksey/go-init-setup/internal/jobengine"
	"github.com/sahilchouksey/go-init-setup/internal/ledger"
	"github.com/sahilchouksey/go-init-setup/internal/progress"
	"github.com/sahilchouksey/go-init-setup/internal/store"
	"github.com/sahilchouksey/go-init-setup/model"
	"github.com/sahilchouksey/go-init-setup/utils/middleware"
	"github.com/sahilchouksey/go-init-setup/utils/response"
	"github.com/sahilchouksey/go-init-setup/utils/sse"
)

// BlobStore is the out-of-scope upload/storage collaborator spec.md
// section 1 declares: ControlAPI persists the uploaded file and hands
// JobEngine a reference, not raw bytes, to keep the request boundary
// thin. services/digitalocean.SpacesClient satisfies this directly.
type BlobStore interface {
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Handler is the C11 component.
type Handler struct {
	db            *gorm.DB
	store         *store.Store
	ledger        *ledger.Ledger
	engine        *jobengine.Engine
	progress      *progress.Channel
	blob          BlobStore
	extractor     extractor.TextExtractor
	monthlyGrant  int
	safetyFactor  float64
	maxUploadSize int64
}

// New constructs a Handler.
func New(db *gorm.DB, s *store.Store, l *ledger.Ledger, engine *jobengine.Engine, progressChannel *progress.Channel, blob BlobStore, ext extractor.TextExtractor, monthlyGrant int, safetyFactor float64, maxUploadSize int64) *Handler {
	return &Handler{
		db:            db,
		store:         s,
		ledger:        l,
		engine:        engine,
		progress:      progressChannel,
		blob:          blob,
		extractor:     ext,
		monthlyGrant:  monthlyGrant,
		safetyFactor:  safetyFactor,
		maxUploadSize: maxUploadSize,
	}
}

// EstimateRequest is POST /estimate's body.
type EstimateRequest struct {
	PageCount int    `json:"page_count" validate:"required,min=1"`
	Model     string `json:"model" validate:"required"`
}

// Estimate handles POST /api/v1/jobs/estimate — spec.md 6's
// `estimate(user, page_count, model)`.
func (h *Handler) Estimate(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "")
	}

	var req EstimateRequest
	if err := c.BodyParser(&req); err != nil || req.PageCount <= 0 || req.Model == "" {
		return response.Error(c, fiber.StatusBadRequest, "page_count and model are required", string(apperr.CodeInvalidInput))
	}

	rate, err := h.pricingRate(c.Context(), req.Model)
	if err != nil {
		return response.Error(c, fiber.StatusBadRequest, "unknown model", string(apperr.CodeInvalidInput))
	}

	result := estimate.Estimate(req.PageCount, req.Model, rate, h.safetyFactor)
	return response.Success(c, fiber.Map{
		"estimated_tokens":  result.EstimatedTokens,
		"estimated_credits": result.EstimatedCredits,
		"pricing_rate":      result.PricingRate,
		"model":             result.Model,
	})
}

func (h *Handler) pricingRate(ctx context.Context, modelName string) (float64, error) {
	var pr model.PricingRate
	if err := h.db.WithContext(ctx).Where("version = ? AND model = ?", currentPricingVersion, modelName).First(&pr).Error; err != nil {
		return 0, err
	}
	return pr.CreditsPer1000Tokens, nil
}

const currentPricingVersion = "v1"

// ConfirmResponse is POST /jobs's response body.
type ConfirmResponse struct {
	JobID            uint `json:"job_id"`
	EstimatedCredits int  `json:"estimated_credits"`
}

// Confirm handles POST /api/v1/jobs — multipart upload + settings,
// spec.md 6's `confirm(user, file_handle, settings)`. Validates the
// upload, ensures the monthly grant, reserves credits, creates the Job
// row, persists the PDF to blob storage, and dispatches start(job_id)
// asynchronously — mirroring services/batch_ingest_service.go's
// "create then `go s.processJob(...)`" shape.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.Error(c, fiber.StatusBadRequest, "file is required", string(apperr.CodeInvalidInput))
	}
	if fileHeader.Size == 0 || fileHeader.Size > h.maxUploadSize {
		return response.Error(c, fiber.StatusBadRequest, "file is empty or exceeds the size limit", string(apperr.CodeInvalidPDF))
	}

	modelName := c.FormValue("model")
	if modelName == "" {
		return response.Error(c, fiber.StatusBadRequest, "model is required", string(apperr.CodeInvalidInput))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.Error(c, fiber.StatusBadRequest, "could not read uploaded file", string(apperr.CodeInvalidPDF))
	}
	defer file.Close()

	content := make([]byte, fileHeader.Size)
	if _, err := file.Read(content); err != nil {
		return response.Error(c, fiber.StatusBadRequest, "could not read uploaded file", string(apperr.CodeInvalidPDF))
	}

	rate, err := h.pricingRate(c.Context(), modelName)
	if err != nil {
		return response.Error(c, fiber.StatusBadRequest, "unknown model", string(apperr.CodeInvalidInput))
	}

	pageCount, err := h.extractor.PageCount(content)
	if err != nil || pageCount == 0 {
		return response.Error(c, fiber.StatusBadRequest, "could not read PDF", string(apperr.CodeInvalidPDF))
	}

	result := estimate.Estimate(pageCount, modelName, rate, h.safetyFactor)

	monthKey := ledger.MonthKey(time.Now())
	if err := h.ledger.EnsureMonthlyGrant(c.Context(), user.ID, monthKey, h.monthlyGrant); err != nil {
		log.Printf("[JOBS] ensure_monthly_grant failed for user %d: %v", user.ID, err)
		return response.InternalServerError(c, "failed to initialize credit balance")
	}

	job := &model.Job{
		UserID:           user.ID,
		Status:           model.JobStatusPending,
		Model:            modelName,
		PricingVersion:   currentPricingVersion,
		PricingRate:      rate,
		EstimatedTokens:  result.EstimatedTokens,
		EstimatedCredits: result.EstimatedCredits,
	}
	// Job creation and the credit reserve commit (or roll back) together:
	// per spec.md:65/282, a failed reserve must leave no Job row behind,
	// so the insert can't be persisted ahead of a successful reserve.
	reserveErr := h.store.SafeCommit(c.Context(), 5, func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		return h.ledger.ReserveTx(tx, user.ID, job.ID, monthKey, result.EstimatedCredits, currentPricingVersion)
	})
	if reserveErr != nil {
		if appErr, ok := reserveErr.(*apperr.AppError); ok && appErr.Code == apperr.CodeInsufficientCredits {
			return response.Error(c, fiber.StatusPaymentRequired, appErr.Message, string(appErr.Code))
		}
		return response.InternalServerError(c, "failed to reserve credits")
	}

	key := fmt.Sprintf("jobs/%d/%s", job.ID, fileHeader.Filename)
	if _, err := h.blob.UploadBytes(c.Context(), key, content, "application/pdf"); err != nil {
		log.Printf("[JOBS] upload failed for job %d: %v", job.ID, err)
		return response.InternalServerError(c, "failed to store uploaded file")
	}
	if err := h.db.WithContext(c.Context()).Model(&model.Job{}).Where("id = ?", job.ID).
		Update("source_ref", key).Error; err != nil {
		log.Printf("[JOBS] failed to stamp blob key for job %d: %v", job.ID, err)
	}

	go func() {
		startCtx := context.Background()
		if err := h.engine.Start(startCtx, job.ID); err != nil {
			log.Printf("[JOBS] start failed for job %d: %v", job.ID, err)
		}
	}()

	return response.Created(c, ConfirmResponse{JobID: job.ID, EstimatedCredits: result.EstimatedCredits})
}

// Status handles GET /api/v1/jobs/:id — spec.md 6's `status(job_id)`.
func (h *Handler) Status(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "")
	}
	jobID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid job id")
	}
	job, err := h.store.GetJob(c.Context(), uint(jobID), true)
	if err != nil {
		return response.NotFound(c, "job not found")
	}
	if job.UserID != user.ID && user.Role != "admin" {
		return response.Forbidden(c, "")
	}
	return response.Success(c, job)
}

// Cancel handles POST /api/v1/jobs/:id/cancel — spec.md 6's
// `cancel(job_id)`.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "")
	}
	jobID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid job id")
	}
	job, err := h.store.GetJob(c.Context(), uint(jobID), false)
	if err != nil {
		return response.NotFound(c, "job not found")
	}
	if job.UserID != user.ID && user.Role != "admin" {
		return response.Forbidden(c, "")
	}
	if err := h.engine.Cancel(c.Context(), uint(jobID)); err != nil {
		if appErr, ok := err.(*apperr.AppError); ok && appErr.Code == apperr.CodeAlreadyTerminal {
			return response.Error(c, fiber.StatusConflict, appErr.Message, string(appErr.Code))
		}
		return response.InternalServerError(c, "failed to cancel job")
	}
	return response.Success(c, fiber.Map{"status": "cancelled"})
}

// Stream handles GET /api/v1/jobs/:id/stream — spec.md 6's progress
// channel: a long-lived SSE connection that sends a snapshot event
// immediately, then every subsequent progress/terminal event for the
// job, until the client disconnects. Modeled directly on
// handlers/syllabus/stream.go's SetBodyStreamWriter + utils/sse usage.
func (h *Handler) Stream(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "")
	}
	jobID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid job id")
	}
	job, err := h.store.GetJob(c.Context(), uint(jobID), false)
	if err != nil {
		return response.NotFound(c, "job not found")
	}
	if job.UserID != user.ID && user.Role != "admin" {
		return response.Forbidden(c, "")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no")

	ch := h.progress.Subscribe(uint(jobID), job)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer h.progress.Unsubscribe(uint(jobID), ch)
		for event := range ch {
			if err := sse.Send(w, sse.Event{Event: string(event.Status), Data: event}); err != nil {
				return
			}
			if event.Status == model.JobStatusCompleted || event.Status == model.JobStatusFailed || event.Status == model.JobStatusCancelled {
				return
			}
		}
	})
	return nil
}

// ForceFinalize handles POST /api/v1/admin/jobs/:id/force-finalize —
// spec.md 6's privileged `force_finalize(job_id)`.
func (h *Handler) ForceFinalize(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil || user.Role != "admin" {
		return response.Forbidden(c, "")
	}
	jobID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid job id")
	}
	if err := h.engine.ForceFinalize(c.Context(), uint(jobID)); err != nil {
		if appErr, ok := err.(*apperr.AppError); ok {
			return response.Error(c, fiber.StatusConflict, appErr.Message, string(appErr.Code))
		}
		return response.NotFound(c, "job not found")
	}
	job, _ := h.store.GetJob(c.Context(), uint(jobID), false)
	status := ""
	if job != nil {
		status = string(job.Status)
	}
	return response.Success(c, fiber.Map{"status": status})
}
