package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-api/internal/dto"
	"github.com/noah-isme/academy-api/internal/middleware"
	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/service"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
	"github.com/noah-isme/academy-api/pkg/response"
)

const paymentScreenshotField = "payment_screenshot"

type paymentSubmitter interface {
	Submit(ctx context.Context, userID, courseID string, upload *service.PaymentUpload) (*models.PaymentSubmission, error)
}

type progressTracker interface {
	ListMine(ctx context.Context, userID string) ([]dto.MyEnrollment, bool, error)
	CourseView(ctx context.Context, userID, enrollmentID string) (*dto.CourseView, error)
	MarkTopic(ctx context.Context, userID, enrollmentID string, index int, action service.ProgressAction) (*dto.TopicProgressResponse, error)
}

// EnrollmentHandler exposes the student side of enrollments.
type EnrollmentHandler struct {
	payments       paymentSubmitter
	progress       progressTracker
	maxUploadBytes int64
}

// NewEnrollmentHandler constructs an EnrollmentHandler.
func NewEnrollmentHandler(payments paymentSubmitter, progress progressTracker, maxUploadBytes int64) *EnrollmentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 5 * 1024 * 1024
	}
	return &EnrollmentHandler{payments: payments, progress: progress, maxUploadBytes: maxUploadBytes}
}

// SubmitPayment godoc
// @Summary Submit payment proof
// @Description Upload a payment screenshot for a course. Creates the enrollment or resets verification on resubmission.
// @Tags Enrollments
// @Accept multipart/form-data
// @Produce json
// @Param course_id formData string true "Course ID"
// @Param payment_screenshot formData file true "Payment screenshot (image, max 5MB)"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /enrollments/payment [post]
func (h *EnrollmentHandler) SubmitPayment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.SubmitPaymentRequest
	_ = c.ShouldBind(&req)

	upload, err := h.readUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.payments.Submit(c.Request.Context(), claims.UserID, req.CourseID, upload)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.PaymentSubmissionResponse{
		Enrollment: result.Enrollment,
		Created:    result.Created,
		Message:    "payment proof received, awaiting verification",
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response.JSON(c, status, resp, nil)
}

func (h *EnrollmentHandler) readUpload(c *gin.Context) (*service.PaymentUpload, error) {
	header, err := c.FormFile(paymentScreenshotField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, appErrors.WithFields("invalid payment submission", appErrors.FieldError{Field: paymentScreenshotField, Message: "could not be read"})
	}
	if header.Size > h.maxUploadBytes {
		return &service.PaymentUpload{Filename: header.Filename, Size: header.Size}, nil
	}
	file, err := header.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	return &service.PaymentUpload{Filename: header.Filename, Size: header.Size, Data: data}, nil
}

// ListMine godoc
// @Summary List my enrollments
// @Description Returns the caller's enrollments with progress summaries
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/enrollments [get]
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	start := time.Now()
	items, cacheHit, err := h.progress.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, items, nil, meta)
}

// Get godoc
// @Summary Get my enrollment
// @Description Returns the course view for an owned enrollment. Topic content is withheld until payment is verified.
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /me/enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	view, err := h.progress.CourseView(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// StartTopic godoc
// @Summary Start topic
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param index path int true "Topic index"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /me/enrollments/{id}/topics/{index}/start [post]
func (h *EnrollmentHandler) StartTopic(c *gin.Context) {
	h.markTopic(c, service.ProgressActionStart)
}

// CompleteTopic godoc
// @Summary Complete topic
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param index path int true "Topic index"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /me/enrollments/{id}/topics/{index}/complete [post]
func (h *EnrollmentHandler) CompleteTopic(c *gin.Context) {
	h.markTopic(c, service.ProgressActionComplete)
}

func (h *EnrollmentHandler) markTopic(c *gin.Context, action service.ProgressAction) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	index, err := topicIndexParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.progress.MarkTopic(c.Request.Context(), claims.UserID, c.Param("id"), index, action)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
