package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-api/internal/dto"
	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/repository"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

type verificationRepository interface {
	Verify(ctx context.Context, id, staffID string) (*models.VerificationChange, error)
	ClearVerification(ctx context.Context, id string) (*models.VerificationChange, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type screenshotLocator interface {
	URL(ctx context.Context, key string) (string, time.Time, error)
}

// VerificationServiceParams groups constructor dependencies.
type VerificationServiceParams struct {
	Enrollments verificationRepository
	Audit       auditWriter
	Storage     screenshotLocator
	Notifier    enrollmentNotifier
	Cache       *CacheService
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// VerificationService implements the staff side of the enrollment lifecycle.
type VerificationService struct {
	enrollments verificationRepository
	audit       auditWriter
	storage     screenshotLocator
	notifier    enrollmentNotifier
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(params VerificationServiceParams) *VerificationService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &VerificationService{
		enrollments: params.Enrollments,
		audit:       params.Audit,
		storage:     params.Storage,
		notifier:    params.Notifier,
		cache:       params.Cache,
		metrics:     params.Metrics,
		validator:   validate,
		logger:      logger,
	}
}

// List returns enrollments for staff review.
func (s *VerificationService) List(ctx context.Context, query dto.EnrollmentListQuery) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.FromValidation(err, "invalid enrollment filter")
	}
	filter := query.Filter()
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	items, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one enrollment with a time-limited link to its payment screenshot.
func (s *VerificationService) Get(ctx context.Context, id string) (*dto.EnrollmentDetailResponse, error) {
	detail, err := s.enrollments.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	resp := &dto.EnrollmentDetailResponse{
		EnrollmentDetail: *detail,
		HasScreenshot:    detail.HasScreenshot(),
		ContentLocked:    IsContentLocked(&detail.Enrollment),
	}
	if resp.HasScreenshot && s.storage != nil {
		url, expiresAt, err := s.storage.URL(ctx, *detail.PaymentScreenshotPath)
		if err != nil {
			s.logger.Warn("failed to build screenshot url", zap.String("enrollment_id", id), zap.Error(err))
		} else {
			resp.ScreenshotURL = &url
			if !expiresAt.IsZero() {
				resp.ScreenshotURLExpiresAt = &expiresAt
			}
		}
	}
	return resp, nil
}

// Verify marks the payment as verified and unlocks the course content.
// Verifying an already verified enrollment is a no-op.
func (s *VerificationService) Verify(ctx context.Context, id string, actor models.Actor) (*models.Enrollment, error) {
	change, err := s.enrollments.Verify(ctx, id, actor.UserID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		case errors.Is(err, repository.ErrScreenshotMissing):
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment has no payment screenshot to verify")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify payment")
		}
	}
	if !change.Changed {
		s.metrics.RecordVerification("unchanged")
		return change.Enrollment, nil
	}

	s.metrics.RecordVerification("verified")
	s.afterChange(ctx, change.Enrollment, actor, models.AuditActionPaymentVerify, map[string]interface{}{
		"payment_verified": true,
		"is_paid":          true,
	})
	s.notify(ctx, models.EnrollmentNotification{
		Type:         models.NotificationPaymentVerified,
		UserID:       change.Enrollment.UserID,
		CourseID:     change.Enrollment.CourseID,
		EnrollmentID: change.Enrollment.ID,
	})
	return change.Enrollment, nil
}

// Reject clears the verification flags. The screenshot stays on file.
func (s *VerificationService) Reject(ctx context.Context, id string, req dto.RejectPaymentRequest, actor models.Actor) (*models.Enrollment, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid rejection payload")
	}
	change, err := s.enrollments.ClearVerification(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject payment")
	}

	s.metrics.RecordVerification("rejected")
	s.afterChange(ctx, change.Enrollment, actor, models.AuditActionPaymentReject, map[string]interface{}{
		"payment_verified": false,
		"is_paid":          false,
		"reason":           req.Reason,
	})
	s.notify(ctx, models.EnrollmentNotification{
		Type:         models.NotificationPaymentRejected,
		UserID:       change.Enrollment.UserID,
		CourseID:     change.Enrollment.CourseID,
		EnrollmentID: change.Enrollment.ID,
		Reason:       req.Reason,
	})
	return change.Enrollment, nil
}

// UpdateStatus changes the lifecycle status of an enrollment.
func (s *VerificationService) UpdateStatus(ctx context.Context, id string, req dto.UpdateEnrollmentStatusRequest, actor models.Actor) (*models.Enrollment, error) {
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid status payload")
	}
	updated, err := s.enrollments.UpdateStatus(ctx, id, models.EnrollmentStatus(req.Status))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	s.afterChange(ctx, updated, actor, models.AuditActionEnrollmentStatus, map[string]interface{}{"status": updated.Status})
	return updated, nil
}

func (s *VerificationService) afterChange(ctx context.Context, enrollment *models.Enrollment, actor models.Actor, action string, values map[string]interface{}) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, myEnrollmentsCacheKey(enrollment.UserID))
	}
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	var userID *string
	if actor.UserID != "" {
		userID = &actor.UserID
	}
	enrollmentID := enrollment.ID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   models.AuditResourceEnrollment,
		ResourceID: &enrollmentID,
		NewValues:  payload,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record enrollment audit log", zap.String("enrollment_id", enrollmentID), zap.String("action", action), zap.Error(err))
	}
}

func (s *VerificationService) notify(ctx context.Context, n models.EnrollmentNotification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("failed to queue enrollment notification", zap.String("enrollment_id", n.EnrollmentID), zap.String("type", string(n.Type)), zap.Error(err))
	}
}
