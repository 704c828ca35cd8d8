package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-api/internal/models"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

type paymentEnrollmentRepository interface {
	SubmitPayment(ctx context.Context, userID, courseID, screenshotPath string) (*models.PaymentSubmission, error)
}

type screenshotWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

type enrollmentNotifier interface {
	Notify(ctx context.Context, n models.EnrollmentNotification) error
}

// PaymentUpload is the payment proof image received from the student.
type PaymentUpload struct {
	Filename string
	Size     int64
	Data     []byte
}

// PaymentServiceConfig bounds accepted uploads.
type PaymentServiceConfig struct {
	MaxBytes     int64
	AllowedMIMEs []string
}

// PaymentServiceParams groups constructor dependencies.
type PaymentServiceParams struct {
	Enrollments paymentEnrollmentRepository
	Courses     notificationCourseReader
	Storage     screenshotWriter
	Notifier    enrollmentNotifier
	Cache       *CacheService
	Metrics     *MetricsService
	Logger      *zap.Logger
	Config      PaymentServiceConfig
}

// PaymentService accepts payment screenshots and creates or resets enrollments.
type PaymentService struct {
	enrollments paymentEnrollmentRepository
	courses     notificationCourseReader
	storage     screenshotWriter
	notifier    enrollmentNotifier
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         PaymentServiceConfig
	now         func() time.Time
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(params PaymentServiceParams) *PaymentService {
	cfg := params.Config
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		enrollments: params.Enrollments,
		courses:     params.Courses,
		storage:     params.Storage,
		notifier:    params.Notifier,
		cache:       params.Cache,
		metrics:     params.Metrics,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Submit stores the screenshot and upserts the (user, course) enrollment.
// The image is written before the transaction and removed again if the
// transaction fails. Cleanup of the previous image and the pending
// notification happen after commit and never fail the request.
func (s *PaymentService) Submit(ctx context.Context, userID, courseID string, upload *PaymentUpload) (*models.PaymentSubmission, error) {
	courseID = strings.TrimSpace(courseID)
	contentType, err := s.validate(ctx, courseID, upload)
	if err != nil {
		return nil, err
	}

	mtype := mimetype.Lookup(contentType)
	ext := ""
	if mtype != nil {
		ext = mtype.Extension()
	}
	key := fmt.Sprintf("%s/%s/%d_%s%s", userID, courseID, s.now().UTC().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:12], ext)

	if err := s.storage.Put(ctx, key, upload.Data, contentType); err != nil {
		s.logger.Error("failed to store payment screenshot", zap.String("user_id", userID), zap.String("course_id", courseID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, appErrors.ErrStorageUnavailable.Message)
	}

	submission, err := s.enrollments.SubmitPayment(ctx, userID, courseID, key)
	if err != nil {
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Warn("failed to remove orphaned payment screenshot", zap.String("key", key), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment submission")
	}

	if prev := submission.PreviousScreenshot; prev != nil && *prev != "" && *prev != key {
		if err := s.storage.Delete(ctx, *prev); err != nil {
			s.logger.Warn("failed to delete previous payment screenshot", zap.String("key", *prev), zap.Error(err))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, models.EnrollmentNotification{
			Type:         models.NotificationPaymentPending,
			UserID:       userID,
			CourseID:     courseID,
			EnrollmentID: submission.Enrollment.ID,
		}); err != nil {
			s.logger.Warn("failed to queue payment pending notification", zap.String("enrollment_id", submission.Enrollment.ID), zap.Error(err))
		}
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, myEnrollmentsCacheKey(userID))
	}
	s.metrics.RecordPaymentSubmitted(submission.Created)
	s.logger.Info("payment screenshot submitted",
		zap.String("enrollment_id", submission.Enrollment.ID),
		zap.Bool("created", submission.Created),
	)
	return submission, nil
}

// validate checks the request before anything is written and returns the detected content type.
func (s *PaymentService) validate(ctx context.Context, courseID string, upload *PaymentUpload) (string, error) {
	var fields []appErrors.FieldError
	if courseID == "" {
		fields = append(fields, appErrors.FieldError{Field: "course_id", Message: "is required"})
	}

	contentType := ""
	switch {
	case upload == nil || len(upload.Data) == 0:
		fields = append(fields, appErrors.FieldError{Field: "payment_screenshot", Message: "is required"})
	case upload.Size > s.cfg.MaxBytes || int64(len(upload.Data)) > s.cfg.MaxBytes:
		fields = append(fields, appErrors.FieldError{Field: "payment_screenshot", Message: fmt.Sprintf("must be at most %d bytes", s.cfg.MaxBytes)})
	default:
		detected := mimetype.Detect(upload.Data)
		if !s.allowed(detected) {
			fields = append(fields, appErrors.FieldError{Field: "payment_screenshot", Message: "must be an image (" + strings.Join(s.cfg.AllowedMIMEs, ", ") + ")"})
		} else {
			contentType = detected.String()
		}
	}

	if courseID != "" {
		course, err := s.courses.FindByID(ctx, courseID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			fields = append(fields, appErrors.FieldError{Field: "course_id", Message: "course not found"})
		case err != nil:
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		case !course.Published:
			fields = append(fields, appErrors.FieldError{Field: "course_id", Message: "course is not open for enrollment"})
		}
	}

	if len(fields) > 0 {
		return "", appErrors.WithFields("invalid payment submission", fields...)
	}
	return contentType, nil
}

func (s *PaymentService) allowed(detected *mimetype.MIME) bool {
	for _, allowed := range s.cfg.AllowedMIMEs {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}
