package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/pkg/jobs"
	"github.com/noah-isme/academy-api/pkg/mailer"
)

// JobTypeEnrollmentNotification is the queue job type for student emails.
const JobTypeEnrollmentNotification = "enrollment.notification"

type notificationQueue interface {
	Register(jobType string, handler jobs.Handler)
	TryEnqueue(job jobs.Job) error
}

type notificationUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type notificationCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// NotificationServiceParams groups constructor dependencies.
type NotificationServiceParams struct {
	Queue   notificationQueue
	Users   notificationUserReader
	Courses notificationCourseReader
	Mailer  mailer.Mailer
	Metrics *MetricsService
	Logger  *zap.Logger
	Enabled bool
}

// NotificationService queues and delivers enrollment emails.
type NotificationService struct {
	queue   notificationQueue
	users   notificationUserReader
	courses notificationCourseReader
	mailer  mailer.Mailer
	metrics *MetricsService
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService constructs the service and registers its queue handler.
func NewNotificationService(params NotificationServiceParams) *NotificationService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		queue:   params.Queue,
		users:   params.Users,
		courses: params.Courses,
		mailer:  params.Mailer,
		metrics: params.Metrics,
		logger:  logger,
		enabled: params.Enabled,
	}
	if svc.queue != nil {
		svc.queue.Register(JobTypeEnrollmentNotification, svc.handle)
	}
	return svc
}

// Notify enqueues a notification. The caller has already committed its change,
// so failures are returned for logging only.
func (s *NotificationService) Notify(ctx context.Context, n models.EnrollmentNotification) error {
	if s == nil || !s.enabled || s.queue == nil {
		return nil
	}
	if err := s.queue.TryEnqueue(jobs.Job{Type: JobTypeEnrollmentNotification, Payload: n}); err != nil {
		s.metrics.RecordNotification(string(n.Type), err)
		return fmt.Errorf("enqueue %s notification: %w", n.Type, err)
	}
	return nil
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.EnrollmentNotification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	err := s.Deliver(ctx, n)
	s.metrics.RecordNotification(string(n.Type), err)
	return err
}

// Deliver renders and sends a notification synchronously.
func (s *NotificationService) Deliver(ctx context.Context, n models.EnrollmentNotification) error {
	if s.mailer == nil {
		return nil
	}
	user, err := s.users.FindByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("load notification recipient: %w", err)
	}
	course, err := s.courses.FindByID(ctx, n.CourseID)
	if err != nil {
		return fmt.Errorf("load notification course: %w", err)
	}
	msg, err := composeNotification(n, user, course)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s notification: %w", n.Type, err)
	}
	s.logger.Info("enrollment notification sent",
		zap.String("type", string(n.Type)),
		zap.String("enrollment_id", n.EnrollmentID),
	)
	return nil
}

func composeNotification(n models.EnrollmentNotification, user *models.User, course *models.Course) (mailer.Message, error) {
	msg := mailer.Message{To: mail.Address{Name: user.FullName, Address: user.Email}}
	name := user.FullName
	if name == "" {
		name = "there"
	}
	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", name)

	switch n.Type {
	case models.NotificationPaymentPending:
		msg.Subject = fmt.Sprintf("Payment received for %s", course.Title)
		fmt.Fprintf(&body, "We received your payment proof for %q. Our staff will review it shortly and you will get another email once it is verified.\n", course.Title)
	case models.NotificationPaymentVerified:
		msg.Subject = fmt.Sprintf("You're in: %s", course.Title)
		fmt.Fprintf(&body, "Your payment for %q has been verified. The course content is now unlocked.\n", course.Title)
	case models.NotificationPaymentRejected:
		msg.Subject = fmt.Sprintf("Payment not verified for %s", course.Title)
		fmt.Fprintf(&body, "We could not verify your payment for %q.\n", course.Title)
		if reason := strings.TrimSpace(n.Reason); reason != "" {
			fmt.Fprintf(&body, "\nReason: %s\n", reason)
		}
		body.WriteString("\nPlease upload a new payment screenshot from your enrollment page.\n")
	default:
		return mailer.Message{}, fmt.Errorf("unknown notification type %q", n.Type)
	}
	msg.Text = body.String()
	return msg, nil
}
