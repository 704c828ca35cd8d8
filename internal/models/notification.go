package models

// NotificationType enumerates student-facing enrollment notifications.
type NotificationType string

const (
	NotificationPaymentPending  NotificationType = "payment_pending"
	NotificationPaymentVerified NotificationType = "payment_verified"
	NotificationPaymentRejected NotificationType = "payment_rejected"
)

// EnrollmentNotification is the queued payload for an enrollment email.
type EnrollmentNotification struct {
	Type         NotificationType `json:"type"`
	UserID       string           `json:"user_id"`
	CourseID     string           `json:"course_id"`
	EnrollmentID string           `json:"enrollment_id"`
	Reason       string           `json:"reason,omitempty"`
}
