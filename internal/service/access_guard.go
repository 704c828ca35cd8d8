package service

import (
	"github.com/noah-isme/academy-api/internal/models"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

// IsContentLocked reports whether topic content must be withheld. Both the
// paid and verified flags are required to unlock.
func IsContentLocked(enrollment *models.Enrollment) bool {
	if enrollment == nil {
		return true
	}
	return !(enrollment.PaymentVerified && enrollment.IsPaid)
}

// AuthorizeProgressMutation gates start and complete actions.
func AuthorizeProgressMutation(enrollment *models.Enrollment, course *models.Course) error {
	if course == nil || !course.IsSelfPaced() {
		return appErrors.ErrCourseNotSelfPaced
	}
	if IsContentLocked(enrollment) {
		return appErrors.ErrContentLocked
	}
	return nil
}
