package dto

import (
	"time"

	"github.com/noah-isme/academy-api/internal/models"
)

// SubmitPaymentRequest is the multipart form accompanying a payment screenshot.
type SubmitPaymentRequest struct {
	CourseID string `form:"course_id" validate:"required"`
}

// RejectPaymentRequest carries the optional reason shown to the student.
type RejectPaymentRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// UpdateEnrollmentStatusRequest changes the lifecycle status of an enrollment.
type UpdateEnrollmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active completed dropped"`
}

// EnrollmentListQuery maps staff listing query parameters.
type EnrollmentListQuery struct {
	CourseID    string `form:"course_id"`
	UserID      string `form:"user_id"`
	Status      string `form:"status" validate:"omitempty,oneof=active completed dropped"`
	Verified    *bool  `form:"verified"`
	PendingOnly bool   `form:"pending"`
	Search      string `form:"search"`
	Page        int    `form:"page"`
	PageSize    int    `form:"page_size"`
	SortBy      string `form:"sort_by"`
	SortOrder   string `form:"sort_order"`
}

// Filter converts the query into a repository filter.
func (q EnrollmentListQuery) Filter() models.EnrollmentFilter {
	return models.EnrollmentFilter{
		CourseID:    q.CourseID,
		UserID:      q.UserID,
		Status:      models.EnrollmentStatus(q.Status),
		Verified:    q.Verified,
		PendingOnly: q.PendingOnly,
		Search:      q.Search,
		Page:        q.Page,
		PageSize:    q.PageSize,
		SortBy:      q.SortBy,
		SortOrder:   q.SortOrder,
	}
}

// EnrollmentDetailResponse is the staff view of one enrollment.
type EnrollmentDetailResponse struct {
	models.EnrollmentDetail
	HasScreenshot          bool       `json:"has_screenshot"`
	ScreenshotURL          *string    `json:"screenshot_url,omitempty"`
	ScreenshotURLExpiresAt *time.Time `json:"screenshot_url_expires_at,omitempty"`
	ContentLocked          bool       `json:"content_locked"`
}

// PaymentSubmissionResponse is returned after a payment proof upload.
type PaymentSubmissionResponse struct {
	Enrollment *models.Enrollment `json:"enrollment"`
	Created    bool               `json:"created"`
	Message    string             `json:"message"`
}

// MyEnrollment is one row of the student dashboard.
type MyEnrollment struct {
	models.Enrollment
	CourseTitle   string                  `json:"course_title"`
	CourseSlug    string                  `json:"course_slug"`
	CourseType    models.CourseType       `json:"course_type"`
	ContentLocked bool                    `json:"content_locked"`
	Progress      *models.ProgressSummary `json:"progress,omitempty"`
}
