package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
)

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusActive, EnrollmentStatusCompleted, EnrollmentStatusDropped:
		return true
	}
	return false
}

// Enrollment links a student to a course together with payment state.
type Enrollment struct {
	ID                    string           `db:"id" json:"id"`
	UserID                string           `db:"user_id" json:"user_id"`
	CourseID              string           `db:"course_id" json:"course_id"`
	Status                EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt            time.Time        `db:"enrolled_at" json:"enrolled_at"`
	IsPaid                bool             `db:"is_paid" json:"is_paid"`
	PaymentScreenshotPath *string          `db:"payment_screenshot_path" json:"-"`
	PaymentVerified       bool             `db:"payment_verified" json:"payment_verified"`
	PaymentVerifiedAt     *time.Time       `db:"payment_verified_at" json:"payment_verified_at,omitempty"`
	VerifiedBy            *string          `db:"verified_by" json:"verified_by,omitempty"`
	CreatedAt             time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time        `db:"updated_at" json:"updated_at"`
}

// HasScreenshot reports whether a payment proof is on file.
func (e Enrollment) HasScreenshot() bool {
	return e.PaymentScreenshotPath != nil && *e.PaymentScreenshotPath != ""
}

// EnrollmentDetail enriches Enrollment with student and course info for staff views.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string     `db:"student_name" json:"student_name"`
	StudentEmail string     `db:"student_email" json:"student_email"`
	CourseTitle  string     `db:"course_title" json:"course_title"`
	CourseType   CourseType `db:"course_type" json:"course_type"`
}

// EnrollmentFilter provides filters for the staff listing.
type EnrollmentFilter struct {
	CourseID    string
	UserID      string
	Status      EnrollmentStatus
	Verified    *bool
	PendingOnly bool
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// PaymentSubmission is the outcome of an upsert under the (user, course) lock.
type PaymentSubmission struct {
	Enrollment         *Enrollment
	PreviousScreenshot *string
	Created            bool
}

// VerificationChange reports the row after a verification mutation and whether it changed.
type VerificationChange struct {
	Enrollment *Enrollment
	Changed    bool
}
