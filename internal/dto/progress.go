package dto

import "github.com/noah-isme/academy-api/internal/models"

// CourseSummary exposes the public course fields alongside an enrollment.
type CourseSummary struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Slug       string            `json:"slug"`
	CourseType models.CourseType `json:"course_type"`
}

// CourseView is the student's view of an enrolled course.
type CourseView struct {
	Enrollment    *models.Enrollment      `json:"enrollment"`
	Course        CourseSummary           `json:"course"`
	ContentLocked bool                    `json:"content_locked"`
	Topics        []models.CanonicalTopic `json:"topics"`
	Progress      []models.TopicProgress  `json:"progress"`
	Summary       *models.ProgressSummary `json:"summary,omitempty"`
}

// TopicProgressResponse is returned after a topic is started or completed.
type TopicProgressResponse struct {
	Progress *models.TopicProgress  `json:"progress"`
	Summary  models.ProgressSummary `json:"summary"`
}
