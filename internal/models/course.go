package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// CourseType discriminates how a course is delivered.
type CourseType string

const (
	CourseTypeSelfPaced CourseType = "self_paced"
	CourseTypeGuided    CourseType = "guided"
)

// Course is the read-only catalogue entry a student enrolls into.
// Topics holds the raw syllabus exactly as authored.
type Course struct {
	ID         string         `db:"id" json:"id"`
	Title      string         `db:"title" json:"title"`
	Slug       string         `db:"slug" json:"slug"`
	CourseType CourseType     `db:"course_type" json:"course_type"`
	Topics     types.JSONText `db:"topics" json:"-"`
	Published  bool           `db:"published" json:"published"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// IsSelfPaced reports whether per-topic progress applies to the course.
func (c Course) IsSelfPaced() bool {
	return c.CourseType == CourseTypeSelfPaced
}
