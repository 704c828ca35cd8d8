package models

import "time"

// ProgressStatus tracks a single topic within an enrollment.
type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

// TopicProgress is one row of enrollment_topic_progress.
type TopicProgress struct {
	ID           string         `db:"id" json:"id"`
	EnrollmentID string         `db:"enrollment_id" json:"enrollment_id"`
	TopicIndex   int            `db:"topic_index" json:"topic_index"`
	TopicKey     *string        `db:"topic_key" json:"topic_key,omitempty"`
	Status       ProgressStatus `db:"status" json:"status"`
	LastViewedAt *time.Time     `db:"last_viewed_at" json:"last_viewed_at,omitempty"`
	CompletedAt  *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	Notes        *string        `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// SyncResult counts the rows touched by a progress sync.
type SyncResult struct {
	Created int `json:"created"`
	Renamed int `json:"renamed"`
	Pruned  int `json:"pruned"`
}

// Changed reports whether the sync touched any row.
func (r SyncResult) Changed() bool {
	return r.Created+r.Renamed+r.Pruned > 0
}

// ProgressSummary is derived from the progress rows of one enrollment.
type ProgressSummary struct {
	CompletedCount  int  `json:"completed_count"`
	InProgressCount int  `json:"in_progress_count"`
	TopicCount      int  `json:"topic_count"`
	PercentComplete int  `json:"percent_complete"`
	NextTopicIndex  *int `json:"next_topic_index"`
}
