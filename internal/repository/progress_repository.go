package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-api/internal/models"
)

const progressColumns = `id, enrollment_id, topic_index, topic_key, status, last_viewed_at, completed_at, notes, created_at, updated_at`

// ProgressRepository persists per-topic progress for enrollments.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// ListByEnrollment returns the progress rows of an enrollment ordered by topic index.
func (r *ProgressRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.TopicProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM enrollment_topic_progress WHERE enrollment_id = $1 ORDER BY topic_index`
	var rows []models.TopicProgress
	if err := r.db.SelectContext(ctx, &rows, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list topic progress: %w", err)
	}
	return rows, nil
}

// Sync reconciles the progress rows of an enrollment with the current topic
// list. keys[i] is the display key of topic i. Missing rows are created as
// not started, changed keys are refreshed without touching status, and rows
// whose index is no longer in range are deleted. The enrollment row is locked
// so concurrent syncs serialise.
func (r *ProgressRepository) Sync(ctx context.Context, enrollmentID string, keys []*string) (result models.SyncResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin progress sync: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var lockedID string
	if err = tx.GetContext(ctx, &lockedID, `SELECT id FROM enrollments WHERE id = $1 FOR UPDATE`, enrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, err
		}
		return result, fmt.Errorf("lock enrollment for sync: %w", err)
	}

	var existing []models.TopicProgress
	listQuery := `SELECT ` + progressColumns + ` FROM enrollment_topic_progress WHERE enrollment_id = $1 ORDER BY topic_index`
	if err = tx.SelectContext(ctx, &existing, listQuery, enrollmentID); err != nil {
		return result, fmt.Errorf("load topic progress: %w", err)
	}

	byIndex := make(map[int]models.TopicProgress, len(existing))
	stale := 0
	for _, row := range existing {
		if row.TopicIndex < 0 || row.TopicIndex >= len(keys) {
			stale++
			continue
		}
		byIndex[row.TopicIndex] = row
	}

	now := time.Now().UTC()
	const insertQuery = `INSERT INTO enrollment_topic_progress (id, enrollment_id, topic_index, topic_key, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (enrollment_id, topic_index) DO NOTHING`
	const renameQuery = `UPDATE enrollment_topic_progress SET topic_key = $2, updated_at = $3 WHERE id = $1`
	for idx, key := range keys {
		row, ok := byIndex[idx]
		if !ok {
			if _, err = tx.ExecContext(ctx, insertQuery, uuid.NewString(), enrollmentID, idx, key, models.ProgressNotStarted, now); err != nil {
				return result, fmt.Errorf("create topic progress %d: %w", idx, err)
			}
			result.Created++
			continue
		}
		if sameKey(row.TopicKey, key) {
			continue
		}
		if _, err = tx.ExecContext(ctx, renameQuery, row.ID, key, now); err != nil {
			return result, fmt.Errorf("refresh topic key %d: %w", idx, err)
		}
		result.Renamed++
	}

	if stale > 0 {
		const pruneQuery = `DELETE FROM enrollment_topic_progress WHERE enrollment_id = $1 AND (topic_index < 0 OR topic_index >= $2)`
		res, execErr := tx.ExecContext(ctx, pruneQuery, enrollmentID, len(keys))
		if execErr != nil {
			err = execErr
			return result, fmt.Errorf("prune topic progress: %w", err)
		}
		pruned, _ := res.RowsAffected()
		result.Pruned = int(pruned)
	}

	if err = tx.Commit(); err != nil {
		return result, fmt.Errorf("commit progress sync: %w", err)
	}
	return result, nil
}

// Mark sets the status of one topic, creating its row when absent. The row
// is locked for the update so concurrent marks cannot lose writes. Moving to
// completed stamps completed_at; other statuses keep the previous stamp.
func (r *ProgressRepository) Mark(ctx context.Context, enrollmentID string, topicIndex int, key *string, status models.ProgressStatus) (progress *models.TopicProgress, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin progress mark: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const ensureQuery = `INSERT INTO enrollment_topic_progress (id, enrollment_id, topic_index, topic_key, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (enrollment_id, topic_index) DO NOTHING`
	if _, err = tx.ExecContext(ctx, ensureQuery, uuid.NewString(), enrollmentID, topicIndex, key, models.ProgressNotStarted, now); err != nil {
		return nil, fmt.Errorf("ensure topic progress: %w", err)
	}

	var current models.TopicProgress
	lockQuery := `SELECT ` + progressColumns + ` FROM enrollment_topic_progress WHERE enrollment_id = $1 AND topic_index = $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, enrollmentID, topicIndex); err != nil {
		return nil, fmt.Errorf("lock topic progress: %w", err)
	}

	completedAt := current.CompletedAt
	if status == models.ProgressCompleted {
		completedAt = &now
	}
	updateQuery := `UPDATE enrollment_topic_progress SET status = $2, last_viewed_at = $3, completed_at = $4, updated_at = $3
WHERE id = $1
RETURNING ` + progressColumns
	var updated models.TopicProgress
	if err = tx.GetContext(ctx, &updated, updateQuery, current.ID, status, now, completedAt); err != nil {
		return nil, fmt.Errorf("update topic progress: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit progress mark: %w", err)
	}
	return &updated, nil
}

func sameKey(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
