package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-api/internal/models"
)

// ErrScreenshotMissing is returned when verifying an enrollment without payment proof.
var ErrScreenshotMissing = errors.New("enrollment has no payment screenshot")

const enrollmentColumns = `id, user_id, course_id, status, enrolled_at, is_paid, payment_screenshot_path, payment_verified, payment_verified_at, verified_by, created_at, updated_at`

const enrollmentDetailColumns = `e.id, e.user_id, e.course_id, e.status, e.enrolled_at, e.is_paid, e.payment_screenshot_path, e.payment_verified, e.payment_verified_at, e.verified_by, e.created_at, e.updated_at,
        u.full_name AS student_name, u.email AS student_email, c.title AS course_title, c.course_type`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// FindOwned returns the enrollment only when it belongs to userID.
func (r *EnrollmentRepository) FindOwned(ctx context.Context, id, userID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1 AND user_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find owned enrollment: %w", err)
	}
	return &enrollment, nil
}

// ListByUser returns every enrollment of a student, newest first.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 ORDER BY enrolled_at DESC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, userID); err != nil {
		return nil, fmt.Errorf("list user enrollments: %w", err)
	}
	return enrollments, nil
}

// List returns enrollments filtered by the provided criteria for staff review.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN users u ON u.id = e.user_id
JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("e.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Verified != nil {
		conditions = append(conditions, fmt.Sprintf("e.payment_verified = $%d", len(args)+1))
		args = append(args, *filter.Verified)
	}
	if filter.PendingOnly {
		conditions = append(conditions, "e.payment_verified = FALSE AND e.payment_screenshot_path IS NOT NULL")
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.full_name) LIKE $%d OR LOWER(u.email) LIKE $%d OR LOWER(c.title) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"updated_at":   "e.updated_at",
		"student_name": "u.full_name",
		"course_title": "c.title",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.updated_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 1000 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, enrollmentDetailColumns, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindDetailByID returns an enrollment with student and course info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := `SELECT ` + enrollmentDetailColumns + `
        FROM enrollments e
        JOIN users u ON u.id = e.user_id
        JOIN courses c ON c.id = e.course_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment detail: %w", err)
	}
	return &detail, nil
}

// SubmitPayment records a payment screenshot for the (user, course) pair.
// The pair is serialised with a transaction-scoped advisory lock so that
// concurrent first submissions cannot both insert, and an existing row is
// locked before it is reset to unverified.
func (r *EnrollmentRepository) SubmitPayment(ctx context.Context, userID, courseID, screenshotPath string) (result *models.PaymentSubmission, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const lockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err = tx.ExecContext(ctx, lockQuery, "enrollment:"+userID+":"+courseID); err != nil {
		return nil, fmt.Errorf("lock enrollment pair: %w", err)
	}

	now := time.Now().UTC()
	result = &models.PaymentSubmission{}
	var current models.Enrollment
	selectQuery := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 AND course_id = $2 FOR UPDATE`
	err = tx.GetContext(ctx, &current, selectQuery, userID, courseID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		insertQuery := `INSERT INTO enrollments (id, user_id, course_id, status, enrolled_at, is_paid, payment_screenshot_path, payment_verified, payment_verified_at, verified_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, FALSE, $6, FALSE, NULL, NULL, $5, $5)
RETURNING ` + enrollmentColumns
		var created models.Enrollment
		if err = tx.GetContext(ctx, &created, insertQuery, uuid.NewString(), userID, courseID, models.EnrollmentStatusActive, now, screenshotPath); err != nil {
			return nil, fmt.Errorf("insert enrollment: %w", err)
		}
		result.Enrollment = &created
		result.Created = true
	case err != nil:
		return nil, fmt.Errorf("lock enrollment: %w", err)
	default:
		result.PreviousScreenshot = current.PaymentScreenshotPath
		updateQuery := `UPDATE enrollments SET payment_screenshot_path = $2, payment_verified = FALSE, payment_verified_at = NULL, verified_by = NULL, is_paid = FALSE, updated_at = $3
WHERE id = $1
RETURNING ` + enrollmentColumns
		var updated models.Enrollment
		if err = tx.GetContext(ctx, &updated, updateQuery, current.ID, screenshotPath, now); err != nil {
			return nil, fmt.Errorf("update enrollment payment: %w", err)
		}
		result.Enrollment = &updated
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment submission: %w", err)
	}
	return result, nil
}

// Verify marks the payment as verified by staffID. Already verified rows are returned unchanged.
func (r *EnrollmentRepository) Verify(ctx context.Context, id, staffID string) (*models.VerificationChange, error) {
	return r.mutateVerification(ctx, id, func(tx *sqlx.Tx, current *models.Enrollment) (*models.VerificationChange, error) {
		if !current.HasScreenshot() {
			return nil, ErrScreenshotMissing
		}
		if current.PaymentVerified && current.IsPaid {
			return &models.VerificationChange{Enrollment: current}, nil
		}
		now := time.Now().UTC()
		query := `UPDATE enrollments SET payment_verified = TRUE, payment_verified_at = $2, verified_by = $3, is_paid = TRUE, updated_at = $2
WHERE id = $1
RETURNING ` + enrollmentColumns
		var updated models.Enrollment
		if err := tx.GetContext(ctx, &updated, query, id, now, staffID); err != nil {
			return nil, fmt.Errorf("verify enrollment: %w", err)
		}
		return &models.VerificationChange{Enrollment: &updated, Changed: true}, nil
	})
}

// ClearVerification resets the verification flags while keeping the screenshot on file.
func (r *EnrollmentRepository) ClearVerification(ctx context.Context, id string) (*models.VerificationChange, error) {
	return r.mutateVerification(ctx, id, func(tx *sqlx.Tx, current *models.Enrollment) (*models.VerificationChange, error) {
		changed := current.PaymentVerified || current.IsPaid || current.VerifiedBy != nil || current.PaymentVerifiedAt != nil
		now := time.Now().UTC()
		query := `UPDATE enrollments SET payment_verified = FALSE, payment_verified_at = NULL, verified_by = NULL, is_paid = FALSE, updated_at = $2
WHERE id = $1
RETURNING ` + enrollmentColumns
		var updated models.Enrollment
		if err := tx.GetContext(ctx, &updated, query, id, now); err != nil {
			return nil, fmt.Errorf("clear enrollment verification: %w", err)
		}
		return &models.VerificationChange{Enrollment: &updated, Changed: changed}, nil
	})
}

func (r *EnrollmentRepository) mutateVerification(ctx context.Context, id string, apply func(*sqlx.Tx, *models.Enrollment) (*models.VerificationChange, error)) (change *models.VerificationChange, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin verification transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Enrollment
	selectQuery := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, selectQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock enrollment: %w", err)
	}

	if change, err = apply(tx, &current); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit verification: %w", err)
	}
	return change, nil
}

// UpdateStatus changes the lifecycle status and returns the updated row.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) (*models.Enrollment, error) {
	query := `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1 RETURNING ` + enrollmentColumns
	var updated models.Enrollment
	if err := r.db.GetContext(ctx, &updated, query, id, status, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update enrollment status: %w", err)
	}
	return &updated, nil
}
