package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-api/internal/dto"
	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/repository"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

type fakeVerificationRepo struct {
	rows       map[string]*models.Enrollment
	lastFilter models.EnrollmentFilter
}

func (f *fakeVerificationRepo) Verify(ctx context.Context, id, staffID string) (*models.VerificationChange, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if !row.HasScreenshot() {
		return nil, repository.ErrScreenshotMissing
	}
	if row.PaymentVerified && row.IsPaid {
		clone := *row
		return &models.VerificationChange{Enrollment: &clone}, nil
	}
	now := time.Now().UTC()
	row.PaymentVerified, row.IsPaid, row.PaymentVerifiedAt, row.VerifiedBy = true, true, &now, &staffID
	clone := *row
	return &models.VerificationChange{Enrollment: &clone, Changed: true}, nil
}

func (f *fakeVerificationRepo) ClearVerification(ctx context.Context, id string) (*models.VerificationChange, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	changed := row.PaymentVerified || row.IsPaid
	row.PaymentVerified, row.IsPaid, row.PaymentVerifiedAt, row.VerifiedBy = false, false, nil, nil
	clone := *row
	return &models.VerificationChange{Enrollment: &clone, Changed: changed}, nil
}

func (f *fakeVerificationRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) (*models.Enrollment, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	row.Status = status
	clone := *row
	return &clone, nil
}

func (f *fakeVerificationRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	f.lastFilter = filter
	var out []models.EnrollmentDetail
	for _, row := range f.rows {
		out = append(out, models.EnrollmentDetail{Enrollment: *row})
	}
	return out, len(out), nil
}

func (f *fakeVerificationRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.EnrollmentDetail{Enrollment: *row, StudentName: "Sam", CourseTitle: "Go"}, nil
}

type fakeAudit struct {
	logs []*models.AuditLog
	err  error
}

func (f *fakeAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.logs = append(f.logs, log)
	return f.err
}

type fakeLocator struct{}

func (fakeLocator) URL(ctx context.Context, key string) (string, time.Time, error) {
	return "https://files.example.com/" + key + "?token=abc", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

type verificationFixture struct {
	svc      *VerificationService
	repo     *fakeVerificationRepo
	audit    *fakeAudit
	notifier *fakeNotifier
}

func newVerificationFixture() *verificationFixture {
	pending := verifiedEnrollment("enr-1", "user-1", "course-1")
	pending.PaymentVerified, pending.IsPaid = false, false
	noProof := &models.Enrollment{ID: "enr-2", UserID: "user-2", CourseID: "course-1", Status: models.EnrollmentStatusActive}

	f := &verificationFixture{
		repo:     &fakeVerificationRepo{rows: map[string]*models.Enrollment{"enr-1": pending, "enr-2": noProof}},
		audit:    &fakeAudit{},
		notifier: &fakeNotifier{},
	}
	f.svc = NewVerificationService(VerificationServiceParams{
		Enrollments: f.repo,
		Audit:       f.audit,
		Storage:     fakeLocator{},
		Notifier:    f.notifier,
	})
	return f
}

var staff = models.Actor{UserID: "staff-1", IP: "10.0.0.1", UserAgent: "test"}

func TestVerifyUnlocksAndNotifiesOnce(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()

	enrollment, err := f.svc.Verify(ctx, "enr-1", staff)
	require.NoError(t, err)
	assert.True(t, enrollment.PaymentVerified)
	assert.True(t, enrollment.IsPaid)
	require.NotNil(t, enrollment.VerifiedBy)
	assert.Equal(t, "staff-1", *enrollment.VerifiedBy)
	assert.False(t, IsContentLocked(enrollment))

	again, err := f.svc.Verify(ctx, "enr-1", staff)
	require.NoError(t, err)
	assert.True(t, again.PaymentVerified)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, models.NotificationPaymentVerified, f.notifier.sent[0].Type)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionPaymentVerify, f.audit.logs[0].Action)
	assert.Equal(t, "10.0.0.1", f.audit.logs[0].IPAddress)
}

func TestVerifyRequiresScreenshotAndExistingEnrollment(t *testing.T) {
	f := newVerificationFixture()

	_, err := f.svc.Verify(context.Background(), "enr-2", staff)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))

	_, err = f.svc.Verify(context.Background(), "missing", staff)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, f.notifier.sent)
}

func TestRejectKeepsScreenshotAndSendsReason(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()
	_, err := f.svc.Verify(ctx, "enr-1", staff)
	require.NoError(t, err)

	enrollment, err := f.svc.Reject(ctx, "enr-1", dto.RejectPaymentRequest{Reason: "  amount does not match  "}, staff)
	require.NoError(t, err)
	assert.False(t, enrollment.PaymentVerified)
	assert.False(t, enrollment.IsPaid)
	assert.Nil(t, enrollment.VerifiedBy)
	assert.True(t, enrollment.HasScreenshot())
	assert.True(t, IsContentLocked(enrollment))

	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, models.NotificationPaymentRejected, f.notifier.sent[1].Type)
	assert.Equal(t, "amount does not match", f.notifier.sent[1].Reason)
	assert.Equal(t, models.AuditActionPaymentReject, f.audit.logs[1].Action)
}

func TestUpdateStatusValidatesAndAudits(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, "enr-1", dto.UpdateEnrollmentStatusRequest{Status: "archived"}, staff)
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "status", appErr.Fields[0].Field)

	enrollment, err := f.svc.UpdateStatus(ctx, "enr-1", dto.UpdateEnrollmentStatusRequest{Status: "Completed"}, staff)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionEnrollmentStatus, f.audit.logs[0].Action)
}

func TestAuditFailureDoesNotFailVerification(t *testing.T) {
	f := newVerificationFixture()
	f.audit.err = errors.New("insert failed")
	f.notifier.err = errors.New("queue full")

	enrollment, err := f.svc.Verify(context.Background(), "enr-1", staff)
	require.NoError(t, err)
	assert.True(t, enrollment.PaymentVerified)
}

func TestGetIncludesSignedScreenshotURL(t *testing.T) {
	f := newVerificationFixture()

	detail, err := f.svc.Get(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.True(t, detail.HasScreenshot)
	require.NotNil(t, detail.ScreenshotURL)
	assert.Contains(t, *detail.ScreenshotURL, "u/c/proof.png")
	require.NotNil(t, detail.ScreenshotURLExpiresAt)

	noProof, err := f.svc.Get(context.Background(), "enr-2")
	require.NoError(t, err)
	assert.False(t, noProof.HasScreenshot)
	assert.Nil(t, noProof.ScreenshotURL)
}

func TestListAppliesPaginationDefaults(t *testing.T) {
	f := newVerificationFixture()
	verified := false

	items, pagination, err := f.svc.List(context.Background(), dto.EnrollmentListQuery{CourseID: "course-1", Verified: &verified})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, "course-1", f.repo.lastFilter.CourseID)
	require.NotNil(t, f.repo.lastFilter.Verified)

	_, _, err = f.svc.List(context.Background(), dto.EnrollmentListQuery{Status: "unknown"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
