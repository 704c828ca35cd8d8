package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-api/internal/dto"
	"github.com/noah-isme/academy-api/internal/middleware"
	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/service"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

type apiEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func newContext(req *http.Request, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

var student = &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}

type fakePayments struct {
	courseID string
	userID   string
	upload   *service.PaymentUpload
	result   *models.PaymentSubmission
	err      error
}

func (f *fakePayments) Submit(ctx context.Context, userID, courseID string, upload *service.PaymentUpload) (*models.PaymentSubmission, error) {
	f.userID, f.courseID, f.upload = userID, courseID, upload
	return f.result, f.err
}

type fakeTracker struct {
	items    []dto.MyEnrollment
	cacheHit bool
	view     *dto.CourseView
	marked   struct {
		enrollmentID string
		index        int
		action       service.ProgressAction
	}
	err error
}

func (f *fakeTracker) ListMine(ctx context.Context, userID string) ([]dto.MyEnrollment, bool, error) {
	return f.items, f.cacheHit, f.err
}

func (f *fakeTracker) CourseView(ctx context.Context, userID, enrollmentID string) (*dto.CourseView, error) {
	return f.view, f.err
}

func (f *fakeTracker) MarkTopic(ctx context.Context, userID, enrollmentID string, index int, action service.ProgressAction) (*dto.TopicProgressResponse, error) {
	f.marked.enrollmentID, f.marked.index, f.marked.action = enrollmentID, index, action
	if f.err != nil {
		return nil, f.err
	}
	return &dto.TopicProgressResponse{}, nil
}

func multipartRequest(t *testing.T, courseID string, file []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("course_id", courseID))
	if file != nil {
		part, err := writer.CreateFormFile(paymentScreenshotField, "proof.png")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/enrollments/payment", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestSubmitPaymentCreated(t *testing.T) {
	payments := &fakePayments{result: &models.PaymentSubmission{Enrollment: &models.Enrollment{ID: "enr-1"}, Created: true}}
	h := NewEnrollmentHandler(payments, &fakeTracker{}, 1024)

	c, rec := newContext(multipartRequest(t, "course-1", []byte("image-bytes")), student)
	h.SubmitPayment(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", payments.userID)
	assert.Equal(t, "course-1", payments.courseID)
	require.NotNil(t, payments.upload)
	assert.Equal(t, "proof.png", payments.upload.Filename)
	assert.Equal(t, []byte("image-bytes"), payments.upload.Data)
}

func TestSubmitPaymentResubmissionIsOK(t *testing.T) {
	payments := &fakePayments{result: &models.PaymentSubmission{Enrollment: &models.Enrollment{ID: "enr-1"}}}
	h := NewEnrollmentHandler(payments, &fakeTracker{}, 1024)

	c, rec := newContext(multipartRequest(t, "course-1", []byte("image-bytes")), student)
	h.SubmitPayment(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitPaymentOversizedSkipsRead(t *testing.T) {
	payments := &fakePayments{err: appErrors.WithFields("invalid payment submission", appErrors.FieldError{Field: "payment_screenshot", Message: "too large"})}
	h := NewEnrollmentHandler(payments, &fakeTracker{}, 4)

	c, rec := newContext(multipartRequest(t, "course-1", []byte("image-bytes")), student)
	h.SubmitPayment(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, payments.upload)
	assert.Equal(t, int64(11), payments.upload.Size)
	assert.Nil(t, payments.upload.Data)
}

func TestSubmitPaymentMissingFilePassesNilUpload(t *testing.T) {
	payments := &fakePayments{err: appErrors.WithFields("invalid payment submission", appErrors.FieldError{Field: "payment_screenshot", Message: "is required"})}
	h := NewEnrollmentHandler(payments, &fakeTracker{}, 1024)

	c, rec := newContext(multipartRequest(t, "course-1", nil), student)
	h.SubmitPayment(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, payments.upload)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "payment_screenshot", env.Error.Fields[0].Field)
}

func TestSubmitPaymentRequiresClaims(t *testing.T) {
	h := NewEnrollmentHandler(&fakePayments{}, &fakeTracker{}, 1024)

	c, rec := newContext(multipartRequest(t, "course-1", []byte("x")), nil)
	h.SubmitPayment(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListMineReportsCacheHit(t *testing.T) {
	tracker := &fakeTracker{items: []dto.MyEnrollment{{CourseTitle: "Go"}}, cacheHit: true}
	h := NewEnrollmentHandler(&fakePayments{}, tracker, 0)

	c, rec := newContext(httptest.NewRequest(http.MethodGet, "/me/enrollments", nil), student)
	h.ListMine(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")
}

func TestCompleteTopicParsesIndex(t *testing.T) {
	tracker := &fakeTracker{}
	h := NewEnrollmentHandler(&fakePayments{}, tracker, 0)

	c, rec := newContext(httptest.NewRequest(http.MethodPost, "/me/enrollments/enr-1/topics/2/complete", nil), student)
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}, {Key: "index", Value: "2"}}
	h.CompleteTopic(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "enr-1", tracker.marked.enrollmentID)
	assert.Equal(t, 2, tracker.marked.index)
	assert.Equal(t, service.ProgressActionComplete, tracker.marked.action)
}

func TestStartTopicRejectsBadIndexAndLockedContent(t *testing.T) {
	tracker := &fakeTracker{}
	h := NewEnrollmentHandler(&fakePayments{}, tracker, 0)

	c, rec := newContext(httptest.NewRequest(http.MethodPost, "/", nil), student)
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}, {Key: "index", Value: "first"}}
	h.StartTopic(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	tracker.err = appErrors.Clone(appErrors.ErrContentLocked, "payment not verified")
	c, rec = newContext(httptest.NewRequest(http.MethodPost, "/", nil), student)
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}, {Key: "index", Value: "0"}}
	h.StartTopic(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, appErrors.ErrContentLocked.Code, env.Error.Code)
}
