package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-api/internal/models"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

type fakeEnrollments struct {
	byID map[string]*models.Enrollment
}

func newFakeEnrollments(items ...*models.Enrollment) *fakeEnrollments {
	f := &fakeEnrollments{byID: map[string]*models.Enrollment{}}
	for _, item := range items {
		f.byID[item.ID] = item
	}
	return f
}

func (f *fakeEnrollments) FindOwned(ctx context.Context, id, userID string) (*models.Enrollment, error) {
	e, ok := f.byID[id]
	if !ok || e.UserID != userID {
		return nil, sql.ErrNoRows
	}
	clone := *e
	return &clone, nil
}

func (f *fakeEnrollments) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, e := range f.byID {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeCourses struct {
	byID map[string]*models.Course
	err  error
}

func newFakeCourses(items ...*models.Course) *fakeCourses {
	f := &fakeCourses{byID: map[string]*models.Course{}}
	for _, item := range items {
		f.byID[item.ID] = item
	}
	return f
}

func (f *fakeCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeCourses) FindByIDs(ctx context.Context, ids []string) (map[string]*models.Course, error) {
	out := map[string]*models.Course{}
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

// fakeProgress mimics the repository semantics in memory.
type fakeProgress struct {
	mu        sync.Mutex
	rows      map[string]map[int]*models.TopicProgress
	syncCalls int
	markCalls int
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{rows: map[string]map[int]*models.TopicProgress{}}
}

func (f *fakeProgress) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.TopicProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TopicProgress
	for _, row := range f.rows[enrollmentID] {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicIndex < out[j].TopicIndex })
	return out, nil
}

func (f *fakeProgress) Sync(ctx context.Context, enrollmentID string, keys []*string) (models.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	var result models.SyncResult
	rows := f.rows[enrollmentID]
	if rows == nil {
		rows = map[int]*models.TopicProgress{}
		f.rows[enrollmentID] = rows
	}
	for i, key := range keys {
		row, ok := rows[i]
		if !ok {
			rows[i] = &models.TopicProgress{EnrollmentID: enrollmentID, TopicIndex: i, TopicKey: key, Status: models.ProgressNotStarted}
			result.Created++
			continue
		}
		if !equalKeys(row.TopicKey, key) {
			row.TopicKey = key
			result.Renamed++
		}
	}
	for idx := range rows {
		if idx >= len(keys) {
			delete(rows, idx)
			result.Pruned++
		}
	}
	return result, nil
}

func (f *fakeProgress) Mark(ctx context.Context, enrollmentID string, topicIndex int, key *string, status models.ProgressStatus) (*models.TopicProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	rows := f.rows[enrollmentID]
	if rows == nil {
		rows = map[int]*models.TopicProgress{}
		f.rows[enrollmentID] = rows
	}
	row, ok := rows[topicIndex]
	if !ok {
		row = &models.TopicProgress{EnrollmentID: enrollmentID, TopicIndex: topicIndex, TopicKey: key, Status: models.ProgressNotStarted}
		rows[topicIndex] = row
	}
	now := time.Now().UTC()
	row.Status = status
	row.LastViewedAt = &now
	if status == models.ProgressCompleted {
		row.CompletedAt = &now
	}
	clone := *row
	return &clone, nil
}

func equalKeys(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

const threeTopics = `["Intro", {"topic": "Setup", "content": "install go"}, {"title": "Basics"}]`

func verifiedEnrollment(id, userID, courseID string) *models.Enrollment {
	path := "u/c/proof.png"
	return &models.Enrollment{
		ID: id, UserID: userID, CourseID: courseID,
		Status: models.EnrollmentStatusActive, IsPaid: true, PaymentVerified: true,
		PaymentScreenshotPath: &path,
	}
}

func newProgressServiceForTest(enrollments *fakeEnrollments, courses *fakeCourses, progress *fakeProgress) *ProgressService {
	return NewProgressService(ProgressServiceParams{Enrollments: enrollments, Courses: courses, Progress: progress})
}

func TestMarkTopicCompletesAndSummarises(t *testing.T) {
	progress := newFakeProgress()
	svc := newProgressServiceForTest(
		newFakeEnrollments(verifiedEnrollment("enr-1", "user-1", "course-1")),
		newFakeCourses(selfPacedCourse(threeTopics)),
		progress,
	)

	resp, err := svc.MarkTopic(context.Background(), "user-1", "enr-1", 1, ProgressActionComplete)
	require.NoError(t, err)
	assert.Equal(t, models.ProgressCompleted, resp.Progress.Status)
	require.NotNil(t, resp.Progress.CompletedAt)
	require.NotNil(t, resp.Progress.TopicKey)
	assert.Equal(t, "setup", *resp.Progress.TopicKey)
	assert.Equal(t, 3, resp.Summary.TopicCount)
	assert.Equal(t, 1, resp.Summary.CompletedCount)
	assert.Equal(t, 33, resp.Summary.PercentComplete)
	require.NotNil(t, resp.Summary.NextTopicIndex)
	assert.Equal(t, 0, *resp.Summary.NextTopicIndex)

	rows, _ := progress.ListByEnrollment(context.Background(), "enr-1")
	assert.Len(t, rows, 3)
}

func TestMarkTopicAllowsRegression(t *testing.T) {
	progress := newFakeProgress()
	svc := newProgressServiceForTest(
		newFakeEnrollments(verifiedEnrollment("enr-1", "user-1", "course-1")),
		newFakeCourses(selfPacedCourse(threeTopics)),
		progress,
	)
	ctx := context.Background()

	_, err := svc.MarkTopic(ctx, "user-1", "enr-1", 0, ProgressActionComplete)
	require.NoError(t, err)
	resp, err := svc.MarkTopic(ctx, "user-1", "enr-1", 0, ProgressActionStart)
	require.NoError(t, err)
	assert.Equal(t, models.ProgressInProgress, resp.Progress.Status)
	assert.NotNil(t, resp.Progress.CompletedAt)
	assert.Equal(t, 0, resp.Summary.CompletedCount)
	assert.Equal(t, 1, resp.Summary.InProgressCount)
}

func TestMarkTopicRejectionsLeaveNoRows(t *testing.T) {
	locked := verifiedEnrollment("enr-locked", "user-1", "course-1")
	locked.PaymentVerified = false
	paidOnly := verifiedEnrollment("enr-unverified", "user-1", "course-1")
	paidOnly.IsPaid = false
	guided := verifiedEnrollment("enr-guided", "user-1", "course-guided")

	guidedCourse := &models.Course{ID: "course-guided", CourseType: models.CourseTypeGuided}
	progress := newFakeProgress()
	svc := newProgressServiceForTest(
		newFakeEnrollments(locked, paidOnly, guided, verifiedEnrollment("enr-1", "user-1", "course-1")),
		newFakeCourses(selfPacedCourse(threeTopics), guidedCourse),
		progress,
	)
	ctx := context.Background()

	cases := []struct {
		name         string
		userID       string
		enrollmentID string
		index        int
		want         *appErrors.Error
	}{
		{"unverified payment", "user-1", "enr-locked", 0, appErrors.ErrContentLocked},
		{"verified but unpaid", "user-1", "enr-unverified", 0, appErrors.ErrContentLocked},
		{"guided course", "user-1", "enr-guided", 0, appErrors.ErrCourseNotSelfPaced},
		{"foreign enrollment", "user-2", "enr-1", 0, appErrors.ErrNotFound},
		{"index out of range", "user-1", "enr-1", 3, appErrors.ErrNotFound},
		{"negative index", "user-1", "enr-1", -1, appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.MarkTopic(ctx, tc.userID, tc.enrollmentID, tc.index, ProgressActionStart)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
	assert.Zero(t, progress.syncCalls)
	assert.Zero(t, progress.markCalls)
	assert.Empty(t, progress.rows)
}

func TestSyncTopicsIsIdempotentAndPrunes(t *testing.T) {
	progress := newFakeProgress()
	svc := newProgressServiceForTest(newFakeEnrollments(), newFakeCourses(), progress)
	enrollment := verifiedEnrollment("enr-1", "user-1", "course-1")
	ctx := context.Background()

	topics := ExtractTopics(selfPacedCourse(threeTopics), false)
	first, err := svc.SyncTopics(ctx, enrollment, topics)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)

	second, err := svc.SyncTopics(ctx, enrollment, topics)
	require.NoError(t, err)
	assert.False(t, second.Changed())

	shorter := ExtractTopics(selfPacedCourse(`["Intro", "Setup again"]`), false)
	third, err := svc.SyncTopics(ctx, enrollment, shorter)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Pruned)
	assert.Equal(t, 1, third.Renamed)

	rows, _ := progress.ListByEnrollment(ctx, "enr-1")
	require.Len(t, rows, 2)
	assert.Equal(t, "setup-again", *rows[1].TopicKey)
}

func TestCourseViewWithholdsContentWhileLocked(t *testing.T) {
	locked := verifiedEnrollment("enr-1", "user-1", "course-1")
	locked.PaymentVerified = false
	progress := newFakeProgress()
	svc := newProgressServiceForTest(newFakeEnrollments(locked), newFakeCourses(selfPacedCourse(threeTopics)), progress)

	view, err := svc.CourseView(context.Background(), "user-1", "enr-1")
	require.NoError(t, err)
	assert.True(t, view.ContentLocked)
	require.Len(t, view.Topics, 3)
	assert.Nil(t, view.Topics[1].Content)
	assert.Zero(t, progress.syncCalls)
	require.NotNil(t, view.Summary)
	assert.Equal(t, 0, view.Summary.PercentComplete)
}

func TestCourseViewUnlockedIncludesContent(t *testing.T) {
	progress := newFakeProgress()
	svc := newProgressServiceForTest(
		newFakeEnrollments(verifiedEnrollment("enr-1", "user-1", "course-1")),
		newFakeCourses(selfPacedCourse(threeTopics)),
		progress,
	)

	view, err := svc.CourseView(context.Background(), "user-1", "enr-1")
	require.NoError(t, err)
	assert.False(t, view.ContentLocked)
	require.NotNil(t, view.Topics[1].Content)
	assert.Equal(t, "install go", *view.Topics[1].Content)
	assert.Len(t, view.Progress, 3)
}

func TestListMineSummarisesSelfPacedOnly(t *testing.T) {
	guided := &models.Course{ID: "course-guided", Title: "Mentoring", CourseType: models.CourseTypeGuided}
	progress := newFakeProgress()
	_, _ = progress.Mark(context.Background(), "enr-1", 0, nil, models.ProgressCompleted)
	svc := newProgressServiceForTest(
		newFakeEnrollments(verifiedEnrollment("enr-1", "user-1", "course-1"), verifiedEnrollment("enr-2", "user-1", "course-guided"), verifiedEnrollment("enr-3", "user-2", "course-1")),
		newFakeCourses(selfPacedCourse(threeTopics), guided),
		progress,
	)

	items, cached, err := svc.ListMine(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, items, 2)
	assert.Equal(t, "Go", items[0].CourseTitle)
	require.NotNil(t, items[0].Progress)
	assert.Equal(t, 1, items[0].Progress.CompletedCount)
	assert.Equal(t, "Mentoring", items[1].CourseTitle)
	assert.Nil(t, items[1].Progress)
}
