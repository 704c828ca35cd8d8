package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/academy-api/internal/dto"
	"github.com/noah-isme/academy-api/internal/models"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

// ProgressAction is a student-initiated topic transition.
type ProgressAction string

const (
	ProgressActionStart    ProgressAction = "start"
	ProgressActionComplete ProgressAction = "complete"
)

type ownedEnrollmentReader interface {
	FindOwned(ctx context.Context, id, userID string) (*models.Enrollment, error)
	ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.Course, error)
}

type progressStore interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.TopicProgress, error)
	Sync(ctx context.Context, enrollmentID string, keys []*string) (models.SyncResult, error)
	Mark(ctx context.Context, enrollmentID string, topicIndex int, key *string, status models.ProgressStatus) (*models.TopicProgress, error)
}

// ProgressServiceConfig tunes progress behaviour.
type ProgressServiceConfig struct {
	CacheTTL        time.Duration
	SummaryParallel int
}

// ProgressServiceParams groups constructor dependencies.
type ProgressServiceParams struct {
	Enrollments ownedEnrollmentReader
	Courses     courseReader
	Progress    progressStore
	Cache       *CacheService
	Metrics     *MetricsService
	Logger      *zap.Logger
	Config      ProgressServiceConfig
}

// ProgressService tracks per-topic completion for self-paced enrollments.
type ProgressService struct {
	enrollments ownedEnrollmentReader
	courses     courseReader
	progress    progressStore
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         ProgressServiceConfig
}

// NewProgressService constructs a ProgressService.
func NewProgressService(params ProgressServiceParams) *ProgressService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.SummaryParallel <= 0 {
		cfg.SummaryParallel = 4
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		enrollments: params.Enrollments,
		courses:     params.Courses,
		progress:    params.Progress,
		cache:       params.Cache,
		metrics:     params.Metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// SyncTopics reconciles the stored progress rows with the canonical topics.
func (s *ProgressService) SyncTopics(ctx context.Context, enrollment *models.Enrollment, topics []models.CanonicalTopic) (models.SyncResult, error) {
	keys := make([]*string, len(topics))
	for i, topic := range topics {
		keys[i] = TopicKey(topic.Title)
	}
	result, err := s.progress.Sync(ctx, enrollment.ID, keys)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sync topic progress")
	}
	if result.Changed() {
		s.logger.Debug("topic progress synced",
			zap.String("enrollment_id", enrollment.ID),
			zap.Int("created", result.Created),
			zap.Int("renamed", result.Renamed),
			zap.Int("pruned", result.Pruned),
		)
	}
	return result, nil
}

// MarkStarted records that the student opened the topic at index.
func (s *ProgressService) MarkStarted(ctx context.Context, enrollment *models.Enrollment, index int, key *string) (*models.TopicProgress, error) {
	return s.mark(ctx, enrollment, index, key, models.ProgressInProgress)
}

// MarkCompleted records that the student finished the topic at index.
func (s *ProgressService) MarkCompleted(ctx context.Context, enrollment *models.Enrollment, index int, key *string) (*models.TopicProgress, error) {
	return s.mark(ctx, enrollment, index, key, models.ProgressCompleted)
}

func (s *ProgressService) mark(ctx context.Context, enrollment *models.Enrollment, index int, key *string, status models.ProgressStatus) (*models.TopicProgress, error) {
	if index < 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "topic not found")
	}
	row, err := s.progress.Mark(ctx, enrollment.ID, index, key, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update topic progress")
	}
	s.metrics.RecordProgressMark(string(status))
	return row, nil
}

// MarkTopic is the guarded entry point for start and complete actions. The
// enrollment must belong to userID, the course must be self-paced and the
// payment verified before any progress row is created or changed.
func (s *ProgressService) MarkTopic(ctx context.Context, userID, enrollmentID string, index int, action ProgressAction) (*dto.TopicProgressResponse, error) {
	var status models.ProgressStatus
	switch action {
	case ProgressActionStart:
		status = models.ProgressInProgress
	case ProgressActionComplete:
		status = models.ProgressCompleted
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown progress action")
	}

	enrollment, course, err := s.loadOwned(ctx, userID, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := AuthorizeProgressMutation(enrollment, course); err != nil {
		return nil, err
	}

	topics := ExtractTopics(course, false)
	if index < 0 || index >= len(topics) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "topic not found")
	}

	if _, err := s.SyncTopics(ctx, enrollment, topics); err != nil {
		return nil, err
	}

	row, err := s.mark(ctx, enrollment, index, TopicKey(topics[index].Title), status)
	if err != nil {
		return nil, err
	}

	rows, err := s.progress.ListByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic progress")
	}
	summary := Summarize(rows, len(topics))

	s.invalidate(ctx, userID)
	return &dto.TopicProgressResponse{Progress: row, Summary: summary}, nil
}

// CourseView returns the course as the student sees it. Topic content is
// withheld while payment is unverified.
func (s *ProgressService) CourseView(ctx context.Context, userID, enrollmentID string) (*dto.CourseView, error) {
	enrollment, course, err := s.loadOwned(ctx, userID, enrollmentID)
	if err != nil {
		return nil, err
	}

	locked := IsContentLocked(enrollment)
	view := &dto.CourseView{
		Enrollment: enrollment,
		Course: dto.CourseSummary{
			ID:         course.ID,
			Title:      course.Title,
			Slug:       course.Slug,
			CourseType: course.CourseType,
		},
		ContentLocked: locked,
		Topics:        ExtractTopics(course, !locked),
		Progress:      []models.TopicProgress{},
	}
	if !course.IsSelfPaced() {
		return view, nil
	}

	if !locked {
		if _, err := s.SyncTopics(ctx, enrollment, view.Topics); err != nil {
			return nil, err
		}
	}
	rows, err := s.progress.ListByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic progress")
	}
	if rows != nil {
		view.Progress = rows
	}
	summary := Summarize(rows, len(view.Topics))
	view.Summary = &summary
	return view, nil
}

// ListMine returns the caller's enrollments with progress summaries for self-paced courses.
func (s *ProgressService) ListMine(ctx context.Context, userID string) ([]dto.MyEnrollment, bool, error) {
	key := myEnrollmentsCacheKey(userID)
	if s.cache != nil {
		var cached []dto.MyEnrollment
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return cached, true, nil
		}
	}

	enrollments, err := s.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.CourseID)
	}
	courses, err := s.courses.FindByIDs(ctx, ids)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}

	result := make([]dto.MyEnrollment, len(enrollments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SummaryParallel)
	for i := range enrollments {
		i := i
		item := dto.MyEnrollment{Enrollment: enrollments[i], ContentLocked: IsContentLocked(&enrollments[i])}
		course, ok := courses[item.CourseID]
		if ok {
			item.CourseTitle = course.Title
			item.CourseSlug = course.Slug
			item.CourseType = course.CourseType
		}
		result[i] = item
		if !ok || !course.IsSelfPaced() {
			continue
		}
		topicCount := len(ExtractTopics(course, false))
		g.Go(func() error {
			rows, err := s.progress.ListByEnrollment(gctx, enrollments[i].ID)
			if err != nil {
				return fmt.Errorf("progress for enrollment %s: %w", enrollments[i].ID, err)
			}
			summary := Summarize(rows, topicCount)
			result[i].Progress = &summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise progress")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("enrollment cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return result, false, nil
}

func (s *ProgressService) loadOwned(ctx context.Context, userID, enrollmentID string) (*models.Enrollment, *models.Course, error) {
	enrollment, err := s.enrollments.FindOwned(ctx, enrollmentID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return enrollment, course, nil
}

func (s *ProgressService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, myEnrollmentsCacheKey(userID))
}

func myEnrollmentsCacheKey(userID string) string {
	return fmt.Sprintf("academy:enrollments:user:%s", userID)
}
