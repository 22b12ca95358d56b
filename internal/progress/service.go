package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openlearn/coursehub/internal/domain"
	"github.com/openlearn/coursehub/internal/errors"
	"github.com/openlearn/coursehub/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service keeps per-course standings in Redis, one sorted set per course
// holding each user's best graded quiz score. It is fed by attempt.graded
// events and republishes throttled progress.updated events.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameAttemptGraded, func(ctx context.Context, e event.Event) error {
		return s.UpdateProgress(ctx, e.(domain.EventAttemptGraded))
	})

	return s
}

type GetProgressRequest struct {
	CourseID string
}

// GetProgress returns the course standings, all users sorted by best score
// in descending order.
func (s *Service) GetProgress(ctx context.Context, req GetProgressRequest) (*domain.Progress, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getProgressKey(req.CourseID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.NotFoundf("progress not found: course=%s", req.CourseID)
	}

	entries := make([]domain.ProgressEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.ProgressEntry{
			UserID: z.Member.(string),
			Score:  z.Score,
		})
	}

	return &domain.Progress{
		CourseID: req.CourseID,
		Entries:  entries,
	}, nil
}

// UpdateProgress records a graded attempt. ZADD GT keeps the user's best
// score: a retake with a lower grade never lowers the standings.
func (s *Service) UpdateProgress(ctx context.Context, e domain.EventAttemptGraded) error {
	a := e.Attempt

	if err := s.redis.ZAddGT(ctx, s.getProgressKey(e.CourseID), redis.Z{
		Score:  a.Score.InexactFloat64(),
		Member: a.UserID,
	}).Err(); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}

	return s.schedulePublishProgress(ctx, e)
}

// schedulePublishProgress publishes progress changes after a short interval
// instead of on every graded attempt, collapsing bursts of grading into a
// single published event per course.
func (s *Service) schedulePublishProgress(ctx context.Context, e domain.EventAttemptGraded) error {
	gradedAt := time.Now()
	if e.Attempt.GradedAt != nil {
		gradedAt = *e.Attempt.GradedAt
	}

	ok, err := s.redis.SetNX(ctx, s.getProgressTimeKey(e.CourseID), gradedAt.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishProgress(ctx, e.CourseID, gradedAt)
}

func (s *Service) publishProgress(ctx context.Context, courseID string, gradedAt time.Time) error {
	p, err := s.GetProgress(ctx, GetProgressRequest{
		CourseID: courseID,
	})
	if err != nil {
		return fmt.Errorf("get progress failed: course=%s: %w", courseID, err)
	}

	s.eb.Publish(ctx, domain.EventProgressUpdated{
		Progress: *p,
	})

	return s.redis.Set(ctx, s.getProgressTimeKey(courseID), gradedAt.UnixMilli(), publishInterval).Err()
}

func (s *Service) getProgressKey(course string) string {
	return fmt.Sprintf("%s:%s:progress", s.prefix, course)
}

func (s *Service) getProgressTimeKey(course string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, course)
}
