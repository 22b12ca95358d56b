package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/openlearn/coursehub/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	GradeNotice struct {
		AttemptID string `json:"attempt_id"`
		QuizID    string `json:"quiz_id"`
		CourseID  string `json:"course_id"`
		Score     string `json:"score"`
		Passed    bool   `json:"passed"`
	}

	Progress struct {
		CourseID string          `json:"course_id"`
		Entries  []ProgressEntry `json:"entries"`
	}

	ProgressEntry struct {
		UserID string  `json:"user_id"`
		Score  float64 `json:"score"`
	}
)

// PublishAttemptGraded notifies the attempt's owner that a grade is ready.
func (a *API) PublishAttemptGraded(ctx context.Context, e domain.EventAttemptGraded) error {
	data := GradeNotice{
		AttemptID: e.Attempt.AttemptID,
		QuizID:    e.Attempt.QuizID,
		CourseID:  e.CourseID,
		Score:     e.Attempt.Score.StringFixed(2),
		Passed:    e.Passed,
	}

	return a.publishNotification(ctx, e.Attempt.UserID, e.Name(), data)
}

// PublishProgressUpdated fans the new course standings out to every user on
// the board.
func (a *API) PublishProgressUpdated(ctx context.Context, e domain.EventProgressUpdated) error {
	p := e.Progress

	data := Progress{
		CourseID: p.CourseID,
		Entries:  make([]ProgressEntry, 0, len(p.Entries)),
	}

	for _, entry := range p.Entries {
		data.Entries = append(data.Entries, ProgressEntry{
			UserID: entry.UserID,
			Score:  entry.Score,
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.UserID, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}
