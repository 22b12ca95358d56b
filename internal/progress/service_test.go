package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/openlearn/coursehub/internal/domain"
	"github.com/openlearn/coursehub/internal/event"
	"github.com/openlearn/coursehub/internal/progress"
)

func gradedEvent(courseID, userID string, score float64) domain.EventAttemptGraded {
	now := time.Now()
	return domain.EventAttemptGraded{
		Attempt: domain.Attempt{
			AttemptID: "a-" + userID,
			QuizID:    "q1",
			UserID:    userID,
			Score:     decimal.NewFromFloat(score),
			IsGraded:  true,
			GradedAt:  &now,
		},
		CourseID: courseID,
		Passed:   score >= 70,
	}
}

func TestService_UpdateProgress(t *testing.T) {
	s := makeService(t)

	err := s.UpdateProgress(context.Background(), gradedEvent("c1", "u1", 83.5))
	require.NoError(t, err)

	resp, err := s.GetProgress(context.Background(), progress.GetProgressRequest{
		CourseID: "c1",
	})
	require.NoError(t, err)

	want := &domain.Progress{
		CourseID: "c1",
		Entries: []domain.ProgressEntry{
			{UserID: "u1", Score: 83.5},
		},
	}
	require.Equal(t, want, resp)
}

func TestService_UpdateProgress_KeepsBestScore(t *testing.T) {
	s := makeService(t)

	require.NoError(t, s.UpdateProgress(context.Background(), gradedEvent("c1", "u1", 90)))
	require.NoError(t, s.UpdateProgress(context.Background(), gradedEvent("c1", "u1", 40)))

	resp, err := s.GetProgress(context.Background(), progress.GetProgressRequest{
		CourseID: "c1",
	})
	require.NoError(t, err)

	require.Len(t, resp.Entries, 1)
	require.Equal(t, 90.0, resp.Entries[0].Score, "a worse retake must not lower the standings")
}

func TestService_GetProgress_NotFound(t *testing.T) {
	s := makeService(t)

	_, err := s.GetProgress(context.Background(), progress.GetProgressRequest{
		CourseID: "no-such-course",
	})
	require.Error(t, err)
}

func TestService_PublishProgressUpdated(t *testing.T) {
	type (
		inputs struct {
			receivedEvents []domain.EventAttemptGraded
		}

		outputs struct {
			publishedEvents []domain.EventProgressUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"should publish progress.updated after receiving attempt.graded": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventAttemptGraded{
						gradedEvent("c1", "u1", 80),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 progress updated event")
				require.Equal(t, domain.Progress{
					CourseID: "c1",
					Entries: []domain.ProgressEntry{
						{UserID: "u1", Score: 80},
					},
				}, out.publishedEvents[0].Progress)
			},
		},

		"should publish 2 events after graded attempts in 2 different courses": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventAttemptGraded{
						gradedEvent("c1", "u1", 80),
						gradedEvent("c2", "u2", 60),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should receive 2 progress updated events")
			},
		},

		"should collapse graded attempts in the same course within the publish interval": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventAttemptGraded{
						gradedEvent("c1", "u1", 80),
						gradedEvent("c1", "u2", 90),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 progress updated event")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			eb.Subscribe(domain.EventNameProgressUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e.(domain.EventProgressUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t,
				withEventBus(eb),
			)

			for _, e := range in.receivedEvents {
				err := s.UpdateProgress(context.Background(), e)
				require.NoError(t, err)
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func makeService(t *testing.T, opts ...options) *progress.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := progress.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
	}

	for _, opt := range opts {
		opt(&c)
	}

	return progress.NewService(c)
}

type options func(c *progress.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *progress.Config) {
		c.EventBus = eb
	}
}
