//go:build integration_test

package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// The demo drives a running server through the full learner flow:
// author a quiz, start an attempt, submit answers, grade, and receive the
// graded notification over Redis pubsub.
const (
	baseURL      = "http://localhost:8080/v1"
	redisAddr    = "localhost:6379"
	pubsubPrefix = "coursehub"

	// moduleID must exist in the course store before running the demo.
	moduleID = "0191f5a2-0000-7000-8000-000000000001"
)

func TestQuizLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		user = "learner-1"
		wg   = new(sync.WaitGroup)
	)

	subscribeAsUser(t, makeRedis(t), wg, user)

	// Author a quiz with two questions
	var quizID string
	{
		var resp struct {
			QuizID string `json:"quiz_id"`
		}
		postJSON(ctx, t, "/quizzes", map[string]any{
			"module_id": moduleID,
			"title":     "Checkpoint quiz",
		}, &resp)
		quizID = resp.QuizID

		postJSON(ctx, t, fmt.Sprintf("/quizzes/%s/questions", quizID), map[string]any{
			"text":    "Capital of France?",
			"type":    "multiple_choice",
			"options": []string{"Paris", "London", "Berlin"},
		}, nil)
		postJSON(ctx, t, fmt.Sprintf("/quizzes/%s/questions", quizID), map[string]any{
			"text":    "Select the prime numbers",
			"type":    "multiple_select",
			"options": []string{"2", "3", "5"},
		}, nil)
	}

	// Fetch the quiz as the learner would, options shuffled
	var quiz struct {
		Questions []struct {
			QuestionID string   `json:"question_id"`
			Options    []string `json:"options"`
		} `json:"questions"`
	}
	getJSON(ctx, t, fmt.Sprintf("/modules/%s/quiz", moduleID), &quiz)
	require.Len(t, quiz.Questions, 2)

	// Start, submit, grade
	var attempt struct {
		AttemptID string `json:"attempt_id"`
	}
	postJSON(ctx, t, fmt.Sprintf("/quizzes/%s/attempts", quizID), map[string]any{
		"user_id": user,
	}, &attempt)

	putJSON(ctx, t, fmt.Sprintf("/attempts/%s/answers", attempt.AttemptID), map[string]any{
		"answers": []map[string]any{
			{"question_id": quiz.Questions[0].QuestionID, "selected_options": []string{"Paris"}},
			{"question_id": quiz.Questions[1].QuestionID, "selected_options": []string{"2", "3", "5"}},
		},
	})

	var result gradeResponse
	postJSON(ctx, t, fmt.Sprintf("/attempts/%s/grade", attempt.AttemptID), nil, &result)
	t.Logf("Graded: score=%s passed=%v", result.Score, result.Passed)
	require.True(t, result.Passed)

	// Grading the same attempt again must serve the stored result unchanged,
	// never a rescore.
	var regraded gradeResponse
	postJSON(ctx, t, fmt.Sprintf("/attempts/%s/grade", attempt.AttemptID), nil, &regraded)
	require.Equal(t, result.Score, regraded.Score)
	require.Equal(t, result.Feedback, regraded.Feedback)

	wg.Wait()
}

type gradeResponse struct {
	Score    string `json:"score"`
	Passed   bool   `json:"passed"`
	Feedback []struct {
		QuestionID   string `json:"question_id"`
		EarnedPoints string `json:"earned_points"`
		Message      string `json:"message"`
	} `json:"feedback"`
}

func subscribeAsUser(t *testing.T, rc redis.UniversalClient, wg *sync.WaitGroup, user string) {
	sub := rc.Subscribe(context.Background(), fmt.Sprintf("%s:user:%s", pubsubPrefix, user))

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer sub.Close()

		msg, err := sub.ReceiveMessage(context.Background())
		require.NoError(t, err)
		t.Logf("User %q received notification: %s", user, msg.Payload)
	}()
}

func makeRedis(t *testing.T) redis.UniversalClient {
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{redisAddr},
	})
	require.NoError(t, rc.Ping(context.Background()).Err())
	return rc
}

func postJSON(ctx context.Context, t *testing.T, path string, body, out any) {
	doJSON(ctx, t, http.MethodPost, path, body, out)
}

func putJSON(ctx context.Context, t *testing.T, path string, body any) {
	doJSON(ctx, t, http.MethodPut, path, body, nil)
}

func getJSON(ctx context.Context, t *testing.T, path string, out any) {
	doJSON(ctx, t, http.MethodGet, path, nil, out)
}

func doJSON(ctx context.Context, t *testing.T, method, path string, body, out any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Lessf(t, resp.StatusCode, 300, "%s %s", method, path)

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}
