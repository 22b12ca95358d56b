package attempt

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/openlearn/coursehub/internal/domain"
	"github.com/openlearn/coursehub/internal/errors"
	"github.com/openlearn/coursehub/internal/event"
	"github.com/openlearn/coursehub/internal/gate"
)

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus
	Gate     *gate.Service

	// PassingScore is the platform-wide threshold (0-100) at or above which a
	// graded attempt counts as passed. Shared with the gate service.
	PassingScore decimal.Decimal
}

// Service drives the attempt lifecycle: Started -> Submitted -> Graded.
// Grading is idempotent; a graded attempt is never rescored.
type Service struct {
	db        *pgxpool.Pool
	eb        *event.Bus
	gate      *gate.Service
	threshold decimal.Decimal
}

func NewService(c Config) *Service {
	return &Service{
		db:        c.DB,
		eb:        c.EventBus,
		gate:      c.Gate,
		threshold: c.PassingScore,
	}
}

type StartRequest struct {
	QuizID string
	UserID string
}

// Start opens a new attempt at the quiz. Concurrent attempts by the same user
// at the same quiz are allowed; there is no dedup.
func (s *Service) Start(ctx context.Context, req StartRequest) (*domain.Attempt, error) {
	const existsStmt = `SELECT EXISTS (SELECT 1 FROM quizzes WHERE quiz_id = $1);`

	var exists bool
	if err := s.db.QueryRow(ctx, existsStmt, req.QuizID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check quiz exists: %w", err)
	}
	if !exists {
		return nil, errors.NotFoundf("quiz not found: quiz=%s", req.QuizID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate attempt ID: %w", err)
	}

	a := &domain.Attempt{
		AttemptID: id.String(),
		QuizID:    req.QuizID,
		UserID:    req.UserID,
		Score:     decimal.Zero,
		StartedAt: time.Now(),
	}

	const insStmt = `
INSERT INTO attempts (attempt_id, quiz_id, user_id, score, started_at, is_graded)
VALUES ($1, $2, $3, $4, $5, FALSE);`

	if _, err := s.db.Exec(ctx, insStmt, id, a.QuizID, a.UserID, a.Score, a.StartedAt); err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}

	return a, nil
}

type SubmitRequest struct {
	AttemptID string
	Answers   []domain.Answer
}

// Submit records the learner's answers and the completion time. Grading is a
// separate step; Submit never scores.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) error {
	answers, err := json.Marshal(req.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	const stmt = `UPDATE attempts SET answers = $2, completed_at = $3 WHERE attempt_id = $1;`

	tag, err := s.db.Exec(ctx, stmt, req.AttemptID, answers, time.Now())
	if err != nil {
		return fmt.Errorf("update attempt answers: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("attempt not found: attempt=%s", req.AttemptID)
	}

	return nil
}

type GradeRequest struct {
	AttemptID string
}

// Grade scores the attempt and persists the result. Grading a graded attempt
// returns the stored score and feedback unchanged; only the next-module
// unlock info is derived again, so it reflects the course's current module
// order.
func (s *Service) Grade(ctx context.Context, req GradeRequest) (*domain.GradeResult, error) {
	a, err := s.getAttempt(ctx, req.AttemptID)
	if err != nil {
		return nil, err
	}

	if a.IsGraded {
		r, err := s.buildResult(ctx, a)
		if err != nil {
			return nil, err
		}
		return &r.GradeResult, nil
	}

	questions, err := s.listQuestions(ctx, a.QuizID)
	if err != nil {
		return nil, err
	}

	a.Score, a.Feedback = Score(questions, a.Answers)

	feedback, err := json.Marshal(a.Feedback)
	if err != nil {
		return nil, fmt.Errorf("marshal feedback: %w", err)
	}

	const stmt = `
UPDATE attempts SET score = $2, is_graded = TRUE, graded_at = $3, feedback = $4
WHERE attempt_id = $1 AND NOT is_graded;`

	now := time.Now()
	tag, err := s.db.Exec(ctx, stmt, a.AttemptID, a.Score, now, feedback)
	if err != nil {
		return nil, fmt.Errorf("store grade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost a grade race: another caller persisted first. Serve the stored
		// result so both callers observe the same grade.
		slog.InfoContext(ctx, "attempt: already graded by concurrent caller", "attempt", a.AttemptID)

		a, err = s.getAttempt(ctx, req.AttemptID)
		if err != nil {
			return nil, err
		}

		r, err := s.buildResult(ctx, a)
		if err != nil {
			return nil, err
		}
		return &r.GradeResult, nil
	}

	a.IsGraded = true
	a.GradedAt = &now

	result, err := s.buildResult(ctx, a)
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventAttemptGraded{
		Attempt:  *a,
		CourseID: result.courseID,
		Passed:   result.Passed,
	})

	return &result.GradeResult, nil
}

type gradeResult struct {
	domain.GradeResult
	courseID string
}

// buildResult assembles the caller-facing result from a graded attempt,
// deriving pass state and, when passed, the module unlocked next.
func (s *Service) buildResult(ctx context.Context, a *domain.Attempt) (*gradeResult, error) {
	const stmt = `
SELECT q.module_id::text, m.course_id::text
FROM quizzes q
JOIN modules m ON m.module_id = q.module_id
WHERE q.quiz_id = $1;`

	var moduleID, courseID string
	err := s.db.QueryRow(ctx, stmt, a.QuizID).Scan(&moduleID, &courseID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFoundf("quiz not found: quiz=%s", a.QuizID)
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz module: %w", err)
	}

	r := &gradeResult{
		GradeResult: domain.GradeResult{
			AttemptID: a.AttemptID,
			QuizID:    a.QuizID,
			UserID:    a.UserID,
			Score:     a.Score,
			Passed:    a.Score.GreaterThanOrEqual(s.threshold),
			Feedback:  a.Feedback,
		},
		courseID: courseID,
	}

	if r.Passed {
		next, err := s.gate.NextModule(ctx, gate.NextModuleRequest{ModuleID: moduleID})
		if err != nil {
			return nil, err
		}
		r.UnlocksModule = next
	}

	return r, nil
}

func (s *Service) getAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error) {
	const stmt = `
SELECT attempt_id, quiz_id, user_id, score, started_at, completed_at, answers, is_graded, graded_at, feedback
FROM attempts
WHERE attempt_id = $1;`

	var (
		a           domain.Attempt
		rawAnswers  []byte
		rawFeedback []byte
	)
	err := s.db.QueryRow(ctx, stmt, attemptID).Scan(
		&a.AttemptID, &a.QuizID, &a.UserID, &a.Score, &a.StartedAt, &a.CompletedAt,
		&rawAnswers, &a.IsGraded, &a.GradedAt, &rawFeedback,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFoundf("attempt not found: attempt=%s", attemptID)
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	// Malformed submissions degrade to "not answered"; a broken answers blob
	// behaves like an empty one.
	if len(rawAnswers) > 0 {
		if err := json.Unmarshal(rawAnswers, &a.Answers); err != nil {
			slog.WarnContext(ctx, "attempt: discarding malformed answers", "attempt", attemptID, "error", err)
			a.Answers = nil
		}
	}

	if len(rawFeedback) > 0 {
		if err := json.Unmarshal(rawFeedback, &a.Feedback); err != nil {
			return nil, fmt.Errorf("unmarshal feedback: attempt=%s: %w", attemptID, err)
		}
	}

	return &a, nil
}

func (s *Service) listQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	const stmt = `
SELECT question_id, quiz_id, question_text, question_type, options
FROM questions
WHERE quiz_id = $1
ORDER BY question_id;`

	rows, err := s.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	questions, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var (
			q   domain.Question
			raw []byte
		)
		if err := r.Scan(&q.QuestionID, &q.QuizID, &q.Text, &q.Type, &raw); err != nil {
			return domain.Question{}, err
		}
		if err := json.Unmarshal(raw, &q.Options); err != nil {
			return domain.Question{}, fmt.Errorf("unmarshal options: question=%s: %w", q.QuestionID, err)
		}
		return q, nil
	})
	if err != nil {
		return nil, err
	}

	return questions, nil
}
