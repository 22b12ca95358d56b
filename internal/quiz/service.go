package quiz

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openlearn/coursehub/internal/domain"
	"github.com/openlearn/coursehub/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service owns quiz and question authoring, and quiz delivery with shuffled
// options.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

type GetByModuleRequest struct {
	ModuleID string
}

// GetByModule returns the module's quiz with every question's options in a
// fresh random presentation order. Stored option order is unchanged.
func (s *Service) GetByModule(ctx context.Context, req GetByModuleRequest) (*domain.Quiz, error) {
	const stmt = `SELECT quiz_id, module_id, title FROM quizzes WHERE module_id = $1;`

	var q domain.Quiz
	err := s.db.QueryRow(ctx, stmt, req.ModuleID).Scan(&q.QuizID, &q.ModuleID, &q.Title)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFoundf("quiz not found: module=%s", req.ModuleID)
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz by module: %w", err)
	}

	questions, err := s.listQuestions(ctx, q.QuizID)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := range questions {
		questions[i].Options = Shuffle(rng, questions[i].Options)
	}
	q.Questions = questions

	return &q, nil
}

// listQuestions loads quiz questions ordered by question ID ascending, the
// same order grading iterates in.
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

type CreateQuizRequest struct {
	ModuleID string
	Title    string
}

// CreateQuiz creates the quiz for a module. A module holds at most one quiz;
// creating a second one fails with CodeAlreadyExists.
func (s *Service) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*domain.Quiz, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate quiz ID: %w", err)
	}

	const stmt = `INSERT INTO quizzes (quiz_id, module_id, title) VALUES ($1, $2, $3);`

	_, err = s.db.Exec(ctx, stmt, id, req.ModuleID, req.Title)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("module already has a quiz: module=%s", req.ModuleID),
			errors.WithCause(err))
	}

	if err != nil {
		return nil, fmt.Errorf("insert quiz: %w", err)
	}

	return &domain.Quiz{
		QuizID:   id.String(),
		ModuleID: req.ModuleID,
		Title:    req.Title,
	}, nil
}

type UpdateQuizRequest struct {
	QuizID string
	Title  string
}

func (s *Service) UpdateQuiz(ctx context.Context, req UpdateQuizRequest) error {
	const stmt = `UPDATE quizzes SET title = $2 WHERE quiz_id = $1;`

	tag, err := s.db.Exec(ctx, stmt, req.QuizID, req.Title)
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("quiz not found: quiz=%s", req.QuizID)
	}

	return nil
}

type DeleteQuizRequest struct {
	QuizID string
}

// DeleteQuiz removes a quiz together with its questions and attempts in one
// transaction. Attempts are deleted rather than orphaned: a grade history
// without its quiz cannot be re-interpreted.
func (s *Service) DeleteQuiz(ctx context.Context, req DeleteQuizRequest) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		delQuestionsStmt = `DELETE FROM questions WHERE quiz_id = $1;`
		delAttemptsStmt  = `DELETE FROM attempts WHERE quiz_id = $1;`
		delQuizStmt      = `DELETE FROM quizzes WHERE quiz_id = $1;`
	)

	if _, err = tx.Exec(ctx, delQuestionsStmt, req.QuizID); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}
	if _, err = tx.Exec(ctx, delAttemptsStmt, req.QuizID); err != nil {
		return fmt.Errorf("delete attempts: %w", err)
	}

	tag, err := tx.Exec(ctx, delQuizStmt, req.QuizID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("quiz not found: quiz=%s", req.QuizID)
	}

	return tx.Commit(ctx)
}

type AddQuestionRequest struct {
	QuizID  string
	Text    string
	Type    domain.QuestionType
	Options []string
}

// AddQuestion appends a question to a quiz. Options follow the storage
// convention documented on domain.Question.
func (s *Service) AddQuestion(ctx context.Context, req AddQuestionRequest) (*domain.Question, error) {
	if !req.Type.Valid() {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown question type: %q", req.Type))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate question ID: %w", err)
	}

	opts, err := json.Marshal(req.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	const stmt = `
INSERT INTO questions (question_id, quiz_id, question_text, question_type, options)
VALUES ($1, $2, $3, $4, $5);`

	if _, err := s.db.Exec(ctx, stmt, id, req.QuizID, req.Text, req.Type, opts); err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	return &domain.Question{
		QuestionID: id.String(),
		QuizID:     req.QuizID,
		Text:       req.Text,
		Type:       req.Type,
		Options:    req.Options,
	}, nil
}

type UpdateQuestionRequest struct {
	QuestionID string
	Text       string
	Type       domain.QuestionType
	Options    []string
}

func (s *Service) UpdateQuestion(ctx context.Context, req UpdateQuestionRequest) error {
	if !req.Type.Valid() {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown question type: %q", req.Type))
	}

	opts, err := json.Marshal(req.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	const stmt = `
UPDATE questions SET question_text = $2, question_type = $3, options = $4
WHERE question_id = $1;`

	tag, err := s.db.Exec(ctx, stmt, req.QuestionID, req.Text, req.Type, opts)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("question not found: question=%s", req.QuestionID)
	}

	return nil
}

type DeleteQuestionRequest struct {
	QuestionID string
}

func (s *Service) DeleteQuestion(ctx context.Context, req DeleteQuestionRequest) error {
	const stmt = `DELETE FROM questions WHERE question_id = $1;`

	tag, err := s.db.Exec(ctx, stmt, req.QuestionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("question not found: question=%s", req.QuestionID)
	}

	return nil
}
