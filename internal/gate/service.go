package gate

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/openlearn/coursehub/internal/domain"
	"github.com/openlearn/coursehub/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool

	// PassingScore is the platform-wide threshold (0-100) at or above which a
	// graded attempt counts as passed.
	PassingScore decimal.Decimal
}

// Service decides module access from quiz pass state. Modules within a course
// unlock sequentially: each module's gate is its immediate predecessor's quiz.
type Service struct {
	db        *pgxpool.Pool
	threshold decimal.Decimal
}

func NewService(c Config) *Service {
	return &Service{
		db:        c.DB,
		threshold: c.PassingScore,
	}
}

type HasPassedQuizRequest struct {
	ModuleID string
	UserID   string
}

// HasPassedQuiz reports whether the user passed the module's quiz. Modules
// without a quiz count as passed.
func (s *Service) HasPassedQuiz(ctx context.Context, req HasPassedQuizRequest) (bool, error) {
	const stmt = `
SELECT COALESCE(q.quiz_id::text, '')
FROM modules m
LEFT JOIN quizzes q ON q.module_id = m.module_id
WHERE m.module_id = $1;`

	var quizID string
	err := s.db.QueryRow(ctx, stmt, req.ModuleID).Scan(&quizID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return false, errors.NotFoundf("module not found: module=%s", req.ModuleID)
	}
	if err != nil {
		return false, fmt.Errorf("get module quiz: %w", err)
	}

	if quizID == "" {
		return true, nil
	}

	return s.hasPassed(ctx, quizID, req.UserID)
}

func (s *Service) hasPassed(ctx context.Context, quizID, userID string) (bool, error) {
	const stmt = `
SELECT EXISTS (
	SELECT 1 FROM attempts
	WHERE quiz_id = $1 AND user_id = $2 AND is_graded AND score >= $3
);`

	var passed bool
	if err := s.db.QueryRow(ctx, stmt, quizID, userID, s.threshold).Scan(&passed); err != nil {
		return false, fmt.Errorf("check quiz passed: %w", err)
	}

	return passed, nil
}

type CanAccessRequest struct {
	ModuleID string
	UserID   string
}

// CanAccess reports whether the user may open the module. The first module of
// a course is always open; any other module requires its immediate
// predecessor's quiz, when present, to be passed.
func (s *Service) CanAccess(ctx context.Context, req CanAccessRequest) (bool, error) {
	const stmt = `SELECT course_id FROM modules WHERE module_id = $1;`

	var courseID string
	err := s.db.QueryRow(ctx, stmt, req.ModuleID).Scan(&courseID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return false, errors.NotFoundf("module not found: module=%s", req.ModuleID)
	}
	if err != nil {
		return false, fmt.Errorf("get module course: %w", err)
	}

	modules, passed, err := s.loadCourseState(ctx, courseID, req.UserID)
	if err != nil {
		return false, err
	}

	return CanAccess(modules, req.ModuleID, passed), nil
}

type AccessibleModulesRequest struct {
	CourseID string
	UserID   string
}

// AccessibleModules returns the IDs of the course's modules the user may
// open, in course order.
func (s *Service) AccessibleModules(ctx context.Context, req AccessibleModulesRequest) ([]string, error) {
	modules, passed, err := s.loadCourseState(ctx, req.CourseID, req.UserID)
	if err != nil {
		return nil, err
	}

	return AccessibleIDs(modules, passed), nil
}

// loadCourseState loads the course's modules in position order together with
// a PassFunc backed by one pass-state query, so the walk and the point check
// see the same snapshot.
func (s *Service) loadCourseState(ctx context.Context, courseID, userID string) ([]domain.Module, PassFunc, error) {
	const modStmt = `
SELECT m.module_id, m.course_id, m.title, m.position, COALESCE(q.quiz_id::text, '')
FROM modules m
LEFT JOIN quizzes q ON q.module_id = m.module_id
WHERE m.course_id = $1
ORDER BY m.position;`

	rows, err := s.db.Query(ctx, modStmt, courseID)
	if err != nil {
		return nil, nil, fmt.Errorf("list modules: %w", err)
	}

	modules, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Module, error) {
		var m domain.Module
		if err := r.Scan(&m.ModuleID, &m.CourseID, &m.Title, &m.Position, &m.QuizID); err != nil {
			return domain.Module{}, err
		}
		return m, nil
	})
	if err != nil {
		return nil, nil, err
	}

	const passStmt = `
SELECT q.module_id::text
FROM quizzes q
JOIN modules m ON m.module_id = q.module_id
JOIN attempts a ON a.quiz_id = q.quiz_id
WHERE m.course_id = $1 AND a.user_id = $2 AND a.is_graded AND a.score >= $3
GROUP BY q.module_id;`

	rows, err = s.db.Query(ctx, passStmt, courseID, userID, s.threshold)
	if err != nil {
		return nil, nil, fmt.Errorf("list passed modules: %w", err)
	}

	passedIDs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (string, error) {
		var id string
		err := r.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, nil, err
	}

	passedSet := make(map[string]bool, len(passedIDs))
	for _, id := range passedIDs {
		passedSet[id] = true
	}

	passed := func(m domain.Module) bool {
		return !m.HasQuiz() || passedSet[m.ModuleID]
	}

	return modules, passed, nil
}

type NextModuleRequest struct {
	ModuleID string
}

// NextModule returns the module that follows the given one in its course: the
// smallest position strictly greater than the module's own. Returns nil when
// the module is the last one.
func (s *Service) NextModule(ctx context.Context, req NextModuleRequest) (*domain.NextModule, error) {
	const stmt = `
SELECT n.module_id, n.title
FROM modules m
JOIN modules n ON n.course_id = m.course_id AND n.position > m.position
WHERE m.module_id = $1
ORDER BY n.position
LIMIT 1;`

	var next domain.NextModule
	err := s.db.QueryRow(ctx, stmt, req.ModuleID).Scan(&next.ModuleID, &next.Title)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get next module: %w", err)
	}

	return &next, nil
}
