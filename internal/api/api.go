package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/openlearn/coursehub/internal/attempt"
	"github.com/openlearn/coursehub/internal/domain"
	"github.com/openlearn/coursehub/internal/errors"
	"github.com/openlearn/coursehub/internal/event"
	"github.com/openlearn/coursehub/internal/gate"
	"github.com/openlearn/coursehub/internal/progress"
	"github.com/openlearn/coursehub/internal/quiz"
)

type Config struct {
	Router       *gin.Engine
	EventBus     *event.Bus
	Quiz         *quiz.Service
	Attempt      *attempt.Service
	Gate         *gate.Service
	Progress     *progress.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// API exposes the quiz lifecycle over HTTP/JSON. The same routes serve the
// browser flow and programmatic clients; both receive the same result shape.
type API struct {
	qs *quiz.Service
	as *attempt.Service
	gs *gate.Service
	ps *progress.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		qs:     c.Quiz,
		as:     c.Attempt,
		gs:     c.Gate,
		ps:     c.Progress,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	v1 := c.Router.Group("/v1")
	{
		// Learner flow: fetch -> start -> submit -> grade.
		v1.GET("/modules/:module_id/quiz", a.GetModuleQuiz)
		v1.POST("/quizzes/:quiz_id/attempts", a.StartAttempt)
		v1.PUT("/attempts/:attempt_id/answers", a.SubmitAnswers)
		v1.POST("/attempts/:attempt_id/grade", a.GradeAttempt)

		// Module gating.
		v1.GET("/modules/:module_id/access", a.GetModuleAccess)
		v1.GET("/modules/:module_id/quiz/passed", a.GetModuleQuizPassed)
		v1.GET("/courses/:course_id/modules/accessible", a.ListAccessibleModules)

		// Course standings.
		v1.GET("/courses/:course_id/progress", a.GetCourseProgress)

		// Authoring.
		v1.POST("/quizzes", a.CreateQuiz)
		v1.PUT("/quizzes/:quiz_id", a.UpdateQuiz)
		v1.DELETE("/quizzes/:quiz_id", a.DeleteQuiz)
		v1.POST("/quizzes/:quiz_id/questions", a.AddQuestion)
		v1.PUT("/questions/:question_id", a.UpdateQuestion)
		v1.DELETE("/questions/:question_id", a.DeleteQuestion)
	}

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameAttemptGraded, func(ctx context.Context, e event.Event) error {
		return a.PublishAttemptGraded(ctx, e.(domain.EventAttemptGraded))
	})
	c.EventBus.Subscribe(domain.EventNameProgressUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishProgressUpdated(ctx, e.(domain.EventProgressUpdated))
	})

	return a
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}

type (
	Question struct {
		QuestionID string   `json:"question_id"`
		Text       string   `json:"text"`
		Type       string   `json:"type"`
		Options    []string `json:"options"`
	}

	Quiz struct {
		QuizID    string     `json:"quiz_id"`
		ModuleID  string     `json:"module_id"`
		Title     string     `json:"title"`
		Questions []Question `json:"questions"`
	}
)

// GetModuleQuiz returns the module's quiz with options in a fresh random
// order per call.
func (a *API) GetModuleQuiz(c *gin.Context) {
	q, err := a.qs.GetByModule(c.Request.Context(), quiz.GetByModuleRequest{
		ModuleID: c.Param("module_id"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := Quiz{
		QuizID:    q.QuizID,
		ModuleID:  q.ModuleID,
		Title:     q.Title,
		Questions: make([]Question, 0, len(q.Questions)),
	}
	for _, question := range q.Questions {
		resp.Questions = append(resp.Questions, Question{
			QuestionID: question.QuestionID,
			Text:       question.Text,
			Type:       string(question.Type),
			Options:    question.Options,
		})
	}

	c.JSON(http.StatusOK, resp)
}

type (
	StartAttemptRequest struct {
		UserID string `json:"user_id" binding:"required"`
	}

	Attempt struct {
		AttemptID string `json:"attempt_id"`
		QuizID    string `json:"quiz_id"`
		UserID    string `json:"user_id"`
		StartedAt string `json:"started_at"`
	}
)

func (a *API) StartAttempt(c *gin.Context) {
	var req StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	at, err := a.as.Start(c.Request.Context(), attempt.StartRequest{
		QuizID: c.Param("quiz_id"),
		UserID: req.UserID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Attempt{
		AttemptID: at.AttemptID,
		QuizID:    at.QuizID,
		UserID:    at.UserID,
		StartedAt: at.StartedAt.Format(http.TimeFormat),
	})
}

type (
	Answer struct {
		QuestionID      string   `json:"question_id" binding:"required"`
		FreeText        string   `json:"free_text"`
		SelectedOptions []string `json:"selected_options"`
	}

	SubmitAnswersRequest struct {
		Answers []Answer `json:"answers"`
	}
)

func (a *API) SubmitAnswers(c *gin.Context) {
	var req SubmitAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	answers := make([]domain.Answer, 0, len(req.Answers))
	for _, ans := range req.Answers {
		answers = append(answers, domain.Answer{
			QuestionID:      ans.QuestionID,
			FreeText:        ans.FreeText,
			SelectedOptions: ans.SelectedOptions,
		})
	}

	err := a.as.Submit(c.Request.Context(), attempt.SubmitRequest{
		AttemptID: c.Param("attempt_id"),
		Answers:   answers,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type (
	Feedback struct {
		QuestionID     string `json:"question_id"`
		EarnedPoints   string `json:"earned_points"`
		PossiblePoints string `json:"possible_points"`
		Message        string `json:"message"`
	}

	NextModule struct {
		ModuleID string `json:"module_id"`
		Title    string `json:"title"`
	}

	GradeResult struct {
		AttemptID     string      `json:"attempt_id"`
		QuizID        string      `json:"quiz_id"`
		UserID        string      `json:"user_id"`
		Score         string      `json:"score"`
		Passed        bool        `json:"passed"`
		Feedback      []Feedback  `json:"feedback"`
		UnlocksModule *NextModule `json:"unlocks_module,omitempty"`
	}
)

func (a *API) GradeAttempt(c *gin.Context) {
	r, err := a.as.Grade(c.Request.Context(), attempt.GradeRequest{
		AttemptID: c.Param("attempt_id"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := GradeResult{
		AttemptID: r.AttemptID,
		QuizID:    r.QuizID,
		UserID:    r.UserID,
		Score:     r.Score.StringFixed(2),
		Passed:    r.Passed,
		Feedback:  make([]Feedback, 0, len(r.Feedback)),
	}
	for _, f := range r.Feedback {
		resp.Feedback = append(resp.Feedback, Feedback{
			QuestionID:     f.QuestionID,
			EarnedPoints:   f.EarnedPoints.StringFixed(2),
			PossiblePoints: f.PossiblePoints.StringFixed(2),
			Message:        f.Message,
		})
	}
	if r.UnlocksModule != nil {
		resp.UnlocksModule = &NextModule{
			ModuleID: r.UnlocksModule.ModuleID,
			Title:    r.UnlocksModule.Title,
		}
	}

	c.JSON(http.StatusOK, resp)
}

type ModuleAccess struct {
	ModuleID  string `json:"module_id"`
	UserID    string `json:"user_id"`
	CanAccess bool   `json:"can_access"`
}

func (a *API) GetModuleAccess(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("user_id is required")))
		return
	}

	ok, err := a.gs.CanAccess(c.Request.Context(), gate.CanAccessRequest{
		ModuleID: c.Param("module_id"),
		UserID:   userID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ModuleAccess{
		ModuleID:  c.Param("module_id"),
		UserID:    userID,
		CanAccess: ok,
	})
}

type ModuleQuizPassed struct {
	ModuleID string `json:"module_id"`
	UserID   string `json:"user_id"`
	Passed   bool   `json:"passed"`
}

// GetModuleQuizPassed reports whether the user passed the module's quiz.
// Modules without a quiz always report passed.
func (a *API) GetModuleQuizPassed(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("user_id is required")))
		return
	}

	ok, err := a.gs.HasPassedQuiz(c.Request.Context(), gate.HasPassedQuizRequest{
		ModuleID: c.Param("module_id"),
		UserID:   userID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ModuleQuizPassed{
		ModuleID: c.Param("module_id"),
		UserID:   userID,
		Passed:   ok,
	})
}

type AccessibleModules struct {
	CourseID  string   `json:"course_id"`
	UserID    string   `json:"user_id"`
	ModuleIDs []string `json:"module_ids"`
}

func (a *API) ListAccessibleModules(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("user_id is required")))
		return
	}

	ids, err := a.gs.AccessibleModules(c.Request.Context(), gate.AccessibleModulesRequest{
		CourseID: c.Param("course_id"),
		UserID:   userID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, AccessibleModules{
		CourseID:  c.Param("course_id"),
		UserID:    userID,
		ModuleIDs: ids,
	})
}

func (a *API) GetCourseProgress(c *gin.Context) {
	p, err := a.ps.GetProgress(c.Request.Context(), progress.GetProgressRequest{
		CourseID: c.Param("course_id"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := Progress{
		CourseID: p.CourseID,
		Entries:  make([]ProgressEntry, 0, len(p.Entries)),
	}
	for _, e := range p.Entries {
		resp.Entries = append(resp.Entries, ProgressEntry{
			UserID: e.UserID,
			Score:  e.Score,
		})
	}

	c.JSON(http.StatusOK, resp)
}

type (
	CreateQuizRequest struct {
		ModuleID string `json:"module_id" binding:"required"`
		Title    string `json:"title" binding:"required"`
	}

	UpdateQuizRequest struct {
		Title string `json:"title" binding:"required"`
	}
)

func (a *API) CreateQuiz(c *gin.Context) {
	var req CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	q, err := a.qs.CreateQuiz(c.Request.Context(), quiz.CreateQuizRequest{
		ModuleID: req.ModuleID,
		Title:    req.Title,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Quiz{
		QuizID:   q.QuizID,
		ModuleID: q.ModuleID,
		Title:    q.Title,
	})
}

func (a *API) UpdateQuiz(c *gin.Context) {
	var req UpdateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	err := a.qs.UpdateQuiz(c.Request.Context(), quiz.UpdateQuizRequest{
		QuizID: c.Param("quiz_id"),
		Title:  req.Title,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) DeleteQuiz(c *gin.Context) {
	err := a.qs.DeleteQuiz(c.Request.Context(), quiz.DeleteQuizRequest{
		QuizID: c.Param("quiz_id"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type QuestionRequest struct {
	Text    string   `json:"text" binding:"required"`
	Type    string   `json:"type" binding:"required"`
	Options []string `json:"options" binding:"required"`
}

func (a *API) AddQuestion(c *gin.Context) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	q, err := a.qs.AddQuestion(c.Request.Context(), quiz.AddQuestionRequest{
		QuizID:  c.Param("quiz_id"),
		Text:    req.Text,
		Type:    domain.QuestionType(req.Type),
		Options: req.Options,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Question{
		QuestionID: q.QuestionID,
		Text:       q.Text,
		Type:       string(q.Type),
		Options:    q.Options,
	})
}

func (a *API) UpdateQuestion(c *gin.Context) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	err := a.qs.UpdateQuestion(c.Request.Context(), quiz.UpdateQuestionRequest{
		QuestionID: c.Param("question_id"),
		Text:       req.Text,
		Type:       domain.QuestionType(req.Type),
		Options:    req.Options,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) DeleteQuestion(c *gin.Context) {
	err := a.qs.DeleteQuestion(c.Request.Context(), quiz.DeleteQuestionRequest{
		QuestionID: c.Param("question_id"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
