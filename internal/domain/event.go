package domain

const (
	EventNameAttemptGraded   = "attempt.graded"
	EventNameProgressUpdated = "progress.updated"
)

type EventAttemptGraded struct {
	Attempt  Attempt
	CourseID string
	Passed   bool
}

func (EventAttemptGraded) Name() string { return EventNameAttemptGraded }

type EventProgressUpdated struct {
	Progress Progress
}

func (EventProgressUpdated) Name() string { return EventNameProgressUpdated }
