package model

import "time"

// SubmissionReason records why an attempt ended.
type SubmissionReason string

const (
	ReasonManual               SubmissionReason = "manual"
	ReasonTimeout              SubmissionReason = "timeout"
	ReasonInactivity           SubmissionReason = "inactivity"
	ReasonVisibilityViolations SubmissionReason = "visibility_violations"
)

// AttemptStatus is derived from whether the result has been written.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
)

// Answers maps question id to the chosen option index. Unanswered questions
// are absent.
type Answers map[string]int

// Clone returns an independent copy.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ExamAttempt is one student's single pass at an exam.
type ExamAttempt struct {
	ID                  string            `json:"id"`
	ExamID              string            `json:"examId"`
	StudentEmail        string            `json:"studentEmail"`
	StudentName         string            `json:"studentName"`
	Answers             Answers           `json:"answers"`
	Status              AttemptStatus     `json:"status"`
	StartedAt           time.Time         `json:"startedAt"`
	SubmittedAt         *time.Time        `json:"submittedAt"`
	Score               *float64          `json:"score"`
	AutoSubmitted       bool              `json:"autoSubmitted"`
	SubmissionReason    *SubmissionReason `json:"submissionReason"`
	VisibilityWarnings  int               `json:"visibilityWarnings"`
	Feedback            *string           `json:"feedback"`
	FeedbackGeneratedAt *time.Time        `json:"feedbackGeneratedAt,omitempty"`
}

// AttemptResult is the terminal write performed exactly once at submission.
type AttemptResult struct {
	Answers            Answers          `json:"answers"`
	Score              float64          `json:"score"`
	SubmittedAt        time.Time        `json:"submittedAt"`
	AutoSubmitted      bool             `json:"autoSubmitted"`
	SubmissionReason   SubmissionReason `json:"submissionReason"`
	VisibilityWarnings int              `json:"visibilityWarnings"`
}

// FeedbackRequest is the payload handed to the feedback generator.
type FeedbackRequest struct {
	AttemptID    string  `json:"attemptId"`
	ExamID       string  `json:"examId"`
	StudentEmail string  `json:"studentEmail"`
	Answers      Answers `json:"answers"`
	Score        float64 `json:"score"`
}
