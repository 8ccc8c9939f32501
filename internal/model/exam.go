package model

import (
	"time"
)

// ExamStatus enumerates the lifecycle states of an exam.
type ExamStatus string

const (
	ExamStatusDraft  ExamStatus = "draft"
	ExamStatusActive ExamStatus = "active"
	ExamStatusClosed ExamStatus = "closed"
)

// Exam is the definition of a timed multiple-choice exam. It is immutable
// while an attempt is running and read-only to students.
type Exam struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"courseId"`
	ProfessorID string     `json:"profesorId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AccessCode  string     `json:"accessCode"`
	Questions   []Question `json:"questions"`
	// TimeLimit is expressed in minutes.
	TimeLimit int `json:"timeLimit"`
	// Tolerance is the configured violation tolerance. The session controller
	// does not read it; the auto-submit threshold is fixed.
	Tolerance int        `json:"tolerance"`
	Status    ExamStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// TimeLimitSeconds is the countdown seed for a new attempt.
func (e *Exam) TimeLimitSeconds() int {
	return e.TimeLimit * 60
}

// ExamSummary is what a student sees after passing the access gate.
type ExamSummary struct {
	ID            string `json:"id"`
	CourseID      string `json:"course_id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	TimeLimit     int    `json:"time_limit"`
	QuestionCount int    `json:"question_count"`
}

// Summary strips the exam down to what is safe to show before the attempt starts.
func (e *Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:            e.ID,
		CourseID:      e.CourseID,
		Title:         e.Title,
		Description:   e.Description,
		TimeLimit:     e.TimeLimit,
		QuestionCount: len(e.Questions),
	}
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	CourseID    string `json:"course_id" binding:"required"`
	Title       string `json:"title" binding:"required,min=3,max=255"`
	Description string `json:"description" binding:"omitempty,max=2000"`
	TimeLimit   int    `json:"time_limit" binding:"required,min=1,max=480"`
	Tolerance   int    `json:"tolerance" binding:"omitempty,min=0,max=20"`
}

// GenerateQuestionsRequest asks the LLM to write questions from course material.
type GenerateQuestionsRequest struct {
	QuestionCount int `json:"question_count" binding:"required,min=1,max=50"`
}

// AccessRequest is the payload a student submits at the exam access gate.
type AccessRequest struct {
	AccessCode   string `json:"access_code" binding:"required,min=4,max=20"`
	StudentEmail string `json:"student_email" binding:"required,email"`
	StudentName  string `json:"student_name" binding:"required,fullname,max=120"`
}
