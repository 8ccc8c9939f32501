package model

import "time"

// CourseSession is one numbered lesson of a course.
type CourseSession struct {
	Number        int    `json:"sessionNumber"`
	Title         string `json:"title"`
	KeyTopics     string `json:"keyTopics,omitempty"`
	Documentation string `json:"documentation,omitempty"`
}

// Course owns exams and carries the Markdown lesson content used as
// open-book material and as the source for question generation.
type Course struct {
	ID          string          `json:"id"`
	ProfessorID string          `json:"profesorId"`
	Name        string          `json:"name"`
	Level       string          `json:"nivel,omitempty"`
	Description string          `json:"description,omitempty"`
	AccessCode  string          `json:"accessCode,omitempty"`
	Sessions    []CourseSession `json:"sessions"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// DocumentedSessions returns the sessions that have lesson content.
func (c *Course) DocumentedSessions() []CourseSession {
	out := make([]CourseSession, 0, len(c.Sessions))
	for _, s := range c.Sessions {
		if s.Documentation != "" {
			out = append(out, s)
		}
	}
	return out
}
