package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamDefinitionKey returns the cache key for a full exam document (questions included).
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// ExamAccessCodeKey maps an upper-cased access code to its exam id.
func (r *CacheKeyStruct) ExamAccessCodeKey(accessCode string) string {
	return fmt.Sprintf("exam:code:%s", accessCode)
}

// CourseKey returns the cache key for a course document.
func (r *CacheKeyStruct) CourseKey(courseID string) string {
	return fmt.Sprintf("course:%s", courseID)
}

// ProfessorSessionKey holds the token id of a professor's active session.
func (r *CacheKeyStruct) ProfessorSessionKey(professorID string) string {
	return fmt.Sprintf("professor:session:%s", professorID)
}

var CacheKey = NewCacheKeyStruct()
