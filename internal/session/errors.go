package session

import "errors"

var (
	// ErrNotFound means the exam does not exist. Fatal to the session.
	ErrNotFound = errors.New("exam not found")
	// ErrInvalidExam means the exam has no questions configured.
	ErrInvalidExam = errors.New("exam has no questions")
	// ErrWriteFailure means the authoritative result write failed after its retry.
	ErrWriteFailure = errors.New("failed to save exam result")
	// ErrNotStarted is returned by Run when Start did not succeed.
	ErrNotStarted = errors.New("session not started")
)
