package model

import "time"

// IntegrityKind classifies an anti-cheat signal.
type IntegrityKind string

const (
	IntegrityVisibility  IntegrityKind = "visibility"
	IntegrityCopy        IntegrityKind = "copy"
	IntegrityCut         IntegrityKind = "cut"
	IntegrityPaste       IntegrityKind = "paste"
	IntegrityContextMenu IntegrityKind = "contextmenu"
)

// IntegrityEvent is one recorded anti-cheat signal for an attempt.
type IntegrityEvent struct {
	AttemptID    string        `json:"attempt_id"`
	ExamID       string        `json:"exam_id"`
	StudentEmail string        `json:"student_email"`
	Kind         IntegrityKind `json:"kind"`
	// Count is the violation count after this event (visibility only).
	Count      int       `json:"count,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
