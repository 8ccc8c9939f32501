package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-classroom/internal/config"
	"github.com/stemsi/exstem-classroom/internal/model"
)

// IntegrityRecorder pushes anti-cheat events onto the integrity queue. The
// integrity worker batch-persists them.
type IntegrityRecorder struct {
	rdb *redis.Client
}

// NewIntegrityRecorder creates a new IntegrityRecorder.
func NewIntegrityRecorder(rdb *redis.Client) *IntegrityRecorder {
	return &IntegrityRecorder{rdb: rdb}
}

// Record queues one event.
func (r *IntegrityRecorder) Record(ctx context.Context, ev model.IntegrityEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal integrity event: %w", err)
	}
	return r.rdb.RPush(ctx, config.WorkerKey.PersistIntegrityQueue, data).Err()
}

// ExamCatalog serves exam definitions together with their course material.
type ExamCatalog struct {
	exams   ExamReader
	courses CourseStore
}

// NewExamCatalog creates a new ExamCatalog.
func NewExamCatalog(exams ExamReader, courses CourseStore) *ExamCatalog {
	return &ExamCatalog{exams: exams, courses: courses}
}

// GetExam loads an exam definition.
func (c *ExamCatalog) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	return c.exams.GetByID(ctx, examID)
}

// GetCourse loads a course.
func (c *ExamCatalog) GetCourse(ctx context.Context, courseID string) (*model.Course, error) {
	return c.courses.GetByID(ctx, courseID)
}
