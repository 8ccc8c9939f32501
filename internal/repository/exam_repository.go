package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/config"
	"github.com/stemsi/exstem-classroom/internal/model"
)

// ExamRepository handles exam documents. Full definitions are cached in Redis
// and the cache entry is dropped on every write.
type ExamRepository struct {
	docs Documents
	rdb  *redis.Client
	ttl  time.Duration
	log  zerolog.Logger
	now  func() time.Time
}

// NewExamRepository creates a new ExamRepository. rdb may be nil to disable caching.
func NewExamRepository(docs Documents, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ExamRepository {
	return &ExamRepository{
		docs: docs,
		rdb:  rdb,
		ttl:  ttl,
		log:  log.With().Str("component", "exam_repository").Logger(),
		now:  time.Now,
	}
}

// GetByID retrieves an exam, served from cache when possible.
func (r *ExamRepository) GetByID(ctx context.Context, id string) (*model.Exam, error) {
	if e, ok := r.cached(ctx, id); ok {
		return e, nil
	}

	var e model.Exam
	if err := r.docs.Get(ctx, CollectionExams, id, &e); err != nil {
		return nil, err
	}
	e.ID = id
	r.store(ctx, &e)
	return &e, nil
}

// GetByAccessCode looks up an exam by its access code. Codes are matched
// upper-cased.
func (r *ExamRepository) GetByAccessCode(ctx context.Context, code string) (*model.Exam, error) {
	code = NormalizeAccessCode(code)
	if code == "" {
		return nil, ErrNotFound
	}

	if r.rdb != nil {
		if id, err := r.rdb.Get(ctx, config.CacheKey.ExamAccessCodeKey(code)).Result(); err == nil {
			e, err := r.GetByID(ctx, id)
			if err == nil && e.AccessCode == code {
				return e, nil
			}
			// Stale mapping: fall through to the store.
			_ = r.rdb.Del(ctx, config.CacheKey.ExamAccessCodeKey(code)).Err()
		}
	}

	docs, err := r.docs.Query(ctx, CollectionExams, Eq("accessCode", code))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	var e model.Exam
	if err := docs[0].Decode(&e); err != nil {
		return nil, err
	}
	e.ID = docs[0].ID

	if r.rdb != nil {
		_ = r.rdb.Set(ctx, config.CacheKey.ExamAccessCodeKey(code), e.ID, r.ttl).Err()
	}
	return &e, nil
}

// ListByCourse returns the exams of a course, oldest first.
func (r *ExamRepository) ListByCourse(ctx context.Context, courseID string) ([]model.Exam, error) {
	docs, err := r.docs.Query(ctx, CollectionExams, Eq("courseId", courseID))
	if err != nil {
		return nil, err
	}
	exams := make([]model.Exam, 0, len(docs))
	for _, d := range docs {
		var e model.Exam
		if err := d.Decode(&e); err != nil {
			return nil, err
		}
		e.ID = d.ID
		exams = append(exams, e)
	}
	return exams, nil
}

// Create inserts a new exam and fills its id and timestamps. ErrConflict means
// the access code is taken.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	now := r.now().UTC()
	e.AccessCode = NormalizeAccessCode(e.AccessCode)
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Questions == nil {
		e.Questions = []model.Question{}
	}
	id, err := r.docs.Create(ctx, CollectionExams, e)
	if err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	e.ID = id
	return nil
}

// ReplaceQuestions overwrites the exam's question list.
func (r *ExamRepository) ReplaceQuestions(ctx context.Context, id string, questions []model.Question) error {
	return r.update(ctx, id, map[string]any{"questions": questions})
}

// UpdateStatus moves an exam through its lifecycle.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id string, status model.ExamStatus) error {
	return r.update(ctx, id, map[string]any{"status": status})
}

// Invalidate drops the cached definition of an exam.
func (r *ExamRepository) Invalidate(ctx context.Context, id string) {
	if r.rdb == nil {
		return
	}
	if err := r.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(id)).Err(); err != nil {
		r.log.Warn().Err(err).Str("exam_id", id).Msg("Failed to invalidate exam cache")
	}
}

func (r *ExamRepository) update(ctx context.Context, id string, patch map[string]any) error {
	patch["updatedAt"] = r.now().UTC()
	if err := r.docs.Update(ctx, CollectionExams, id, patch); err != nil {
		return fmt.Errorf("update exam %s: %w", id, err)
	}
	r.Invalidate(ctx, id)
	return nil
}

func (r *ExamRepository) cached(ctx context.Context, id string) (*model.Exam, bool) {
	if r.rdb == nil {
		return nil, false
	}
	key := config.CacheKey.ExamDefinitionKey(id)
	data, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn().Err(err).Str("exam_id", id).Msg("Exam cache read failed")
		}
		return nil, false
	}

	var e model.Exam
	if err := json.Unmarshal(data, &e); err != nil {
		// Corrupt entry: drop it so the next read repopulates.
		r.log.Warn().Err(err).Str("exam_id", id).Msg("Discarding corrupt exam cache entry")
		_ = r.rdb.Del(ctx, key).Err()
		return nil, false
	}
	return &e, true
}

func (r *ExamRepository) store(ctx context.Context, e *model.Exam) {
	if r.rdb == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(e.ID), data, r.ttl).Err(); err != nil {
		r.log.Warn().Err(err).Str("exam_id", e.ID).Msg("Exam cache write failed")
	}
}

// NormalizeAccessCode trims and upper-cases an access code.
func NormalizeAccessCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
