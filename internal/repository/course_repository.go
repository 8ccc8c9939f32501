package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-classroom/internal/config"
	"github.com/stemsi/exstem-classroom/internal/model"
)

// CourseRepository reads course documents and their numbered sessions.
type CourseRepository struct {
	docs Documents
	rdb  *redis.Client
	ttl  time.Duration
}

// NewCourseRepository creates a new CourseRepository. rdb may be nil.
func NewCourseRepository(docs Documents, rdb *redis.Client, ttl time.Duration) *CourseRepository {
	return &CourseRepository{docs: docs, rdb: rdb, ttl: ttl}
}

// GetByID retrieves a course with its sessions sorted by number.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*model.Course, error) {
	key := config.CacheKey.CourseKey(id)
	if r.rdb != nil {
		if data, err := r.rdb.Get(ctx, key).Bytes(); err == nil {
			var c model.Course
			if json.Unmarshal(data, &c) == nil {
				return &c, nil
			}
			_ = r.rdb.Del(ctx, key).Err()
		}
	}

	var c model.Course
	if err := r.docs.Get(ctx, CollectionCourses, id, &c); err != nil {
		return nil, err
	}
	c.ID = id
	sortSessions(&c)

	if r.rdb != nil {
		if data, err := json.Marshal(&c); err == nil {
			_ = r.rdb.Set(ctx, key, data, r.ttl).Err()
		}
	}
	return &c, nil
}

// ListByProfessor returns the courses a professor owns.
func (r *CourseRepository) ListByProfessor(ctx context.Context, professorID string) ([]model.Course, error) {
	docs, err := r.docs.Query(ctx, CollectionCourses, Eq("profesorId", professorID))
	if err != nil {
		return nil, err
	}
	out := make([]model.Course, 0, len(docs))
	for _, d := range docs {
		var c model.Course
		if err := d.Decode(&c); err != nil {
			return nil, err
		}
		c.ID = d.ID
		sortSessions(&c)
		out = append(out, c)
	}
	return out, nil
}

// Upsert writes a whole course document. Used by the seeding tool; the
// student and professor flows only read courses.
func (r *CourseRepository) Upsert(ctx context.Context, c *model.Course) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	sortSessions(c)

	var err error
	if c.ID == "" {
		c.ID, err = r.docs.Create(ctx, CollectionCourses, c)
	} else {
		err = r.docs.CreateWithID(ctx, CollectionCourses, c.ID, c)
		if errors.Is(err, ErrConflict) {
			err = r.docs.Update(ctx, CollectionCourses, c.ID, courseFields(c))
		}
	}
	if err != nil {
		return fmt.Errorf("upsert course: %w", err)
	}
	if r.rdb != nil {
		_ = r.rdb.Del(ctx, config.CacheKey.CourseKey(c.ID)).Err()
	}
	return nil
}

func courseFields(c *model.Course) map[string]any {
	return map[string]any{
		"profesorId":  c.ProfessorID,
		"name":        c.Name,
		"nivel":       c.Level,
		"description": c.Description,
		"accessCode":  c.AccessCode,
		"sessions":    c.Sessions,
	}
}

func sortSessions(c *model.Course) {
	sort.SliceStable(c.Sessions, func(i, j int) bool {
		return c.Sessions[i].Number < c.Sessions[j].Number
	})
}
