package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Collection names.
const (
	CollectionCourses      = "courses"
	CollectionExams        = "exams"
	CollectionExamAttempts = "examAttempts"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// FilterOp is the comparison a Filter applies.
type FilterOp string

const (
	OpEq FilterOp = "=="
	OpIn FilterOp = "in"
)

// Filter restricts a query on one top-level document field.
type Filter struct {
	Field  string
	Op     FilterOp
	Values []any
}

// Eq matches documents whose field equals v.
func Eq(field string, v any) Filter {
	return Filter{Field: field, Op: OpEq, Values: []any{v}}
}

// In matches documents whose field equals any of vs.
func In(field string, vs ...any) Filter {
	return Filter{Field: field, Op: OpIn, Values: vs}
}

// Document is a raw stored document.
type Document struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// DB is the part of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DocumentStore is a collection/id keyed JSON document store on PostgreSQL.
// Every document body carries its own id under "id".
type DocumentStore struct {
	pool DB
}

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(pool DB) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// Create inserts doc under a fresh id and returns that id.
func (s *DocumentStore) Create(ctx context.Context, collection string, doc any) (string, error) {
	id := uuid.NewString()
	if err := s.CreateWithID(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// CreateWithID inserts doc under id. ErrConflict if the id or a unique field
// is already taken.
func (s *DocumentStore) CreateWithID(ctx context.Context, collection, id string, doc any) error {
	body, err := withID(doc, id)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)`,
		collection, id, body)
	return mapWriteError(err)
}

// Get loads one document into out.
func (s *DocumentStore) Get(ctx context.Context, collection, id string, out any) error {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return Document{ID: id, Data: data}.Decode(out)
}

// Update shallow-merges patch into the stored document. Keys present in
// patch replace the stored values; other keys are kept.
func (s *DocumentStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	delete(patch, "id")
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = NOW()
		 WHERE collection = $1 AND id = $2`,
		collection, id, body)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document.
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Query returns the documents of collection matching every filter, oldest first.
func (s *DocumentStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	query, args, err := buildQuery(collection, filters)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var data []byte
		if err := rows.Scan(&d.ID, &data, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Data = data
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// buildQuery renders the SQL for Query. Equality uses JSONB containment so the
// GIN index on data serves it; membership compares the field against the
// elements of a JSON array parameter.
func buildQuery(collection string, filters []Filter) (string, []any, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1`)
	args := []any{collection}

	for _, f := range filters {
		if !fieldPattern.MatchString(f.Field) {
			return "", nil, fmt.Errorf("%w: field %q", ErrInvalidFilter, f.Field)
		}
		switch f.Op {
		case OpEq:
			if len(f.Values) != 1 {
				return "", nil, fmt.Errorf("%w: %s needs exactly one value", ErrInvalidFilter, f.Field)
			}
			body, err := json.Marshal(map[string]any{f.Field: f.Values[0]})
			if err != nil {
				return "", nil, fmt.Errorf("marshal filter: %w", err)
			}
			args = append(args, body)
			b.WriteString(` AND data @> $` + strconv.Itoa(len(args)) + `::jsonb`)

		case OpIn:
			if len(f.Values) == 0 {
				// Nothing can match an empty membership set.
				b.WriteString(` AND FALSE`)
				continue
			}
			body, err := json.Marshal(f.Values)
			if err != nil {
				return "", nil, fmt.Errorf("marshal filter: %w", err)
			}
			args = append(args, f.Field)
			fieldArg := len(args)
			args = append(args, body)
			b.WriteString(` AND data -> $` + strconv.Itoa(fieldArg) +
				`::text IN (SELECT jsonb_array_elements($` + strconv.Itoa(len(args)) + `::jsonb))`)

		default:
			return "", nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Op)
		}
	}

	b.WriteString(` ORDER BY created_at, id`)
	return b.String(), args, nil
}

// withID marshals doc as a JSON object and stamps it with id.
func withID(doc any, id string) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	if obj == nil {
		obj = map[string]json.RawMessage{}
	}
	idJSON, _ := json.Marshal(id)
	obj["id"] = idJSON
	return json.Marshal(obj)
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}
