package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stemsi/exstem-classroom/internal/model"
)

func TestBuildQuery(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		q, args, err := buildQuery(CollectionExams, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(q, "WHERE collection = $1") || !strings.HasSuffix(q, "ORDER BY created_at, id") {
			t.Errorf("query = %s", q)
		}
		if len(args) != 1 || args[0] != CollectionExams {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("equality uses containment", func(t *testing.T) {
		q, args, err := buildQuery(CollectionExamAttempts, []Filter{
			Eq("examId", "e1"),
			Eq("studentEmail", "a@b.co"),
		})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(q, "data @> $2::jsonb") || !strings.Contains(q, "data @> $3::jsonb") {
			t.Errorf("query = %s", q)
		}
		if string(args[1].([]byte)) != `{"examId":"e1"}` {
			t.Errorf("arg 2 = %s", args[1])
		}
	})

	t.Run("null equality", func(t *testing.T) {
		_, args, err := buildQuery(CollectionExamAttempts, []Filter{Eq("feedback", nil)})
		if err != nil {
			t.Fatal(err)
		}
		if string(args[1].([]byte)) != `{"feedback":null}` {
			t.Errorf("arg = %s", args[1])
		}
	})

	t.Run("membership", func(t *testing.T) {
		q, args, err := buildQuery(CollectionExams, []Filter{In("status", "active", "closed")})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(q, "data -> $2::text IN (SELECT jsonb_array_elements($3::jsonb))") {
			t.Errorf("query = %s", q)
		}
		if args[1] != "status" || string(args[2].([]byte)) != `["active","closed"]` {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("empty membership matches nothing", func(t *testing.T) {
		q, _, err := buildQuery(CollectionExams, []Filter{In("status")})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(q, "AND FALSE") {
			t.Errorf("query = %s", q)
		}
	})

	for _, f := range []Filter{
		Eq("data'; DROP TABLE documents; --", 1),
		Eq("", 1),
		{Field: "x", Op: "like", Values: []any{"a"}},
		{Field: "x", Op: OpEq},
	} {
		if _, _, err := buildQuery(CollectionExams, []Filter{f}); !errors.Is(err, ErrInvalidFilter) {
			t.Errorf("filter %+v: err = %v, want ErrInvalidFilter", f, err)
		}
	}
}

func TestWithID(t *testing.T) {
	body, err := withID(struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}{ID: "ignored", Name: "x"}, "doc-9")
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]string
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got["id"] != "doc-9" || got["name"] != "x" {
		t.Errorf("body = %s", body)
	}

	if _, err := withID([]int{1}, "x"); err == nil {
		t.Error("non-object documents must be rejected")
	}
}

// fakeDB answers every Exec with tag/err and every QueryRow with row.
type fakeDB struct {
	tag   pgconn.CommandTag
	err   error
	row   fakeRow
	execs []fakeCall
}

type fakeCall struct {
	sql  string
	args []any
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, fakeCall{sql: sql, args: args})
	return f.tag, f.err
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("fakeDB: Query not supported")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return f.row
}

type fakeRow struct {
	data []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*[]byte) = r.data
	return nil
}

func TestDocumentStoreStaleIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		db   *fakeDB
		call func(*DocumentStore) error
	}{
		{"update", &fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")}, func(s *DocumentStore) error {
			return s.Update(ctx, CollectionExams, "gone", map[string]any{"title": "x"})
		}},
		{"delete", &fakeDB{tag: pgconn.NewCommandTag("DELETE 0")}, func(s *DocumentStore) error {
			return s.Delete(ctx, CollectionExams, "gone")
		}},
		{"get", &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}, func(s *DocumentStore) error {
			var out map[string]any
			return s.Get(ctx, CollectionExams, "gone", &out)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(NewDocumentStore(tt.db)); !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestDocumentStoreUpdate(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 1")}
	s := NewDocumentStore(db)

	if err := s.Update(context.Background(), CollectionExams, "e1", map[string]any{"id": "other", "status": "closed"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(db.execs) != 1 {
		t.Fatalf("execs = %d", len(db.execs))
	}
	var patch map[string]any
	if err := json.Unmarshal(db.execs[0].args[2].([]byte), &patch); err != nil {
		t.Fatal(err)
	}
	if _, ok := patch["id"]; ok || patch["status"] != "closed" {
		t.Errorf("patch = %v, the stored id must not be overwritten", patch)
	}

	if err := s.Update(context.Background(), CollectionExams, "e1", nil); err != nil || len(db.execs) != 1 {
		t.Errorf("empty patch: err = %v, execs = %d", err, len(db.execs))
	}
}

func TestDocumentStoreWriteErrors(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "uq_exams_access_code"}
	s := NewDocumentStore(&fakeDB{err: unique})

	err := s.CreateWithID(context.Background(), CollectionExams, "e1", map[string]any{"accessCode": "ABC123"})
	if !errors.Is(err, ErrConflict) || !strings.Contains(err.Error(), "uq_exams_access_code") {
		t.Errorf("create err = %v, want ErrConflict naming the index", err)
	}
	if err := s.Update(context.Background(), CollectionExams, "e1", map[string]any{"accessCode": "ABC123"}); !errors.Is(err, ErrConflict) {
		t.Errorf("update err = %v, want ErrConflict", err)
	}

	down := errors.New("connection reset")
	s = NewDocumentStore(&fakeDB{err: down})
	if err := s.Delete(context.Background(), CollectionExams, "e1"); !errors.Is(err, down) || errors.Is(err, ErrNotFound) {
		t.Errorf("delete err = %v, want the driver error", err)
	}
}

func TestDocumentStoreGetDecodes(t *testing.T) {
	s := NewDocumentStore(&fakeDB{row: fakeRow{data: []byte(`{"id":"e1","title":"Quiz"}`)}})
	var out struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := s.Get(context.Background(), CollectionExams, "e1", &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != "e1" || out.Title != "Quiz" {
		t.Errorf("out = %+v", out)
	}
}

func TestAppendResultToRemovedAttempt(t *testing.T) {
	r := NewAttemptRepository(NewDocumentStore(&fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")}))
	err := r.AppendResult(context.Background(), "att-stale", model.AttemptResult{
		Score:            5,
		SubmittedAt:      time.Now(),
		SubmissionReason: model.ReasonManual,
	})
	if !errors.Is(err, ErrNotFound) || !strings.Contains(err.Error(), "att-stale") {
		t.Fatalf("err = %v, want ErrNotFound naming the attempt", err)
	}
}
