package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// memDocs is an in-memory Documents with the same unique indexes as the
// migrations declare.
type memDocs struct {
	mu    sync.Mutex
	seq   int
	data  map[string]map[string]map[string]any
	order map[string][]string
}

func newMemDocs() *memDocs {
	return &memDocs{
		data:  map[string]map[string]map[string]any{},
		order: map[string][]string{},
	}
}

var uniqueFields = map[string][]string{
	CollectionExamAttempts: {"examId", "studentEmail"},
	CollectionExams:        {"accessCode"},
}

func (m *memDocs) Create(ctx context.Context, collection string, doc any) (string, error) {
	m.mu.Lock()
	m.seq++
	id := fmt.Sprintf("doc-%d", m.seq)
	m.mu.Unlock()
	return id, m.CreateWithID(ctx, collection, id, doc)
}

func (m *memDocs) CreateWithID(_ context.Context, collection, id string, doc any) error {
	body, err := withID(doc, id)
	if err != nil {
		return err
	}
	var obj map[string]any
	_ = json.Unmarshal(body, &obj)

	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.data[collection]
	if coll == nil {
		coll = map[string]map[string]any{}
		m.data[collection] = coll
	}
	if _, ok := coll[id]; ok {
		return ErrConflict
	}
	if fields := uniqueFields[collection]; fields != nil {
		for _, other := range coll {
			same := true
			for _, f := range fields {
				if !reflect.DeepEqual(other[f], obj[f]) {
					same = false
				}
			}
			if same {
				return ErrConflict
			}
		}
	}
	coll[id] = obj
	m.order[collection] = append(m.order[collection], id)
	return nil
}

func (m *memDocs) Get(_ context.Context, collection, id string, out any) error {
	m.mu.Lock()
	obj, ok := m.data[collection][id]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	b, _ := json.Marshal(obj)
	return json.Unmarshal(b, out)
}

func (m *memDocs) Update(_ context.Context, collection, id string, patch map[string]any) error {
	b, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	var norm map[string]any
	_ = json.Unmarshal(b, &norm)

	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range norm {
		if k != "id" {
			obj[k] = v
		}
	}
	return nil
}

func (m *memDocs) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.data[collection], id)
	return nil
}

func (m *memDocs) Query(_ context.Context, collection string, filters ...Filter) ([]Document, error) {
	if _, _, err := buildQuery(collection, filters); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Document
	for _, id := range m.order[collection] {
		obj, ok := m.data[collection][id]
		if !ok || !matches(obj, filters) {
			continue
		}
		b, _ := json.Marshal(obj)
		out = append(out, Document{ID: id, Data: b, CreatedAt: time.Time{}})
	}
	return out, nil
}

func matches(obj map[string]any, filters []Filter) bool {
	for _, f := range filters {
		got, present := obj[f.Field]
		hit := false
		for _, v := range f.Values {
			want := normalize(v)
			if want == nil && f.Op == OpEq && present && got == nil {
				hit = true
			} else if want != nil && reflect.DeepEqual(got, want) {
				hit = true
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func normalize(v any) any {
	b, _ := json.Marshal(v)
	var out any
	_ = json.Unmarshal(b, &out)
	return out
}
