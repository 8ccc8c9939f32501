package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/stemsi/exstem-classroom/internal/model"
)

// CollectionProfessors holds professor accounts.
const CollectionProfessors = "professors"

// ProfessorRepository handles professor accounts.
type ProfessorRepository struct {
	docs Documents
}

// NewProfessorRepository creates a new ProfessorRepository.
func NewProfessorRepository(docs Documents) *ProfessorRepository {
	return &ProfessorRepository{docs: docs}
}

// Create inserts a professor. ErrConflict means the email is taken.
func (r *ProfessorRepository) Create(ctx context.Context, p *model.Professor) error {
	p.Email = normalizeEmail(p.Email)
	p.CreatedAt = time.Now().UTC()
	id, err := r.docs.Create(ctx, CollectionProfessors, p)
	if err != nil {
		return fmt.Errorf("create professor: %w", err)
	}
	p.ID = id
	return nil
}

// GetByID retrieves a professor.
func (r *ProfessorRepository) GetByID(ctx context.Context, id string) (*model.Professor, error) {
	var p model.Professor
	if err := r.docs.Get(ctx, CollectionProfessors, id, &p); err != nil {
		return nil, err
	}
	p.ID = id
	return &p, nil
}

// GetByEmail retrieves a professor by login email.
func (r *ProfessorRepository) GetByEmail(ctx context.Context, email string) (*model.Professor, error) {
	docs, err := r.docs.Query(ctx, CollectionProfessors, Eq("email", normalizeEmail(email)))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	var p model.Professor
	if err := docs[0].Decode(&p); err != nil {
		return nil, err
	}
	p.ID = docs[0].ID
	return &p, nil
}
