package model

import "time"

// Professor owns courses and manages their exams.
type Professor struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LoginRequest is the payload for professor login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// ProfessorProfile is the public view of a professor.
type ProfessorProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Profile strips the password hash.
func (p *Professor) Profile() ProfessorProfile {
	return ProfessorProfile{ID: p.ID, Email: p.Email, Name: p.Name}
}
