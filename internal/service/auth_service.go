package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-classroom/internal/config"
	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionInvalidated = errors.New("session invalidated")
	ErrWrongTokenType     = errors.New("wrong token type")
)

// TokenType distinguishes professor tokens from exam tickets.
type TokenType string

const (
	TokenTypeProfessor  TokenType = "professor"
	TokenTypeExamTicket TokenType = "exam_ticket"
)

// Claims extends JWT standard claims with app-specific fields. Subject is the
// professor id for professor tokens and the student email for tickets.
type Claims struct {
	jwt.RegisteredClaims
	TokenType   TokenType `json:"token_type"`
	ExamID      string    `json:"exam_id,omitempty"`      // Ticket only
	StudentName string    `json:"student_name,omitempty"` // Ticket only
}

// ProfessorStore is what AuthService needs from the professor repository.
type ProfessorStore interface {
	GetByEmail(ctx context.Context, email string) (*model.Professor, error)
}

// AuthService handles professor login, JWT issuance and the exam tickets
// handed out by the access gate.
type AuthService struct {
	cfg        *config.Config
	rdb        *redis.Client
	professors ProfessorStore
	now        func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, professors ProfessorStore) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb, professors: professors, now: time.Now}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login checks a professor's credentials and returns a signed token. A new
// login replaces any earlier session of the same professor.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *model.Professor, error) {
	p, err := s.professors.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("get professor: %w", err)
	}
	if err := s.CheckPassword(p.PasswordHash, password); err != nil {
		return "", nil, err
	}

	token, err := s.GenerateProfessorToken(ctx, p.ID)
	if err != nil {
		return "", nil, err
	}
	return token, p, nil
}

// GenerateProfessorToken creates a JWT for a professor and registers the
// session in Redis.
func (s *AuthService) GenerateProfessorToken(ctx context.Context, professorID string) (string, error) {
	jti := uuid.New().String()
	now := s.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   professorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: TokenTypeProfessor,
	}

	signed, err := s.sign(claims)
	if err != nil {
		return "", err
	}

	if s.rdb != nil {
		key := config.CacheKey.ProfessorSessionKey(professorID)
		if err := s.rdb.Set(ctx, key, jti, s.cfg.JWTExpiry).Err(); err != nil {
			return "", fmt.Errorf("store session: %w", err)
		}
	}
	return signed, nil
}

// IssueExamTicket signs a short-lived ticket that lets one student open the
// exam session socket for one exam.
func (s *AuthService) IssueExamTicket(examID, studentEmail, studentName string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.cfg.TicketExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   studentEmail,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		TokenType:   TokenTypeExamTicket,
		ExamID:      examID,
		StudentName: studentName,
	}

	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ValidateExamTicket validates a ticket and checks its type.
func (s *AuthService) ValidateExamTicket(tokenStr string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeExamTicket || claims.ExamID == "" || claims.Subject == "" {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// ValidateProfessorSession checks that the token id matches the active
// session in Redis.
func (s *AuthService) ValidateProfessorSession(ctx context.Context, professorID, jti string) error {
	if s.rdb == nil {
		return nil
	}
	stored, err := s.rdb.Get(ctx, config.CacheKey.ProfessorSessionKey(professorID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrSessionInvalidated
		}
		return fmt.Errorf("check session: %w", err)
	}
	if stored != jti {
		return ErrSessionInvalidated
	}
	return nil
}

// Logout removes a professor's session from Redis.
func (s *AuthService) Logout(ctx context.Context, professorID string) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, config.CacheKey.ProfessorSessionKey(professorID)).Err()
}

func (s *AuthService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
