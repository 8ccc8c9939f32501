package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-classroom/internal/middleware"
	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/response"
	"github.com/stemsi/exstem-classroom/internal/service"
	"github.com/stemsi/exstem-classroom/internal/validator"
)

// ProfessorReader loads a professor profile.
type ProfessorReader interface {
	GetByID(ctx context.Context, id string) (*model.Professor, error)
}

// AuthHandler handles professor authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	professors  ProfessorReader
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, professors ProfessorReader) *AuthHandler {
	return &AuthHandler{authService: authService, professors: professors}
}

// Login godoc
// POST /api/v1/auth/professor/login
// Validates email + password and returns a JWT. A new login replaces the
// previous session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, professor, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":     token,
		"professor": professor.Profile(),
	})
}

// Me godoc
// GET /api/v1/auth/professor/me
func (h *AuthHandler) Me(c *gin.Context) {
	professorID, err := middleware.ProfessorID(c)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	professor, err := h.professors.GetByID(c.Request.Context(), professorID)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"professor": professor.Profile()})
}

// Logout godoc
// POST /api/v1/auth/professor/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	professorID, err := middleware.ProfessorID(c)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), professorID); err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}
