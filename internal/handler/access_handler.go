package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/response"
	"github.com/stemsi/exstem-classroom/internal/service"
	"github.com/stemsi/exstem-classroom/internal/validator"
)

// AccessHandler serves the student access gate.
type AccessHandler struct {
	accessService *service.AccessService
}

// NewAccessHandler creates a new AccessHandler.
func NewAccessHandler(accessService *service.AccessService) *AccessHandler {
	return &AccessHandler{accessService: accessService}
}

// Enter godoc
// POST /api/v1/access
// Checks the access code, the student's name and any earlier attempt, and
// returns an exam ticket for the session socket.
func (h *AccessHandler) Enter(c *gin.Context) {
	var req model.AccessRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	grant, err := h.accessService.Enter(c.Request.Context(), req)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, grant)
}
