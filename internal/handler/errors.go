package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-classroom/internal/llm"
	"github.com/stemsi/exstem-classroom/internal/repository"
	"github.com/stemsi/exstem-classroom/internal/response"
	"github.com/stemsi/exstem-classroom/internal/service"
)

type errMapping struct {
	target error
	status int
	code   response.ErrCode
}

// errorTable maps domain errors to HTTP responses. Order matters: the first
// match wins.
var errorTable = []errMapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrSessionInvalidated, http.StatusUnauthorized, response.ErrSessionInvalidated},

	{service.ErrInvalidStudent, http.StatusBadRequest, response.ErrInvalidStudent},
	{service.ErrInvalidAccessCode, http.StatusNotFound, response.ErrInvalidAccessCode},
	{service.ErrExamNotActive, http.StatusConflict, response.ErrExamNotActive},
	{service.ErrAlreadyAttempted, http.StatusConflict, response.ErrAlreadyAttempted},
	{service.ErrExamHasNoQuestion, http.StatusConflict, response.ErrNoQuestions},

	{service.ErrNotCourseOwner, http.StatusForbidden, response.ErrNotCourseOwner},
	{service.ErrNotExamAuthor, http.StatusForbidden, response.ErrNotExamAuthor},
	{service.ErrNoQuestions, http.StatusConflict, response.ErrNoQuestions},
	{service.ErrExamNotDraft, http.StatusConflict, response.ErrExamNotDraft},
	{service.ErrNoDocumentation, http.StatusUnprocessableEntity, response.ErrNoDocumentation},
	{service.ErrDuplicateQuestion, http.StatusBadRequest, response.ErrDuplicateQuestion},

	{llm.ErrProviderError, http.StatusBadGateway, response.ErrProviderError},
	{llm.ErrMalformedResponse, http.StatusBadGateway, response.ErrMalformedResponse},

	{repository.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
	{repository.ErrConflict, http.StatusConflict, response.ErrConflict},
}

// failWithError writes the response for a service error. Unknown errors are
// attached to the gin context for the access log and reported as 500.
func failWithError(c *gin.Context, err error) {
	var quota *llm.QuotaError
	if errors.As(err, &quota) {
		response.FailRetryAfter(c, http.StatusTooManyRequests, response.ErrQuotaExceeded, quota.RetryAfter)
		return
	}
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			response.Fail(c, m.status, m.code)
			return
		}
	}
	_ = c.Error(err)
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}
