package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/response"
	"github.com/stemsi/exstem-classroom/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

// RequireProfessorJWT validates a professor JWT from the Authorization header.
func RequireProfessorJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}
		if claims.TokenType != service.TokenTypeProfessor {
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}

		zerolog.Ctx(c.Request.Context()).UpdateContext(func(l zerolog.Context) zerolog.Context {
			return l.Str("professor_id", claims.Subject)
		})
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// RequireExamTicket validates an exam ticket from the query param ?ticket=...
// Browsers cannot set headers on WebSocket upgrades. The ticket must be for
// the exam named in the path.
func RequireExamTicket(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("ticket")
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateExamTicket(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTicketInvalid)
			return
		}
		if examID := c.Param("exam_id"); examID != "" && examID != claims.ExamID {
			response.AbortFail(c, http.StatusForbidden, response.ErrTicketInvalid)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

// ProfessorID returns the subject of the professor token.
func ProfessorID(c *gin.Context) (string, error) {
	claims := GetClaims(c)
	if claims == nil || claims.TokenType != service.TokenTypeProfessor {
		return "", fmt.Errorf("no professor claims in context")
	}
	return claims.Subject, nil
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
