package router

import (
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/config"
	"github.com/stemsi/exstem-classroom/internal/handler"
	"github.com/stemsi/exstem-classroom/internal/logger"
	"github.com/stemsi/exstem-classroom/internal/middleware"
	"github.com/stemsi/exstem-classroom/internal/response"
	"github.com/stemsi/exstem-classroom/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Access  *handler.AccessHandler
	Course  *handler.CourseHandler
	Exam    *handler.ExamHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
	Limiter *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request id, request-scoped logger and the zerolog access line.
	router.Use(response.RequestContext(logger.Component(log, "http")))

	router.GET("/health", handlers.System.Health)

	// ─── 1. Auth Group (Professor login) ───────────────────────────────
	auth := router.Group("/api/v1/auth/professor")
	auth.Use(middleware.NoStore())
	{
		auth.POST("/login", handlers.Limiter.Middleware(), handlers.Auth.Login)

		professorOnly := []gin.HandlerFunc{
			middleware.RequireProfessorJWT(authService),
			middleware.CheckProfessorSession(authService),
		}
		auth.GET("/me", append(professorOnly, handlers.Auth.Me)...)
		auth.POST("/logout", append(professorOnly, handlers.Auth.Logout)...)
	}

	// ─── 2. Access Gate (Public, Rate Limited) ─────────────────────────
	router.POST("/api/v1/access",
		handlers.Limiter.Middleware(),
		middleware.NoStore(),
		handlers.Access.Enter,
	)

	// ─── 3. WebSocket Group (Exam ticket) ──────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/exams/:exam_id/session", middleware.RequireExamTicket(authService), handlers.WS.ExamSession)
	}

	// ─── 4. Professor Group (JWT + single session) ─────────────────────
	professorAPI := router.Group("/api/v1/professor")
	professorAPI.Use(
		middleware.RequireProfessorJWT(authService),
		middleware.CheckProfessorSession(authService),
		middleware.NoStore(),
		middleware.Brotli(brotli.DefaultCompression),
	)
	{
		professorAPI.GET("/courses", handlers.Course.ListCourses)
		professorAPI.GET("/courses/:course_id", handlers.Course.GetCourse)
		professorAPI.GET("/courses/:course_id/exams", handlers.Exam.ListCourseExams)

		professorAPI.POST("/exams", handlers.Exam.CreateExam)
		professorAPI.GET("/exams/:id", handlers.Exam.GetExam)
		professorAPI.PUT("/exams/:id/questions", handlers.Exam.ReplaceQuestions)
		professorAPI.POST("/exams/:id/questions/generate", handlers.Exam.GenerateQuestions)
		professorAPI.POST("/exams/:id/activate", handlers.Exam.ActivateExam)
		professorAPI.POST("/exams/:id/close", handlers.Exam.CloseExam)
		professorAPI.GET("/exams/:id/results", handlers.Exam.GetResults)
		professorAPI.GET("/exams/:id/results/export", handlers.Exam.ExportResults)
	}

	return router
}
