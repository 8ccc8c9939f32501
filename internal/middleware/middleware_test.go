package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-classroom/internal/config"
	"github.com/stemsi/exstem-classroom/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatal("first two requests rejected")
	}
	if rl.Allow("1.2.3.4") {
		t.Error("third request allowed")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("other client throttled")
	}

	now = now.Add(59 * time.Second)
	if rl.Allow("1.2.3.4") {
		t.Error("refilled before a full interval")
	}
	now = now.Add(time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Error("not refilled after an interval")
	}

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	if len(rl.visitors) != 0 {
		t.Errorf("%d visitors left after cleanup", len(rl.visitors))
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	r := gin.New()
	r.POST("/access", NewRateLimiter(1, time.Minute).Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/access", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
}

func TestBrotli(t *testing.T) {
	big := strings.Repeat("exam results ", 200)
	r := gin.New()
	r.Use(Brotli(5))
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusCreated, big) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated || w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("code = %d, encoding = %q", w.Code, w.Header().Get("Content-Encoding"))
	}
	body, err := io.ReadAll(brotli.NewReader(w.Body))
	if err != nil || string(body) != big {
		t.Errorf("decoded %d bytes, err = %v", len(body), err)
	}

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Content-Encoding") != "" || w.Body.String() != "ok" {
		t.Errorf("small body compressed: %q", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "br;q=0")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Content-Encoding") != "" {
		t.Error("compressed although br was refused")
	}
}

func testAuth() *service.AuthService {
	return service.NewAuthService(&config.Config{
		JWTSecret:    "test-secret",
		JWTExpiry:    time.Hour,
		TicketExpiry: time.Minute,
	}, nil, nil)
}

func TestRequireExamTicket(t *testing.T) {
	auth := testAuth()
	r := gin.New()
	r.GET("/exams/:exam_id/session", RequireExamTicket(auth), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).Subject)
	})

	ticket, _, err := auth.IssueExamTicket("exam-1", "ana@uni.edu", "Ana Lopez")
	if err != nil {
		t.Fatal(err)
	}
	professor, err := auth.GenerateProfessorToken(t.Context(), "prof-1")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/exams/exam-1/session?ticket=" + ticket, http.StatusOK},
		{"/exams/exam-2/session?ticket=" + ticket, http.StatusForbidden},
		{"/exams/exam-1/session", http.StatusUnauthorized},
		{"/exams/exam-1/session?ticket=garbage", http.StatusUnauthorized},
		{"/exams/exam-1/session?ticket=" + professor, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("%s: code = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestRequireProfessorJWT(t *testing.T) {
	auth := testAuth()
	r := gin.New()
	r.GET("/me", RequireProfessorJWT(auth), CheckProfessorSession(auth), func(c *gin.Context) {
		id, err := ProfessorID(c)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id)
	})

	token, err := auth.GenerateProfessorToken(t.Context(), "prof-1")
	if err != nil {
		t.Fatal(err)
	}
	ticket, _, err := auth.IssueExamTicket("exam-1", "ana@uni.edu", "Ana Lopez")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		header string
		want   int
	}{
		{"Bearer " + token, http.StatusOK},
		{"", http.StatusUnauthorized},
		{"Basic abc", http.StatusUnauthorized},
		{"Bearer " + ticket, http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%q: code = %d, want %d", tt.header, w.Code, tt.want)
		}
		if tt.want == http.StatusOK && w.Body.String() != "prof-1" {
			t.Errorf("body = %q", w.Body.String())
		}
	}
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.GET("/", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}
}
