package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"eCard/internal/auth"
)

type stubValidator struct {
	claims *auth.TokenClaims
}

func (s stubValidator) ValidateToken(token string) (*auth.TokenClaims, error) {
	if token != "good" || s.claims == nil {
		return nil, errors.New("invalid")
	}
	return s.claims, nil
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":     c.GetUint(UserIDKey),
			"correlation": GetCorrelationID(c),
		})
	})...)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	validator := stubValidator{claims: &auth.TokenClaims{UserID: 7, TokenType: auth.TokenTypeAccess}}
	r := newEngine(AuthMiddleware(validator))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"bad token", "Bearer bad", http.StatusUnauthorized},
		{"valid token", "Bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestAuthMiddlewareRejectsRefreshToken(t *testing.T) {
	validator := stubValidator{claims: &auth.TokenClaims{UserID: 7, TokenType: auth.TokenTypeRefresh}}
	r := newEngine(AuthMiddleware(validator))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token must not authorize requests, got %d", w.Code)
	}
}

func TestPasswordGateBlocksPendingChange(t *testing.T) {
	validator := stubValidator{claims: &auth.TokenClaims{UserID: 7, TokenType: auth.TokenTypeAccess, MustChangePassword: true}}
	r := newEngine(AuthMiddleware(validator), RequirePasswordChangeCompletedMiddleware())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestCorrelationIDIsEchoed(t *testing.T) {
	r := newEngine(CorrelationIDMiddleware())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Correlation-ID", "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Correlation-ID"); got != "abc" {
		t.Fatalf("expected echoed id, got %q", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get("X-Correlation-ID") == "" {
		t.Fatalf("expected generated id")
	}
}

func TestCorrelationIDReplacesUnsafeValues(t *testing.T) {
	r := newEngine(CorrelationIDMiddleware())

	for _, bad := range []string{"has space", "line\nbreak", strings.Repeat("a", 65)} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(CorrelationIDHeader, bad)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		got := w.Header().Get(CorrelationIDHeader)
		if got == "" || got == bad {
			t.Fatalf("unsafe id %q should be replaced, got %q", bad, got)
		}
	}
}

func TestSlogLoggerMiddlewareLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := gin.New()
	r.Use(CorrelationIDMiddleware(), SlogLoggerMiddleware(logger))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/cards/:name", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) {
		c.Set(UserIDKey, uint(9))
		c.Status(http.StatusInternalServerError)
	})

	for _, path := range []string{"/health", "/cards/nobody", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := buf.String()
	if strings.Contains(out, "path=/health") {
		t.Fatalf("health checks must not be logged: %s", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "path=/cards/:name") {
		t.Fatalf("expected warn line for 404: %s", out)
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "user_id=9") {
		t.Fatalf("expected error line with user id: %s", out)
	}
}

func TestInternalSecretMiddleware(t *testing.T) {
	r := newEngine(InternalSecretMiddleware("s3cret"))

	req := httptest.NewRequest(http.MethodGet, "/x?secret=s3cret", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("query secret must be ignored, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Internal-Secret", "s3cret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	newEngine(InternalSecretMiddleware("")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unconfigured secret should fail closed, got %d", w.Code)
	}
}
