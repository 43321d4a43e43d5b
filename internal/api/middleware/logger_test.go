package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestRedactQueryString(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "empty", query: "", want: ""},
		{name: "nothing sensitive", query: "limit=10&page=2", want: "limit=10&page=2"},
		{name: "token", query: "token=abc&limit=10", want: "limit=10&token=%5BREDACTED%5D"},
		{name: "case insensitive", query: "Access_Token=abc", want: "Access_Token=%5BREDACTED%5D"},
		{name: "unparsable kept", query: "%zz", want: "%zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redactQueryString(tt.query); got != tt.want {
				t.Errorf("redactQueryString(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	r := gin.New()
	r.Use(RequestID(), RequestLogger(logger))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/error", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fail"})
	})

	t.Run("redacts secrets", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test?secret=hunter2", nil)
		req.Header.Set("Authorization", "Bearer tok-123")
		req.Header.Set("X-Reset-Secret", "reset-123")
		req.Header.Set("Accept", "application/json")
		r.ServeHTTP(w, req)

		out := buf.String()
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		for _, secret := range []string{"hunter2", "tok-123", "reset-123"} {
			if strings.Contains(out, secret) {
				t.Errorf("log output leaks %q: %s", secret, out)
			}
		}
		if !strings.Contains(out, "application/json") {
			t.Errorf("expected non-sensitive headers at debug level: %s", out)
		}
	})

	t.Run("proxied request names target", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.Header.Set(proxyTargetHeader, "https://gw.example")
		r.ServeHTTP(w, req)

		out := buf.String()
		if !strings.Contains(out, `"proxy_target":"https://gw.example"`) {
			t.Errorf("expected proxy target in log: %s", out)
		}
		if !strings.Contains(out, `"route":"/test"`) {
			t.Errorf("expected route in log: %s", out)
		}
	})

	t.Run("server error logged at error level", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/error", nil)
		r.ServeHTTP(w, req)

		if !strings.Contains(buf.String(), `"level":"error"`) {
			t.Errorf("expected error level entry: %s", buf.String())
		}
	})
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		r.ServeHTTP(w, req)

		id := w.Header().Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("expected generated uuid, got %q", id)
		}
		if w.Body.String() != id {
			t.Errorf("expected context id %q, got %q", id, w.Body.String())
		}
	})

	t.Run("incoming kept", func(t *testing.T) {
		incoming := uuid.NewString()
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, incoming)
		r.ServeHTTP(w, req)

		if got := w.Header().Get(RequestIDHeader); got != incoming {
			t.Errorf("expected %q, got %q", incoming, got)
		}
	})

	t.Run("malformed replaced", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, "<script>")
		r.ServeHTTP(w, req)

		if got := w.Header().Get(RequestIDHeader); got == "<script>" {
			t.Error("expected malformed id to be replaced")
		}
	})
}
