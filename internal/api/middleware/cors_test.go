package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/omniaweb/hnmigrate/internal/config"
	"github.com/rs/zerolog"
)

func newCORSRouter(t *testing.T, origins []string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mw, err := CORS(origins, config.EnvDevelopment, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := gin.New()
	r.Use(mw)
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.OPTIONS("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestCORS_AllowedOrigin(t *testing.T) {
	r := newCORSRouter(t, []string{"http://localhost:5173"})

	tests := []struct {
		name   string
		origin string
		want   string
	}{
		{name: "allowed", origin: "http://localhost:5173", want: "http://localhost:5173"},
		{name: "case insensitive", origin: "HTTP://LOCALHOST:5173", want: "HTTP://LOCALHOST:5173"},
		{name: "not allowed", origin: "https://evil.example", want: ""},
		{name: "no origin", origin: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			r.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("expected Access-Control-Allow-Origin %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	r := newCORSRouter(t, []string{"http://localhost:5173"})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("OPTIONS", "/test", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "X-Proxy-Target")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != allowedHeaders {
		t.Errorf("expected Access-Control-Allow-Headers %q, got %q", allowedHeaders, got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("expected Access-Control-Max-Age '86400', got %q", got)
	}
}

func TestCORS_AllowAllOrigins(t *testing.T) {
	r := newCORSRouter(t, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "http://127.0.0.1:3000")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://127.0.0.1:3000" {
		t.Fatalf("expected origin to be echoed, got %q", got)
	}
}

func TestCORS_ProductionRequiresOrigins(t *testing.T) {
	if _, err := CORS(nil, config.EnvProduction, zerolog.Nop()); err == nil {
		t.Fatal("expected error for empty origins in production")
	}
	if _, err := CORS([]string{"https://ops.example"}, config.EnvProduction, zerolog.Nop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
