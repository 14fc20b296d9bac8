package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func preflight(r http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/chat/messages", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCORSOrigins(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name    string
		origins []string
		origin  string
		allowed bool
	}{
		{"default local dev", nil, "http://localhost:5173", true},
		{"default rejects others", nil, "https://evil.example", false},
		{"configured", []string{" https://app.example.com "}, "https://app.example.com", true},
		{"configured rejects localhost", []string{"https://app.example.com"}, "http://localhost:5173", false},
		{"wildcard", []string{"*"}, "https://anything.example", true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := gin.New()
			r.Use(CORS(tc.origins))
			r.POST("/api/chat/messages", func(c *gin.Context) { c.Status(http.StatusAccepted) })

			rec := preflight(r, tc.origin)
			got := rec.Header().Get("Access-Control-Allow-Origin")
			if tc.allowed {
				if rec.Code != http.StatusNoContent {
					t.Fatalf("status: want=%d got=%d", http.StatusNoContent, rec.Code)
				}
				if got != tc.origin && got != "*" {
					t.Fatalf("allow-origin: want=%q got=%q", tc.origin, got)
				}
				return
			}
			if got != "" {
				t.Fatalf("allow-origin: want empty got=%q", got)
			}
		})
	}
}
