package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCORS(t *testing.T) {
	e := echo.New()
	e.Use(CORS(CORSConfig{
		AllowOrigins:  []string{"https://app.example.com"},
		AllowMethods:  []string{http.MethodGet},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        600,
	}))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantAllow  string
		wantExpose string
	}{
		{name: "allowed", method: http.MethodGet, origin: "https://app.example.com", wantStatus: 200, wantAllow: "https://app.example.com", wantExpose: "Retry-After"},
		{name: "other origin", method: http.MethodGet, origin: "https://evil.example.com", wantStatus: 200},
		{name: "preflight", method: http.MethodOptions, origin: "https://app.example.com", preflight: true, wantStatus: http.StatusNoContent, wantAllow: "https://app.example.com", wantExpose: "Retry-After"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/x", nil)
			req.Header.Set(echo.HeaderOrigin, tt.origin)
			if tt.preflight {
				req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != tt.wantAllow {
				t.Fatalf("allow origin=%q, want %q", got, tt.wantAllow)
			}
			if got := rec.Header().Get(echo.HeaderAccessControlExposeHeaders); got != tt.wantExpose {
				t.Fatalf("expose=%q, want %q", got, tt.wantExpose)
			}
			if tt.preflight && rec.Header().Get(echo.HeaderAccessControlMaxAge) != "600" {
				t.Fatalf("missing max age")
			}
		})
	}
}
