package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestStaticTokenMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		validTokens []string
		header      string
		wantCalled  bool
		wantStatus  int
	}{
		{"valid token", []string{"token1", "token2"}, "token2", true, http.StatusOK},
		{"invalid token", []string{"token1"}, "nope", false, http.StatusForbidden},
		{"missing token", []string{"token1"}, "", false, http.StatusUnauthorized},
		{"no tokens configured", nil, "some-token", false, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			handlerCalled := false
			router.Use(StaticTokenMiddleware(MetricsTokenHeader, nil, tt.validTokens...))
			router.GET("/api/metrics", func(c *gin.Context) {
				handlerCalled = true
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
			if tt.header != "" {
				req.Header.Set(MetricsTokenHeader, tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCalled, handlerCalled)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
