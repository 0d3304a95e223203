package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/schooldesk/portal/internal/accesscookie"
	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newGuardedRouter mounts the guard in front of a catch-all handler, the same
// way the gateway does with its reverse proxy.
func newGuardedRouter(validator TokenValidator, reached *bool) *gin.Engine {
	router := gin.New()
	router.Use(RouteGuardMiddleware(validator, nil))
	router.NoRoute(func(c *gin.Context) {
		*reached = true
		c.String(http.StatusOK, "page")
	})
	return router
}

func serve(router *gin.Engine, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	router.ServeHTTP(w, req)
	return w
}

func assertNoGuardHeaders(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	for name := range GuardHeaders {
		assert.Empty(t, w.Header().Get(name), "unexpected header %s", name)
	}
}

func assertGuardHeaders(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "no-cache", w.Header().Get("X-Middleware-Cache"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
}

func TestRouteGuard_StaticAndAPIBypass(t *testing.T) {
	paths := []string{"/api/anything", "/_next/x.js", "/images/a.png", "/favicon.ico", "/api/auth/login"}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			reached := false
			router := newGuardedRouter(PresenceValidator{}, &reached)

			w := serve(router, path, nil)

			assert.True(t, reached, "request should be forwarded")
			assert.Equal(t, http.StatusOK, w.Code)
			assertNoGuardHeaders(t, w)
		})
	}
}

func TestRouteGuard_PublicRoutes(t *testing.T) {
	cookies := map[string]*http.Cookie{
		"no cookie":      nil,
		"garbage cookie": {Name: accesscookie.Name, Value: "garbage"},
	}

	for _, path := range []string{"/about", "/terms/sub", "/", "/login"} {
		for name, cookie := range cookies {
			t.Run(path+" "+name, func(t *testing.T) {
				reached := false
				router := newGuardedRouter(failingValidator{}, &reached)

				w := serve(router, path, cookie)

				assert.True(t, reached)
				assert.Equal(t, http.StatusOK, w.Code)
				assertGuardHeaders(t, w)
				assert.Empty(t, w.Header().Get("Set-Cookie"))
			})
		}
	}
}

func TestRouteGuard_ProtectedWithoutCookie(t *testing.T) {
	reached := false
	router := newGuardedRouter(PresenceValidator{}, &reached)

	w := serve(router, "/admin/dashboard", nil)

	assert.False(t, reached)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirect=%2Fadmin%2Fdashboard", w.Header().Get("Location"))
	assert.Empty(t, w.Header().Get("Set-Cookie"))
}

func TestRouteGuard_ProtectedWithEmptyCookie(t *testing.T) {
	reached := false
	router := newGuardedRouter(PresenceValidator{}, &reached)

	w := serve(router, "/dashboard", &http.Cookie{Name: accesscookie.Name, Value: ""})

	assert.False(t, reached)
	assert.Equal(t, "/login?redirect=%2Fdashboard", w.Header().Get("Location"))
}

func TestRouteGuard_ProtectedWithInvalidToken(t *testing.T) {
	reached := false
	router := newGuardedRouter(failingValidator{}, &reached)

	w := serve(router, "/admin/dashboard", &http.Cookie{Name: accesscookie.Name, Value: "stale"})

	assert.False(t, reached)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirect=%2Fadmin%2Fdashboard&error=token_expired", w.Header().Get("Location"))

	setCookie := w.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(setCookie, "access_token=;"), setCookie)
	assert.Contains(t, setCookie, "Max-Age=0")
	assert.Contains(t, setCookie, "Path=/")
}

func TestRouteGuard_ValidTokenForwardsWithHeaders(t *testing.T) {
	for _, path := range []string{"/onboarding", "/dashboard", "/admin/dashboard", "/teacher/classes/7"} {
		t.Run(path, func(t *testing.T) {
			reached := false
			router := newGuardedRouter(PresenceValidator{}, &reached)

			w := serve(router, path, &http.Cookie{Name: accesscookie.Name, Value: "anything"})

			assert.True(t, reached)
			assert.Equal(t, http.StatusOK, w.Code)
			assertGuardHeaders(t, w)
		})
	}
}

func TestRouteGuard_SignedValidator(t *testing.T) {
	tokens := jwt.NewTokenManager("guard-secret", "schooldesk-api", time.Hour)
	validator := NewSignedTokenValidator(tokens)

	valid, err := tokens.GenerateToken("user-1", "a@school.test", "teacher", "school-9")
	require.NoError(t, err)

	t.Run("valid token exposes the session", func(t *testing.T) {
		router := gin.New()
		router.Use(RouteGuardMiddleware(validator, nil))
		router.NoRoute(func(c *gin.Context) {
			session, err := GetAccessSession(c)
			require.NoError(t, err)
			c.String(http.StatusOK, session.UserID)
		})

		w := serve(router, "/teacher/dashboard", &http.Cookie{Name: accesscookie.Name, Value: valid})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-1", w.Body.String())
	})

	t.Run("expired token redirects", func(t *testing.T) {
		expired, err := jwt.NewTokenManager("guard-secret", "schooldesk-api", -time.Minute).
			GenerateToken("user-1", "a@school.test", "teacher", "school-9")
		require.NoError(t, err)

		reached := false
		router := newGuardedRouter(validator, &reached)
		w := serve(router, "/teacher/dashboard", &http.Cookie{Name: accesscookie.Name, Value: expired})

		assert.False(t, reached)
		assert.Contains(t, w.Header().Get("Location"), "error=token_expired")
	})

	t.Run("foreign signature redirects", func(t *testing.T) {
		forged, err := jwt.NewTokenManager("other-secret", "schooldesk-api", time.Hour).
			GenerateToken("user-1", "a@school.test", "admin", "school-9")
		require.NoError(t, err)

		reached := false
		router := newGuardedRouter(validator, &reached)
		w := serve(router, "/admin/dashboard", &http.Cookie{Name: accesscookie.Name, Value: forged})

		assert.False(t, reached)
		assert.Equal(t, http.StatusFound, w.Code)
	})
}

func TestRouteGuard_SecureCookieDeletion(t *testing.T) {
	reached := false
	router := newGuardedRouter(failingValidator{}, &reached)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.AddCookie(&http.Cookie{Name: accesscookie.Name, Value: "stale"})
	router.ServeHTTP(w, req)

	setCookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, "Secure")
	assert.Contains(t, setCookie, "SameSite=Strict")
}

func TestLoginRedirectURL(t *testing.T) {
	assert.Equal(t, "/login?redirect=%2F", LoginRedirectURL("/", ""))
	assert.Equal(t, "/login?redirect=%2Fa+b%26c&error=token_expired", LoginRedirectURL("/a b&c", TokenExpiredError))
}

type failingValidator struct{}

func (failingValidator) Validate(string) (*models.AccessSession, error) {
	return nil, jwt.ErrInvalidToken
}

func TestRouteGuard_NonCanonicalPathsAreRedirected(t *testing.T) {
	tests := []struct {
		path     string
		location string
	}{
		{"/about/../admin/dashboard", "/admin/dashboard"},
		{"/images/../admin/dashboard", "/admin/dashboard"},
		{"/api/../teacher/grades", "/teacher/grades"},
		{"//admin/dashboard", "/admin/dashboard"},
		{"/about/./team", "/about/team"},
		{"/teacher//grades/?term=2", "/teacher/grades/?term=2"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			reached := false
			router := newGuardedRouter(PresenceValidator{}, &reached)

			w := serve(router, tt.path, nil)

			assert.False(t, reached, "non-canonical path must not reach the upstream")
			assert.Equal(t, http.StatusMovedPermanently, w.Code)
			assert.Equal(t, tt.location, w.Header().Get("Location"))
		})
	}
}

func TestRouteGuard_CanonicalRedirectThenLogin(t *testing.T) {
	reached := false
	router := newGuardedRouter(PresenceValidator{}, &reached)

	w := serve(router, "/about/../admin/dashboard", nil)
	require.Equal(t, http.StatusMovedPermanently, w.Code)

	w = serve(router, w.Header().Get("Location"), nil)
	assert.False(t, reached)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirect=%2Fadmin%2Fdashboard", w.Header().Get("Location"))
}

func TestRouteGuard_NonCanonicalPostKeepsMethod(t *testing.T) {
	reached := false
	router := newGuardedRouter(PresenceValidator{}, &reached)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/../admin/settings", strings.NewReader("{}")))

	assert.False(t, reached)
	assert.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "/admin/settings", w.Header().Get("Location"))
}
