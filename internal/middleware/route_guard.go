package middleware

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/schooldesk/portal/internal/accesscookie"
	"github.com/schooldesk/portal/internal/routes"
	"github.com/schooldesk/portal/pkg/logger"
	"github.com/schooldesk/portal/pkg/metrics"
	"go.uber.org/zap"
)

// Guard outcomes, used as the metrics "outcome" label.
const (
	OutcomeBypass          = "bypass"
	OutcomeForward         = "forward"
	OutcomeRedirectLogin   = "redirect_login"
	OutcomeRedirectExpired = "redirect_expired"
	OutcomeCanonicalize    = "canonicalize"
)

// TokenExpiredError is the error query value the login page receives when
// the cookie was present but rejected.
const TokenExpiredError = "token_expired"

// RouteGuardMiddleware runs before any page is served. It classifies the
// request path, checks the access cookie on protected routes and either
// forwards the request or redirects to the login page. It never aborts with
// an error status and never calls out to the network.
//
// A path with dot segments or repeated slashes is redirected to its
// canonical form first, so neither the guard nor the upstream ever sees
// "/about/../admin".
func RouteGuardMiddleware(validator TokenValidator, log *zap.Logger) gin.HandlerFunc {
	log = logger.OrNop(log)

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if canonical := routes.Canonical(path); canonical != path {
			redirectCanonical(c, canonical)
			return
		}
		class := routes.Classify(path)

		switch class {
		case routes.ClassStaticAsset, routes.ClassAPI:
			recordDecision(class, OutcomeBypass)
			c.Next()
			return

		case routes.ClassPublic:
			recordDecision(class, OutcomeForward)
			applyGuardHeaders(c)
			c.Next()
			return
		}

		token, err := c.Cookie(accesscookie.Name)
		if err != nil || token == "" {
			recordDecision(class, OutcomeRedirectLogin)
			c.Redirect(http.StatusFound, LoginRedirectURL(path, ""))
			c.Abort()
			return
		}

		session, err := validator.Validate(token)
		if err != nil {
			log.Debug("Rejected access token",
				zap.String("path", path),
				zap.String("class", string(class)),
				zap.Error(err),
			)
			recordDecision(class, OutcomeRedirectExpired)
			http.SetCookie(c.Writer, accesscookie.Expired(accesscookie.IsSecureRequest(c.Request)))
			c.Redirect(http.StatusFound, LoginRedirectURL(path, TokenExpiredError))
			c.Abort()
			return
		}

		// Role authorization for role-gated pages happens in the application
		c.Set(AccessSessionContextKey, session)
		recordDecision(class, OutcomeForward)
		applyGuardHeaders(c)
		c.Next()
	}
}

func redirectCanonical(c *gin.Context, canonical string) {
	recordDecision(routes.Classify(canonical), OutcomeCanonicalize)

	status := http.StatusMovedPermanently
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		status = http.StatusPermanentRedirect
	}
	target := url.URL{Path: canonical, RawQuery: c.Request.URL.RawQuery}
	c.Redirect(status, target.String())
	c.Abort()
}

// LoginRedirectURL builds the login URL that brings the visitor back to path
// after signing in. reason is appended as the error parameter when set.
func LoginRedirectURL(path, reason string) string {
	target := routes.LoginPath + "?redirect=" + url.QueryEscape(path)
	if reason != "" {
		target += "&error=" + url.QueryEscape(reason)
	}
	return target
}

func recordDecision(class routes.Class, outcome string) {
	metrics.RouteGuardDecisions.WithLabelValues(string(class), outcome).Inc()
}
