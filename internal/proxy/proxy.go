// Package proxy forwards requests the gateway does not serve itself: API
// calls to the school backend and everything else to the web application.
package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/schooldesk/portal/internal/routes"
	"github.com/schooldesk/portal/pkg/logger"
	"go.uber.org/zap"
)

// Upstreams routes by route class.
type Upstreams struct {
	frontend *httputil.ReverseProxy
	backend  *httputil.ReverseProxy
}

// New creates proxies for the two origins.
func New(frontendURL, backendURL string, transport http.RoundTripper, log *zap.Logger) (*Upstreams, error) {
	log = logger.OrNop(log)

	frontend, err := newReverseProxy("frontend", frontendURL, transport, log)
	if err != nil {
		return nil, err
	}
	backend, err := newReverseProxy("backend", backendURL, transport, log)
	if err != nil {
		return nil, err
	}
	return &Upstreams{frontend: frontend, backend: backend}, nil
}

// Handler serves as the gin NoRoute handler, after the route guard.
func (u *Upstreams) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		target := u.frontend
		if routes.Classify(c.Request.URL.Path) == routes.ClassAPI {
			target = u.backend
		}
		target.ServeHTTP(c.Writer, c.Request)
	}
}

func newReverseProxy(name, rawURL string, transport http.RoundTripper, log *zap.Logger) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid %s upstream URL %q", name, rawURL)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			// Keep the proto the client used when TLS ends in front of us
			if proto := r.In.Header.Get("X-Forwarded-Proto"); proto != "" {
				r.Out.Header.Set("X-Forwarded-Proto", proto)
			}
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error("Upstream request failed",
				zap.String("upstream", name),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"Upstream unavailable"}`))
		},
	}, nil
}
