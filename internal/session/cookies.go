package session

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/schooldesk/portal/internal/accesscookie"
)

// JarCookieWriter keeps the access cookie in an http.CookieJar for the
// gateway origin, so every request made with that jar carries it.
type JarCookieWriter struct {
	jar    http.CookieJar
	origin *url.URL
}

// NewJarCookieWriter writes cookies for gatewayURL into jar.
func NewJarCookieWriter(jar http.CookieJar, gatewayURL string) (*JarCookieWriter, error) {
	origin, err := url.Parse(gatewayURL)
	if err != nil || origin.Host == "" {
		return nil, fmt.Errorf("invalid gateway URL %q", gatewayURL)
	}
	return &JarCookieWriter{jar: jar, origin: origin}, nil
}

func (w *JarCookieWriter) secure() bool {
	return w.origin.Scheme == "https"
}

func (w *JarCookieWriter) SetAccessToken(token string, maxAge time.Duration) error {
	w.jar.SetCookies(w.origin, []*http.Cookie{accesscookie.New(token, maxAge, w.secure())})
	return nil
}

func (w *JarCookieWriter) ClearAccessToken() error {
	w.jar.SetCookies(w.origin, []*http.Cookie{accesscookie.Expired(w.secure())})
	return nil
}

// AccessToken returns the cookie value the jar would send, or "".
func (w *JarCookieWriter) AccessToken() string {
	for _, c := range w.jar.Cookies(w.origin) {
		if c.Name == accesscookie.Name {
			return c.Value
		}
	}
	return ""
}
