// Package accesscookie defines the access_token cookie contract shared by the
// gateway's route guard (reader, and deleter on invalid tokens) and the
// session controller (the only writer).
package accesscookie

import (
	"net/http"
	"time"
)

// Name of the cookie carrying the bearer access token.
const Name = "access_token"

// Path the cookie is scoped to.
const Path = "/"

// DefaultMaxAge is used when the token carries no expiry of its own.
const DefaultMaxAge = 24 * time.Hour

// SameSite is strict over TLS and lax over plain HTTP.
func SameSite(secure bool) http.SameSite {
	if secure {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// New builds the cookie for value. maxAge is the token's remaining lifetime:
// zero means the token has no expiry of its own and DefaultMaxAge applies,
// a negative value means it has already expired and yields the deletion
// form. A positive maxAge is rounded down to whole seconds, never below one.
func New(value string, maxAge time.Duration, secure bool) *http.Cookie {
	switch {
	case maxAge < 0:
		return Expired(secure)
	case maxAge == 0:
		maxAge = DefaultMaxAge
	case maxAge < time.Second:
		maxAge = time.Second
	}
	return &http.Cookie{
		Name:     Name,
		Value:    value,
		Path:     Path,
		MaxAge:   int(maxAge / time.Second),
		Secure:   secure,
		SameSite: SameSite(secure),
	}
}

// Expired builds the deletion form of the cookie.
func Expired(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     Name,
		Value:    "",
		Path:     Path,
		MaxAge:   -1,
		Secure:   secure,
		SameSite: SameSite(secure),
	}
}

// IsSecureRequest reports whether r arrived over TLS, directly or through a
// TLS-terminating proxy.
func IsSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return r.Header.Get("X-Forwarded-Proto") == "https"
}
