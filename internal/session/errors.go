package session

import "errors"

var (
	// ErrLoginSuperseded is returned by Login when a logout started while the
	// login was in flight. The login result is discarded.
	ErrLoginSuperseded = errors.New("login superseded by logout")

	// ErrNoSession is returned by operations that need an active session.
	ErrNoSession = errors.New("no active session")

	// ErrRefreshFailed wraps the cause of a failed refresh. The session has
	// already been logged out when it is returned.
	ErrRefreshFailed = errors.New("session refresh failed")

	// ErrUnsupportedVersion is returned for persisted sessions written by a
	// newer client.
	ErrUnsupportedVersion = errors.New("unsupported persisted session version")
)
