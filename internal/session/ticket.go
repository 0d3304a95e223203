package session

import (
	"time"
)

// Ticket records a forgot-password request so the OTP step survives a
// restart.
type Ticket struct {
	Email     string    `json:"email"`
	ExpiresIn int       `json:"expires_in"` // seconds
	SentAt    time.Time `json:"sent_at"`
}

// RemainingTime is max(0, expiresIn - (now - sentAt)), truncated to whole
// seconds.
func (t Ticket) RemainingTime(now time.Time) time.Duration {
	remaining := time.Duration(t.ExpiresIn)*time.Second - now.Sub(t.SentAt)
	if remaining <= 0 {
		return 0
	}
	return remaining.Truncate(time.Second)
}

// IsExpired reports whether no time remains.
func (t Ticket) IsExpired(now time.Time) bool {
	return t.RemainingTime(now) == 0
}
