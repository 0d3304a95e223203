package session

import (
	"context"
	"time"

	"github.com/schooldesk/portal/internal/models"
)

// AuthService is the remote authentication collaborator.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*models.LoginResponse, error)
	Logout(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (string, error)
	IsTokenExpired(token string) bool
	TokenExpiresAt(token string) (time.Time, bool)
	ForgotPassword(ctx context.Context, email string) (*models.ForgotPasswordResponse, error)
	VerifyOTP(ctx context.Context, email, otp string) (string, error)
	ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error
}

// CookieWriter owns the access_token cookie on the client side. maxAge is
// the token's remaining lifetime: zero when the token has no exp claim,
// negative when it has already expired.
type CookieWriter interface {
	SetAccessToken(token string, maxAge time.Duration) error
	ClearAccessToken() error
}

// Navigator moves the user to another page.
type Navigator interface {
	Navigate(path string)
}

// NoticeLevel grades a notification.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(level NoticeLevel, message string)
}
