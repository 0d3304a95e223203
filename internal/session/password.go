package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/internal/storage"
	apperrors "github.com/schooldesk/portal/pkg/errors"
	"go.uber.org/zap"
)

// ErrInvalidEmail is returned before any network call for a malformed email.
var ErrInvalidEmail = apperrors.InvalidInputError("email", "Please enter a valid email address")

// ForgotPassword requests a one-time code for email. On success the ticket
// is persisted until the code expires.
func (c *Controller) ForgotPassword(ctx context.Context, email string) (*Ticket, error) {
	if err := c.validate.Var(email, "required,email,max=255"); err != nil {
		c.recordError(ErrInvalidEmail)
		return nil, ErrInvalidEmail
	}

	resp, err := c.auth.ForgotPassword(ctx, email)
	if err != nil {
		c.log.Warn("Forgot password request failed", zap.Error(err))
		c.recordError(err)
		return nil, err
	}

	ticket := &Ticket{Email: resp.Email, ExpiresIn: resp.ExpiresIn, SentAt: c.now()}
	data, err := json.Marshal(ticket)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, KeyTicket, data, time.Duration(ticket.ExpiresIn)*time.Second); err != nil {
		return nil, fmt.Errorf("persist reset ticket: %w", err)
	}

	c.recordError(nil)
	c.notify.Notify(NoticeSuccess, "A reset code has been sent to "+ticket.Email)
	return ticket, nil
}

// CurrentTicket returns the pending forgot-password ticket, or
// storage.ErrNotFound when there is none.
func (c *Controller) CurrentTicket(ctx context.Context) (*Ticket, error) {
	data, err := c.store.Get(ctx, KeyTicket)
	if err != nil {
		return nil, err
	}
	var ticket Ticket
	if err := json.Unmarshal(data, &ticket); err != nil {
		return nil, fmt.Errorf("decode reset ticket: %w", err)
	}
	return &ticket, nil
}

// ClearTicket drops the pending ticket.
func (c *Controller) ClearTicket(ctx context.Context) error {
	return c.store.Delete(ctx, KeyTicket)
}

// VerifyOTP exchanges the code for a reset token and clears the ticket.
func (c *Controller) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	resetToken, err := c.auth.VerifyOTP(ctx, email, otp)
	if err != nil {
		c.log.Warn("OTP verification failed", zap.Error(err))
		c.recordError(err)
		return "", err
	}

	if err := c.ClearTicket(ctx); err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.log.Warn("Failed to clear reset ticket", zap.Error(err))
	}
	c.recordError(nil)
	return resetToken, nil
}

// ResetPassword sets a new password. Whether password and confirmPassword
// match is decided by the backend.
func (c *Controller) ResetPassword(ctx context.Context, password, confirmPassword, resetToken, email string) error {
	err := c.auth.ResetPassword(ctx, models.ResetPasswordRequest{
		Password:        password,
		ConfirmPassword: confirmPassword,
		ResetToken:      resetToken,
		Email:           email,
	})
	if err != nil {
		c.log.Warn("Password reset failed", zap.Error(err))
		c.recordError(err)
		return err
	}

	c.recordError(nil)
	c.notify.Notify(NoticeSuccess, "Your password has been reset")
	return nil
}

func (c *Controller) recordError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
