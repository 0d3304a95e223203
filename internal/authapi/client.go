// Package authapi is the HTTP client for the school backend's
// authentication endpoints.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/pkg/circuitbreaker"
	apperrors "github.com/schooldesk/portal/pkg/errors"
	"github.com/schooldesk/portal/pkg/httpclient"
	"github.com/schooldesk/portal/pkg/jwt"
	"github.com/schooldesk/portal/pkg/logger"
	"github.com/schooldesk/portal/pkg/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ExpirySkew treats a token as expired slightly before its exp claim, so a
// request started just before expiry does not arrive with a dead token.
const ExpirySkew = 30 * time.Second

const maxResponseBytes = 1 << 20

const (
	opLogin          = "login"
	opLogout         = "logout"
	opRefresh        = "refresh"
	opForgotPassword = "forgot_password"
	opVerifyOTP      = "verify_otp"
	opResetPassword  = "reset_password"
)

var paths = map[string]string{
	opLogin:          "/api/auth/login",
	opLogout:         "/api/auth/logout",
	opRefresh:        "/api/auth/refresh",
	opForgotPassword: "/api/auth/forgot-password",
	opVerifyOTP:      "/api/auth/verify-otp",
	opResetPassword:  "/api/auth/reset-password",
}

// Client calls the auth endpoints through the gateway. Calls are never
// retried; a breaker fails fast while the backend is down.
type Client struct {
	baseURL string
	http    httpclient.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
	now     func() time.Time
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string, httpClient httpclient.Client, log *zap.Logger) *Client {
	log = logger.OrNop(log)

	cfg := circuitbreaker.DefaultConfig("auth-api", log)
	cfg.IsSuccessful = func(err error) bool { return err == nil || isBackendAnswer(err) }

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		breaker: circuitbreaker.NewCircuitBreaker(cfg),
		log:     log,
		now:     time.Now,
	}
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.call(ctx, opLogin, "", models.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" || resp.User == nil {
		return nil, c.incomplete(opLogin, "Login failed")
	}
	return &resp, nil
}

// Logout invalidates accessToken on the backend.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.call(ctx, opLogout, accessToken, struct{}{}, nil)
}

// Refresh trades a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var resp models.RefreshResponse
	if err := c.call(ctx, opRefresh, "", models.RefreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", c.incomplete(opRefresh, "Session refresh failed")
	}
	return resp.AccessToken, nil
}

// ForgotPassword asks the backend to email a one-time code. A reply without
// expires_in is a failure.
func (c *Client) ForgotPassword(ctx context.Context, email string) (*models.ForgotPasswordResponse, error) {
	var resp models.ForgotPasswordResponse
	if err := c.call(ctx, opForgotPassword, "", models.ForgotPasswordRequest{Email: email}, &resp); err != nil {
		return nil, err
	}
	if resp.ExpiresIn <= 0 {
		return nil, c.incomplete(opForgotPassword, "Failed to send reset code")
	}
	if resp.Email == "" {
		resp.Email = email
	}
	return &resp, nil
}

// VerifyOTP checks the code and returns the reset token.
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	var resp models.VerifyOTPResponse
	if err := c.call(ctx, opVerifyOTP, "", models.VerifyOTPRequest{Email: email, OTP: otp}, &resp); err != nil {
		return "", err
	}
	if resp.ResetToken == "" {
		return "", c.incomplete(opVerifyOTP, "Invalid or expired code")
	}
	return resp.ResetToken, nil
}

// ResetPassword sets the new password. Password confirmation is checked by
// the backend.
func (c *Client) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	return c.call(ctx, opResetPassword, "", req, nil)
}

// IsTokenExpired reports whether token's exp claim has passed, allowing
// ExpirySkew. Tokens without a readable exp never expire locally; the
// backend remains the authority for those.
func (c *Client) IsTokenExpired(token string) bool {
	if token == "" {
		return true
	}
	expiresAt, ok := jwt.ExpiresAtUnverified(token)
	if !ok {
		return false
	}
	return !c.now().Add(ExpirySkew).Before(expiresAt)
}

// TokenExpiresAt returns the token's exp claim when it has one.
func (c *Client) TokenExpiresAt(token string) (time.Time, bool) {
	return jwt.ExpiresAtUnverified(token)
}

func (c *Client) incomplete(operation, message string) error {
	return &APIError{Operation: operation, StatusCode: http.StatusOK, Message: message, kind: ErrIncompleteResponse}
}

func (c *Client) call(ctx context.Context, operation, bearer string, body, out any) error {
	start := time.Now()

	_, err := circuitbreaker.Execute(c.breaker, func() (struct{}, error) {
		return struct{}{}, c.do(ctx, operation, bearer, body, out)
	})
	if circuitbreaker.IsRejected(err) {
		err = apperrors.NetworkError(operation, circuitbreaker.FormatError("auth-api", err))
	}

	duration := metrics.MeasureDuration(start)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.AuthAPIRequestDuration.WithLabelValues(operation, status).Observe(duration)
	metrics.AuthAPIRequestTotal.WithLabelValues(operation, status).Inc()

	if err != nil && isBackendAnswer(err) {
		// Rejections are expected traffic, not failures of the API
		c.log.Info("Auth API rejected request",
			zap.String("operation", operation),
			zap.String("reason", Message(err)),
			zap.Float64("duration", duration))
	} else {
		fields := []zap.Field{}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		logger.LogAPICall(c.log, "auth_api", operation, status, duration, fields...)
	}

	return err
}

func (c *Client) do(ctx context.Context, operation, bearer string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+paths[operation], bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(ctx, operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(operation, resp.StatusCode, errorMessage(raw))
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.NetworkError(operation, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func transportError(ctx context.Context, operation string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s: %w", operation, context.Canceled)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.TimeoutError(operation)
	}
	return apperrors.NetworkError(operation, err)
}

func errorMessage(raw []byte) string {
	var body models.APIErrorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
