package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/internal/session"
	"github.com/schooldesk/portal/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway answers the auth API the way the school backend does.
type fakeGateway struct {
	mu            sync.Mutex
	loginStatus   int
	forgotExpires []int
	forgotCalls   int
	logoutBearers []string
	verified      []models.VerifyOTPRequest
	resets        []models.ResetPasswordRequest
}

func newFakeGateway(t *testing.T) (*fakeGateway, string) {
	t.Helper()
	f := &fakeGateway{loginStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.loginStatus
		f.mu.Unlock()
		if status != http.StatusOK {
			writeJSON(w, status, models.APIErrorBody{Message: "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, models.LoginResponse{
			User: &models.User{
				ID:        "u1",
				Email:     "ada@school.example",
				FirstName: "Ada",
				LastName:  "Lovelace",
				Role:      models.RoleTeacher,
			},
			AccessToken:  "opaque-access",
			RefreshToken: "opaque-refresh",
			Permissions:  []string{"grades:read"},
		})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logoutBearers = append(f.logoutBearers, r.Header.Get("Authorization"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/auth/forgot-password", func(w http.ResponseWriter, r *http.Request) {
		var req models.ForgotPasswordRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		expires := 300
		if f.forgotCalls < len(f.forgotExpires) {
			expires = f.forgotExpires[f.forgotCalls]
		}
		f.forgotCalls++
		f.mu.Unlock()

		writeJSON(w, http.StatusOK, models.ForgotPasswordResponse{Email: req.Email, ExpiresIn: expires})
	})
	mux.HandleFunc("POST /api/auth/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		var req models.VerifyOTPRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.verified = append(f.verified, req)
		f.mu.Unlock()

		writeJSON(w, http.StatusOK, models.VerifyOTPResponse{ResetToken: "reset-" + req.OTP})
	})
	mux.HandleFunc("POST /api/auth/reset-password", func(w http.ResponseWriter, r *http.Request) {
		var req models.ResetPasswordRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.resets = append(f.resets, req)
		f.mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func (f *fakeGateway) calls() (forgot int, bearers []string, verified []models.VerifyOTPRequest, resets []models.ResetPasswordRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forgotCalls,
		append([]string(nil), f.logoutBearers...),
		append([]models.VerifyOTPRequest(nil), f.verified...),
		append([]models.ResetPasswordRequest(nil), f.resets...)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type cli struct {
	gateway  string
	stateDir string
}

func newCLI(t *testing.T) (*fakeGateway, *cli) {
	t.Helper()
	fake, url := newFakeGateway(t)
	return fake, &cli{gateway: url, stateDir: t.TempDir()}
}

func (c *cli) run(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(stdin)
	cmd.SetArgs(append([]string{"--gateway", c.gateway, "--state-dir", c.stateDir}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func (c *cli) login(t *testing.T) {
	t.Helper()
	_, err := c.run(t, nil, "login", "--email", "ada@school.example", "--password", "secret")
	require.NoError(t, err)
}

func TestLoginStatusLogout(t *testing.T) {
	fake, c := newCLI(t)

	out, err := c.run(t, nil, "login", "-e", "ada@school.example", "-p", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "→ /teacher/dashboard")
	assert.Contains(t, out, "Logged in as Ada Lovelace <ada@school.example>")

	// A fresh process restores the session from the state dir
	out, err = c.run(t, nil, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Ada Lovelace")
	assert.Contains(t, out, "Role:        teacher")
	assert.Contains(t, out, "Permissions: grades:read")

	out, err = c.run(t, nil, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "→ /login")
	assert.Contains(t, out, "You have been logged out")
	_, bearers, _, _ := fake.calls()
	assert.Equal(t, []string{"Bearer opaque-access"}, bearers)

	out, err = c.run(t, nil, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}

func TestLogin_PromptsForMissingValues(t *testing.T) {
	_, c := newCLI(t)

	out, err := c.run(t, strings.NewReader("ada@school.example\nsecret\n"), "login")

	require.NoError(t, err)
	assert.Contains(t, out, "Email: ")
	assert.Contains(t, out, "Password: ")
	assert.Contains(t, out, "Logged in as")
}

func TestLogin_Rejected(t *testing.T) {
	fake, c := newCLI(t)
	fake.loginStatus = http.StatusUnauthorized

	_, err := c.run(t, nil, "login", "-e", "ada@school.example", "-p", "wrong")

	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", errorText(err))

	out, err := c.run(t, nil, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}

func TestLogout_WithoutSession(t *testing.T) {
	fake, c := newCLI(t)

	out, err := c.run(t, nil, "logout")

	require.NoError(t, err)
	assert.Contains(t, out, "→ /login")
	_, bearers, _, _ := fake.calls()
	assert.Empty(t, bearers)
}

func TestRefresh(t *testing.T) {
	_, c := newCLI(t)

	_, err := c.run(t, nil, "refresh")
	assert.ErrorIs(t, err, errNotLoggedIn)

	c.login(t)
	out, err := c.run(t, nil, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Session is current")
}

func TestAvatar_RequiresSession(t *testing.T) {
	_, c := newCLI(t)

	_, err := c.run(t, nil, "avatar", "delete", "profiles/u1/old.png")

	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestForgotPassword_FullFlow(t *testing.T) {
	fake, c := newCLI(t)

	out, err := c.run(t, strings.NewReader("123456\nnew-pass\nnew-pass\n"), "forgot-password", "-e", "ada@school.example")

	require.NoError(t, err)
	assert.Contains(t, out, "A reset code has been sent to ada@school.example")
	assert.Regexp(t, `Code \(expires in (4:59|5:00)\)`, out)
	assert.Contains(t, out, "Your password has been reset")

	_, _, verified, resets := fake.calls()
	require.Len(t, verified, 1)
	assert.Equal(t, models.VerifyOTPRequest{Email: "ada@school.example", OTP: "123456"}, verified[0])
	require.Len(t, resets, 1)
	assert.Equal(t, models.ResetPasswordRequest{
		Password:        "new-pass",
		ConfirmPassword: "new-pass",
		ResetToken:      "reset-123456",
		Email:           "ada@school.example",
	}, resets[0])
}

func TestForgotPassword_ExpiredCodeIsNotSubmitted(t *testing.T) {
	fake, c := newCLI(t)
	// The first code lapses before it can be typed, the resent one does not
	fake.forgotExpires = []int{1, 300}

	in, w := io.Pipe()
	go func() {
		time.Sleep(300 * time.Millisecond)
		_, _ = io.WriteString(w, "111111\n")
		_, _ = io.WriteString(w, "resend\n222222\nnew-pass\nnew-pass\n")
		_ = w.Close()
	}()

	out, err := c.run(t, in, "forgot-password", "-e", "ada@school.example")

	require.NoError(t, err)
	assert.Contains(t, out, "The code has expired")
	assert.Contains(t, out, "Submission disabled: the code has expired")
	forgot, _, verified, resets := fake.calls()
	assert.Equal(t, 2, forgot)
	require.Len(t, verified, 1)
	assert.Equal(t, "222222", verified[0].OTP)
	require.Len(t, resets, 1)
	assert.Equal(t, "reset-222222", resets[0].ResetToken)
}

func TestForgotPassword_InvalidEmail(t *testing.T) {
	fake, c := newCLI(t)

	_, err := c.run(t, nil, "forgot-password", "-e", "not-an-email")

	assert.ErrorIs(t, err, session.ErrInvalidEmail)
	forgot, _, _, _ := fake.calls()
	assert.Zero(t, forgot)
}

func TestVerifyOTP_UsesPendingTicket(t *testing.T) {
	fake, c := newCLI(t)

	store, err := storage.NewFileStore(filepath.Join(c.stateDir, stateFile))
	require.NoError(t, err)
	ticket, err := json.Marshal(session.Ticket{Email: "ada@school.example", ExpiresIn: 300, SentAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), session.KeyTicket, ticket, 5*time.Minute))

	out, err := c.run(t, nil, "verify-otp", "--code", "424242")

	require.NoError(t, err)
	assert.Contains(t, out, "reset-424242")
	_, _, verified, _ := fake.calls()
	require.Len(t, verified, 1)
	assert.Equal(t, "ada@school.example", verified[0].Email)

	// The ticket is consumed
	out, err = c.run(t, nil, "status")
	require.NoError(t, err)
	assert.NotContains(t, out, "Reset code for")
}

func TestResetPassword(t *testing.T) {
	fake, c := newCLI(t)

	out, err := c.run(t, strings.NewReader("one\ntwo\n"), "reset-password", "-e", "ada@school.example", "-t", "reset-abc")

	require.NoError(t, err)
	assert.Contains(t, out, "Your password has been reset")
	_, _, _, resets := fake.calls()
	require.Len(t, resets, 1)
	assert.Equal(t, "one", resets[0].Password)
	assert.Equal(t, "two", resets[0].ConfirmPassword)
}

func TestVersion(t *testing.T) {
	_, c := newCLI(t)

	out, err := c.run(t, nil, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "portalctl dev")
}
