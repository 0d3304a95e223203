package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/internal/storage"
	apperrors "github.com/schooldesk/portal/pkg/errors"
)

type fakeAuth struct {
	loginFn   func(ctx context.Context, email, password string) (*models.LoginResponse, error)
	refreshFn func(ctx context.Context, refreshToken string) (string, error)
	logoutErr error
	forgotFn  func(ctx context.Context, email string) (*models.ForgotPasswordResponse, error)
	verifyFn  func(ctx context.Context, email, otp string) (string, error)
	resetFn   func(ctx context.Context, req models.ResetPasswordRequest) error

	mu        sync.Mutex
	expired   map[string]bool
	expiresAt map[string]time.Time

	loginCalls   atomic.Int32
	logoutCalls  atomic.Int32
	refreshCalls atomic.Int32
	forgotCalls  atomic.Int32
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{expired: map[string]bool{}, expiresAt: map[string]time.Time{}}
}

func (f *fakeAuth) expire(token string) {
	f.mu.Lock()
	f.expired[token] = true
	f.mu.Unlock()
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	f.loginCalls.Add(1)
	if f.loginFn != nil {
		return f.loginFn(ctx, email, password)
	}
	return &models.LoginResponse{
		User:         &models.User{ID: "u1", Email: email, Role: models.RoleTeacher},
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Permissions:  []string{"grades:read"},
	}, nil
}

func (f *fakeAuth) Logout(context.Context, string) error {
	f.logoutCalls.Add(1)
	return f.logoutErr
}

func (f *fakeAuth) Refresh(ctx context.Context, refreshToken string) (string, error) {
	f.refreshCalls.Add(1)
	if f.refreshFn != nil {
		return f.refreshFn(ctx, refreshToken)
	}
	return "access-2", nil
}

func (f *fakeAuth) IsTokenExpired(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return token == "" || f.expired[token]
}

func (f *fakeAuth) TokenExpiresAt(token string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.expiresAt[token]
	return at, ok
}

func (f *fakeAuth) ForgotPassword(ctx context.Context, email string) (*models.ForgotPasswordResponse, error) {
	f.forgotCalls.Add(1)
	if f.forgotFn != nil {
		return f.forgotFn(ctx, email)
	}
	return &models.ForgotPasswordResponse{Email: email, ExpiresIn: 300}, nil
}

func (f *fakeAuth) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	if f.verifyFn != nil {
		return f.verifyFn(ctx, email, otp)
	}
	return "reset-token", nil
}

func (f *fakeAuth) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	if f.resetFn != nil {
		return f.resetFn(ctx, req)
	}
	return nil
}

type fakeCookies struct {
	// onSet runs before the cookie is written, outside the lock
	onSet func()

	mu      sync.Mutex
	value   string
	maxAge  time.Duration
	set     int
	cleared int
}

func (f *fakeCookies) SetAccessToken(token string, maxAge time.Duration) error {
	if f.onSet != nil {
		f.onSet()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = token
	f.maxAge = maxAge
	f.set++
	return nil
}

func (f *fakeCookies) lastMaxAge() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxAge
}

func (f *fakeCookies) ClearAccessToken() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = ""
	f.cleared++
	return nil
}

func (f *fakeCookies) current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

type recorder struct {
	mu      sync.Mutex
	paths   []string
	notices []string
}

func (r *recorder) Navigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) Notify(_ NoticeLevel, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, message)
}

func (r *recorder) allPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func (r *recorder) lastPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.paths) == 0 {
		return ""
	}
	return r.paths[len(r.paths)-1]
}

func (r *recorder) noticeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

type harness struct {
	ctrl    *Controller
	auth    *fakeAuth
	store   *storage.MemoryStore
	cookies *fakeCookies
	rec     *recorder
}

func newHarness(interval time.Duration) *harness {
	h := &harness{
		auth:    newFakeAuth(),
		store:   storage.NewMemoryStore(),
		cookies: &fakeCookies{},
		rec:     &recorder{},
	}
	h.ctrl = New(Options{
		Auth:            h.auth,
		Store:           h.store,
		Cookies:         h.cookies,
		Navigator:       h.rec,
		Notifier:        h.rec,
		RefreshInterval: interval,
	})
	return h
}

var errRejected = apperrors.UnauthorizedError("Wrong email or password")
