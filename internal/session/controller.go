// Package session owns the authenticated user's identity and access token on
// the client: login, logout, silent refresh, and the forgot-password flow.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/internal/routes"
	"github.com/schooldesk/portal/internal/storage"
	apperrors "github.com/schooldesk/portal/pkg/errors"
	"github.com/schooldesk/portal/pkg/logger"
	"github.com/schooldesk/portal/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Storage keys.
const (
	KeySession      = "session"
	KeyRefreshToken = "refresh_token"
	KeyTicket       = "forgot_password_ticket"
)

// DefaultRefreshInterval is how often the automatic loop checks the token.
const DefaultRefreshInterval = 5 * time.Minute

const (
	triggerManual  = "manual"
	triggerAuto    = "auto"
	triggerStartup = "startup"
)

// Options configures a Controller.
type Options struct {
	Auth      AuthService
	Store     storage.Store
	Cookies   CookieWriter
	Navigator Navigator
	Notifier  Notifier
	Log       *zap.Logger

	// RefreshInterval enables the automatic refresh loop while a session
	// exists. Zero disables it.
	RefreshInterval time.Duration
}

// Controller is the single owner of session state. It is safe for
// concurrent use.
type Controller struct {
	auth     AuthService
	store    storage.Store
	cookies  CookieWriter
	nav      Navigator
	notify   Notifier
	log      *zap.Logger
	validate *validator.Validate
	now      func() time.Time
	interval time.Duration

	mu          sync.RWMutex
	state       State
	user        *models.User
	accessToken string
	permissions []string
	loading     bool
	lastErr     error
	// epoch advances on every logout; in-flight logins and refreshes that
	// started in an older epoch discard their results.
	epoch uint64

	// writeMu orders persisted-storage and cookie writes, so a logout's clear
	// always lands after a login's save.
	writeMu sync.Mutex

	refreshes singleflight.Group

	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New creates a controller in the anonymous state.
func New(opts Options) *Controller {
	return &Controller{
		auth:     opts.Auth,
		store:    opts.Store,
		cookies:  opts.Cookies,
		nav:      opts.Navigator,
		notify:   opts.Notifier,
		log:      logger.OrNop(opts.Log),
		validate: validator.New(),
		now:      time.Now,
		interval: opts.RefreshInterval,
		state:    StateAnonymous,
	}
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		State:       c.state,
		User:        copyUser(c.user),
		AccessToken: c.accessToken,
		Permissions: append([]string(nil), c.permissions...),
		IsLoading:   c.loading,
		Err:         c.lastErr,
	}
}

// Initialize restores the persisted session. An expired token is refreshed
// silently; if that fails all persisted auth data is cleared and the
// controller stays anonymous. Initialize only returns storage errors.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	epoch := c.epoch
	c.loading = true
	c.setStateLocked(StateInitializing)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading = false
		if c.state == StateInitializing {
			c.setStateLocked(StateAnonymous)
		}
		c.mu.Unlock()
	}()

	data, err := c.store.Get(ctx, KeySession)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	persisted, err := DecodePersisted(data)
	if err != nil {
		c.log.Warn("Discarding unreadable persisted session", zap.Error(err))
		return c.clearPersisted(ctx)
	}

	if persisted.AccessToken == "" || persisted.User == nil {
		return c.clearPersisted(ctx)
	}

	token := persisted.AccessToken
	if c.auth.IsTokenExpired(token) {
		token, err = c.exchangeRefreshToken(ctx)
		metrics.SessionRefreshes.WithLabelValues(triggerStartup, outcome(err)).Inc()
		if err != nil {
			c.log.Info("Stored session could not be refreshed", zap.Error(err))
			return c.clearPersisted(ctx)
		}
	}

	committed, err := c.commit(ctx, epoch, persisted.User, token, "", persisted.Permissions)
	if err != nil {
		return err
	}
	if committed && c.startRefreshLoop(epoch) {
		c.log.Debug("Session restored", zap.String("user_id", persisted.User.ID))
	}
	return nil
}

// Login authenticates and routes the user to onboarding or their dashboard.
// A failure is recorded and returned unchanged; it is never retried.
func (c *Controller) Login(ctx context.Context, email, password string) (*models.User, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.loading = true
	c.lastErr = nil
	c.mu.Unlock()

	resp, err := c.auth.Login(ctx, email, password)

	c.mu.Lock()
	superseded := c.epoch != epoch
	if err != nil && !superseded {
		c.lastErr = err
		c.setStateLocked(StateError)
	}
	c.loading = false
	c.mu.Unlock()

	if superseded {
		c.log.Info("Discarding login result after logout")
		return nil, ErrLoginSuperseded
	}
	if err != nil {
		c.log.Warn("Login failed", zap.Error(err))
		return nil, err
	}

	committed, err := c.commit(ctx, epoch, resp.User, resp.AccessToken, resp.RefreshToken, resp.Permissions)
	if err != nil {
		return nil, err
	}
	// A logout may also land while commit was writing
	if !committed || !c.startRefreshLoop(epoch) || !c.navigateIfCurrent(epoch, routes.PostLoginDestination(resp.User)) {
		c.log.Info("Discarding login result after logout")
		return nil, ErrLoginSuperseded
	}

	c.log.Info("User logged in",
		zap.String("user_id", resp.User.ID),
		zap.String("role", string(resp.User.Role)))
	return copyUser(resp.User), nil
}

// navigateIfCurrent navigates only while no logout has happened since epoch.
// The read lock keeps a concurrent logout's epoch bump, and so its own
// navigation to the login page, ordered after this one.
func (c *Controller) navigateIfCurrent(epoch uint64, dest string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.epoch != epoch {
		return false
	}
	c.nav.Navigate(dest)
	return true
}

// Logout ends the session. The remote logout is best effort; local state,
// persisted data and the cookie are always cleared. It is safe to call
// without a session.
func (c *Controller) Logout(ctx context.Context) {
	c.logout(ctx, true)
}

func (c *Controller) logout(ctx context.Context, announce bool) {
	c.mu.Lock()
	c.epoch++
	token := c.accessToken
	c.user = nil
	c.accessToken = ""
	c.permissions = nil
	c.loading = false
	c.lastErr = nil
	c.setStateLocked(StateAnonymous)
	c.mu.Unlock()

	c.stopRefreshLoop()

	if token != "" {
		if err := c.auth.Logout(ctx, token); err != nil {
			c.log.Warn("Remote logout failed", zap.Error(err))
		}
	}

	if err := c.clearPersisted(context.WithoutCancel(ctx)); err != nil {
		c.log.Error("Failed to clear persisted session", zap.Error(err))
	}

	c.nav.Navigate(routes.LoginPath)
	if announce {
		c.notify.Notify(NoticeSuccess, "You have been logged out")
	}
}

// RefreshAuth replaces the access token when it has expired. Concurrent
// callers share one outstanding refresh. A failed refresh logs the user out
// and returns an error wrapping ErrRefreshFailed.
func (c *Controller) RefreshAuth(ctx context.Context) error {
	return c.refresh(ctx, triggerManual)
}

func (c *Controller) refresh(ctx context.Context, trigger string) error {
	ch := c.refreshes.DoChan("refresh", func() (any, error) {
		// Joined callers may cancel independently of the first one
		return nil, c.doRefresh(context.WithoutCancel(ctx), trigger)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) doRefresh(ctx context.Context, trigger string) error {
	c.mu.Lock()
	token, epoch := c.accessToken, c.epoch
	user, permissions := c.user, c.permissions
	if token == "" || user == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if !c.auth.IsTokenExpired(token) {
		c.mu.Unlock()
		metrics.SessionRefreshes.WithLabelValues(trigger, "skipped").Inc()
		return nil
	}
	c.setStateLocked(StateRefreshing)
	c.mu.Unlock()

	newToken, err := c.exchangeRefreshToken(ctx)
	metrics.SessionRefreshes.WithLabelValues(trigger, outcome(err)).Inc()
	if err != nil && c.currentEpoch() != epoch {
		return ErrNoSession
	}
	if err != nil {
		c.log.Warn("Token refresh failed, logging out",
			zap.String("trigger", trigger),
			zap.Error(err))
		c.logout(ctx, false)
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	committed, err := c.commit(ctx, epoch, user, newToken, "", permissions)
	if err != nil {
		return err
	}
	if committed {
		c.log.Debug("Access token refreshed", zap.String("trigger", trigger))
	}
	return nil
}

func (c *Controller) exchangeRefreshToken(ctx context.Context) (string, error) {
	refreshToken, err := c.store.Get(ctx, KeyRefreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperrors.UnauthorizedError("no refresh token")
		}
		return "", err
	}
	return c.auth.Refresh(ctx, string(refreshToken))
}

func (c *Controller) currentEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// commit installs a session unless a logout happened since epoch, then
// persists it and sets the cookie. An empty refreshToken keeps the stored one.
func (c *Controller) commit(ctx context.Context, epoch uint64, user *models.User, token, refreshToken string, permissions []string) (bool, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return false, nil
	}
	c.user = copyUser(user)
	c.accessToken = token
	c.permissions = append([]string(nil), permissions...)
	c.lastErr = nil
	c.setStateLocked(StateAuthenticated)
	c.mu.Unlock()

	blob, err := EncodePersisted(Persisted{
		AccessToken: token,
		User:        user,
		Permissions: permissions,
		SavedAt:     c.now().UTC(),
	})
	if err != nil {
		return true, fmt.Errorf("encode session: %w", err)
	}
	if err := c.store.Set(ctx, KeySession, blob, 0); err != nil {
		return true, fmt.Errorf("persist session: %w", err)
	}
	if refreshToken != "" {
		if err := c.store.Set(ctx, KeyRefreshToken, []byte(refreshToken), 0); err != nil {
			return true, fmt.Errorf("persist refresh token: %w", err)
		}
	}

	var maxAge time.Duration
	if expiresAt, ok := c.auth.TokenExpiresAt(token); ok {
		maxAge = expiresAt.Sub(c.now())
		if maxAge <= 0 {
			maxAge = -time.Second
		}
	}
	if err := c.cookies.SetAccessToken(token, maxAge); err != nil {
		return true, fmt.Errorf("set access cookie: %w", err)
	}
	return true, nil
}

// clearPersisted removes every persisted auth value and the cookie.
func (c *Controller) clearPersisted(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var errs []error
	if err := c.store.Delete(ctx, KeySession, KeyRefreshToken); err != nil {
		errs = append(errs, err)
	}
	if err := c.cookies.ClearAccessToken(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// setStateLocked must be called with mu held.
func (c *Controller) setStateLocked(next State) {
	if c.state == next {
		return
	}
	metrics.SessionTransitions.WithLabelValues(string(c.state), string(next)).Inc()
	c.state = next
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
