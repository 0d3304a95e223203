package main

import (
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"path/filepath"
	"time"

	"github.com/schooldesk/portal/config"
	"github.com/schooldesk/portal/internal/authapi"
	"github.com/schooldesk/portal/internal/media"
	"github.com/schooldesk/portal/internal/session"
	"github.com/schooldesk/portal/internal/storage"
	"github.com/schooldesk/portal/pkg/httpclient"
	"github.com/schooldesk/portal/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// stateFile is the file store name inside the state directory.
const stateFile = "state.json"

var errNotLoggedIn = errors.New("not logged in, run portalctl login first")

// app is one command's view of the client: config, logger, the session
// controller restored from storage and the media uploader.
type app struct {
	cfg      *config.ClientConfig
	log      *zap.Logger
	out      *printer
	auth     *authapi.Client
	session  *session.Controller
	uploader *media.Uploader

	closers []func() error
}

// openApp wires the client and restores the persisted session. With loop
// set the automatic refresh loop runs while the session lasts.
func openApp(cmd *cobra.Command, opts *rootOptions, loop bool) (*app, error) {
	ctx := cmd.Context()

	cfg, err := config.LoadClient(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.gateway != "" {
		cfg.GatewayURL = opts.gateway
	}
	if opts.stateDir != "" {
		cfg.StateDir = opts.stateDir
		cfg.RedisURL = ""
	}
	if opts.refreshInterval > 0 {
		cfg.RefreshInterval = opts.refreshInterval
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var refreshInterval time.Duration
	if loop {
		refreshInterval = cfg.RefreshInterval
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Environment: cfg.AppEnv,
		ServiceName: "portalctl",
		Stderr:      true,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, out: newPrinter(cmd.OutOrStdout())}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	// One jar for every request, so the gateway always sees the current
	// access cookie.
	jar, err := cookiejar.New(nil)
	if err != nil {
		a.Close()
		return nil, err
	}
	cookies, err := session.NewJarCookieWriter(jar, cfg.GatewayURL)
	if err != nil {
		a.Close()
		return nil, err
	}

	apiClient := httpclient.NewStandardClient(httpclient.Options{Timeout: cfg.RequestTimeout, Jar: jar})
	uploadClient := httpclient.NewStandardClient(httpclient.Options{Timeout: cfg.Upload.Timeout, Jar: jar})

	a.auth = authapi.NewClient(cfg.GatewayURL, apiClient, log)
	a.session = session.New(session.Options{
		Auth:            a.auth,
		Store:           store,
		Cookies:         cookies,
		Navigator:       a.out,
		Notifier:        a.out,
		Log:             log,
		RefreshInterval: refreshInterval,
	})
	a.closers = append(a.closers, func() error {
		a.session.Close()
		return nil
	})

	a.uploader, err = media.NewUploader(media.Options{
		GatewayURL:      cfg.GatewayURL,
		HTTP:            uploadClient,
		Timeout:         cfg.Upload.Timeout,
		MaxSize:         cfg.Upload.MaxSizeBytes,
		DeleteRetries:   cfg.Upload.DeleteRetries,
		DeleteBaseDelay: cfg.Upload.DeleteBaseDelay,
		Log:             log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.session.Initialize(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}

	return a, nil
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	if a.cfg.RedisURL != "" {
		store, err := storage.NewRedisStoreFromURL(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.log.Debug("Using redis session store")
		return store, nil
	}
	return storage.NewFileStore(filepath.Join(a.cfg.StateDir, stateFile))
}

// requireSession fails unless a session was restored.
func (a *app) requireSession() (session.Snapshot, error) {
	snap := a.session.Snapshot()
	if !snap.IsAuthenticated() {
		return snap, errNotLoggedIn
	}
	return snap, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Close failed", zap.Error(err))
		}
	}
	logger.Sync(a.log)
}

// errorText prefers the backend's user-facing message.
func errorText(err error) string {
	return authapi.Message(err)
}
