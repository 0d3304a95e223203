package main

import (
	"errors"
	"strings"
	"time"

	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/internal/session"
	"github.com/schooldesk/portal/internal/storage"
	"github.com/spf13/cobra"
)

func loginCmd(opts *rootOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Long: `Log in with email and password. Missing values are prompted for.

Examples:
  portalctl login --email ada@school.example
  portalctl login --email ada@school.example --password secret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			prompt := newPrompter(cmd.InOrStdin(), a.out)
			if email, err = prompt.valueOrAsk(ctx, email, "Email"); err != nil {
				return err
			}
			if password, err = prompt.valueOrAsk(ctx, password, "Password"); err != nil {
				return err
			}

			user, err := a.session.Login(ctx, email, password)
			if err != nil {
				return err
			}
			a.out.Notify(session.NoticeSuccess, "Logged in as "+displayName(user))
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password")

	return cmd
}

func logoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			a.session.Logout(cmd.Context())
			return nil
		},
	}
}

func statusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			snap := a.session.Snapshot()
			if !snap.IsAuthenticated() {
				a.out.Printf("Not logged in\n")
			} else {
				user := snap.User
				a.out.Printf("Logged in as %s\n", displayName(user))
				a.out.Printf("  Role:        %s\n", user.Role)
				if user.SchoolName != "" {
					a.out.Printf("  School:      %s\n", user.SchoolName)
				}
				if len(snap.Permissions) > 0 {
					a.out.Printf("  Permissions: %s\n", strings.Join(snap.Permissions, ", "))
				}
				if expiresAt, ok := a.auth.TokenExpiresAt(snap.AccessToken); ok {
					a.out.Printf("  Token until: %s\n", expiresAt.Local().Format(time.RFC1123))
				}
			}

			ticket, err := a.session.CurrentTicket(cmd.Context())
			switch {
			case errors.Is(err, storage.ErrNotFound):
			case err != nil:
				return err
			case ticket.IsExpired(time.Now()):
				a.out.Printf("Reset code for %s has expired\n", ticket.Email)
			default:
				a.out.Printf("Reset code for %s expires in %s\n", ticket.Email, formatRemaining(ticket.RemainingTime(time.Now())))
			}
			return nil
		},
	}
}

func refreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token if it has expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.requireSession(); err != nil {
				return err
			}
			if err := a.session.RefreshAuth(cmd.Context()); err != nil {
				return err
			}
			a.out.Printf("Session is current\n")
			return nil
		},
	}
}

func watchCmd(opts *rootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session fresh until interrupted",
		Long: `Run the automatic refresh loop in the foreground. It stops on Ctrl-C
or when the session ends because a refresh failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			watchOpts := *opts
			watchOpts.refreshInterval = interval

			a, err := openApp(cmd, &watchOpts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.requireSession(); err != nil {
				return err
			}

			a.out.Printf("Refreshing every %s, press Ctrl-C to stop\n", a.cfg.RefreshInterval)
			select {
			case <-cmd.Context().Done():
				return nil
			case <-a.session.RefreshLoopDone():
				return errors.New("session ended")
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Refresh check interval (defaults to PORTAL_REFRESH_INTERVAL)")

	return cmd
}

func displayName(user *models.User) string {
	if name := user.FullName(); name != "" {
		return name + " <" + user.Email + ">"
	}
	return user.Email
}
