package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configFile string
	gateway    string
	stateDir   string

	// refreshInterval is set by commands that run the refresh loop.
	refreshInterval time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorText(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "portalctl",
		Short: "Sign in to the SchoolDesk portal from the terminal",
		Long: `portalctl manages a SchoolDesk portal session.

It logs in through the gateway, keeps the access token fresh, walks through
the forgot-password flow and manages the profile picture.

Configuration comes from PORTAL_* environment variables or --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file (yaml, json or env)")
	rootCmd.PersistentFlags().StringVar(&opts.gateway, "gateway", "", "Gateway URL (overrides PORTAL_GATEWAY_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.stateDir, "state-dir", "", "Session state directory (overrides PORTAL_STATE_DIR)")

	rootCmd.AddCommand(
		loginCmd(opts),
		logoutCmd(opts),
		statusCmd(opts),
		refreshCmd(opts),
		watchCmd(opts),
		forgotPasswordCmd(opts),
		verifyOTPCmd(opts),
		resetPasswordCmd(opts),
		avatarCmd(opts),
		versionCmd(),
	)

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "portalctl %s (%s)\n", version, commit)
			fmt.Fprintf(out, "%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
