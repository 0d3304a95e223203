package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/schooldesk/portal/internal/otp"
	"github.com/schooldesk/portal/internal/session"
	"github.com/schooldesk/portal/internal/storage"
	"github.com/spf13/cobra"
)

// resendCommand asks for a new code at the OTP prompt.
const resendCommand = "resend"

// reminderInterval spaces the "code expires in" reminders.
var reminderInterval = time.Minute

var errCodeExpired = errors.New("the reset code has expired, request a new one with portalctl forgot-password")

func forgotPasswordCmd(opts *rootOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Reset a forgotten password with an emailed code",
		Long: `Send a one-time code to the account email, then prompt for the code and
the new password. The code can be submitted only until it expires; type
"resend" at the code prompt to get a new one.`,
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

			ticket, err := a.session.ForgotPassword(ctx, email)
			if err != nil {
				return err
			}

			resetToken, err := a.awaitCode(ctx, prompt, ticket)
			if err != nil {
				return err
			}
			return a.choosePassword(ctx, prompt, resetToken, ticket.Email)
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")

	return cmd
}

// awaitCode prompts for the OTP while a countdown runs. Answers given after
// the countdown expired are refused without contacting the backend.
func (a *app) awaitCode(ctx context.Context, prompt *prompter, ticket *session.Ticket) (string, error) {
	countdown := otp.NewCountdown(ticket.RemainingTime(time.Now()), func() {
		a.out.Notify(session.NoticeError, `The code has expired. Type "resend" for a new one.`)
	})
	defer countdown.Stop()

	stopReminders := a.remind(ctx, countdown)
	defer func() { stopReminders() }()

	for {
		label := "Code (expires in " + formatRemaining(countdown.Remaining()) + ")"
		if countdown.Expired() {
			label = `Code expired, type "resend"`
		}
		answer, err := prompt.Ask(ctx, label)
		if err != nil {
			return "", err
		}

		switch {
		case strings.EqualFold(answer, resendCommand):
			next, err := a.session.ForgotPassword(ctx, ticket.Email)
			if err != nil {
				a.out.Notify(session.NoticeError, errorText(err))
				continue
			}
			ticket = next
			stopReminders()
			countdown.Restart(ticket.RemainingTime(time.Now()))
			stopReminders = a.remind(ctx, countdown)

		case answer == "":

		case countdown.Expired():
			a.out.Notify(session.NoticeError, "Submission disabled: the code has expired")

		default:
			resetToken, err := a.session.VerifyOTP(ctx, ticket.Email, answer)
			if err != nil {
				a.out.Notify(session.NoticeError, errorText(err))
				continue
			}
			return resetToken, nil
		}
	}
}

// remind prints the remaining time every reminderInterval until the
// countdown reaches zero. The returned function stops it.
func (a *app) remind(ctx context.Context, countdown *otp.Countdown) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	ticks := countdown.Ticks(ctx, reminderInterval)
	go func() {
		<-ticks // the first tick is the full period, already shown in the prompt
		for remaining := range ticks {
			if remaining > 0 {
				a.out.Printf("\n(code expires in %s)\n", formatRemaining(remaining))
			}
		}
	}()
	return cancel
}

func (a *app) choosePassword(ctx context.Context, prompt *prompter, resetToken, email string) error {
	password, err := prompt.Ask(ctx, "New password")
	if err != nil {
		return err
	}
	confirm, err := prompt.Ask(ctx, "Confirm new password")
	if err != nil {
		return err
	}
	return a.session.ResetPassword(ctx, password, confirm, resetToken, email)
}

func verifyOTPCmd(opts *rootOptions) *cobra.Command {
	var email, code string

	cmd := &cobra.Command{
		Use:   "verify-otp",
		Short: "Exchange a reset code for a reset token",
		Long: `Verify the one-time code sent by forgot-password and print the reset
token for reset-password. The email defaults to the pending request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			ticket, err := a.session.CurrentTicket(ctx)
			switch {
			case errors.Is(err, storage.ErrNotFound):
			case err != nil:
				return err
			}

			if email == "" && ticket != nil {
				email = ticket.Email
			}
			if ticket != nil && strings.EqualFold(ticket.Email, email) && ticket.IsExpired(time.Now()) {
				return errCodeExpired
			}

			prompt := newPrompter(cmd.InOrStdin(), a.out)
			if email, err = prompt.valueOrAsk(ctx, email, "Email"); err != nil {
				return err
			}
			if code, err = prompt.valueOrAsk(ctx, code, "Code"); err != nil {
				return err
			}

			resetToken, err := a.session.VerifyOTP(ctx, email, code)
			if err != nil {
				return err
			}
			a.out.Printf("%s\n", resetToken)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&code, "code", "c", "", "One-time code from the email")

	return cmd
}

func resetPasswordCmd(opts *rootOptions) *cobra.Command {
	var email, token string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with a reset token",
		Args:  cobra.NoArgs,
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
			if token, err = prompt.valueOrAsk(ctx, token, "Reset token"); err != nil {
				return err
			}
			return a.choosePassword(ctx, prompt, token, email)
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&token, "token", "t", "", "Reset token from verify-otp")

	return cmd
}
