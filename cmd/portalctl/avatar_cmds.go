package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/internal/session"
	"github.com/spf13/cobra"
)

func avatarCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "avatar",
		Short: "Manage the profile picture on the image host",
		Long: `Upload, replace or delete a profile picture. Images are sent straight to
the image host with a signature issued by the gateway.

Examples:
  portalctl avatar upload ./me.png
  portalctl avatar replace profiles/u1/old.png ./new.jpg
  portalctl avatar delete profiles/u1/old.png`,
	}

	cmd.AddCommand(
		avatarUploadCmd(opts),
		avatarReplaceCmd(opts),
		avatarDeleteCmd(opts),
	)

	return cmd
}

func avatarUploadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a new picture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.requireSession(); err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			img, err := a.uploader.Upload(cmd.Context(), data, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			a.printImage(img)
			return nil
		},
	}
}

func avatarReplaceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replace <old-key> <file>",
		Short: "Upload a picture and remove the previous one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.requireSession(); err != nil {
				return err
			}

			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			img, err := a.uploader.Replace(cmd.Context(), args[0], data, filepath.Base(args[1]))
			if err != nil {
				return err
			}
			a.printImage(img)
			return nil
		},
	}
}

func avatarDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a picture from the image host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.requireSession(); err != nil {
				return err
			}

			if err := a.uploader.Destroy(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.out.Notify(session.NoticeSuccess, "Deleted "+args[0])
			return nil
		},
	}
}

func (a *app) printImage(img *models.UploadedImage) {
	a.out.Notify(session.NoticeSuccess, fmt.Sprintf("Uploaded %s (%s, %d bytes)", img.Key, img.MIMEType, img.Size))
	a.out.Printf("  URL: %s\n", img.PublicURL)
}
