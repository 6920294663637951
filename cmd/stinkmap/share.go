package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/stinkmap/stinkmap/internal/config"
)

func newShareCmd(configPath *string) *cobra.Command {
	var base, out string
	var size int
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Render a QR code linking to the admin view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			link, err := shareLink(base, cfg.Admin.AccessKey)
			if err != nil {
				return err
			}
			if out != "" {
				if err := qrcode.WriteFile(link, qrcode.Medium, size, out); err != nil {
					return fmt.Errorf("write qr code: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			}
			qr, err := qrcode.New(link, qrcode.Medium)
			if err != nil {
				return fmt.Errorf("encode qr code: %w", err)
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), qr.ToSmallString(false))
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "url", "http://localhost:8080/api/reports", "admin URL to encode")
	cmd.Flags().StringVar(&out, "out", "", "write a PNG instead of printing to the terminal")
	cmd.Flags().IntVar(&size, "size", 256, "PNG size in pixels")
	return cmd
}

// shareLink appends ?key= when an access key is configured.
func shareLink(base, accessKey string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", base)
	}
	if accessKey != "" {
		q := u.Query()
		q.Set("key", accessKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
