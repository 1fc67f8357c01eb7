package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/tokengate/internal/auth"
	"github.com/devilmonastery/tokengate/internal/config"
)

func newTokenCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Credential commands",
		Long:  "Mint and inspect credentials with the configured signing secret",
	}

	cmd.AddCommand(newIssueTokenCommand(configPath))
	cmd.AddCommand(newVerifyTokenCommand(configPath))

	return cmd
}

func newIssueTokenCommand(configPath *string) *cobra.Command {
	var (
		subject     string
		email       string
		displayName string
		avatarURL   string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a credential without a provider login",
		Long: `Issue a credential for the given identity, signed with the configured secret.

Meant for local development: the credential is accepted by /api/user exactly
like one issued at the end of a login.

Examples:
  # Credential with the configured lifetime
  web token issue --sub 1234 --email dev@example.com --name "Dev"

  # Short-lived credential
  web token issue --sub 1234 --email dev@example.com --ttl 5m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if ttl > 0 {
				cfg.Auth.JWT.Lifetime = ttl
			}

			tm, err := newTokenManager(cfg)
			if err != nil {
				return err
			}

			identity, err := auth.NewIdentity(subject, displayName, email, avatarURL)
			if err != nil {
				return err
			}

			credential, err := tm.Issue(identity, time.Now())
			if err != nil {
				return err
			}
			return writeCredential(cmd.OutOrStdout(), credential)
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "Provider subject identifier (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&displayName, "name", "", "Display name")
	cmd.Flags().StringVar(&avatarURL, "avatar", "", "Avatar URL")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Credential lifetime (defaults to auth.jwt.lifetime)")

	cmd.MarkFlagRequired("sub")
	cmd.MarkFlagRequired("email")

	return cmd
}

func newVerifyTokenCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a credential and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			tm, err := newTokenManager(cfg)
			if err != nil {
				return err
			}

			claims, err := tm.Verify(args[0], time.Now())
			if err != nil {
				return fmt.Errorf("%s: %w", auth.VerifyErrorCode(err), err)
			}
			return writeJSON(cmd.OutOrStdout(), claims)
		},
	}
}

func writeCredential(w io.Writer, credential auth.Credential) error {
	return writeJSON(w, map[string]interface{}{
		"token":     credential.Token,
		"issuedAt":  credential.IssuedAt.Unix(),
		"expiresAt": credential.ExpiresAt.Unix(),
	})
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
