package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"botrelay/internal/auth"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		userID string
		role   string
		expiry time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a dashboard access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.RequireSecret(); err != nil {
				return err
			}
			tokenCfg := auth.TokenConfig{Secret: cfg.MasterSecret, Expiry: cfg.TokenExpiry, Issuer: "botrelay"}
			if expiry > 0 {
				tokenCfg.Expiry = expiry
			}
			tok, err := auth.CreateToken(userID, auth.Role(role), tokenCfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed as the token subject")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "user or admin")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "token lifetime (defaults to TOKEN_EXPIRY_SECONDS)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
