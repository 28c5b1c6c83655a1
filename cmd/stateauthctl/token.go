package main

import (
	"encoding/json"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/stateauth/jwt"
)

// NewTokenCmd creates the token command group.
func NewTokenCmd(app *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Work with issued tokens",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "inspect <token>",
		Short: "Verify a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.settings.EngineConfig()
			if err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}
			manager, err := jwt.NewManager(jwt.Config{
				AccessTTL:     cfg.JWT.AccessTTL,
				RefreshTTL:    cfg.JWT.RefreshTTL,
				SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
				PrivateKey:    cfg.JWT.PrivateKey,
				PublicKey:     cfg.JWT.PublicKey,
				Issuer:        cfg.JWT.Issuer,
				Audience:      cfg.JWT.Audience,
			})
			if err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}

			claims, err := manager.Verify(args[0])
			if err != nil {
				return oops.Code("TOKEN_INVALID").Wrap(err)
			}

			out := map[string]any{
				"sub":   claims.Subject,
				"type":  claims.Type,
				"state": claims.State,
			}
			if claims.IssuedAt != nil {
				out["iat"] = claims.IssuedAt.UTC().Format(time.RFC3339)
			}
			if claims.ExpiresAt != nil {
				out["exp"] = claims.ExpiresAt.UTC().Format(time.RFC3339)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	})

	return cmd
}
