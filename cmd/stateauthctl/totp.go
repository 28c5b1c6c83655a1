package main

import (
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/stateauth"
)

// NewTOTPCmd creates the totp command group.
func NewTOTPCmd(app *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "totp",
		Short: "Debug TOTP enrollment",
	}

	var secret string
	code := &cobra.Command{
		Use:   "code",
		Short: "Print the code currently valid for a secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := stateauth.DefaultConfig().TwoFactor
			cfg.Issuer = app.settings.AppIssuer
			verifier := stateauth.NewTwoFactorVerifier(cfg, nil)

			now := time.Now()
			c, err := verifier.CodeAt(secret, now)
			if err != nil {
				return oops.Code("INPUT_INVALID").Wrap(err)
			}
			remaining := verifier.Period() - time.Duration(now.Unix()%int64(verifier.Period()/time.Second))*time.Second
			cmd.Printf("%s (valid for %s)\n", c, remaining)
			return nil
		},
	}
	code.Flags().StringVar(&secret, "secret", "", "base32 TOTP secret")
	_ = code.MarkFlagRequired("secret")
	cmd.AddCommand(code)

	return cmd
}
