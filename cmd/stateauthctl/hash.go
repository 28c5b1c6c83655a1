package main

import (
	"bufio"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/stateauth/password"
)

// NewHashPasswordCmd creates the hash-password command.
func NewHashPasswordCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Hash a password with the configured algorithm",
		Long: `Hash a password with the configured algorithm. Without an argument the
password is read from the first line of standard input.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pw string
			if len(args) == 1 {
				pw = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return oops.Code("INPUT_INVALID").Wrapf(err, "read password from stdin")
				}
				pw = strings.TrimRight(line, "\r\n")
			}
			if pw == "" {
				return oops.Code("INPUT_INVALID").Errorf("password must not be empty")
			}

			hasher, err := hasherFor(app.settings.PasswordAlgorithm, app.settings.BcryptSaltRounds)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(pw)
			if err != nil {
				return oops.Code("HASH_FAILED").Wrap(err)
			}
			cmd.Println(hash)
			return nil
		},
	}
}

func hasherFor(algorithm string, bcryptCost int) (password.Hasher, error) {
	switch password.Algorithm(algorithm) {
	case password.AlgorithmArgon2id:
		return password.NewArgon2(password.DefaultArgon2Config())
	case password.AlgorithmBcrypt, "":
		return password.NewBcrypt(bcryptCost)
	default:
		return nil, oops.Code("CONFIG_INVALID").With("algorithm", algorithm).Errorf("unknown password algorithm")
	}
}
