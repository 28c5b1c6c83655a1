// Command stateauthctl is the operator tool for stateauth deployments:
// schema migrations, password hashing, token inspection, TOTP debugging and
// a refresh-race load test.
package main

import (
	"fmt"
	"os"

	"github.com/MrEthical07/stateauth/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	app := &cliApp{}
	cmd := NewRootCmd(app)
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := cmd.Execute(); err != nil {
		logger := app.logger
		if logger == nil {
			logger = logging.Setup("stateauthctl", version, "text", logging.ParseLevel("error"), os.Stderr)
		}
		logging.LogError(logger, "command failed", err)
		os.Exit(1)
	}
}
