/*
main.go - Application entry point

PURPOSE:
  Runs the ledger command line; see package cli for the commands.

EXAMPLES:
  # Serve the API over a file database
  ledger serve --db ./data/ledger.db

  # Serve with a full configuration
  ledger serve --config ledger.yaml

  # Monthly expense report from the shell
  echo '{"query":{"details":{"atom":{"title":6602}}},"spec":{"levels":["month"]}}' |
      ledger subtotal --db ./data/ledger.db

SEE ALSO:
  - cli/root.go: commands and exit codes
  - config/config.go: configuration file
*/
package main

import (
	"fmt"
	"os"

	"github.com/warp/ledger-engine/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
