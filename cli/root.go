/*
Package cli is the ledger command line.

COMMANDS:
  serve       run the HTTP API
  import      normalize and save vouchers read as JSON
  query       print the vouchers matching a query tree
  subtotal    print a subtotal report
  normalize   print a voucher as it would be saved, without saving it

Every command reads the same YAML configuration (config.LoadFile); --db
switches the store to a SQLite file without writing a config at all.

EXIT CODES:
  0  success
  1  the command ran and failed (rejected voucher, dangerous query ...)
  2  the command could not run (bad flags, unreadable input, no store)
*/
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/ledger-engine/config"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// ExitError carries the exit code a command wants the process to end with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err, ExitFailure by default.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// RootOptions holds global flags shared by all subcommands.
type RootOptions struct {
	ConfigPath string
	Database   string
	Verbose    bool
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "ledger",
		Short:         "Double-entry ledger with query trees and subtotals",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database path, overrides the configured store")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewSubtotalCommand(opts))
	cmd.AddCommand(NewNormalizeCommand(opts))

	return cmd
}

// loadConfig reads the config file and applies the global overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.LoadFile(o.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "load config", err)
	}
	if o.Database != "" {
		cfg.Store.Driver = config.DriverSQLite
		cfg.Store.Path = o.Database
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
