package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/warp/ledger-engine/api"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// SUBTOTAL
// =============================================================================

type SubtotalOptions struct {
	*RootOptions
	File  string
	Style string
}

func NewSubtotalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubtotalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "subtotal",
		Short: "Print a subtotal report",
		Long: `Print a subtotal report.

The input is {"query": <detail query>, "spec": <subtotal spec>}, the same
body POST /api/subtotal accepts, e.g.
  {"query":{"details":{"atom":{"title":6602}}},
   "spec":{"levels":["currency","month"]}}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubtotal(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "input file (default stdin)")
	cmd.Flags().StringVarP(&opts.Style, "style", "s", "indented", "output style: indented, terse or json")

	return cmd
}

func runSubtotal(cmd *cobra.Command, opts *SubtotalOptions) error {
	var req api.SubtotalRequest
	if err := readInput(cmd.InOrStdin(), opts.File, &req); err != nil {
		return err
	}
	switch opts.Style {
	case "indented", "terse":
		req.Format = opts.Style
	case "json":
		req.Format = ""
	default:
		return WrapExitError(ExitCommandError, "invalid flags", fmt.Errorf("unknown style %q", opts.Style))
	}

	ctx := cmd.Context()
	e, err := opts.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close(context.Background())

	resp, err := api.EvaluateSubtotal(ctx, e.ledger, e.rates, req)
	if err != nil {
		return WrapExitError(ExitFailure, "subtotal failed", err)
	}
	if resp.Root != nil {
		return writeJSON(cmd.OutOrStdout(), resp.Root)
	}
	_, err = io.WriteString(cmd.OutOrStdout(), resp.Text)
	return err
}

// =============================================================================
// NORMALIZE
// =============================================================================

type NormalizeOptions struct {
	*RootOptions
	File string
	User string
}

func NewNormalizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NormalizeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Print a voucher as it would be saved",
		Long: `Print a voucher as it would be saved: missing amounts completed and
multi-currency or multi-user legs balanced. Nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNormalize(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "input file (default stdin)")
	cmd.Flags().StringVarP(&opts.User, "user", "u", "anonymous", "user owning legs without one")

	return cmd
}

func runNormalize(cmd *cobra.Command, opts *NormalizeOptions) error {
	var v ledger.Voucher
	if err := readInput(cmd.InOrStdin(), opts.File, &v); err != nil {
		return err
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	norm, err := cfg.Ledger.Normalizer().Normalize(v, ledger.NewRequestContext(opts.User))
	if err != nil {
		return WrapExitError(ExitFailure, "voucher rejected", err)
	}
	return writeJSON(cmd.OutOrStdout(), norm)
}
