package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/warp/ledger-engine/api"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/virtual"
)

// =============================================================================
// IMPORT
// =============================================================================

type ImportOptions struct {
	*RootOptions
	File string
	User string
}

func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Normalize and save a JSON array of vouchers",
		Long: `Normalize and save a JSON array of vouchers.

The vouchers are staged in one overlay: either every voucher is saved or,
when any of them is rejected, none is.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "input file (default stdin)")
	cmd.Flags().StringVarP(&opts.User, "user", "u", "anonymous", "user owning legs without one")

	return cmd
}

type importResult struct {
	Saved []string `json:"saved"`
}

func runImport(cmd *cobra.Command, opts *ImportOptions) error {
	var vouchers []ledger.Voucher
	if err := readInput(cmd.InOrStdin(), opts.File, &vouchers); err != nil {
		return err
	}

	ctx := cmd.Context()
	e, err := opts.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close(context.Background())

	rc := ledger.NewRequestContext(opts.User)
	res := importResult{Saved: []string{}}
	err = virtual.Run(ctx, e.ledger.Store, func(o *virtual.Overlay) error {
		l := e.ledger.WithStore(o)
		for _, v := range vouchers {
			saved, err := l.Save(ctx, v, rc)
			if err != nil {
				return err
			}
			res.Saved = append(res.Saved, saved.ID)
		}
		return nil
	}, virtual.WithLogger(e.logger))
	if err != nil {
		return WrapExitError(ExitFailure, "import failed", err)
	}
	return writeJSON(cmd.OutOrStdout(), res)
}

// =============================================================================
// QUERY
// =============================================================================

type QueryOptions struct {
	*RootOptions
	File    string
	Details bool
}

func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the vouchers matching a query tree",
		Long: `Print the vouchers matching a query tree read as JSON.

Without --details the input is a voucher query tree, e.g.
  {"op":"union","args":[{"atom":{"remark":"rent"}},{"atom":{"type":"carry"}}]}
and an empty input matches every voucher.

With --details the input is {"vouchers": <tree>, "details": <tree>} and
the matching legs are printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "input file (default stdin)")
	cmd.Flags().BoolVar(&opts.Details, "details", false, "print matching legs instead of vouchers")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions) error {
	var vdto *api.VoucherQueryDTO
	var ddto api.DetailQueryDTO
	var err error
	if opts.Details {
		err = readInput(cmd.InOrStdin(), opts.File, &ddto)
	} else {
		err = readInput(cmd.InOrStdin(), opts.File, &vdto)
	}
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e, err := opts.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close(context.Background())

	if opts.Details {
		q, err := ddto.DetailQuery()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid query", err)
		}
		legs, err := e.ledger.Details(ctx, q)
		if err != nil {
			return WrapExitError(ExitFailure, "query failed", err)
		}
		if legs == nil {
			legs = []ledger.Balance{}
		}
		return writeJSON(cmd.OutOrStdout(), legs)
	}

	q, err := api.DecodeVoucherQuery(vdto)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}
	vs, err := e.ledger.Vouchers(ctx, q)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}
	if vs == nil {
		vs = []ledger.Voucher{}
	}
	return writeJSON(cmd.OutOrStdout(), vs)
}
