package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/warp/ledger-engine/config"
	"github.com/warp/ledger-engine/exchange"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/memory"
	"github.com/warp/ledger-engine/store/mongo"
	"github.com/warp/ledger-engine/store/sqlite"
	"go.uber.org/zap"
)

// env is everything a command needs once the config is loaded.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	ledger *ledger.Ledger
	rates  *exchange.Table
	close  func(context.Context) error
}

func (o *RootOptions) openEnv(ctx context.Context) (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build logger", err)
	}
	rates, err := cfg.Rates.Table()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load exchange rates", err)
	}

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	logger.Debug("store opened", zap.String("driver", cfg.Store.Driver))

	l := ledger.New(store,
		ledger.WithNormalizer(cfg.Ledger.Normalizer()),
		ledger.WithSafety(cfg.Ledger.Safety()),
		ledger.WithLogger(logger),
	)
	return &env{
		cfg:    cfg,
		logger: logger,
		ledger: l,
		rates:  rates,
		close: func(ctx context.Context) error {
			_ = logger.Sync()
			return closeStore(ctx)
		},
	}, nil
}

func openStore(ctx context.Context, sc config.Store) (ledger.Store, func(context.Context) error, error) {
	switch sc.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(sc.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case config.DriverMongo:
		s, err := mongo.Connect(ctx, sc.URI, sc.Database, sc.Collection)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverMemory:
		return memory.NewTx(), func(context.Context) error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", sc.Driver)
}

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

// readInput decodes JSON from path, or from stdin when path is "" or "-".
func readInput(stdin io.Reader, path string, into any) error {
	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "open input", err)
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil && err != io.EOF {
		return WrapExitError(ExitCommandError, "decode input", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
