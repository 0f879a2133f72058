/*
ledger.go - Service layer over a Store

PURPOSE:
  Ledger is what front ends talk to. It normalizes vouchers before they
  are written and refuses bulk deletes under queries that Safety flags as
  dangerous, unless the caller forces them.

  The Store may be a real database or a virtual.Overlay; Ledger does not
  care which.

EXAMPLE:
  l := ledger.New(store, ledger.WithLogger(logger))
  v, err := l.Save(ctx, voucher, ledger.NewRequestContext("alice"))
  n, err := l.RemoveWhere(ctx, query, false)
  if errors.Is(err, generic.ErrDangerousQuery) {
      // ask for confirmation, then retry with force
  }
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/warp/ledger-engine/generic"
	"go.uber.org/zap"
)

type Ledger struct {
	Store      Store
	Normalizer Normalizer
	Safety     Safety
	Logger     *zap.Logger
}

type Option func(*Ledger)

func WithNormalizer(n Normalizer) Option { return func(l *Ledger) { l.Normalizer = n } }
func WithSafety(s Safety) Option         { return func(l *Ledger) { l.Safety = s } }
func WithLogger(z *zap.Logger) Option    { return func(l *Ledger) { l.Logger = z } }

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		Store:      store,
		Normalizer: DefaultNormalizer(),
		Safety:     DefaultSafety,
		Logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithStore returns a copy of l writing through s, e.g. an overlay.
func (l *Ledger) WithStore(s Store) *Ledger {
	cp := *l
	cp.Store = s
	return &cp
}

// =============================================================================
// WRITES
// =============================================================================

// Save normalizes v and upserts it. The returned voucher carries its id.
func (l *Ledger) Save(ctx context.Context, v Voucher, rc RequestContext) (Voucher, error) {
	norm, err := l.Normalizer.Normalize(v, rc)
	if err != nil {
		return Voucher{}, err
	}
	replaced, err := l.Store.Upsert(ctx, &norm)
	if err != nil {
		return Voucher{}, fmt.Errorf("upsert voucher: %w", err)
	}
	l.Logger.Debug("voucher saved",
		zap.String("id", norm.ID),
		zap.Bool("replaced", replaced),
		zap.Int("details", len(norm.Details)))
	return norm, nil
}

// Remove deletes one voucher, failing with ErrNotFound when it is missing.
func (l *Ledger) Remove(ctx context.Context, id string) error {
	ok, err := l.Store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete voucher %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("voucher %s: %w", id, generic.ErrNotFound)
	}
	return nil
}

// RemoveWhere deletes every voucher matching q. Dangerous queries are
// refused with ErrDangerousQuery unless force is set.
func (l *Ledger) RemoveWhere(ctx context.Context, q VoucherQuery, force bool) (int64, error) {
	if err := ValidateVoucherQuery(q); err != nil {
		return 0, err
	}
	if l.Safety.IsDangerous(q) {
		if !force {
			return 0, generic.ErrDangerousQuery
		}
		l.Logger.Warn("forced delete under dangerous query")
	}
	n, err := l.Store.DeleteVouchers(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("delete vouchers: %w", err)
	}
	l.Logger.Info("vouchers deleted", zap.Int64("count", n))
	return n, nil
}

// =============================================================================
// READS
// =============================================================================

func (l *Ledger) Voucher(ctx context.Context, id string) (Voucher, error) {
	v, err := l.Store.SelectVoucher(ctx, id)
	if err != nil {
		return Voucher{}, err
	}
	if v == nil {
		return Voucher{}, fmt.Errorf("voucher %s: %w", id, generic.ErrNotFound)
	}
	return *v, nil
}

func (l *Ledger) Vouchers(ctx context.Context, q VoucherQuery) ([]Voucher, error) {
	if err := ValidateVoucherQuery(q); err != nil {
		return nil, err
	}
	return l.Store.SelectVouchers(ctx, q)
}

func (l *Ledger) Details(ctx context.Context, q DetailQuery) ([]Balance, error) {
	if err := ValidateVoucherQuery(q.Vouchers); err != nil {
		return nil, err
	}
	if err := generic.Validate(q.Details); err != nil {
		return nil, err
	}
	return l.Store.SelectDetails(ctx, q)
}
