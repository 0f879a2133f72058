/*
Package virtual stages ledger mutations in memory and merges them over a
backing store until they are committed or discarded.

PURPOSE:
  An Overlay is a ledger.Store of its own. Writes go into a pending map
  (voucher or tombstone per id) instead of the backing store; reads merge
  that map over the store's answer, so a scope always sees its own writes
  while every other reader sees the store unchanged.

STATE MACHINE:
  Active --Commit--> Committed
  Active --Abort---> Aborted

  Both targets are terminal. Any call on a terminated overlay, reads and
  CachedVouchers included, fails with generic.ErrInvalidState.

COMMIT:
  Pending entries are applied in id order. Each one is an upsert or a
  delete by id, both idempotent, so a Commit that fails halfway can simply
  be retried: the store error is returned verbatim and pending is kept.
  When the store is a ledger.TxStore the whole set is applied in one
  transaction instead.

  Writers racing a live overlay are shadowed at commit time: last writer
  wins.

CONCURRENCY:
  An Overlay belongs to one scope and is not safe for concurrent use.

USAGE:
  err := virtual.Run(ctx, store, func(o *virtual.Overlay) error {
      if _, err := o.Upsert(ctx, &v); err != nil {
          return err // aborts
      }
      return nil // commits
  })

SEE ALSO:
  - ledger/store.go: the Store contract implemented here
  - subtotal: Subtotal aggregates over the merged view
*/
package virtual

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/subtotal"
	"go.uber.org/zap"
)

// =============================================================================
// STATE
// =============================================================================

type State int

const (
	StateActive State = iota
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// entry is a staged voucher, or a tombstone when voucher is nil.
type entry struct {
	voucher *ledger.Voucher
}

func (e entry) tombstone() bool { return e.voucher == nil }

// =============================================================================
// OVERLAY
// =============================================================================

type Overlay struct {
	store   ledger.Store
	pending map[string]entry
	state   State
	logger  *zap.Logger
}

type Option func(*Overlay)

func WithLogger(z *zap.Logger) Option { return func(o *Overlay) { o.logger = z } }

// Virtualize opens an active overlay over store.
func Virtualize(store ledger.Store, opts ...Option) *Overlay {
	o := &Overlay{
		store:   store,
		pending: make(map[string]entry),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Overlay) State() State { return o.state }

func (o *Overlay) check(op string) error {
	if o.state != StateActive {
		return &generic.StateError{Operation: op, State: o.state.String()}
	}
	return nil
}

// CachedVouchers returns the number of pending mutations.
func (o *Overlay) CachedVouchers() (int, error) {
	if err := o.check("count"); err != nil {
		return 0, err
	}
	return len(o.pending), nil
}

// =============================================================================
// WRITES
// =============================================================================

func (o *Overlay) Upsert(ctx context.Context, v *ledger.Voucher) (bool, error) {
	if err := o.check("upsert"); err != nil {
		return false, err
	}
	if v.ID == "" {
		v.ID = ledger.NewID()
		o.stage(v)
		return false, nil
	}

	existed, err := o.exists(ctx, v.ID)
	if err != nil {
		return false, err
	}
	o.stage(v)
	return existed, nil
}

func (o *Overlay) stage(v *ledger.Voucher) {
	cp := v.Clone()
	o.pending[v.ID] = entry{voucher: &cp}
}

// exists resolves id through the merged view.
func (o *Overlay) exists(ctx context.Context, id string) (bool, error) {
	if e, ok := o.pending[id]; ok {
		return !e.tombstone(), nil
	}
	v, err := o.store.SelectVoucher(ctx, id)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (o *Overlay) Delete(ctx context.Context, id string) (bool, error) {
	if err := o.check("delete"); err != nil {
		return false, err
	}
	existed, err := o.exists(ctx, id)
	if err != nil || !existed {
		return false, err
	}
	o.pending[id] = entry{}
	return true, nil
}

func (o *Overlay) DeleteVouchers(ctx context.Context, q ledger.VoucherQuery) (int64, error) {
	if err := o.check("delete"); err != nil {
		return 0, err
	}
	vs, err := o.merged(ctx, q)
	if err != nil {
		return 0, err
	}
	for _, v := range vs {
		o.pending[v.ID] = entry{}
	}
	return int64(len(vs)), nil
}

// =============================================================================
// READS
// =============================================================================

func (o *Overlay) SelectVouchers(ctx context.Context, q ledger.VoucherQuery) ([]ledger.Voucher, error) {
	if err := o.check("select"); err != nil {
		return nil, err
	}
	return o.merged(ctx, q)
}

func (o *Overlay) SelectVoucher(ctx context.Context, id string) (*ledger.Voucher, error) {
	if err := o.check("select"); err != nil {
		return nil, err
	}
	if e, ok := o.pending[id]; ok {
		if e.tombstone() {
			return nil, nil
		}
		cp := e.voucher.Clone()
		return &cp, nil
	}
	return o.store.SelectVoucher(ctx, id)
}

func (o *Overlay) SelectDetails(ctx context.Context, q ledger.DetailQuery) ([]ledger.Balance, error) {
	if err := o.check("select"); err != nil {
		return nil, err
	}
	vs, err := o.merged(ctx, q.Vouchers)
	if err != nil {
		return nil, err
	}
	var out []ledger.Balance
	for _, v := range vs {
		out = append(out, q.Flatten(v)...)
	}
	return out, nil
}

// Subtotal aggregates the legs selected by q over the merged view.
func (o *Overlay) Subtotal(ctx context.Context, q ledger.DetailQuery, spec subtotal.Spec) (*subtotal.RootResult, error) {
	return subtotal.Query(ctx, o, q, spec, nil)
}

// merged answers q from the store with pending entries applied. Store
// records shadowed by a pending entry are dropped before pending upserts
// are matched, so no voucher is counted twice.
func (o *Overlay) merged(ctx context.Context, q ledger.VoucherQuery) ([]ledger.Voucher, error) {
	base, err := o.store.SelectVouchers(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Voucher, 0, len(base))
	for _, v := range base {
		if _, shadowed := o.pending[v.ID]; !shadowed {
			out = append(out, v)
		}
	}
	for _, e := range o.pending {
		if !e.tombstone() && ledger.MatchVoucher(q, *e.voucher) {
			out = append(out, e.voucher.Clone())
		}
	}
	ledger.SortVouchers(out)
	return out, nil
}

// =============================================================================
// TERMINATION
// =============================================================================

// Commit flushes pending mutations to the store. On failure the overlay
// stays active with pending intact, so Commit may be retried or Abort
// called.
func (o *Overlay) Commit(ctx context.Context) error {
	if err := o.check("commit"); err != nil {
		return err
	}

	var err error
	if tx, ok := o.store.(ledger.TxStore); ok {
		err = tx.WithTx(ctx, func(s ledger.Store) error { return o.flush(ctx, s) })
	} else {
		err = o.flush(ctx, o.store)
	}
	if err != nil {
		o.logger.Debug("overlay commit failed", zap.Int("pending", len(o.pending)), zap.Error(err))
		return err
	}

	o.logger.Debug("overlay committed", zap.Int("pending", len(o.pending)))
	o.pending = nil
	o.state = StateCommitted
	return nil
}

func (o *Overlay) flush(ctx context.Context, s ledger.Store) error {
	ids := make([]string, 0, len(o.pending))
	for id := range o.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e := o.pending[id]
		if e.tombstone() {
			if _, err := s.Delete(ctx, id); err != nil {
				return err
			}
			continue
		}
		v := e.voucher.Clone()
		if _, err := s.Upsert(ctx, &v); err != nil {
			return err
		}
	}
	return nil
}

// Abort discards pending mutations without touching the store.
func (o *Overlay) Abort() error {
	if err := o.check("abort"); err != nil {
		return err
	}
	o.logger.Debug("overlay aborted", zap.Int("pending", len(o.pending)))
	o.pending = nil
	o.state = StateAborted
	return nil
}

// Release aborts the overlay if it is still active. It is meant for defer.
func (o *Overlay) Release() {
	if o.state == StateActive {
		_ = o.Abort()
	}
}

// =============================================================================
// SCOPE
// =============================================================================

// Run opens an overlay over store and hands it to fn. The overlay is
// committed when fn returns nil and aborted when fn returns an error or
// panics. A failed commit is returned and the overlay aborted, pending
// entries included; callers that retry commits use Virtualize and Commit.
func Run(ctx context.Context, store ledger.Store, fn func(*Overlay) error, opts ...Option) error {
	o := Virtualize(store, opts...)
	defer o.Release()

	if err := fn(o); err != nil {
		return err
	}
	if o.state != StateActive {
		return nil
	}
	return o.Commit(ctx)
}
