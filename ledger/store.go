/*
store.go - Persistence contract for vouchers

PURPOSE:
  Defines the interface between the ledger logic and the database.
  Implementations translate the query algebra into their own dialect
  and must agree with the in-memory evaluator (MatchVoucher/MatchDetail).

KEY INTERFACES:
  Store:            voucher documents (select, upsert, delete)
  TxStore:          Store plus atomic groups of writes
  DistributedStore: asset / amortization records

ORDERING:
  SelectVouchers returns vouchers undated first, then by date, then by id
  (see SortVouchers). SelectDetails preserves that order, and the leg
  order inside each voucher.

IDEMPOTENCY:
  Upsert and Delete are idempotent per id. Writing the same voucher twice,
  or deleting a missing id, leaves the store unchanged. The overlay relies
  on this to make Commit safe to retry.

IMPLEMENTATIONS:
  - store/memory: in-memory, for tests and the CLI
  - store/sqlite: SQLite documents + detail rows
  - store/mongo: MongoDB collection
  - virtual.Overlay: staged mutations over another Store

SEE ALSO:
  - ledger.go: service layer over Store
  - virtual/overlay.go: speculative writes
*/
package ledger

import "context"

// =============================================================================
// STORE - Voucher persistence
// =============================================================================

type Store interface {
	// SelectVouchers returns every voucher matching q, in SortVouchers order.
	SelectVouchers(ctx context.Context, q VoucherQuery) ([]Voucher, error)

	// SelectVoucher returns the voucher with the given id, or nil.
	SelectVoucher(ctx context.Context, id string) (*Voucher, error)

	// SelectDetails returns the flattened legs selected by q.
	SelectDetails(ctx context.Context, q DetailQuery) ([]Balance, error)

	// Upsert inserts or replaces v. An empty v.ID is filled in with NewID.
	// Reports whether an existing voucher was replaced.
	Upsert(ctx context.Context, v *Voucher) (bool, error)

	// Delete removes the voucher with the given id. Reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// DeleteVouchers removes every voucher matching q and returns the count.
	DeleteVouchers(ctx context.Context, q VoucherQuery) (int64, error)
}

// =============================================================================
// DISTRIBUTED STORE - Assets and amortizations
// =============================================================================

type DistributedStore interface {
	SelectDistributed(ctx context.Context, q DistributedQuery) ([]Distributed, error)
	UpsertDistributed(ctx context.Context, d *Distributed) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic groups of writes
// =============================================================================

// TxStore wraps Store with transaction support. If fn returns an error
// the writes it made are rolled back; otherwise they are committed.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
