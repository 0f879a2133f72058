// Package memory provides an in-memory ledger.Store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	vouchers    map[string]ledger.Voucher
	distributed map[string]ledger.Distributed
}

func New() *Memory {
	return &Memory{
		vouchers:    make(map[string]ledger.Voucher),
		distributed: make(map[string]ledger.Distributed),
	}
}

// Seed inserts vouchers without going through Upsert, keeping their ids.
func (m *Memory) Seed(vs ...ledger.Voucher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vs {
		if v.ID == "" {
			v.ID = ledger.NewID()
		}
		m.vouchers[v.ID] = v.Clone()
	}
}

// Len returns the number of stored vouchers.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vouchers)
}

func (m *Memory) SelectVouchers(_ context.Context, q ledger.VoucherQuery) ([]ledger.Voucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(q), nil
}

func (m *Memory) selectLocked(q ledger.VoucherQuery) []ledger.Voucher {
	var out []ledger.Voucher
	for _, v := range m.vouchers {
		if ledger.MatchVoucher(q, v) {
			out = append(out, v.Clone())
		}
	}
	ledger.SortVouchers(out)
	return out
}

func (m *Memory) SelectVoucher(_ context.Context, id string) (*ledger.Voucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vouchers[id]
	if !ok {
		return nil, nil
	}
	cp := v.Clone()
	return &cp, nil
}

func (m *Memory) SelectDetails(_ context.Context, q ledger.DetailQuery) ([]ledger.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return q.FlattenAll(m.selectLocked(q.Vouchers)), nil
}

func (m *Memory) Upsert(_ context.Context, v *ledger.Voucher) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(v), nil
}

func (m *Memory) upsertLocked(v *ledger.Voucher) bool {
	if v.ID == "" {
		v.ID = ledger.NewID()
	}
	_, existed := m.vouchers[v.ID]
	m.vouchers[v.ID] = v.Clone()
	return existed
}

func (m *Memory) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.vouchers[id]
	delete(m.vouchers, id)
	return existed, nil
}

func (m *Memory) DeleteVouchers(_ context.Context, q ledger.VoucherQuery) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, v := range m.vouchers {
		if ledger.MatchVoucher(q, v) {
			delete(m.vouchers, id)
			n++
		}
	}
	return n, nil
}

// =============================================================================
// DISTRIBUTED RECORDS
// =============================================================================

func (m *Memory) SelectDistributed(_ context.Context, q ledger.DistributedQuery) ([]ledger.Distributed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Distributed
	for _, d := range m.distributed {
		if ledger.MatchDistributed(q, d) {
			out = append(out, d)
		}
	}
	sortDistributed(out)
	return out, nil
}

func (m *Memory) UpsertDistributed(_ context.Context, d *ledger.Distributed) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = ledger.NewID()
	}
	_, existed := m.distributed[d.ID]
	m.distributed[d.ID] = *d
	return existed, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTx() *TxMemory {
	return &TxMemory{Memory: New()}
}

// WithTx executes fn against a view of the store. For the memory store
// this is simulated with a snapshot and a rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snap := tm.snapshot()
	if err := fn(&txView{parent: tm.Memory}); err != nil {
		tm.vouchers = snap
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() map[string]ledger.Voucher {
	cp := make(map[string]ledger.Voucher, len(tm.vouchers))
	for k, v := range tm.vouchers {
		cp[k] = v
	}
	return cp
}

// txView runs against the parent while its lock is held by WithTx.
type txView struct {
	parent *Memory
}

func (tv *txView) SelectVouchers(_ context.Context, q ledger.VoucherQuery) ([]ledger.Voucher, error) {
	return tv.parent.selectLocked(q), nil
}

func (tv *txView) SelectVoucher(_ context.Context, id string) (*ledger.Voucher, error) {
	v, ok := tv.parent.vouchers[id]
	if !ok {
		return nil, nil
	}
	cp := v.Clone()
	return &cp, nil
}

func (tv *txView) SelectDetails(_ context.Context, q ledger.DetailQuery) ([]ledger.Balance, error) {
	return q.FlattenAll(tv.parent.selectLocked(q.Vouchers)), nil
}

func (tv *txView) Upsert(_ context.Context, v *ledger.Voucher) (bool, error) {
	return tv.parent.upsertLocked(v), nil
}

func (tv *txView) Delete(_ context.Context, id string) (bool, error) {
	_, existed := tv.parent.vouchers[id]
	delete(tv.parent.vouchers, id)
	return existed, nil
}

func (tv *txView) DeleteVouchers(_ context.Context, q ledger.VoucherQuery) (int64, error) {
	var n int64
	for id, v := range tv.parent.vouchers {
		if ledger.MatchVoucher(q, v) {
			delete(tv.parent.vouchers, id)
			n++
		}
	}
	return n, nil
}

func sortDistributed(ds []ledger.Distributed) {
	sort.Slice(ds, func(i, j int) bool {
		if c := generic.CompareDates(ds[i].Date, ds[j].Date); c != 0 {
			return c < 0
		}
		return ds[i].ID < ds[j].ID
	})
}
