package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLedger() (*ledger.Ledger, *memory.Memory) {
	store := memory.New()
	return ledger.New(store), store
}

func TestLedger_SaveNormalizesAndAssignsID(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger()

	// GIVEN: a voucher whose second leg omits its amount
	v := ledger.Voucher{Date: day(3), Details: []ledger.Detail{
		{Title: 1001, Fund: ledger.Amount("12")},
		{Title: 6602},
	}}

	// WHEN: saving it
	saved, err := l.Save(ctx, v, rc)
	require.NoError(t, err)

	// THEN: it is stored completed and under a fresh id
	require.NotEmpty(t, saved.ID)
	got, err := store.SelectVoucher(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Details[1].Amount().Equal(*ledger.Amount("-12")))
	assert.Equal(t, "alice", got.Details[1].User)
}

func TestLedger_SaveRejectsAmbiguousVoucher(t *testing.T) {
	l, store := newTestLedger()

	_, err := l.Save(context.Background(), ledger.Voucher{Details: []ledger.Detail{
		{Title: 1001}, {Title: 6602},
	}}, rc)

	assert.ErrorIs(t, err, generic.ErrAmbiguousNormalization)
	assert.Equal(t, 0, store.Len())
}

func TestLedger_Remove(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger()
	store.Seed(ledger.Voucher{ID: "v1", Details: []ledger.Detail{detail(1001, "1")}})

	require.NoError(t, l.Remove(ctx, "v1"))

	err := l.Remove(ctx, "v1")
	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.True(t, generic.IsNotFound(err))
}

func TestLedger_RemoveWhere_RefusesDangerousQuery(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger()
	store.Seed(
		ledger.Voucher{ID: "a", Date: day(1), Details: []ledger.Detail{detail(1001, "1")}},
		ledger.Voucher{ID: "b", Date: day(2), Details: []ledger.Detail{detail(1002, "1")}},
	)
	everything := voucherAtom(ledger.VoucherAtom{})

	// WHEN: deleting under an unconstrained query without force
	_, err := l.RemoveWhere(ctx, everything, false)

	// THEN: nothing is deleted
	assert.ErrorIs(t, err, generic.ErrDangerousQuery)
	assert.Equal(t, 2, store.Len())

	// WHEN: forcing it
	n, err := l.RemoveWhere(ctx, everything, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 0, store.Len())
}

func TestLedger_RemoveWhere_NarrowQuery(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger()
	store.Seed(
		ledger.Voucher{ID: "a", Date: day(1), Details: []ledger.Detail{detail(1001, "1")}},
		ledger.Voucher{ID: "b", Date: day(2), Details: []ledger.Detail{detail(1002, "1")}},
	)

	n, err := l.RemoveWhere(ctx, voucherAtom(ledger.VoucherAtom{
		Details: detailAtom(ledger.DetailAtom{Title: ledger.Int(1001)}),
	}), false)

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	left, err := l.Vouchers(ctx, nil)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].ID)
}

func TestLedger_VouchersAreOrdered(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger()
	store.Seed(
		ledger.Voucher{ID: "c", Date: day(2)},
		ledger.Voucher{ID: "b", Date: day(1)},
		ledger.Voucher{ID: "z"},
		ledger.Voucher{ID: "a", Date: day(2)},
	)

	vs, err := l.Vouchers(ctx, nil)
	require.NoError(t, err)

	var ids []string
	for _, v := range vs {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []string{"z", "b", "a", "c"}, ids)
}

func TestLedger_RejectsMalformedQueries(t *testing.T) {
	l, _ := newTestLedger()
	bad := &generic.Compound[ledger.VoucherAtom]{Op: generic.OpSubtract, Filter1: voucherAtom(ledger.VoucherAtom{})}

	_, err := l.Vouchers(context.Background(), bad)
	assert.ErrorIs(t, err, generic.ErrMalformedQuery)

	_, err = l.Details(context.Background(), ledger.DetailQuery{Vouchers: bad})
	assert.ErrorIs(t, err, generic.ErrMalformedQuery)
}

func TestLedger_ForcedDangerousDeleteIsLogged(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	store := memory.New()
	store.Seed(ledger.Voucher{ID: "a", Date: day(1), Details: []ledger.Detail{detail(1001, "1")}})
	l := ledger.New(store, ledger.WithLogger(zap.New(core)))

	_, err := l.RemoveWhere(ctx, nil, true)
	require.NoError(t, err)

	warned := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warned, 1)
	assert.Equal(t, "forced delete under dangerous query", warned[0].Message)

	deleted := logs.FilterMessage("vouchers deleted").All()
	require.Len(t, deleted, 1)
	assert.Equal(t, int64(1), deleted[0].ContextMap()["count"])
}
