package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/memory"
)

func day(d int) *generic.Date {
	return generic.NewDate(2024, 3, d).Ptr()
}

func voucher(id string, date *generic.Date, title int, fund string) ledger.Voucher {
	return ledger.Voucher{ID: id, Date: date, Details: []ledger.Detail{
		{Title: title, Fund: ledger.Amount(fund)},
	}}
}

func ids(vs []ledger.Voucher) []string {
	var out []string
	for _, v := range vs {
		out = append(out, v.ID)
	}
	return out
}

func TestMemory_SelectVouchersOrdersUndatedFirst(t *testing.T) {
	store := memory.New()
	store.Seed(
		voucher("z", day(2), 1001, "1"),
		voucher("b", nil, 1001, "1"),
		voucher("a", day(2), 1001, "1"),
		voucher("c", day(1), 1001, "1"),
	)

	got, err := store.SelectVouchers(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a", "z"}, ids(got))
}

func TestMemory_ReturnsClones(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.Seed(voucher("a", day(1), 1001, "5"))

	// GIVEN: a voucher read out of the store
	got, err := store.SelectVoucher(ctx, "a")
	require.NoError(t, err)

	// WHEN: the caller mutates it
	*got.Details[0].Fund = *ledger.Amount("999")
	got.Details[0].Title = 9

	// THEN: the stored copy is untouched
	again, err := store.SelectVoucher(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1001, again.Details[0].Title)
	assert.True(t, again.Details[0].Fund.Equal(*ledger.Amount("5")))
}

func TestMemory_UpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	v := voucher("", day(1), 1001, "1")
	existed, err := store.Upsert(ctx, &v)
	require.NoError(t, err)
	assert.False(t, existed)
	require.NotEmpty(t, v.ID)

	existed, err = store.Upsert(ctx, &v)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, 1, store.Len())

	existed, err = store.Delete(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.Delete(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, existed)

	missing, err := store.SelectVoucher(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemory_DeleteVouchers(t *testing.T) {
	store := memory.New()
	store.Seed(
		voucher("a", day(1), 1001, "1"),
		voucher("b", day(2), 6602, "1"),
		voucher("c", day(3), 1001, "1"),
	)
	q := generic.NewAtom(ledger.VoucherAtom{
		Details: generic.NewAtom(ledger.DetailAtom{Title: ledger.Int(1001)}),
	})

	n, err := store.DeleteVouchers(context.Background(), q)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, store.Len())
}

func TestMemory_SelectDetailsFlattensMatchingLegs(t *testing.T) {
	store := memory.New()
	store.Seed(ledger.Voucher{ID: "a", Date: day(1), Details: []ledger.Detail{
		{Title: 1001, Fund: ledger.Amount("-3")},
		{Title: 6602, Fund: ledger.Amount("3")},
	}})

	legs, err := store.SelectDetails(context.Background(), ledger.DetailQuery{
		Details: generic.NewAtom(ledger.DetailAtom{Dir: 1}),
	})

	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, "a", legs[0].VoucherID)
	assert.Equal(t, 6602, legs[0].Title)
}

func TestMemory_Distributed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	laptop := ledger.Distributed{User: "alice", Name: "laptop", Date: day(5), Value: *ledger.Amount("1200")}
	desk := ledger.Distributed{User: "bob", Name: "desk", Date: day(1), Value: *ledger.Amount("300")}
	for _, d := range []*ledger.Distributed{&laptop, &desk} {
		existed, err := store.UpsertDistributed(ctx, d)
		require.NoError(t, err)
		assert.False(t, existed)
	}

	all, err := store.SelectDistributed(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "desk", all[0].Name)

	mine, err := store.SelectDistributed(ctx, generic.NewAtom(ledger.DistributedAtom{User: ledger.String("alice")}))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, laptop.ID, mine[0].ID)
}

func TestTxMemory_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTx()
	store.Seed(voucher("a", day(1), 1001, "1"))
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx ledger.Store) error {
		v := voucher("b", day(2), 1001, "1")
		if _, err := tx.Upsert(ctx, &v); err != nil {
			return err
		}
		if _, err := tx.Delete(ctx, "a"); err != nil {
			return err
		}
		return boom
	})

	require.ErrorIs(t, err, boom)
	got, err := store.SelectVouchers(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(got))
}

func TestTxMemory_Commits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTx()

	err := store.WithTx(ctx, func(tx ledger.Store) error {
		v := voucher("b", day(2), 1001, "1")
		_, err := tx.Upsert(ctx, &v)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}
