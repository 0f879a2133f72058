package ledger_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var rc = ledger.RequestContext{User: "alice", Today: generic.MustParseDate("2024-03-01")}

func leg(user, currency string, title int, fund string) ledger.Detail {
	d := ledger.Detail{User: user, Currency: currency, Title: title}
	if fund != "" {
		d.Fund = ledger.Amount(fund)
	}
	return d
}

func normalize(t *testing.T, n ledger.Normalizer, details ...ledger.Detail) ledger.Voucher {
	t.Helper()
	out, err := n.Normalize(ledger.Voucher{Details: details}, rc)
	require.NoError(t, err)
	return out
}

// assertBalanced checks that every (user, currency) position nets to zero,
// which implies both per-currency and per-user balance.
func assertBalanced(t *testing.T, n ledger.Normalizer, v ledger.Voucher) {
	t.Helper()
	nets := map[[2]string]decimal.Decimal{}
	for _, d := range v.Details {
		if n.IsIgnored(d.Currency) {
			continue
		}
		k := [2]string{d.User, d.Currency}
		nets[k] = nets[k].Add(d.Amount())
	}
	for k, net := range nets {
		assert.True(t, net.IsZero(), "position %v nets to %s", k, net)
	}
}

func assertLeg(t *testing.T, want, got ledger.Detail) {
	t.Helper()
	assert.Equal(t, want.User, got.User)
	assert.Equal(t, want.Currency, got.Currency)
	assert.Equal(t, want.Title, got.Title)
	assert.True(t, want.Amount().Equal(got.Amount()), "want %s, got %s", want.Amount(), got.Amount())
}

func extraLegs(before int, v ledger.Voucher) []ledger.Detail {
	return v.Details[before:]
}

// =============================================================================
// DEFAULTS & COMPLETION
// =============================================================================

func TestNormalize_DefaultsCurrencyAndUser(t *testing.T) {
	n := ledger.DefaultNormalizer()

	out := normalize(t, n, ledger.Detail{Title: 1001, Fund: ledger.Amount("10")}, ledger.Detail{Title: 6602})

	require.Len(t, out.Details, 2)
	for _, d := range out.Details {
		assert.Equal(t, "CNY", d.Currency)
		assert.Equal(t, "alice", d.User)
	}
	assert.True(t, out.Details[1].Amount().Equal(decimal.NewFromInt(-10)))
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	n := ledger.DefaultNormalizer()
	in := ledger.Voucher{Details: []ledger.Detail{{Title: 1001, Fund: ledger.Amount("3")}, {Title: 6602}}}

	_, err := n.Normalize(in, rc)
	require.NoError(t, err)

	assert.Nil(t, in.Details[1].Fund)
	assert.Empty(t, in.Details[0].Currency)
}

func TestNormalize_CompletesPerCurrency(t *testing.T) {
	n := ledger.DefaultNormalizer()

	out := normalize(t, n,
		leg("alice", "USD", 1001, "4"),
		leg("alice", "USD", 1002, "6"),
		leg("alice", "USD", 6602, ""),
		leg("alice", "EUR", 1001, "2"),
		leg("alice", "EUR", 6602, ""),
	)

	assert.True(t, out.Details[2].Amount().Equal(decimal.NewFromInt(-10)))
	assert.True(t, out.Details[4].Amount().Equal(decimal.NewFromInt(-2)))
}

func TestNormalize_CompletesPerUserWhenCurrencyIsAmbiguous(t *testing.T) {
	n := ledger.DefaultNormalizer()

	// GIVEN: two missing CNY amounts, one per user
	out := normalize(t, n,
		leg("alice", "CNY", 1001, "5"),
		leg("alice", "CNY", 6602, ""),
		leg("bob", "CNY", 1001, "7"),
		leg("bob", "CNY", 6602, ""),
	)

	// THEN: each user's group is completed on its own, no settlement needed
	assert.True(t, out.Details[1].Amount().Equal(decimal.NewFromInt(-5)))
	assert.True(t, out.Details[3].Amount().Equal(decimal.NewFromInt(-7)))
	assert.Len(t, out.Details, 4)
}

func TestNormalize_AmbiguousCompletion(t *testing.T) {
	n := ledger.DefaultNormalizer()

	_, err := n.Normalize(ledger.Voucher{Details: []ledger.Detail{
		leg("alice", "CNY", 1001, "5"),
		leg("alice", "CNY", 6602, ""),
		leg("alice", "CNY", 6603, ""),
	}}, rc)

	require.ErrorIs(t, err, generic.ErrAmbiguousNormalization)
	var aErr *generic.AmbiguousNormalizationError
	require.True(t, errors.As(err, &aErr))
	assert.Equal(t, "alice", aErr.User)
	assert.Equal(t, "CNY", aErr.Currency)
	assert.Equal(t, 2, aErr.Missing)
}

// =============================================================================
// BALANCING
// =============================================================================

func TestNormalize_SingleCurrencySingleUser_NoExtraLegs(t *testing.T) {
	n := ledger.DefaultNormalizer()

	out := normalize(t, n, leg("alice", "CNY", 1001, "5"), leg("alice", "CNY", 6602, "-5"))

	assert.Len(t, out.Details, 2)
}

func TestNormalize_SingleCurrencyMultiUser(t *testing.T) {
	n := ledger.DefaultNormalizer()

	// GIVEN: alice pays 30 for bob's expense
	out := normalize(t, n, leg("alice", "CNY", 1001, "-30"), leg("bob", "CNY", 6602, "30"))

	extra := extraLegs(2, out)
	require.Len(t, extra, 2)
	assertLeg(t, ledger.Detail{User: "alice", Currency: "CNY", Title: 3998, Fund: ledger.Amount("30")}, extra[0])
	assertLeg(t, ledger.Detail{User: "bob", Currency: "CNY", Title: 3998, Fund: ledger.Amount("-30")}, extra[1])
	assertBalanced(t, n, out)
}

func TestNormalize_MultiCurrencySingleUser(t *testing.T) {
	n := ledger.DefaultNormalizer()

	// GIVEN: alice exchanges 100 USD into 720 CNY
	out := normalize(t, n, leg("alice", "USD", 1001, "-100"), leg("alice", "CNY", 1001, "720"))

	extra := extraLegs(2, out)
	require.Len(t, extra, 2)
	for _, d := range extra {
		assert.Equal(t, 3999, d.Title)
	}
	assertBalanced(t, n, out)
}

func TestNormalize_IgnoredCurrenciesAreLeftAlone(t *testing.T) {
	n := ledger.DefaultNormalizer()

	out := normalize(t, n,
		leg("alice", "CNY", 1001, "5"),
		leg("alice", "CNY", 6602, "-5"),
		leg("bob", "POINTS#", 1001, "100"),
	)

	assert.Len(t, out.Details, 3)
}

func TestNormalize_ZeroNetsProduceNoLegs(t *testing.T) {
	n := ledger.DefaultNormalizer()

	out := normalize(t, n,
		leg("alice", "CNY", 1001, "5"),
		leg("alice", "CNY", 6602, "-5"),
		leg("bob", "CNY", 1001, "3"),
		leg("bob", "CNY", 6602, "-3"),
	)

	assert.Len(t, out.Details, 4)
}

// =============================================================================
// QUADRATURE
// =============================================================================

func TestNormalize_Quadrature_OnePayerOnePayee(t *testing.T) {
	n := ledger.DefaultNormalizer()

	// GIVEN: Q pays 100 USD, P receives 80 EUR
	out := normalize(t, n, leg("Q", "USD", 1001, "-100"), leg("P", "EUR", 1001, "80"))

	// THEN: exactly four settlement legs chaining P@EUR <- P@USD <- Q@USD
	extra := extraLegs(2, out)
	require.Len(t, extra, 4)
	assertLeg(t, leg("P", "EUR", 3999, "-80"), extra[0])
	assertLeg(t, leg("P", "USD", 3999, "100"), extra[1])
	assertLeg(t, leg("P", "USD", 3998, "-100"), extra[2])
	assertLeg(t, leg("Q", "USD", 3998, "100"), extra[3])
	assertBalanced(t, n, out)
}

func TestNormalize_Quadrature_OnePayerManyPayees(t *testing.T) {
	n := ledger.DefaultNormalizer()

	// GIVEN: Q pays 100 USD; P receives 50 EUR and 30 JPY
	out := normalize(t, n,
		leg("Q", "USD", 1001, "-100"),
		leg("P", "EUR", 1001, "50"),
		leg("P", "JPY", 1001, "30"),
	)

	// THEN: the USD side is split 62.5 / 37.5 and every book balances
	// One four-leg chain per (payee position, payer position) pair: 2 x 4.
	extra := extraLegs(3, out)
	require.Len(t, extra, 8)
	assertLeg(t, leg("P", "EUR", 3999, "-50"), extra[0])
	assertLeg(t, leg("P", "USD", 3999, "62.5"), extra[1])
	assertLeg(t, leg("P", "JPY", 3999, "-30"), extra[4])
	assertLeg(t, leg("P", "USD", 3999, "37.5"), extra[5])
	assertBalanced(t, n, out)
}

func TestNormalize_Quadrature_ManyPayersOnePayee(t *testing.T) {
	n := ledger.DefaultNormalizer()

	out := normalize(t, n,
		leg("A", "USD", 1001, "-10"),
		leg("B", "JPY", 1001, "-1500"),
		leg("P", "EUR", 1001, "30"),
	)

	assert.Len(t, extraLegs(3, out), 8)
	assertBalanced(t, n, out)
}

func TestNormalize_Quadrature_UnevenSplitStaysExact(t *testing.T) {
	n := ledger.DefaultNormalizer()

	out := normalize(t, n,
		leg("Q", "USD", 1001, "-100"),
		leg("P", "EUR", 1001, "1"),
		leg("P", "JPY", 1001, "1"),
		leg("P", "GBP", 1001, "1"),
	)

	assertBalanced(t, n, out)
}

func TestNormalize_ManyPayersManyPayees_Unresolved(t *testing.T) {
	details := []ledger.Detail{
		leg("A", "USD", 1001, "-10"),
		leg("B", "EUR", 1001, "-10"),
		leg("C", "USD", 1001, "10"),
		leg("D", "EUR", 1001, "10"),
	}

	// GIVEN: two payers and two payees across currencies
	// THEN: lenient mode leaves the voucher alone
	out := normalize(t, ledger.DefaultNormalizer(), details...)
	assert.Len(t, out.Details, 4)

	// THEN: strict mode reports it
	strict := ledger.DefaultNormalizer()
	strict.Strict = true
	_, err := strict.Normalize(ledger.Voucher{Details: details}, rc)
	assert.ErrorIs(t, err, generic.ErrAmbiguousNormalization)
}
