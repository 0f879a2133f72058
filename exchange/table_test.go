package exchange_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/exchange"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
)

func d(m time.Month, day int) generic.Date {
	return generic.NewDate(2024, m, day)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTable() *exchange.Table {
	t := exchange.NewTable("CNY")
	t.Add("USD", d(time.February, 1), dec("7.2"))
	t.Add("USD", d(time.January, 1), dec("7.0"))
	t.Add("EUR", d(time.January, 1), dec("8"))
	return t
}

func TestRate_LatestOnOrBefore(t *testing.T) {
	tbl := newTable()

	r, err := tbl.Rate("USD", d(time.January, 31))
	require.NoError(t, err)
	assert.True(t, r.Equal(dec("7.0")))

	r, err = tbl.Rate("USD", d(time.February, 1))
	require.NoError(t, err)
	assert.True(t, r.Equal(dec("7.2")))

	r, err = tbl.Rate("CNY", d(time.January, 1))
	require.NoError(t, err)
	assert.True(t, r.Equal(dec("1")))
}

func TestRate_Missing(t *testing.T) {
	tbl := newTable()

	_, err := tbl.Rate("USD", generic.NewDate(2023, time.December, 31))
	assert.ErrorIs(t, err, generic.ErrNoExchangeRate)

	_, err = tbl.Rate("GBP", d(time.March, 1))
	assert.ErrorIs(t, err, generic.ErrNoExchangeRate)
	assert.True(t, generic.IsClientError(err))
}

func TestConvert(t *testing.T) {
	tbl := newTable()

	v, err := tbl.Convert(dec("10"), "USD", "CNY", d(time.March, 1))
	require.NoError(t, err)
	assert.True(t, v.Equal(dec("72")))

	v, err = tbl.Convert(dec("72"), "USD", "EUR", d(time.March, 1))
	require.NoError(t, err)
	assert.True(t, v.Equal(dec("64.8")))

	v, err = tbl.Convert(dec("3"), "GBP", "GBP", d(time.March, 1))
	require.NoError(t, err)
	assert.True(t, v.Equal(dec("3")))
}

func TestEqualize(t *testing.T) {
	tbl := newTable()
	in := []ledger.Balance{
		{Title: 1001, Currency: "USD", Fund: dec("10")},
		{Title: 1001, Currency: "CNY", Fund: dec("5")},
	}

	out, err := tbl.Equalize(in, "CNY", d(time.March, 1))
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "CNY", out[0].Currency)
	assert.True(t, out[0].Fund.Equal(dec("72")))
	assert.Equal(t, "USD", in[0].Currency, "input untouched")

	_, err = tbl.Equalize([]ledger.Balance{{Currency: "GBP", Fund: dec("1")}}, "CNY", d(time.March, 1))
	assert.ErrorIs(t, err, generic.ErrNoExchangeRate)
}

func TestLoad(t *testing.T) {
	src := `
base: CNY
rates:
  - currency: USD
    date: 2024-01-01
    rate: "7.10"
  - currency: JPY
    date: 2024-01-01
    rate: "0.05"
`
	tbl, err := exchange.Load(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "CNY", tbl.Base)
	assert.Equal(t, []string{"JPY", "USD"}, tbl.Currencies())

	_, err = exchange.Load(strings.NewReader("base: CNY\nrates:\n  - currency: USD\n    date: 2024-01-01\n    rate: \"-1\"\n"))
	assert.Error(t, err)
}
