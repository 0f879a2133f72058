/*
Package exchange holds dated exchange rates and converts ledger amounts.

PURPOSE:
  Subtotals with an equivalent date report every amount in one currency.
  The subtotal engine does no conversion itself; callers run Equalize on
  the records first. A rate is the value of one unit of a currency in the
  table's base currency, effective from its date until the next one.

LOOKUP:
  Rate(c, d) returns the latest rate of c dated on or before d. The base
  currency always has rate 1. No such rate is a NoExchangeRateError.

FILE FORMAT (yaml):
  base: CNY
  rates:
    - currency: USD
      date: 2024-01-01
      rate: "7.10"
*/
package exchange

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
	"gopkg.in/yaml.v3"
)

// conversionScale is the number of decimal places kept on converted amounts.
const conversionScale = 8

type Rate struct {
	Date  generic.Date
	Value decimal.Decimal
}

type Table struct {
	Base  string
	rates map[string][]Rate
}

func NewTable(base string) *Table {
	return &Table{Base: base, rates: map[string][]Rate{}}
}

// Add records that one unit of currency is worth value base units from date on.
func (t *Table) Add(currency string, date generic.Date, value decimal.Decimal) {
	rs := append(t.rates[currency], Rate{Date: date, Value: value})
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Date.Before(rs[j].Date) })
	t.rates[currency] = rs
}

// Currencies lists the currencies with at least one rate, sorted.
func (t *Table) Currencies() []string {
	out := make([]string, 0, len(t.rates))
	for c := range t.rates {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (t *Table) Rate(currency string, date generic.Date) (decimal.Decimal, error) {
	if currency == t.Base {
		return decimal.NewFromInt(1), nil
	}
	rs := t.rates[currency]
	i := sort.Search(len(rs), func(i int) bool { return rs[i].Date.After(date) })
	if i == 0 {
		return decimal.Zero, &generic.NoExchangeRateError{Currency: currency, Date: date}
	}
	return rs[i-1].Value, nil
}

// Convert expresses amount in from as an amount in to, at date.
func (t *Table) Convert(amount decimal.Decimal, from, to string, date generic.Date) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	rf, err := t.Rate(from, date)
	if err != nil {
		return decimal.Zero, err
	}
	rt, err := t.Rate(to, date)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rf).DivRound(rt, conversionScale), nil
}

// Equalize returns a copy of records with every amount converted into to
// at date. The input is left untouched.
func (t *Table) Equalize(records []ledger.Balance, to string, date generic.Date) ([]ledger.Balance, error) {
	out := make([]ledger.Balance, len(records))
	for i, r := range records {
		f, err := t.Convert(r.Fund, r.Currency, to, date)
		if err != nil {
			return nil, err
		}
		r.Fund = f
		r.Currency = to
		out[i] = r
	}
	return out, nil
}

// =============================================================================
// YAML
// =============================================================================

// Entry is one textual rate, as found in configuration files.
type Entry struct {
	Currency string `yaml:"currency"`
	Date     string `yaml:"date"`
	Rate     string `yaml:"rate"`
}

type file struct {
	Base  string  `yaml:"base"`
	Rates []Entry `yaml:"rates"`
}

// Load reads a rate table in the yaml format described above.
func Load(r io.Reader) (*Table, error) {
	var f file
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	return FromEntries(f.Base, f.Rates)
}

// FromEntries builds a table from textual entries.
func FromEntries(base string, entries []Entry) (*Table, error) {
	t := NewTable(base)
	for i, e := range entries {
		d, err := generic.ParseDate(e.Date)
		if err != nil {
			return nil, fmt.Errorf("rate %d (%s): %w", i, e.Currency, err)
		}
		v, err := decimal.NewFromString(e.Rate)
		if err != nil {
			return nil, fmt.Errorf("rate %d (%s): %w", i, e.Currency, err)
		}
		if !v.IsPositive() {
			return nil, fmt.Errorf("rate %d (%s): must be positive", i, e.Currency)
		}
		t.Add(e.Currency, d, v)
	}
	return t, nil
}
