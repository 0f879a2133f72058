/*
normalize.go - Amount completion and multi-currency / multi-user balancing

PURPOSE:
  A voucher typed by a person is usually incomplete: one leg per currency
  omits its amount, legs omit currency or user, and vouchers mixing users
  or currencies lack the settlement legs that keep every book balanced.
  Normalize fills all of that in and returns a new voucher.

STEPS:
  1. Defaults: empty currency -> BaseCurrency, empty user -> acting user.
  2. Completion: per currency, a single leg without amount receives minus
     the sum of the others. With more than one missing leg in a currency,
     the same rule is applied per (user, currency). Anything else is an
     AmbiguousNormalizationError.
  3. Balancing over legs whose currency does not end with IgnoredSuffix:

       1 currency, 1 user   nothing
       1 currency, n users  per user:     (u, c, UserTitle,     -net)
       n currencies, 1 user per currency: (u, c, CurrencyTitle, -net)
       n currencies, n users quadrature

  4. Synthesized legs with a zero amount are dropped.

QUADRATURE:
  Positions are (user, currency) pairs with a non-zero net. Payees have a
  positive net, payers a negative one. Only one-payee or one-payer shapes
  are resolved. For every (payee p, payer q) pair the settled shares are

    ps = p.net * q.net / total(payers)     (p.net when one payer)
    qs = q.net * p.net / total(payees)     (q.net when one payee)

  and four legs chain P@cP <- P@cQ <- Q@cQ:

    (P, cP, CurrencyTitle, -ps)
    (P, cQ, CurrencyTitle, -qs)
    (P, cQ, UserTitle,      qs)
    (Q, cQ, UserTitle,     -qs)

  Afterwards every (user, currency) position nets to zero. The last share
  of a split absorbs the rounding remainder so the sums stay exact.
  Many-payer/many-payee vouchers are left alone, or rejected when Strict.

SEE ALSO:
  - ledger.go: Save normalizes before writing
  - generic/errors.go: AmbiguousNormalizationError
*/
package ledger

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/generic"
)

// shareScale is the number of decimal places kept on split shares.
const shareScale = 8

// =============================================================================
// NORMALIZER
// =============================================================================

type Normalizer struct {
	BaseCurrency  string
	UserTitle     int
	CurrencyTitle int
	IgnoredSuffix string

	// Strict turns the unresolved many-payer/many-payee case into an error.
	Strict bool
}

func DefaultNormalizer() Normalizer {
	return Normalizer{
		BaseCurrency:  "CNY",
		UserTitle:     3998,
		CurrencyTitle: 3999,
		IgnoredSuffix: "#",
	}
}

// IsIgnored reports whether legs in currency are excluded from balancing.
func (n Normalizer) IsIgnored(currency string) bool {
	return n.IgnoredSuffix != "" && strings.HasSuffix(currency, n.IgnoredSuffix)
}

// Normalize returns a completed and balanced copy of v.
func (n Normalizer) Normalize(v Voucher, rc RequestContext) (Voucher, error) {
	out := v.Clone()
	for i := range out.Details {
		d := &out.Details[i]
		if d.Currency == "" {
			d.Currency = n.BaseCurrency
		}
		if d.User == "" {
			d.User = rc.User
		}
	}

	if err := completeAmounts(out.Details); err != nil {
		return Voucher{}, err
	}

	extra, err := n.balance(out.Details)
	if err != nil {
		return Voucher{}, err
	}
	for _, d := range extra {
		if d.Amount().IsZero() {
			continue
		}
		out.Details = append(out.Details, d)
	}
	return out, nil
}

// =============================================================================
// AMOUNT COMPLETION
// =============================================================================

func completeAmounts(details []Detail) error {
	byCurrency := map[string][]int{}
	var currencies []string
	for i, d := range details {
		if _, ok := byCurrency[d.Currency]; !ok {
			currencies = append(currencies, d.Currency)
		}
		byCurrency[d.Currency] = append(byCurrency[d.Currency], i)
	}

	for _, c := range currencies {
		idx := byCurrency[c]
		if countMissing(details, idx) <= 1 {
			fillMissing(details, idx)
			continue
		}

		byUser := map[string][]int{}
		var users []string
		for _, i := range idx {
			u := details[i].User
			if _, ok := byUser[u]; !ok {
				users = append(users, u)
			}
			byUser[u] = append(byUser[u], i)
		}
		for _, u := range users {
			if m := countMissing(details, byUser[u]); m > 1 {
				return &generic.AmbiguousNormalizationError{User: u, Currency: c, Missing: m}
			}
			fillMissing(details, byUser[u])
		}
	}
	return nil
}

func countMissing(details []Detail, idx []int) int {
	n := 0
	for _, i := range idx {
		if details[i].Fund == nil {
			n++
		}
	}
	return n
}

// fillMissing sets the only leg without amount among idx, if any.
func fillMissing(details []Detail, idx []int) {
	missing := -1
	sum := decimal.Zero
	for _, i := range idx {
		if details[i].Fund == nil {
			missing = i
			continue
		}
		sum = sum.Add(*details[i].Fund)
	}
	if missing >= 0 {
		f := sum.Neg()
		details[missing].Fund = &f
	}
}

// =============================================================================
// BALANCING
// =============================================================================

type position struct {
	user     string
	currency string
	net      decimal.Decimal
}

func (n Normalizer) balance(details []Detail) ([]Detail, error) {
	nets := map[[2]string]decimal.Decimal{}
	users := map[string]bool{}
	currencies := map[string]bool{}
	for _, d := range details {
		if n.IsIgnored(d.Currency) {
			continue
		}
		k := [2]string{d.User, d.Currency}
		nets[k] = nets[k].Add(d.Amount())
		users[d.User] = true
		currencies[d.Currency] = true
	}

	var positions []position
	for k, net := range nets {
		positions = append(positions, position{user: k[0], currency: k[1], net: net})
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].user != positions[j].user {
			return positions[i].user < positions[j].user
		}
		return positions[i].currency < positions[j].currency
	})

	switch {
	case len(users) <= 1 && len(currencies) <= 1:
		return nil, nil
	case len(currencies) == 1:
		return n.settle(positions, n.UserTitle), nil
	case len(users) == 1:
		return n.settle(positions, n.CurrencyTitle), nil
	}
	return n.quadrature(positions)
}

// settle books minus every non-zero position on title.
func (n Normalizer) settle(positions []position, title int) []Detail {
	var out []Detail
	for _, p := range positions {
		if p.net.IsZero() {
			continue
		}
		out = append(out, leg(p.user, p.currency, title, p.net.Neg()))
	}
	return out
}

func (n Normalizer) quadrature(positions []position) ([]Detail, error) {
	var payees, payers []position
	for _, p := range positions {
		switch p.net.Sign() {
		case 1:
			payees = append(payees, p)
		case -1:
			payers = append(payers, p)
		}
	}
	if len(payees) == 0 || len(payers) == 0 {
		return nil, nil
	}
	if len(payees) > 1 && len(payers) > 1 {
		if n.Strict {
			return nil, &generic.AmbiguousNormalizationError{
				Reason: "more than one payee and more than one payer",
			}
		}
		return nil, nil
	}

	var out []Detail
	if len(payees) == 1 {
		p := payees[0]
		shares := split(p.net, netsOf(payers))
		for i, q := range payers {
			out = append(out, n.chain(p, q, shares[i], q.net)...)
		}
		return out, nil
	}

	q := payers[0]
	shares := split(q.net, netsOf(payees))
	for i, p := range payees {
		out = append(out, n.chain(p, q, p.net, shares[i])...)
	}
	return out, nil
}

// chain emits the settlement legs moving qs from payer q into payee p.
func (n Normalizer) chain(p, q position, ps, qs decimal.Decimal) []Detail {
	out := []Detail{
		leg(p.user, p.currency, n.CurrencyTitle, ps.Neg()),
		leg(p.user, q.currency, n.CurrencyTitle, qs.Neg()),
	}
	if p.user != q.user {
		out = append(out,
			leg(p.user, q.currency, n.UserTitle, qs),
			leg(q.user, q.currency, n.UserTitle, qs.Neg()),
		)
	}
	return out
}

func netsOf(ps []position) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ps))
	for i, p := range ps {
		out[i] = p.net
	}
	return out
}

// split divides total proportionally to weights; the last share takes
// the remainder.
func split(total decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(weights))
	if len(weights) == 1 {
		out[0] = total
		return out
	}
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	acc := decimal.Zero
	for i, w := range weights[:len(weights)-1] {
		out[i] = total.Mul(w).DivRound(sum, shareScale)
		acc = acc.Add(out[i])
	}
	out[len(out)-1] = total.Sub(acc)
	return out
}

func leg(user, currency string, title int, fund decimal.Decimal) Detail {
	return Detail{User: user, Currency: currency, Title: title, Fund: &fund}
}
