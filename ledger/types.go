/*
Package ledger holds the bookkeeping domain: vouchers, their legs, the
predicates that match them and the store contract they persist through.

PURPOSE:
  A voucher is a double-entry record with one or more legs ("details").
  Each leg books a signed amount against an account title/sub-title in a
  currency on behalf of a user. Queries are generic.Query trees over the
  atoms in atoms.go; aggregation consumes the flat Balance projection.

KEY CONCEPTS IN THIS FILE (types.go):
  - Voucher / Detail: the persisted documents
  - VoucherType: ordinary, carry, depreciation, ...
  - Distributed: asset / amortization records matched by DistributedAtom
  - Balance: one flattened leg, the unit of the subtotal engine

DESIGN PRINCIPLES:
  1. Precision: amounts are decimal.Decimal, never float64
  2. Immutability: stores hand out clones; the engine never mutates inputs
  3. Optional amounts: a leg without Fund is completed by the Normalizer

SEE ALSO:
  - atoms.go: DetailAtom, VoucherAtom, DistributedAtom and matching
  - normalize.go: amount completion and multi-currency/multi-user balancing
  - store.go: persistence contract
*/
package ledger

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/generic"
)

// =============================================================================
// VOUCHER TYPE
// =============================================================================

type VoucherType string

const (
	VoucherOrdinary     VoucherType = "ordinary"
	VoucherCarry        VoucherType = "carry"
	VoucherAnnualCarry  VoucherType = "annual_carry"
	VoucherDepreciation VoucherType = "depreciation"
	VoucherDevalue      VoucherType = "devalue"
	VoucherAmortization VoucherType = "amortization"
	VoucherUncertain    VoucherType = "uncertain"

	// VoucherGeneral is only meaningful in queries: every type but carries.
	VoucherGeneral VoucherType = "general"
)

// Matches reports whether a voucher of type actual satisfies t in a query.
func (t VoucherType) Matches(actual VoucherType) bool {
	if actual == "" {
		actual = VoucherOrdinary
	}
	if t == VoucherGeneral {
		return actual != VoucherCarry && actual != VoucherAnnualCarry
	}
	return t == actual
}

// =============================================================================
// VOUCHER & DETAIL
// =============================================================================

// Detail is one leg of a voucher. An empty Content/Remark is "no value";
// SubTitle 0 is "no sub-title".
type Detail struct {
	User     string           `json:"user,omitempty"`
	Currency string           `json:"currency,omitempty"`
	Title    int              `json:"title"`
	SubTitle int              `json:"subtitle,omitempty"`
	Content  string           `json:"content,omitempty"`
	Remark   string           `json:"remark,omitempty"`
	Fund     *decimal.Decimal `json:"fund,omitempty"`
}

// Amount returns the leg's fund, zero when missing.
func (d Detail) Amount() decimal.Decimal {
	if d.Fund == nil {
		return decimal.Zero
	}
	return *d.Fund
}

// Voucher is a double-entry bookkeeping record. A nil Date is an undated
// (pending) voucher.
type Voucher struct {
	ID      string        `json:"id,omitempty"`
	Date    *generic.Date `json:"date,omitempty"`
	Type    VoucherType   `json:"type,omitempty"`
	Remark  string        `json:"remark,omitempty"`
	Details []Detail      `json:"details"`
}

// Kind returns the voucher type with the ordinary default applied.
func (v Voucher) Kind() VoucherType {
	if v.Type == "" {
		return VoucherOrdinary
	}
	return v.Type
}

// Clone returns a deep copy, so callers can hand vouchers across store
// boundaries without sharing legs or amounts.
func (v Voucher) Clone() Voucher {
	out := v
	if v.Date != nil {
		d := *v.Date
		out.Date = &d
	}
	if v.Details != nil {
		out.Details = make([]Detail, len(v.Details))
		for i, d := range v.Details {
			if d.Fund != nil {
				f := *d.Fund
				d.Fund = &f
			}
			out.Details[i] = d
		}
	}
	return out
}

// NewID returns a fresh, time-ordered voucher identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SortVouchers orders vouchers undated first, then by date, then by id.
// Every store returns vouchers in this order.
func SortVouchers(vs []Voucher) {
	sort.SliceStable(vs, func(i, j int) bool {
		if c := generic.CompareDates(vs[i].Date, vs[j].Date); c != 0 {
			return c < 0
		}
		return vs[i].ID < vs[j].ID
	})
}

// =============================================================================
// DISTRIBUTED RECORDS - Assets and amortizations
// =============================================================================

// Distributed is a record whose value is spread over time by generated
// vouchers (an asset being depreciated, an expense being amortized).
type Distributed struct {
	ID     string          `json:"id,omitempty"`
	User   string          `json:"user,omitempty"`
	Name   string          `json:"name"`
	Date   *generic.Date   `json:"date,omitempty"`
	Value  decimal.Decimal `json:"value"`
	Remark string          `json:"remark,omitempty"`
}

// =============================================================================
// BALANCE - Flattened leg consumed by the subtotal engine
// =============================================================================

// Balance is one leg projected out of its voucher.
type Balance struct {
	VoucherID string          `json:"voucherId,omitempty"`
	Date      *generic.Date   `json:"date,omitempty"`
	Title     int             `json:"title,omitempty"`
	SubTitle  int             `json:"subtitle,omitempty"`
	Content   string          `json:"content,omitempty"`
	Remark    string          `json:"remark,omitempty"`
	Currency  string          `json:"currency,omitempty"`
	User      string          `json:"user,omitempty"`
	Fund      decimal.Decimal `json:"fund"`
}

// BalanceOf projects leg d of voucher v.
func BalanceOf(v Voucher, d Detail) Balance {
	var date *generic.Date
	if v.Date != nil {
		cp := *v.Date
		date = &cp
	}
	return Balance{
		VoucherID: v.ID,
		Date:      date,
		Title:     d.Title,
		SubTitle:  d.SubTitle,
		Content:   d.Content,
		Remark:    d.Remark,
		Currency:  d.Currency,
		User:      d.User,
		Fund:      d.Amount(),
	}
}
