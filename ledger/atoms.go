/*
atoms.go - Atomic predicates and in-memory matching

PURPOSE:
  The three atom types plugged into generic.Query:

    DetailAtom       one voucher leg
    VoucherAtom      a whole voucher, with a nested detail query
    DistributedAtom  an asset / amortization record

  Every optional field is "don't care" when nil. For string fields a
  pointer to "" means "must be empty", which is not the same as nil.
  A SubTitle of 0 means "no sub-title".

QUANTIFICATION:
  VoucherAtom.Details is evaluated per leg. ForAll requires every leg to
  match; otherwise one matching leg is enough. A nil detail query places
  no constraint on the legs at all.

DANGER:
  Safety decides whether a query is too broad for a bulk delete. An atom
  that constrains nothing is always dangerous.
*/
package ledger

import (
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/generic"
)

type (
	VoucherQuery     = generic.Query[VoucherAtom]
	DetailFilter     = generic.Query[DetailAtom]
	DistributedQuery = generic.Query[DistributedAtom]
)

// =============================================================================
// DETAIL ATOM
// =============================================================================

type DetailAtom struct {
	Title    *int             `json:"title,omitempty"`
	SubTitle *int             `json:"subtitle,omitempty"`
	Content  *string          `json:"content,omitempty"`
	Remark   *string          `json:"remark,omitempty"`
	Currency *string          `json:"currency,omitempty"`
	User     *string          `json:"user,omitempty"`
	Fund     *decimal.Decimal `json:"fund,omitempty"`

	// Dir: 0 either side, >0 debit only, <0 credit only
	Dir int `json:"dir,omitempty"`
}

// IsUnconstrained reports whether the atom matches every leg.
func (a DetailAtom) IsUnconstrained() bool {
	return a.Title == nil && a.SubTitle == nil && a.Content == nil && a.Remark == nil &&
		a.Currency == nil && a.User == nil && a.Fund == nil && a.Dir == 0
}

func (d Detail) IsMatch(a DetailAtom) bool {
	if a.Title != nil && d.Title != *a.Title {
		return false
	}
	if a.SubTitle != nil && d.SubTitle != *a.SubTitle {
		return false
	}
	if a.Content != nil && d.Content != *a.Content {
		return false
	}
	if a.Remark != nil && d.Remark != *a.Remark {
		return false
	}
	if a.Currency != nil && d.Currency != *a.Currency {
		return false
	}
	if a.User != nil && d.User != *a.User {
		return false
	}
	if a.Fund != nil && (d.Fund == nil || !d.Fund.Equal(*a.Fund)) {
		return false
	}
	switch {
	case a.Dir > 0:
		return d.Fund != nil && d.Fund.IsPositive()
	case a.Dir < 0:
		return d.Fund != nil && d.Fund.IsNegative()
	}
	return true
}

// MatchDetail evaluates a detail query against one leg.
func MatchDetail(q DetailFilter, d Detail) bool {
	return generic.Evaluate(q, d.IsMatch)
}

// =============================================================================
// VOUCHER ATOM
// =============================================================================

type VoucherAtom struct {
	ID *string `json:"id,omitempty"`

	// DateSet enables the exact date match; a nil Date then selects
	// undated vouchers.
	DateSet bool          `json:"dateSet,omitempty"`
	Date    *generic.Date `json:"date,omitempty"`

	Type   *VoucherType `json:"type,omitempty"`
	Remark *string      `json:"remark,omitempty"`

	Range   generic.DateFilter `json:"range"`
	Details DetailFilter       `json:"-"`
	ForAll  bool               `json:"forAll,omitempty"`
}

// HasVoucherFields reports whether any voucher-level field is constrained.
func (a VoucherAtom) HasVoucherFields() bool {
	return a.ID != nil || a.DateSet || a.Type != nil || a.Remark != nil
}

func (v Voucher) IsMatch(a VoucherAtom) bool {
	if a.ID != nil && v.ID != *a.ID {
		return false
	}
	if a.DateSet && generic.CompareDates(v.Date, a.Date) != 0 {
		return false
	}
	if a.Type != nil && !a.Type.Matches(v.Kind()) {
		return false
	}
	if a.Remark != nil && v.Remark != *a.Remark {
		return false
	}
	if !a.Range.Contains(v.Date) {
		return false
	}
	if a.Details == nil {
		return true
	}

	if a.ForAll {
		for _, d := range v.Details {
			if !MatchDetail(a.Details, d) {
				return false
			}
		}
		return true
	}
	for _, d := range v.Details {
		if MatchDetail(a.Details, d) {
			return true
		}
	}
	return false
}

// MatchVoucher evaluates a voucher query against one voucher.
func MatchVoucher(q VoucherQuery, v Voucher) bool {
	return generic.Evaluate(q, v.IsMatch)
}

// ValidateVoucherQuery checks the arity of q and of every nested detail query.
func ValidateVoucherQuery(q VoucherQuery) error {
	if err := generic.Validate(q); err != nil {
		return err
	}
	var err error
	generic.Walk(q, func(a VoucherAtom) {
		if err == nil {
			err = generic.Validate(a.Details)
		}
	})
	return err
}

// =============================================================================
// DISTRIBUTED ATOM
// =============================================================================

type DistributedAtom struct {
	ID     *string            `json:"id,omitempty"`
	User   *string            `json:"user,omitempty"`
	Name   *string            `json:"name,omitempty"`
	Remark *string            `json:"remark,omitempty"`
	Range  generic.DateFilter `json:"range"`
}

func (d Distributed) IsMatch(a DistributedAtom) bool {
	if a.ID != nil && d.ID != *a.ID {
		return false
	}
	if a.User != nil && d.User != *a.User {
		return false
	}
	if a.Name != nil && d.Name != *a.Name {
		return false
	}
	if a.Remark != nil && d.Remark != *a.Remark {
		return false
	}
	return a.Range.Contains(d.Date)
}

// MatchDistributed evaluates a distributed query against one record.
func MatchDistributed(q DistributedQuery, d Distributed) bool {
	return generic.Evaluate(q, d.IsMatch)
}

// =============================================================================
// SAFETY - Dangerous query detection
// =============================================================================

// Safety holds the thresholds used to flag over-broad queries.
type Safety struct {
	// MaxSpanDays is the widest closed date range still considered narrow.
	MaxSpanDays int
}

var DefaultSafety = Safety{MaxSpanDays: 20}

func (s Safety) DetailAtomDangerous(a DetailAtom) bool {
	return a.IsUnconstrained()
}

func (s Safety) VoucherAtomDangerous(a VoucherAtom) bool {
	return !a.HasVoucherFields() &&
		a.Range.IsDangerous(s.MaxSpanDays) &&
		generic.IsDangerous(a.Details, s.DetailAtomDangerous)
}

func (s Safety) DistributedAtomDangerous(a DistributedAtom) bool {
	return a.ID == nil && a.User == nil && a.Name == nil && a.Remark == nil &&
		a.Range.IsDangerous(s.MaxSpanDays)
}

// IsDangerous reports whether q is too broad for a bulk delete.
func (s Safety) IsDangerous(q VoucherQuery) bool {
	return generic.IsDangerous(q, s.VoucherAtomDangerous)
}

func (s Safety) IsDangerousDistributed(q DistributedQuery) bool {
	return generic.IsDangerous(q, s.DistributedAtomDangerous)
}

// =============================================================================
// DETAIL QUERY - Which legs of which vouchers to project
// =============================================================================

// DetailQuery selects legs: Details filters the legs of every voucher
// matched by Vouchers. Nil on either side means "all".
type DetailQuery struct {
	Vouchers VoucherQuery
	Details  DetailFilter
}

// Flatten projects the legs of v selected by q. The voucher itself is
// assumed to have matched q.Vouchers already.
func (q DetailQuery) Flatten(v Voucher) []Balance {
	var out []Balance
	for _, d := range v.Details {
		if MatchDetail(q.Details, d) {
			out = append(out, BalanceOf(v, d))
		}
	}
	return out
}

// FlattenAll projects every voucher of vs matched by q.
func (q DetailQuery) FlattenAll(vs []Voucher) []Balance {
	var out []Balance
	for _, v := range vs {
		if MatchVoucher(q.Vouchers, v) {
			out = append(out, q.Flatten(v)...)
		}
	}
	return out
}

// =============================================================================
// POINTER HELPERS - For building atoms literally
// =============================================================================

func Int(i int) *int                         { return &i }
func String(s string) *string                { return &s }
func Type(t VoucherType) *VoucherType        { return &t }
func Fund(f decimal.Decimal) *decimal.Decimal { return &f }

// Amount parses a literal amount, panicking on malformed input.
func Amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
