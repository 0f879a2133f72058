package sqlite

import (
	"fmt"
	"strings"

	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// QUERY COMPILER - generic.Query trees to parameterized SQL
// =============================================================================
//
// Vouchers are aliased v, their legs d. Every fragment evaluates to a
// definite 0 or 1, never NULL, so NOT and EXCEPT-style subtraction keep the
// same meaning as the in-memory evaluator. Values are always bound as
// parameters, appended in the order their placeholders appear.

type compiler struct {
	args []any
}

func (c *compiler) bind(v any) string {
	c.args = append(c.args, v)
	return "?"
}

// compileTree renders the operator structure of q, delegating atoms.
func compileTree[A any](q generic.Query[A], atom func(A) (string, error)) (string, error) {
	switch n := q.(type) {
	case nil:
		return "1", nil
	case *generic.Atom[A]:
		return atom(n.Value)
	case *generic.Compound[A]:
		left, err := compileTree(n.Filter1, atom)
		if err != nil {
			return "", err
		}
		switch n.Op {
		case generic.OpIdentity:
			return "(" + left + ")", nil
		case generic.OpComplement:
			return "(NOT (" + left + "))", nil
		}
		right, err := compileTree(n.Filter2, atom)
		if err != nil {
			return "", err
		}
		switch n.Op {
		case generic.OpUnion:
			return "((" + left + ") OR (" + right + "))", nil
		case generic.OpIntersect:
			return "((" + left + ") AND (" + right + "))", nil
		case generic.OpSubtract:
			return "((" + left + ") AND NOT (" + right + "))", nil
		}
		return "", &generic.MalformedQueryError{Op: n.Op, Reason: "unknown operator"}
	}
	return "", &generic.MalformedQueryError{Reason: fmt.Sprintf("unknown node %T", q)}
}

// voucherWhere compiles q into a condition over alias v.
func (c *compiler) voucherWhere(q ledger.VoucherQuery) (string, error) {
	return compileTree(q, c.voucherAtom)
}

// detailWhere compiles q into a condition over alias d.
func (c *compiler) detailWhere(q ledger.DetailFilter) (string, error) {
	return compileTree(q, c.detailAtom)
}

func (c *compiler) voucherAtom(a ledger.VoucherAtom) (string, error) {
	var conds []string
	if a.ID != nil {
		conds = append(conds, "v.id = "+c.bind(*a.ID))
	}
	if a.DateSet {
		var d any
		if a.Date != nil {
			d = a.Date.String()
		}
		conds = append(conds, "v.date IS "+c.bind(d))
	}
	if a.Type != nil {
		if *a.Type == ledger.VoucherGeneral {
			conds = append(conds, "v.type NOT IN ("+c.bind(string(ledger.VoucherCarry))+", "+c.bind(string(ledger.VoucherAnnualCarry))+")")
		} else {
			conds = append(conds, "v.type = "+c.bind(string(*a.Type)))
		}
	}
	if a.Remark != nil {
		conds = append(conds, "v.remark = "+c.bind(*a.Remark))
	}
	if r := c.dateRange("v.date", a.Range); r != "" {
		conds = append(conds, r)
	}
	if a.Details != nil {
		inner, err := c.detailWhere(a.Details)
		if err != nil {
			return "", err
		}
		if a.ForAll {
			conds = append(conds, "NOT EXISTS (SELECT 1 FROM details d WHERE d.voucher_id = v.id AND NOT ("+inner+"))")
		} else {
			conds = append(conds, "EXISTS (SELECT 1 FROM details d WHERE d.voucher_id = v.id AND ("+inner+"))")
		}
	}
	return and(conds), nil
}

func (c *compiler) detailAtom(a ledger.DetailAtom) (string, error) {
	var conds []string
	if a.Title != nil {
		conds = append(conds, "d.title = "+c.bind(*a.Title))
	}
	if a.SubTitle != nil {
		conds = append(conds, "d.subtitle = "+c.bind(*a.SubTitle))
	}
	if a.Content != nil {
		conds = append(conds, "d.content = "+c.bind(*a.Content))
	}
	if a.Remark != nil {
		conds = append(conds, "d.remark = "+c.bind(*a.Remark))
	}
	if a.Currency != nil {
		conds = append(conds, "d.currency = "+c.bind(*a.Currency))
	}
	if a.User != nil {
		conds = append(conds, "d.user_id = "+c.bind(*a.User))
	}
	if a.Fund != nil {
		conds = append(conds, "IFNULL(d.fund, '') = "+c.bind(a.Fund.String()))
	}
	switch {
	case a.Dir > 0:
		conds = append(conds, "IFNULL(d.fund_num, 0) > 0")
	case a.Dir < 0:
		conds = append(conds, "IFNULL(d.fund_num, 0) < 0")
	}
	return and(conds), nil
}

// dateRange mirrors generic.DateFilter.Contains on a nullable column.
func (c *compiler) dateRange(col string, f generic.DateFilter) string {
	if f.NullOnly {
		return col + " IS NULL"
	}
	if f.IsUnbounded() {
		return ""
	}
	var bounds []string
	if f.Start != nil {
		bounds = append(bounds, col+" >= "+c.bind(f.Start.String()))
	}
	if f.End != nil {
		bounds = append(bounds, col+" <= "+c.bind(f.End.String()))
	}
	cond := "(" + col + " IS NOT NULL AND " + strings.Join(bounds, " AND ") + ")"
	if f.Nullable {
		return "(" + col + " IS NULL OR " + cond + ")"
	}
	return cond
}

func and(conds []string) string {
	if len(conds) == 0 {
		return "1"
	}
	return "(" + strings.Join(conds, " AND ") + ")"
}

// =============================================================================
// STATEMENTS
// =============================================================================

const voucherOrder = " ORDER BY v.date IS NOT NULL, v.date, v.id"

// CompileSelectVouchers returns the statement selecting voucher documents.
func CompileSelectVouchers(q ledger.VoucherQuery) (string, []any, error) {
	if err := ledger.ValidateVoucherQuery(q); err != nil {
		return "", nil, err
	}
	c := &compiler{}
	where, err := c.voucherWhere(q)
	if err != nil {
		return "", nil, err
	}
	return "SELECT v.doc FROM vouchers v WHERE " + where + voucherOrder, c.args, nil
}

// CompileSelectDetails returns the statement selecting flattened legs.
func CompileSelectDetails(q ledger.DetailQuery) (string, []any, error) {
	if err := ledger.ValidateVoucherQuery(q.Vouchers); err != nil {
		return "", nil, err
	}
	if err := generic.Validate(q.Details); err != nil {
		return "", nil, err
	}
	c := &compiler{}
	vw, err := c.voucherWhere(q.Vouchers)
	if err != nil {
		return "", nil, err
	}
	dw, err := c.detailWhere(q.Details)
	if err != nil {
		return "", nil, err
	}
	sql := "SELECT v.id, v.date, d.title, d.subtitle, d.content, d.remark, d.currency, d.user_id, d.fund" +
		" FROM vouchers v JOIN details d ON d.voucher_id = v.id" +
		" WHERE " + vw + " AND " + dw +
		voucherOrder + ", d.seq"
	return sql, c.args, nil
}

// CompileMatchingIDs returns a sub-select of the ids of vouchers matching q.
func CompileMatchingIDs(q ledger.VoucherQuery) (string, []any, error) {
	if err := ledger.ValidateVoucherQuery(q); err != nil {
		return "", nil, err
	}
	c := &compiler{}
	where, err := c.voucherWhere(q)
	if err != nil {
		return "", nil, err
	}
	return "SELECT v.id FROM vouchers v WHERE " + where, c.args, nil
}
