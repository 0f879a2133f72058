package mongo

import (
	"fmt"

	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// =============================================================================
// FILTER COMPILER - generic.Query trees to BSON
// =============================================================================
//
// Operators map onto the logical query operators:
//
//   Identity    f
//   Complement  {$nor: [f]}
//   Union       {$or: [f1, f2]}
//   Intersect   {$and: [f1, f2]}
//   Subtract    {$and: [f1, {$nor: [f2]}]}
//
// An empty bson.D matches every document.

func compileTree[A any](q generic.Query[A], atom func(A) (bson.D, error)) (bson.D, error) {
	switch n := q.(type) {
	case nil:
		return bson.D{}, nil
	case *generic.Atom[A]:
		return atom(n.Value)
	case *generic.Compound[A]:
		left, err := compileTree(n.Filter1, atom)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case generic.OpIdentity:
			return left, nil
		case generic.OpComplement:
			return bson.D{{Key: "$nor", Value: bson.A{left}}}, nil
		}
		right, err := compileTree(n.Filter2, atom)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case generic.OpUnion:
			return bson.D{{Key: "$or", Value: bson.A{left, right}}}, nil
		case generic.OpIntersect:
			return bson.D{{Key: "$and", Value: bson.A{left, right}}}, nil
		case generic.OpSubtract:
			return bson.D{{Key: "$and", Value: bson.A{left, bson.D{{Key: "$nor", Value: bson.A{right}}}}}}, nil
		}
		return nil, &generic.MalformedQueryError{Op: n.Op, Reason: "unknown operator"}
	}
	return nil, &generic.MalformedQueryError{Reason: fmt.Sprintf("unknown node %T", q)}
}

// VoucherFilter compiles q into a filter over voucher documents.
func VoucherFilter(q ledger.VoucherQuery) (bson.D, error) {
	if err := ledger.ValidateVoucherQuery(q); err != nil {
		return nil, err
	}
	return compileTree(q, voucherAtom)
}

// DetailFilter compiles q into a filter over leg sub-documents. Field
// names are prefixed with prefix, "" inside $elemMatch.
func DetailFilter(q ledger.DetailFilter, prefix string) (bson.D, error) {
	if err := generic.Validate(q); err != nil {
		return nil, err
	}
	return compileTree(q, func(a ledger.DetailAtom) (bson.D, error) {
		return detailAtom(a, prefix)
	})
}

func voucherAtom(a ledger.VoucherAtom) (bson.D, error) {
	var conds []bson.D
	if a.ID != nil {
		conds = append(conds, eq("_id", *a.ID))
	}
	if a.DateSet {
		conds = append(conds, eq("date", dateValue(a.Date)))
	}
	if a.Type != nil {
		if *a.Type == ledger.VoucherGeneral {
			conds = append(conds, bson.D{{Key: "type", Value: bson.D{{Key: "$nin", Value: bson.A{
				string(ledger.VoucherCarry), string(ledger.VoucherAnnualCarry),
			}}}}})
		} else {
			conds = append(conds, eq("type", string(*a.Type)))
		}
	}
	if a.Remark != nil {
		conds = append(conds, eq("remark", *a.Remark))
	}
	if r := dateRange("date", a.Range); r != nil {
		conds = append(conds, r)
	}
	if a.Details != nil {
		inner, err := compileTree(a.Details, func(d ledger.DetailAtom) (bson.D, error) {
			return detailAtom(d, "")
		})
		if err != nil {
			return nil, err
		}
		if a.ForAll {
			// No leg fails the filter.
			conds = append(conds, bson.D{{Key: "details", Value: bson.D{{Key: "$not", Value: bson.D{
				{Key: "$elemMatch", Value: bson.D{{Key: "$nor", Value: bson.A{inner}}}},
			}}}}})
		} else {
			conds = append(conds, bson.D{{Key: "details", Value: bson.D{{Key: "$elemMatch", Value: inner}}}})
		}
	}
	return and(conds), nil
}

func detailAtom(a ledger.DetailAtom, prefix string) (bson.D, error) {
	var conds []bson.D
	if a.Title != nil {
		conds = append(conds, eq(prefix+"title", *a.Title))
	}
	if a.SubTitle != nil {
		conds = append(conds, eq(prefix+"subtitle", *a.SubTitle))
	}
	if a.Content != nil {
		conds = append(conds, eq(prefix+"content", *a.Content))
	}
	if a.Remark != nil {
		conds = append(conds, eq(prefix+"remark", *a.Remark))
	}
	if a.Currency != nil {
		conds = append(conds, eq(prefix+"currency", *a.Currency))
	}
	if a.User != nil {
		conds = append(conds, eq(prefix+"user", *a.User))
	}
	if a.Fund != nil {
		f, err := primitive.ParseDecimal128(a.Fund.String())
		if err != nil {
			return nil, fmt.Errorf("fund %s: %w", a.Fund, err)
		}
		conds = append(conds, eq(prefix+"fund", f))
	}
	switch {
	case a.Dir > 0:
		conds = append(conds, bson.D{{Key: prefix + "fund", Value: bson.D{{Key: "$gt", Value: 0}}}})
	case a.Dir < 0:
		conds = append(conds, bson.D{{Key: prefix + "fund", Value: bson.D{{Key: "$lt", Value: 0}}}})
	}
	return and(conds), nil
}

// dateRange mirrors generic.DateFilter.Contains; null dates never satisfy
// a comparison, so bounds exclude undated vouchers on their own.
func dateRange(field string, f generic.DateFilter) bson.D {
	if f.NullOnly {
		return eq(field, nil)
	}
	if f.IsUnbounded() {
		return nil
	}
	var bounds bson.D
	if f.Start != nil {
		bounds = append(bounds, bson.E{Key: "$gte", Value: f.Start.String()})
	}
	if f.End != nil {
		bounds = append(bounds, bson.E{Key: "$lte", Value: f.End.String()})
	}
	cond := bson.D{{Key: field, Value: bounds}}
	if f.Nullable {
		return bson.D{{Key: "$or", Value: bson.A{eq(field, nil), cond}}}
	}
	return cond
}

func eq(field string, v any) bson.D {
	return bson.D{{Key: field, Value: v}}
}

func and(conds []bson.D) bson.D {
	switch len(conds) {
	case 0:
		return bson.D{}
	case 1:
		return conds[0]
	}
	arr := make(bson.A, len(conds))
	for i, c := range conds {
		arr[i] = c
	}
	return bson.D{{Key: "$and", Value: arr}}
}

func dateValue(d *generic.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}
