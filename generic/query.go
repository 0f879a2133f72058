/*
query.go - Boolean query algebra over typed atoms

PURPOSE:
  A single expression tree shape shared by every kind of ledger query.
  Vouchers, voucher legs and distributed records all get filtered by the
  same Query[A]; only the atom type differs. The tree is evaluated in
  memory (Evaluate) or handed to a store translator that walks the same
  nodes and emits SQL or BSON.

SHAPE:
  Atom[A]          leaf predicate
  Compound[A]      operator + Filter1 (+ Filter2)

  Identity   -> Filter1
  Complement -> NOT Filter1
  Union      -> Filter1 OR Filter2
  Intersect  -> Filter1 AND Filter2
  Subtract   -> Filter1 AND NOT Filter2

N-ARY OPERANDS:
  Union(a, b, c) is right-folded into Union(a, Union(b, c)). A single
  operand degenerates into Identity(a). Zero operands are malformed.

NIL QUERY:
  A nil Query[A] means "no filter". It matches everything and is always
  dangerous.

SEE ALSO:
  - ledger/atoms.go: the concrete atom types
  - store/sqlite/compile.go, store/mongo/filter.go: store-side translators
*/
package generic

import "fmt"

// =============================================================================
// OPERATOR
// =============================================================================

type Operator int

const (
	OpIdentity Operator = iota
	OpComplement
	OpUnion
	OpSubtract
	OpIntersect
)

var operatorNames = map[Operator]string{
	OpIdentity:   "identity",
	OpComplement: "complement",
	OpUnion:      "union",
	OpSubtract:   "subtract",
	OpIntersect:  "intersect",
}

func (op Operator) String() string {
	if s, ok := operatorNames[op]; ok {
		return s
	}
	return fmt.Sprintf("operator(%d)", int(op))
}

// ParseOperator maps an operator name back to its value.
func ParseOperator(s string) (Operator, error) {
	for op, name := range operatorNames {
		if name == s {
			return op, nil
		}
	}
	return 0, &MalformedQueryError{Reason: fmt.Sprintf("unknown operator %q", s)}
}

// binary reports whether the operator requires Filter2.
func (op Operator) binary() bool {
	return op == OpUnion || op == OpSubtract || op == OpIntersect
}

// =============================================================================
// NODES
// =============================================================================

// Query is a node of the algebra: either *Atom[A] or *Compound[A].
// The marker method seals the interface so type switches stay exhaustive.
// The marker mentions A so that Query[A] and Query[B] are distinct types.
type Query[A any] interface {
	queryNode(*A)
}

// Atom is a leaf predicate.
type Atom[A any] struct {
	Value A
}

func (*Atom[A]) queryNode(*A) {}

// Compound combines one or two sub-queries with an operator.
type Compound[A any] struct {
	Op      Operator
	Filter1 Query[A]
	Filter2 Query[A] // nil for Identity and Complement
}

func (*Compound[A]) queryNode(*A) {}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

func NewAtom[A any](value A) Query[A] {
	return &Atom[A]{Value: value}
}

func Identity[A any](q Query[A]) Query[A] {
	return &Compound[A]{Op: OpIdentity, Filter1: q}
}

func Complement[A any](q Query[A]) Query[A] {
	return &Compound[A]{Op: OpComplement, Filter1: q}
}

func Subtract[A any](a, b Query[A]) Query[A] {
	return &Compound[A]{Op: OpSubtract, Filter1: a, Filter2: b}
}

// Union builds the disjunction of all operands.
func Union[A any](qs ...Query[A]) (Query[A], error) {
	return fold(OpUnion, qs)
}

// Intersect builds the conjunction of all operands.
func Intersect[A any](qs ...Query[A]) (Query[A], error) {
	return fold(OpIntersect, qs)
}

func fold[A any](op Operator, qs []Query[A]) (Query[A], error) {
	if len(qs) == 0 {
		return nil, &MalformedQueryError{Op: op, Reason: "no operands"}
	}
	for i, q := range qs {
		if q == nil {
			return nil, &MalformedQueryError{Op: op, Reason: fmt.Sprintf("operand %d is nil", i)}
		}
	}
	if len(qs) == 1 {
		return Identity(qs[0]), nil
	}

	// Right fold: a op (b op (c op d))
	acc := qs[len(qs)-1]
	for i := len(qs) - 2; i >= 0; i-- {
		acc = &Compound[A]{Op: op, Filter1: qs[i], Filter2: acc}
	}
	return acc, nil
}

// Validate checks the arity rules of a tree built outside the constructors
// (decoded from JSON, for instance). A nil query is valid.
func Validate[A any](q Query[A]) error {
	switch n := q.(type) {
	case nil:
		return nil
	case *Atom[A]:
		if n == nil {
			return &MalformedQueryError{Reason: "nil atom"}
		}
		return nil
	case *Compound[A]:
		if n == nil {
			return &MalformedQueryError{Reason: "nil compound"}
		}
		if _, ok := operatorNames[n.Op]; !ok {
			return &MalformedQueryError{Op: n.Op, Reason: "unknown operator"}
		}
		if n.Filter1 == nil {
			return &MalformedQueryError{Op: n.Op, Reason: "missing first operand"}
		}
		if n.Op.binary() && n.Filter2 == nil {
			return &MalformedQueryError{Op: n.Op, Reason: "missing second operand"}
		}
		if !n.Op.binary() && n.Filter2 != nil {
			return &MalformedQueryError{Op: n.Op, Reason: "unexpected second operand"}
		}
		if err := Validate(n.Filter1); err != nil {
			return err
		}
		return Validate(n.Filter2)
	default:
		return &MalformedQueryError{Reason: fmt.Sprintf("unknown node %T", q)}
	}
}

// =============================================================================
// EVALUATION
// =============================================================================

// Evaluate decides q against an in-memory record; pred decides atoms.
func Evaluate[A any](q Query[A], pred func(A) bool) bool {
	switch n := q.(type) {
	case nil:
		return true
	case *Atom[A]:
		return pred(n.Value)
	case *Compound[A]:
		switch n.Op {
		case OpIdentity:
			return Evaluate(n.Filter1, pred)
		case OpComplement:
			return !Evaluate(n.Filter1, pred)
		case OpUnion:
			return Evaluate(n.Filter1, pred) || Evaluate(n.Filter2, pred)
		case OpIntersect:
			return Evaluate(n.Filter1, pred) && Evaluate(n.Filter2, pred)
		case OpSubtract:
			return Evaluate(n.Filter1, pred) && !Evaluate(n.Filter2, pred)
		}
	}
	return false
}

// IsDangerous reports whether q is too broad to run a destructive
// operation under without confirmation.
//
//	nil        -> true
//	Identity   -> d(F1)
//	Complement -> true
//	Union      -> d(F1) || d(F2)
//	Intersect  -> d(F1) && d(F2)
//	Subtract   -> d(F1)
func IsDangerous[A any](q Query[A], atomDanger func(A) bool) bool {
	switch n := q.(type) {
	case nil:
		return true
	case *Atom[A]:
		return atomDanger(n.Value)
	case *Compound[A]:
		switch n.Op {
		case OpIdentity:
			return IsDangerous(n.Filter1, atomDanger)
		case OpComplement:
			return true
		case OpUnion:
			return IsDangerous(n.Filter1, atomDanger) || IsDangerous(n.Filter2, atomDanger)
		case OpIntersect:
			return IsDangerous(n.Filter1, atomDanger) && IsDangerous(n.Filter2, atomDanger)
		case OpSubtract:
			return IsDangerous(n.Filter1, atomDanger)
		}
	}
	return true
}

// Walk calls visit for every atom in q, depth-first, left to right.
func Walk[A any](q Query[A], visit func(A)) {
	switch n := q.(type) {
	case *Atom[A]:
		visit(n.Value)
	case *Compound[A]:
		Walk(n.Filter1, visit)
		Walk(n.Filter2, visit)
	}
}
