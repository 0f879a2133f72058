/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Query trees travel
  as nested QueryDTO nodes:

    {"atom": {...}}                                  leaf
    {"op": "complement", "args": [q]}                unary (also "identity")
    {"op": "subtract",   "args": [a, b]}             binary
    {"op": "union",      "args": [a, b, c, ...]}     n-ary, right-folded

  A voucher atom carries its leg filter under "details", itself a
  QueryDTO over detail atoms.

NAMING CONVENTION:
  - *DTO: shapes shared by requests and responses
  - *Request: request body types from clients
  - *Response: response wrappers

VALIDATION:
  Decoding a DTO into a query enforces the arity rules; errors wrap
  generic.ErrMalformedQuery so handlers answer 400.

SEE ALSO:
  - handlers.go: Uses these types
  - generic/query.go: the tree the DTOs decode into
*/
package api

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/subtotal"
)

// =============================================================================
// QUERY TREES
// =============================================================================

// QueryDTO is one node of a query tree over atoms of type A.
type QueryDTO[A any] struct {
	Op   string        `json:"op,omitempty"`
	Atom *A            `json:"atom,omitempty"`
	Args []QueryDTO[A] `json:"args,omitempty"`
}

// VoucherAtomDTO adds the nested leg filter that ledger.VoucherAtom does
// not serialize itself.
type VoucherAtomDTO struct {
	ledger.VoucherAtom
	Details *QueryDTO[ledger.DetailAtom] `json:"details,omitempty"`
}

type (
	VoucherQueryDTO = QueryDTO[VoucherAtomDTO]
	DetailFilterDTO = QueryDTO[ledger.DetailAtom]
)

// decodeQuery turns a DTO tree into a generic.Query. A nil DTO is the
// nil query.
func decodeQuery[D, A any](dto *QueryDTO[D], atom func(D) (A, error)) (generic.Query[A], error) {
	if dto == nil {
		return nil, nil
	}
	if dto.Op == "" || dto.Op == "atom" {
		if dto.Atom == nil || len(dto.Args) > 0 {
			return nil, &generic.MalformedQueryError{Reason: "a leaf needs exactly one atom and no args"}
		}
		a, err := atom(*dto.Atom)
		if err != nil {
			return nil, err
		}
		return generic.NewAtom(a), nil
	}

	op, err := generic.ParseOperator(dto.Op)
	if err != nil {
		return nil, err
	}
	if dto.Atom != nil {
		return nil, &generic.MalformedQueryError{Op: op, Reason: "operator node carries an atom"}
	}
	args := make([]generic.Query[A], len(dto.Args))
	for i := range dto.Args {
		if args[i], err = decodeQuery(&dto.Args[i], atom); err != nil {
			return nil, err
		}
	}

	switch op {
	case generic.OpIdentity, generic.OpComplement:
		if len(args) != 1 {
			return nil, &generic.MalformedQueryError{Op: op, Reason: fmt.Sprintf("want 1 operand, got %d", len(args))}
		}
		if op == generic.OpIdentity {
			return generic.Identity(args[0]), nil
		}
		return generic.Complement(args[0]), nil
	case generic.OpSubtract:
		if len(args) != 2 {
			return nil, &generic.MalformedQueryError{Op: op, Reason: fmt.Sprintf("want 2 operands, got %d", len(args))}
		}
		return generic.Subtract(args[0], args[1]), nil
	case generic.OpUnion:
		return generic.Union(args...)
	default:
		return generic.Intersect(args...)
	}
}

func detailAtom(a ledger.DetailAtom) (ledger.DetailAtom, error) { return a, nil }

func voucherAtom(a VoucherAtomDTO) (ledger.VoucherAtom, error) {
	details, err := decodeQuery(a.Details, detailAtom)
	if err != nil {
		return ledger.VoucherAtom{}, err
	}
	out := a.VoucherAtom
	out.Details = details
	return out, nil
}

// DecodeVoucherQuery turns a voucher query tree into a ledger.VoucherQuery.
func DecodeVoucherQuery(dto *VoucherQueryDTO) (ledger.VoucherQuery, error) {
	return decodeQuery(dto, voucherAtom)
}

// DecodeDetailFilter turns a leg filter tree into a ledger.DetailFilter.
func DecodeDetailFilter(dto *DetailFilterDTO) (ledger.DetailFilter, error) {
	return decodeQuery(dto, detailAtom)
}

// DetailQueryDTO selects legs: vouchers first, then legs within them.
type DetailQueryDTO struct {
	Vouchers *VoucherQueryDTO `json:"vouchers,omitempty"`
	Details  *DetailFilterDTO `json:"details,omitempty"`
}

func (dto DetailQueryDTO) DetailQuery() (ledger.DetailQuery, error) {
	vq, err := DecodeVoucherQuery(dto.Vouchers)
	if err != nil {
		return ledger.DetailQuery{}, err
	}
	dq, err := DecodeDetailFilter(dto.Details)
	if err != nil {
		return ledger.DetailQuery{}, err
	}
	return ledger.DetailQuery{Vouchers: vq, Details: dq}, nil
}

// =============================================================================
// SUBTOTAL
// =============================================================================

// SubtotalSpecDTO is the textual form of subtotal.Spec.
type SubtotalSpecDTO struct {
	Gather             string             `json:"gather,omitempty"`
	Levels             []string           `json:"levels,omitempty"`
	Aggr               string             `json:"aggr,omitempty"`
	Interval           string             `json:"interval,omitempty"`
	Range              generic.DateFilter `json:"range"`
	EquivalentDate     *generic.Date      `json:"equivalentDate,omitempty"`
	EquivalentCurrency string             `json:"equivalentCurrency,omitempty"`
}

func (dto SubtotalSpecDTO) Spec() (subtotal.Spec, error) {
	var spec subtotal.Spec
	var err error
	if spec.Gather, err = subtotal.ParseGather(dto.Gather); err != nil {
		return spec, err
	}
	if spec.Aggr, err = subtotal.ParseAggr(dto.Aggr); err != nil {
		return spec, err
	}
	for _, s := range dto.Levels {
		l, err := subtotal.ParseLevel(s)
		if err != nil {
			return spec, err
		}
		spec.Levels = append(spec.Levels, l)
	}
	if dto.Interval != "" {
		if spec.AggrInterval, err = subtotal.ParseLevel(dto.Interval); err != nil {
			return spec, err
		}
	}
	spec.EveryDayRange = dto.Range
	spec.EquivalentDate = dto.EquivalentDate
	spec.EquivalentCurrency = dto.EquivalentCurrency
	return spec, spec.Validate()
}

// SubtotalRequest asks for the subtotal of the legs selected by Query.
// Format "" returns the tree; "indented" and "terse" return text.
type SubtotalRequest struct {
	Query  DetailQueryDTO  `json:"query"`
	Spec   SubtotalSpecDTO `json:"spec"`
	Format string          `json:"format,omitempty"`
}

// SubtotalNodeDTO is one node of a subtotal tree.
type SubtotalNodeDTO struct {
	Level string            `json:"level"`
	Key   string            `json:"key,omitempty"`
	Fund  decimal.Decimal   `json:"fund"`
	Items []SubtotalNodeDTO `json:"items,omitempty"`
}

type SubtotalResponse struct {
	Root *SubtotalNodeDTO `json:"root,omitempty"`
	Text string           `json:"text,omitempty"`
}

// NewSubtotalNode converts a result tree into its JSON form.
func NewSubtotalNode(r subtotal.Result) SubtotalNodeDTO {
	var n SubtotalNodeDTO
	switch v := r.(type) {
	case *subtotal.RootResult:
		n.Level = "root"
	case *subtotal.DateResult:
		n.Level = v.Level.String()
		n.Key = subtotal.Key{Level: v.Level, Date: v.Date}.Label()
	case *subtotal.TitleResult:
		n.Level, n.Key = "title", fmt.Sprint(v.Title)
	case *subtotal.SubTitleResult:
		n.Level, n.Key = "subtitle", fmt.Sprint(v.SubTitle)
	case *subtotal.ContentResult:
		n.Level, n.Key = "content", v.Content
	case *subtotal.RemarkResult:
		n.Level, n.Key = "remark", v.Remark
	case *subtotal.CurrencyResult:
		n.Level, n.Key = "currency", v.Currency
	case *subtotal.UserResult:
		n.Level, n.Key = "user", v.User
	}
	n.Fund = r.Fund()
	for _, c := range r.Children() {
		n.Items = append(n.Items, NewSubtotalNode(c))
	}
	return n
}

// =============================================================================
// VOUCHERS
// =============================================================================

type QueryVouchersRequest struct {
	Query *VoucherQueryDTO `json:"query,omitempty"`
}

type DeleteVouchersRequest struct {
	Query *VoucherQueryDTO `json:"query,omitempty"`
	Force bool             `json:"force,omitempty"`
}

type DeleteVouchersResponse struct {
	Deleted int64 `json:"deleted"`
}

// =============================================================================
// BATCH - Several mutations applied through one overlay
// =============================================================================

// Batch operation kinds.
const (
	OpSave        = "save"
	OpRemove      = "remove"
	OpRemoveWhere = "removeWhere"
)

type BatchOperation struct {
	Op      string           `json:"op"`
	Voucher *ledger.Voucher  `json:"voucher,omitempty"`
	ID      string           `json:"id,omitempty"`
	Query   *VoucherQueryDTO `json:"query,omitempty"`
	Force   bool             `json:"force,omitempty"`
}

// BatchRequest is applied atomically: either every operation commits or
// none does. DryRun applies them and reports the outcome, then aborts.
// Preview, when set, is computed over the batch's view before it commits.
type BatchRequest struct {
	Operations []BatchOperation `json:"operations"`
	DryRun     bool             `json:"dryRun,omitempty"`
	Preview    *SubtotalRequest `json:"preview,omitempty"`
}

type BatchResult struct {
	Op      string          `json:"op"`
	Voucher *ledger.Voucher `json:"voucher,omitempty"`
	Deleted int64           `json:"deleted,omitempty"`
}

type BatchResponse struct {
	Results   []BatchResult     `json:"results"`
	Committed bool              `json:"committed"`
	Preview   *SubtotalResponse `json:"preview,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
