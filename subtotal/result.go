package subtotal

import (
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// RESULT - Closed set of tree node variants
// =============================================================================

// Result is a node of a subtotal tree. The concrete type tells which
// dimension produced the branch:
//
//	*RootResult, *DateResult, *UserResult, *CurrencyResult,
//	*TitleResult, *SubTitleResult, *ContentResult, *RemarkResult
type Result interface {
	Fund() decimal.Decimal
	Children() []Result
	result()
}

// Group holds what every variant shares.
type Group struct {
	Total decimal.Decimal `json:"fund"`
	Items []Result        `json:"items,omitempty"`
}

func (g *Group) Fund() decimal.Decimal { return g.Total }
func (g *Group) Children() []Result    { return g.Items }
func (*Group) result()                 {}

type RootResult struct{ Group }

type DateResult struct {
	Group
	Date  *generic.Date `json:"date"`
	Level Level         `json:"level"`
}

type UserResult struct {
	Group
	User string `json:"user"`
}

type CurrencyResult struct {
	Group
	Currency string `json:"currency"`
}

type TitleResult struct {
	Group
	Title int `json:"title"`
}

type SubTitleResult struct {
	Group
	SubTitle int `json:"subtitle"`
}

type ContentResult struct {
	Group
	Content string `json:"content"`
}

type RemarkResult struct {
	Group
	Remark string `json:"remark"`
}

func newResult(k Key, fund decimal.Decimal, items []Result) Result {
	g := Group{Total: fund, Items: items}
	switch {
	case k.Level == 0:
		return &RootResult{Group: g}
	case k.Level.IsDate():
		return &DateResult{Group: g, Date: k.Date, Level: k.Level}
	case k.Level == LevelTitle:
		return &TitleResult{Group: g, Title: k.Title}
	case k.Level == LevelSubTitle:
		return &SubTitleResult{Group: g, SubTitle: k.SubTitle}
	case k.Level == LevelContent:
		return &ContentResult{Group: g, Content: k.Content}
	case k.Level == LevelRemark:
		return &RemarkResult{Group: g, Remark: k.Remark}
	case k.Level == LevelCurrency:
		return &CurrencyResult{Group: g, Currency: k.Currency}
	case k.Level == LevelUser:
		return &UserResult{Group: g, User: k.User}
	}
	return &RootResult{Group: g}
}

// =============================================================================
// BUILD - The value accumulator
// =============================================================================

// Build folds records into a Result tree rooted at a *RootResult.
func Build(spec Spec, records []ledger.Balance) (*RootResult, error) {
	res, err := Traverse(spec, records, Folder[Result]{
		Leaf: func(n Node, fund decimal.Decimal) Result {
			return newResult(n.Key, fund, nil)
		},
		Reduce: func(n Node, children []Result, fund decimal.Decimal) Result {
			return newResult(n.Key, fund, children)
		},
		MapAggr: func(n Node, balance decimal.Decimal) Result {
			return newResult(n.Key, balance, nil)
		},
		ReduceAggr: func(n Node, buckets []Result, balance decimal.Decimal) Result {
			return newResult(n.Key, balance, buckets)
		},
	})
	if err != nil {
		return nil, err
	}
	return res.(*RootResult), nil
}

// Walk visits r and its descendants depth-first, parents first.
func Walk(r Result, visit func(r Result, depth int)) {
	walk(r, 0, visit)
}

func walk(r Result, depth int, visit func(Result, int)) {
	visit(r, depth)
	for _, c := range r.Children() {
		walk(c, depth+1, visit)
	}
}

// Leaves returns the nodes without children, left to right.
func Leaves(r Result) []Result {
	var out []Result
	Walk(r, func(n Result, _ int) {
		if len(n.Children()) == 0 {
			out = append(out, n)
		}
	})
	return out
}

// Find returns the child of r matching pred, or nil.
func Find(r Result, pred func(Result) bool) Result {
	for _, c := range r.Children() {
		if pred(c) {
			return c
		}
	}
	return nil
}
