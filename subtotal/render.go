package subtotal

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// RENDER - The presentation accumulator
// =============================================================================

type Style int

const (
	// StyleIndented is the human-readable report: one line per group,
	// indented by depth, amounts formatted with the currency symbol.
	StyleIndented Style = iota
	// StyleTerse is machine-oriented: one "path<TAB>amount" line per group.
	StyleTerse
)

func ParseStyle(s string) Style {
	if s == "terse" {
		return StyleTerse
	}
	return StyleIndented
}

// Render produces a textual report from the same traversal Build uses.
func Render(spec Spec, records []ledger.Balance, style Style) (string, error) {
	r := renderer{spec: spec, style: style}
	lines, err := Traverse(spec, records, Folder[[]string]{
		Leaf: func(n Node, fund decimal.Decimal) []string {
			return []string{r.line(n, fund)}
		},
		Reduce: func(n Node, children [][]string, fund decimal.Decimal) []string {
			return r.join(n, fund, children)
		},
		MapAggr: func(n Node, balance decimal.Decimal) []string {
			return []string{r.line(n, balance)}
		},
		ReduceAggr: func(n Node, buckets [][]string, balance decimal.Decimal) []string {
			return r.join(n, balance, buckets)
		},
	})
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", nil
	}
	return strings.Join(lines, "\n") + "\n", nil
}

type renderer struct {
	spec  Spec
	style Style
}

func (r renderer) join(n Node, fund decimal.Decimal, children [][]string) []string {
	out := []string{r.line(n, fund)}
	for _, c := range children {
		out = append(out, c...)
	}
	return out
}

func (r renderer) line(n Node, fund decimal.Decimal) string {
	amount := r.amount(n, fund)
	if r.style == StyleTerse {
		labels := make([]string, len(n.Path))
		for i, k := range n.Path {
			labels[i] = k.Label()
		}
		return "/" + strings.Join(labels, "/") + "\t" + amount
	}

	label := n.Key.Label()
	if n.Depth == 0 {
		label = "Total"
	}
	return strings.Repeat("    ", n.Depth) + label + ":" + strings.Repeat(" ", max(1, 28-4*n.Depth-len(label))) + amount
}

// amount formats fund in the currency fixed by the path, if any.
func (r renderer) amount(n Node, fund decimal.Decimal) string {
	if r.spec.Gather == GatherCount {
		return fund.String()
	}
	code := r.spec.EquivalentCurrency
	for _, k := range n.Path {
		if k.Level == LevelCurrency {
			code = k.Currency
		}
	}
	return FormatAmount(fund, code, r.style == StyleIndented)
}

// FormatAmount renders fund with the minor-unit digits of currency. With
// symbol set the currency's own template is used. Unknown currencies fall
// back to the plain decimal.
func FormatAmount(fund decimal.Decimal, currency string, symbol bool) string {
	cur := money.GetCurrency(currency)
	if currency == "" || cur == nil {
		return fund.String()
	}
	if !symbol {
		return fund.StringFixed(int32(cur.Fraction))
	}
	minor := fund.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}
