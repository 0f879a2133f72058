/*
Package subtotal groups a flat stream of ledger.Balance records into a
hierarchy of subtotals.

PURPOSE:
  A Spec names the grouping dimensions in nesting order (account, content,
  currency, user, calendar buckets ...), how to measure a group (sum of
  amounts, or record count) and whether the innermost group reports a
  running balance over time instead of a plain sum.

  One traversal (Traverse) drives every consumer through callbacks, so the
  value tree (Build) and the textual reports (Render) always agree on
  totals.

LEVELS:
  Level is a bitset. Every calendar level carries the Day bit, so
  "is this a date level" is a single bit test; Week, Month and Year add
  one more bit each to tell the granularity apart.

    Title     1      Day    64
    SubTitle  2      Week   64|128
    Content   4      Month  64|256
    Remark    8      Year   64|512
    Currency  16
    User      32

AGGREGATION:
  With Aggr set, the innermost group is bucketed by AggrInterval and a
  running total is carried across buckets inside EveryDayRange. Records
  dated before the range (and undated ones) form the opening balance,
  records after it are ignored. The group's value is the last running
  total: a balance, not a flow.

CURRENCY:
  EquivalentDate asks for amounts converted into one currency. Fetch does
  that through exchange.Equalize; Traverse and Build never convert.

SEE ALSO:
  - traverse.go: the generic fold
  - result.go: Build and the Result sum type
  - render.go: indented and terse reports
  - fetch.go: reading legs from a store, with currency equivalence
*/
package subtotal

import (
	"fmt"
	"strings"

	"github.com/warp/ledger-engine/generic"
)

// =============================================================================
// LEVEL
// =============================================================================

type Level int

const (
	LevelTitle Level = 1 << iota
	LevelSubTitle
	LevelContent
	LevelRemark
	LevelCurrency
	LevelUser
	LevelDay
	levelWeekBit
	levelMonthBit
	levelYearBit
)

const (
	LevelWeek  = LevelDay | levelWeekBit
	LevelMonth = LevelDay | levelMonthBit
	LevelYear  = LevelDay | levelYearBit
)

var levelNames = []struct {
	level Level
	name  string
}{
	{LevelTitle, "title"},
	{LevelSubTitle, "subtitle"},
	{LevelContent, "content"},
	{LevelRemark, "remark"},
	{LevelCurrency, "currency"},
	{LevelUser, "user"},
	{LevelDay, "day"},
	{LevelWeek, "week"},
	{LevelMonth, "month"},
	{LevelYear, "year"},
}

// IsDate reports whether l buckets by calendar.
func (l Level) IsDate() bool { return l&LevelDay != 0 }

func (l Level) String() string {
	for _, n := range levelNames {
		if n.level == l {
			return n.name
		}
	}
	if l == 0 {
		return "root"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, n := range levelNames {
		if n.name == s {
			return n.level, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown level %q", generic.ErrMalformedSubtotal, s)
}

// Bucket truncates d to the start of its l-period. Non-date levels and
// Day return d unchanged.
func (l Level) Bucket(d generic.Date) generic.Date {
	switch l {
	case LevelWeek:
		return d.StartOfWeek()
	case LevelMonth:
		return d.StartOfMonth()
	case LevelYear:
		return d.StartOfYear()
	}
	return d
}

// Next returns the start of the period following bucket d.
func (l Level) Next(d generic.Date) generic.Date {
	switch l {
	case LevelWeek:
		return d.AddDays(7)
	case LevelMonth:
		return d.AddMonths(1)
	case LevelYear:
		return d.AddYears(1)
	}
	return d.AddDays(1)
}

// =============================================================================
// GATHER & AGGREGATION
// =============================================================================

type Gather int

const (
	// GatherNonZero sums amounts and prunes groups that sum to zero.
	GatherNonZero Gather = iota
	// GatherZero sums amounts and keeps every group.
	GatherZero
	// GatherCount counts records.
	GatherCount
)

var gatherNames = map[Gather]string{GatherNonZero: "nonzero", GatherZero: "zero", GatherCount: "count"}

func (g Gather) String() string { return gatherNames[g] }

func ParseGather(s string) (Gather, error) {
	if s == "" {
		return GatherNonZero, nil
	}
	for g, name := range gatherNames {
		if name == s {
			return g, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown gather %q", generic.ErrMalformedSubtotal, s)
}

type Aggr int

const (
	AggrNone Aggr = iota
	AggrChangedDay
	AggrEveryDay
)

var aggrNames = map[Aggr]string{AggrNone: "none", AggrChangedDay: "changed", AggrEveryDay: "every"}

func (a Aggr) String() string { return aggrNames[a] }

func ParseAggr(s string) (Aggr, error) {
	if s == "" {
		return AggrNone, nil
	}
	for a, name := range aggrNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown aggregation %q", generic.ErrMalformedSubtotal, s)
}

// =============================================================================
// SPEC
// =============================================================================

type Spec struct {
	Gather Gather
	Levels []Level
	Aggr   Aggr

	// AggrInterval is the bucket size of running totals; zero means Day.
	AggrInterval  Level
	EveryDayRange generic.DateFilter

	// EquivalentDate, when set, means amounts were converted into
	// EquivalentCurrency at that date before traversal.
	EquivalentDate     *generic.Date
	EquivalentCurrency string
}

// Interval returns the aggregation bucket size.
func (s Spec) Interval() Level {
	if s.AggrInterval == 0 {
		return LevelDay
	}
	return s.AggrInterval
}

func (s Spec) Validate() error {
	for _, l := range s.Levels {
		if _, err := ParseLevel(l.String()); err != nil {
			return err
		}
		if s.Aggr != AggrNone && l.IsDate() {
			return fmt.Errorf("%w: date level %s together with running totals", generic.ErrMalformedSubtotal, l)
		}
	}
	if s.Aggr != AggrNone {
		if !s.Interval().IsDate() {
			return fmt.Errorf("%w: aggregation interval %s is not a date level", generic.ErrMalformedSubtotal, s.Interval())
		}
		if s.Gather == GatherCount {
			return fmt.Errorf("%w: counting cannot produce running totals", generic.ErrMalformedSubtotal)
		}
	}
	if _, ok := gatherNames[s.Gather]; !ok {
		return fmt.Errorf("%w: unknown gather %d", generic.ErrMalformedSubtotal, int(s.Gather))
	}
	if _, ok := aggrNames[s.Aggr]; !ok {
		return fmt.Errorf("%w: unknown aggregation %d", generic.ErrMalformedSubtotal, int(s.Aggr))
	}
	return nil
}
