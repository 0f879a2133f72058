package subtotal

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// KEY - The dimension value a group was formed on
// =============================================================================

// Key identifies a group: Level says which field is meaningful.
type Key struct {
	Level    Level
	Title    int
	SubTitle int
	Content  string
	Remark   string
	Currency string
	User     string
	Date     *generic.Date
}

// KeyOf maps a record onto level l. Date levels bucket the record's date.
func KeyOf(b ledger.Balance, l Level) Key {
	k := Key{Level: l}
	switch {
	case l == LevelTitle:
		k.Title = b.Title
	case l == LevelSubTitle:
		k.SubTitle = b.SubTitle
	case l == LevelContent:
		k.Content = b.Content
	case l == LevelRemark:
		k.Remark = b.Remark
	case l == LevelCurrency:
		k.Currency = b.Currency
	case l == LevelUser:
		k.User = b.User
	case l.IsDate():
		if b.Date != nil {
			d := l.Bucket(*b.Date)
			k.Date = &d
		}
	}
	return k
}

// Label renders the key's value.
func (k Key) Label() string {
	switch {
	case k.Level == 0:
		return ""
	case k.Level == LevelTitle:
		return strconv.Itoa(k.Title)
	case k.Level == LevelSubTitle:
		if k.SubTitle == 0 {
			return "-"
		}
		return strconv.Itoa(k.SubTitle)
	case k.Level == LevelContent:
		return orDash(k.Content)
	case k.Level == LevelRemark:
		return orDash(k.Remark)
	case k.Level == LevelCurrency:
		return k.Currency
	case k.Level == LevelUser:
		return k.User
	case k.Level.IsDate():
		if k.Date == nil {
			return "[null]"
		}
		return k.Date.String()
	}
	return ""
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// compareKeys orders keys of the same level ascending: numerically,
// lexicographically or chronologically with undated first.
func compareKeys(a, b Key) int {
	switch {
	case a.Level == LevelTitle:
		return compareInts(a.Title, b.Title)
	case a.Level == LevelSubTitle:
		return compareInts(a.SubTitle, b.SubTitle)
	case a.Level.IsDate():
		return generic.CompareDates(a.Date, b.Date)
	case a.Level == LevelContent:
		return strings.Compare(a.Content, b.Content)
	case a.Level == LevelRemark:
		return strings.Compare(a.Remark, b.Remark)
	case a.Level == LevelCurrency:
		return strings.Compare(a.Currency, b.Currency)
	case a.Level == LevelUser:
		return strings.Compare(a.User, b.User)
	}
	return 0
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// groupKey is a comparable form of Key used as a map key.
type groupKey struct {
	level Level
	title int
	sub   int
	str   string
	date  string
}

func (k Key) comparable() groupKey {
	g := groupKey{level: k.Level, title: k.Title, sub: k.SubTitle}
	g.str = k.Content + "\x00" + k.Remark + "\x00" + k.Currency + "\x00" + k.User
	if k.Date != nil {
		g.date = k.Date.String()
	}
	return g
}

// =============================================================================
// FOLDER - Callbacks that give a traversal its meaning
// =============================================================================

// Node describes where a callback is in the tree. The root has Depth 0 and
// an empty Path; Key.Level is 0 there.
type Node struct {
	Key   Key
	Path  []Key
	Depth int
}

// Folder turns groups into values of type T.
type Folder[T any] struct {
	// Map assigns a record to a group on a level. Nil means KeyOf.
	Map func(b ledger.Balance, l Level) Key

	// Leaf folds a group with no levels left, without aggregation.
	Leaf func(n Node, fund decimal.Decimal) T

	// Reduce folds the children of a group with levels left.
	Reduce func(n Node, children []T, fund decimal.Decimal) T

	// MapAggr folds one time bucket of a running total.
	MapAggr func(n Node, balance decimal.Decimal) T

	// ReduceAggr folds the buckets of a running total; balance is the last one.
	ReduceAggr func(n Node, buckets []T, balance decimal.Decimal) T
}

// =============================================================================
// TRAVERSE
// =============================================================================

// Traverse groups records per spec and folds the groups with f, children
// before parents, keys ascending. The input is never modified.
func Traverse[T any](spec Spec, records []ledger.Balance, f Folder[T]) (T, error) {
	var zero T
	if err := spec.Validate(); err != nil {
		return zero, err
	}
	if f.Map == nil {
		f.Map = KeyOf
	}
	t := &traverser[T]{spec: spec, f: f}
	res, _, _ := t.visit(Node{}, records, true)
	return res, nil
}

type traverser[T any] struct {
	spec Spec
	f    Folder[T]
}

// visit returns the folded group, its measure, and whether it survives
// pruning.
func (t *traverser[T]) visit(n Node, records []ledger.Balance, root bool) (T, decimal.Decimal, bool) {
	if n.Depth == len(t.spec.Levels) {
		if t.spec.Aggr != AggrNone {
			return t.aggregate(n, records, root)
		}
		m := t.measure(records)
		return t.f.Leaf(n, m), m, root || t.keep(m)
	}

	level := t.spec.Levels[n.Depth]
	groups, keys := t.partition(records, level)

	var children []T
	total := decimal.Zero
	for _, k := range keys {
		child := Node{Key: k, Path: appendPath(n.Path, k), Depth: n.Depth + 1}
		res, m, ok := t.visit(child, groups[k.comparable()], false)
		if !ok {
			continue
		}
		children = append(children, res)
		total = total.Add(m)
	}
	return t.f.Reduce(n, children, total), total, root || t.keep(total)
}

func (t *traverser[T]) keep(m decimal.Decimal) bool {
	return t.spec.Gather != GatherNonZero || !m.IsZero()
}

func (t *traverser[T]) measure(records []ledger.Balance) decimal.Decimal {
	if t.spec.Gather == GatherCount {
		return decimal.NewFromInt(int64(len(records)))
	}
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(r.Fund)
	}
	return sum
}

func (t *traverser[T]) partition(records []ledger.Balance, level Level) (map[groupKey][]ledger.Balance, []Key) {
	groups := map[groupKey][]ledger.Balance{}
	var keys []Key
	for _, r := range records {
		k := t.f.Map(r, level)
		ck := k.comparable()
		if _, ok := groups[ck]; !ok {
			keys = append(keys, k)
		}
		groups[ck] = append(groups[ck], r)
	}
	sort.SliceStable(keys, func(i, j int) bool { return compareKeys(keys[i], keys[j]) < 0 })
	return groups, keys
}

// aggregate folds records into a running total per interval bucket.
func (t *traverser[T]) aggregate(n Node, records []ledger.Balance, root bool) (T, decimal.Decimal, bool) {
	interval := t.spec.Interval()
	rng := t.spec.EveryDayRange

	running := decimal.Zero
	sums := map[string]decimal.Decimal{}
	var buckets []generic.Date
	for _, r := range records {
		switch {
		case r.Date == nil, rng.Start != nil && r.Date.Before(*rng.Start):
			running = running.Add(r.Fund)
		case rng.End != nil && r.Date.After(*rng.End):
		default:
			b := interval.Bucket(*r.Date)
			if _, ok := sums[b.String()]; !ok {
				buckets = append(buckets, b)
			}
			sums[b.String()] = sums[b.String()].Add(r.Fund)
		}
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Before(buckets[j]) })

	var steps []generic.Date
	switch t.spec.Aggr {
	case AggrChangedDay:
		steps = buckets
	case AggrEveryDay:
		steps = everyStep(interval, rng, buckets)
	}

	var out []T
	for _, b := range steps {
		running = running.Add(sums[b.String()])
		d := b
		k := Key{Level: interval, Date: &d}
		child := Node{Key: k, Path: appendPath(n.Path, k), Depth: n.Depth + 1}
		out = append(out, t.f.MapAggr(child, running))
	}
	return t.f.ReduceAggr(n, out, running), running, root || t.keep(running)
}

// everyStep lists every bucket from the range start (or first bucket) to
// the range end (or last bucket).
func everyStep(interval Level, rng generic.DateFilter, buckets []generic.Date) []generic.Date {
	var from, to generic.Date
	switch {
	case rng.Start != nil:
		from = interval.Bucket(*rng.Start)
	case len(buckets) > 0:
		from = buckets[0]
	default:
		return nil
	}
	switch {
	case rng.End != nil:
		to = interval.Bucket(*rng.End)
	case len(buckets) > 0:
		to = buckets[len(buckets)-1]
	default:
		to = from
	}

	var out []generic.Date
	for d := from; !d.After(to); d = interval.Next(d) {
		out = append(out, d)
	}
	return out
}

func appendPath(path []Key, k Key) []Key {
	out := make([]Key, len(path), len(path)+1)
	copy(out, path)
	return append(out, k)
}
