// Package search ranks and orders catalog items.
package search

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/FairForge/metavault/internal/catalog"
	"github.com/FairForge/metavault/internal/sidecar"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Threshold is the worst score a result may have
const Threshold = 0.25

const (
	nameWeight = 1.0
	tagsWeight = 0.9
	// substring matches lose this much per character of offset
	offsetPenalty = 0.01
)

// Result is a matched item; Score is in [0,1] with 0 a perfect match.
type Result struct {
	Item  catalog.Item
	Score float64
}

// Search matches query against asset names and tags, case-insensitively.
// Results below Threshold are returned best first; ties keep input order.
func Search(items []catalog.Item, query string) []Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	var results []Result
	for _, it := range items {
		score := itemScore(it, query)
		if score < Threshold {
			results = append(results, Result{Item: it, Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score < results[j].Score })
	return results
}

// Items unwraps results
func Items(results []Result) []catalog.Item {
	out := make([]catalog.Item, 0, len(results))
	for _, r := range results {
		out = append(out, r.Item)
	}
	return out
}

// itemScore multiplies weighted key scores over the keys that matched.
// An item matching no key scores 1.
func itemScore(it catalog.Item, query string) float64 {
	total := 1.0
	matched := false

	if s := fieldScore(it.Entry.Name, query); s < 1 {
		total *= math.Pow(s, nameWeight)
		matched = true
	}

	best := 1.0
	for _, tag := range it.Record.Tags() {
		best = math.Min(best, fieldScore(tag, query))
	}
	if best < 1 {
		total *= math.Pow(best, tagsWeight)
		matched = true
	}

	if !matched {
		return 1
	}
	return total
}

// fieldScore is 0 for an exact match, grows with the offset of a substring
// match and with the edit distance of an in-order character match, and is 1
// for no match.
func fieldScore(value, query string) float64 {
	v := strings.ToLower(value)
	q := strings.ToLower(query)

	if v == q {
		return 0
	}
	if i := strings.Index(v, q); i >= 0 {
		offset := utf8.RuneCountInString(v[:i])
		return math.Min(0.99, offsetPenalty*float64(offset+1))
	}

	d := fuzzy.RankMatchNormalizedFold(query, value)
	if d < 0 {
		return 1
	}
	n := utf8.RuneCountInString(value)
	if n == 0 {
		return 1
	}
	return math.Min(1, float64(d)/float64(n))
}

// By is a sort key
type By string

const (
	BySize         By = "size"
	ByName         By = "name"
	ByLastModified By = "lastModified"
)

// Order is a sort direction
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// ParseBy validates a sort key
func ParseBy(s string) (By, error) {
	switch By(s) {
	case BySize, ByName, ByLastModified:
		return By(s), nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// ParseOrder validates a sort direction; "" is ascending
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(s)) {
	case "", Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// Sort orders items in place by the indexed sidecar value of by. Items
// without the value sort first ascending and last descending. The sort is
// stable.
func Sort(items []catalog.Item, by By, order Order) {
	sort.SliceStable(items, func(i, j int) bool {
		a, aok := sortKey(items[i], by)
		b, bok := sortKey(items[j], by)

		switch {
		case !aok && !bok:
			return false
		case !aok:
			return order != Desc
		case !bok:
			return order == Desc
		}

		c := compare(a, b)
		if order == Desc {
			return c > 0
		}
		return c < 0
	})
}

// sortKey returns an int64 or a string
func sortKey(it catalog.Item, by By) (any, bool) {
	switch by {
	case ByName:
		if name := it.Record.String(sidecar.FieldName); name != "" {
			return name, true
		}
		return it.Entry.Name, it.Entry.Name != ""
	case BySize:
		return it.Record.Int64(sidecar.FieldSize)
	case ByLastModified:
		return it.Record.Int64(sidecar.FieldLastModified)
	}
	return nil, false
}

func compare(a, b any) int {
	switch av := a.(type) {
	case int64:
		bv := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}
