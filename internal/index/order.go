package index

import (
	"sort"

	"github.com/git-pkgs/gemindex/internal/gemver"
)

// Ordering is the derived display state of a record.
type Ordering struct {
	Position int
	Latest   bool
}

// Order computes the ordering of one package's records. The result is
// index-aligned with records.
//
// Position is the dense rank of the record's version among all distinct
// versions of the package, yanked ones included, highest first. Latest is
// set on the highest indexed release of each platform.
func Order(records []*Record) []Ordering {
	out := make([]Ordering, len(records))

	numbers := make([]string, 0, len(records))
	for _, r := range records {
		numbers = append(numbers, r.Number)
	}
	sort.SliceStable(numbers, func(i, j int) bool {
		return gemver.Compare(numbers[i], numbers[j]) > 0
	})
	var distinct []string
	for _, n := range numbers {
		if len(distinct) == 0 || gemver.Compare(distinct[len(distinct)-1], n) != 0 {
			distinct = append(distinct, n)
		}
	}

	latest := make(map[string]int)
	for i, r := range records {
		out[i].Position = sort.Search(len(distinct), func(k int) bool {
			return gemver.Compare(distinct[k], r.Number) <= 0
		})

		if !r.Indexed || r.Prerelease {
			continue
		}
		best, ok := latest[r.Platform]
		if !ok || gemver.Compare(r.Number, records[best].Number) > 0 {
			latest[r.Platform] = i
		}
	}
	for _, i := range latest {
		out[i].Latest = true
	}
	return out
}

func applyOrder(records []*Record) {
	for i, o := range Order(records) {
		records[i].Position = o.Position
		records[i].Latest = o.Latest
	}
}
