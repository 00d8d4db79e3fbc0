package progress

import (
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// yearPrefixLen is the width of the year label at the start of an output name.
const yearPrefixLen = 4

// Inventory is the year evidence found in one output directory.
//
// Each evidence file maps to exactly one year; several files may share a year.
// An Inventory is derived per request and never persisted.
type Inventory struct {
	counts map[int]int
	total  int
}

// NewInventory builds an Inventory from directory entry names.
//
// A name counts as evidence when it starts with four ASCII digits followed by
// separator and, if include is non-empty, matches the include glob. Names that
// do not qualify are ignored.
func NewInventory(names []string, separator, include string) Inventory {
	inv := Inventory{counts: make(map[int]int)}
	for _, name := range names {
		year, ok := parseYearPrefix(name, separator)
		if !ok {
			continue
		}
		if include != "" {
			matched, err := doublestar.Match(include, name)
			if err != nil || !matched {
				continue
			}
		}
		inv.counts[year]++
		inv.total++
	}
	return inv
}

func parseYearPrefix(name, separator string) (int, bool) {
	if len(name) < yearPrefixLen+len(separator) {
		return 0, false
	}
	prefix := name[:yearPrefixLen]
	for i := 0; i < len(prefix); i++ {
		if prefix[i] < '0' || prefix[i] > '9' {
			return 0, false
		}
	}
	if !strings.HasPrefix(name[yearPrefixLen:], separator) {
		return 0, false
	}
	year, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, false
	}
	return year, true
}

// Count returns the total number of evidence files.
func (inv Inventory) Count() int {
	return inv.total
}

// CountFor returns the number of evidence files labeled with year.
func (inv Inventory) CountFor(year int) int {
	return inv.counts[year]
}

// Years returns the distinct years present, ascending.
func (inv Inventory) Years() []int {
	years := make([]int, 0, len(inv.counts))
	for y := range inv.counts {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Empty reports whether no evidence was found.
func (inv Inventory) Empty() bool {
	return inv.total == 0
}
