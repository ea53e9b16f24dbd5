package reconcile

import (
	"fmt"
	"strings"
)

const (
	firstStaleYear = 2008
	lastStaleYear  = 2022
)

var staleYears = buildStaleYears()

var yearNormalizer = strings.NewReplacer(
	" ", "",
	"\u00e2\u20ac\u201c", "-", // UTF-8 en dash read as Windows-1252
	"\u00e2\u20ac\u2013", "-",
	"\u2013", "-",
)

func buildStaleYears() map[string]struct{} {
	set := map[string]struct{}{"2018-2020": {}}
	for y := firstStaleYear; y <= lastStaleYear; y++ {
		set[fmt.Sprintf("%d", y)] = struct{}{}
		if y == lastStaleYear {
			continue
		}
		next := y + 1
		set[fmt.Sprintf("%d-%d", y, next)] = struct{}{}
		set[fmt.Sprintf("%d/%d", y, next)] = struct{}{}
		set[fmt.Sprintf("%d-%02d", y, next%100)] = struct{}{}
		set[fmt.Sprintf("%d/%02d", y, next%100)] = struct{}{}
	}
	return set
}

// IsCurrentYear reports whether a page's self-reported year may describe the
// current program. Unknown years are current; only exact matches against the
// stale school years 2008 through 2022 are rejected.
func IsCurrentYear(year *string) bool {
	if year == nil {
		return true
	}
	_, stale := staleYears[yearNormalizer.Replace(*year)]
	return !stale
}
