// Package search serves filtered company queries through a layered fallback:
// full-text engine, then in-memory snapshot, then direct database query.
package search

import (
	"fmt"
	"strings"

	"github.com/sells-group/press-directory/internal/model"
	"github.com/sells-group/press-directory/internal/snapshot"
)

// filterEscaper escapes backslashes and quotes for Meilisearch string
// literals.
var filterEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quoteList renders a Meilisearch IN list of string literals.
func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + filterEscaper.Replace(v) + `"`
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// buildEngineFilter translates the structured filter into the engine's
// attribute-filter expression. The free-text company name travels as the
// query string, not as a filter clause.
func buildEngineFilter(f model.SearchFilter) string {
	var clauses []string

	if len(f.Industries) > 0 {
		clauses = append(clauses, "industry IN "+quoteList(f.Industries))
	}
	if len(f.PressReleaseTypes) > 0 {
		clauses = append(clauses, "press_release_types IN "+quoteList(f.PressReleaseTypes))
	}
	if len(f.ListingStatuses) > 0 {
		clauses = append(clauses, "listing_status IN "+quoteList(f.ListingStatuses))
	}
	if f.CapitalMin != nil {
		clauses = append(clauses, fmt.Sprintf("capital_amount >= %d", *f.CapitalMin))
	}
	if f.CapitalMax != nil {
		clauses = append(clauses, fmt.Sprintf("capital_amount <= %d", *f.CapitalMax))
	}
	if f.EstablishedYearMin != nil {
		clauses = append(clauses, fmt.Sprintf("established_year >= %d", *f.EstablishedYearMin))
	}
	if f.EstablishedYearMax != nil {
		clauses = append(clauses, fmt.Sprintf("established_year <= %d", *f.EstablishedYearMax))
	}
	if from, to := f.DeliveryRange(); from != nil || to != nil {
		if from != nil {
			clauses = append(clauses, fmt.Sprintf("delivered_at_unix >= %d", from.Unix()))
		}
		if to != nil {
			clauses = append(clauses, fmt.Sprintf("delivered_at_unix <= %d", to.Unix()))
		}
	}

	return strings.Join(clauses, " AND ")
}

// indexSet unions the posting lists of the requested values in one
// secondary index into a membership set.
func indexSet(index map[string][]int, values []string) map[int]struct{} {
	set := make(map[int]struct{})
	for _, v := range values {
		for _, i := range index[v] {
			set[i] = struct{}{}
		}
	}
	return set
}

// matchSnapshot evaluates the filter against the snapshot: union within a
// multi-valued dimension (via the secondary indices), intersection across
// dimensions, linear predicates for substrings and ranges. The returned
// positions preserve snapshot order (delivery date descending).
func matchSnapshot(s *snapshot.Snapshot, f model.SearchFilter) []int {
	var sets []map[int]struct{}
	if len(f.Industries) > 0 {
		sets = append(sets, indexSet(s.ByIndustry, f.Industries))
	}
	if len(f.PressReleaseTypes) > 0 {
		sets = append(sets, indexSet(s.ByReleaseType, f.PressReleaseTypes))
	}
	if len(f.ListingStatuses) > 0 {
		sets = append(sets, indexSet(s.ByListingStatus, f.ListingStatuses))
	}

	nameQuery := strings.ToLower(strings.TrimSpace(f.CompanyName))
	from, to := f.DeliveryRange()

	var matched []int
	for i := range s.Companies {
		inAll := true
		for _, set := range sets {
			if _, ok := set[i]; !ok {
				inAll = false
				break
			}
		}
		if !inAll {
			continue
		}

		c := &s.Companies[i]
		if nameQuery != "" && !strings.Contains(strings.ToLower(c.CompanyName), nameQuery) {
			continue
		}
		if f.CapitalMin != nil && (c.CapitalAmount == nil || *c.CapitalAmount < *f.CapitalMin) {
			continue
		}
		if f.CapitalMax != nil && (c.CapitalAmount == nil || *c.CapitalAmount > *f.CapitalMax) {
			continue
		}
		if f.EstablishedYearMin != nil && (c.EstablishedYear == nil || *c.EstablishedYear < *f.EstablishedYearMin) {
			continue
		}
		if f.EstablishedYearMax != nil && (c.EstablishedYear == nil || *c.EstablishedYear > *f.EstablishedYearMax) {
			continue
		}
		if from != nil && c.DeliveredAt.Before(*from) {
			continue
		}
		if to != nil && c.DeliveredAt.After(*to) {
			continue
		}

		matched = append(matched, i)
	}
	return matched
}
