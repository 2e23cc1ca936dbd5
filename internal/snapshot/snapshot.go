// Package snapshot builds and owns the deduplicated in-memory view of the
// company dataset used by the search fast path.
package snapshot

import (
	"sort"
	"time"

	"github.com/sells-group/press-directory/internal/canonical"
	"github.com/sells-group/press-directory/internal/model"
)

// Capital brackets discretize the capital amount (ten-thousand-yen units)
// for fast multi-valued filtering.
const (
	BracketUnknown   = "unknown"
	BracketUnder10M  = "under_10m"
	Bracket10Mto50M  = "10m_to_50m"
	Bracket50Mto100M = "50m_to_100m"
	Bracket100Mto1B  = "100m_to_1b"
	BracketOver1B    = "over_1b"
)

// CapitalBracket maps a capital amount to its bracket label.
func CapitalBracket(amount *int64) string {
	if amount == nil {
		return BracketUnknown
	}
	switch v := *amount; {
	case v < 1000:
		return BracketUnder10M
	case v < 5000:
		return Bracket10Mto50M
	case v < 10000:
		return Bracket50Mto100M
	case v < 100000:
		return Bracket100Mto1B
	default:
		return BracketOver1B
	}
}

// Snapshot is the full deduplicated dataset at a point in time. It is
// replaced wholesale on rebuild and never mutated afterwards; index values
// are positions into Companies.
type Snapshot struct {
	Companies []model.CompanyRelease
	Keys      []string // canonical key per company, parallel to Companies

	ByIndustry       map[string][]int
	ByCapitalBracket map[string][]int
	ByListingStatus  map[string][]int
	ByReleaseType    map[string][]int

	RawCount        int // pre-dedup row count
	DomainFallbacks int // rows whose website could not be parsed into a domain
	BuiltAt         time.Time
}

// BuildFromReleases deduplicates rows by canonical key, keeping the record
// with the latest delivery timestamp (ties broken by higher id), and builds
// the secondary indices. Pure: same input always yields the same snapshot.
func BuildFromReleases(rows []model.CompanyRelease) *Snapshot {
	best := make(map[string]model.CompanyRelease, len(rows))
	fallbacks := 0

	for _, row := range rows {
		if row.HasUsableWebsite() && canonical.ExtractDomain(row.Website()) == "" {
			fallbacks++
		}
		key := canonical.Key(row.Website(), row.CompanyName, row.ID)

		cur, ok := best[key]
		if !ok || row.DeliveredAt.After(cur.DeliveredAt) ||
			(row.DeliveredAt.Equal(cur.DeliveredAt) && row.ID > cur.ID) {
			best[key] = row
		}
	}

	companies := make([]model.CompanyRelease, 0, len(best))
	for _, c := range best {
		companies = append(companies, c)
	}
	sort.Slice(companies, func(i, j int) bool {
		if !companies[i].DeliveredAt.Equal(companies[j].DeliveredAt) {
			return companies[i].DeliveredAt.After(companies[j].DeliveredAt)
		}
		return companies[i].ID > companies[j].ID
	})

	s := &Snapshot{
		Companies:        companies,
		Keys:             make([]string, len(companies)),
		ByIndustry:       make(map[string][]int),
		ByCapitalBracket: make(map[string][]int),
		ByListingStatus:  make(map[string][]int),
		ByReleaseType:    make(map[string][]int),
		RawCount:         len(rows),
		DomainFallbacks:  fallbacks,
		BuiltAt:          time.Now().UTC(),
	}

	for i, c := range companies {
		s.Keys[i] = canonical.Key(c.Website(), c.CompanyName, c.ID)
		if c.Industry != "" {
			s.ByIndustry[c.Industry] = append(s.ByIndustry[c.Industry], i)
		}
		s.ByCapitalBracket[CapitalBracket(c.CapitalAmount)] = append(s.ByCapitalBracket[CapitalBracket(c.CapitalAmount)], i)
		if c.ListingStatus != "" {
			s.ByListingStatus[c.ListingStatus] = append(s.ByListingStatus[c.ListingStatus], i)
		}
		if c.PressReleaseType1 != "" {
			s.ByReleaseType[c.PressReleaseType1] = append(s.ByReleaseType[c.PressReleaseType1], i)
		}
		if c.PressReleaseType2 != "" && c.PressReleaseType2 != c.PressReleaseType1 {
			s.ByReleaseType[c.PressReleaseType2] = append(s.ByReleaseType[c.PressReleaseType2], i)
		}
	}

	return s
}

// Size returns the number of canonical companies.
func (s *Snapshot) Size() int {
	return len(s.Companies)
}
