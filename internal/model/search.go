package model

import "time"

// Provenance values reported in the _cache field of a search response.
const (
	CacheHit      = "hit"      // served from the in-memory snapshot
	CacheMiss     = "miss"     // served live by the full-text engine
	CacheFallback = "fallback" // served by the direct database query
)

// Search method names reported in the _searchMethod field.
const (
	MethodMeilisearch = "meilisearch"
	MethodMemoryCache = "memory-cache"
	MethodDatabase    = "database"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	exportPageSize  = 10000
)

// SearchFilter is the structured query accepted by the search orchestrator.
// Multi-valued dimensions are OR within the list, AND across dimensions.
type SearchFilter struct {
	CompanyName        string   `json:"companyName,omitempty"`
	Industries         []string `json:"industry,omitempty"`
	PressReleaseTypes  []string `json:"pressReleaseType,omitempty"`
	ListingStatuses    []string `json:"listingStatus,omitempty"`
	CapitalMin         *int64   `json:"capitalMin,omitempty"`
	CapitalMax         *int64   `json:"capitalMax,omitempty"`
	EstablishedYearMin *int     `json:"establishedYearMin,omitempty"`
	EstablishedYearMax *int     `json:"establishedYearMax,omitempty"`
	DeliveryDateFrom   string   `json:"deliveryDateFrom,omitempty"` // YYYY-MM-DD
	DeliveryDateTo     string   `json:"deliveryDateTo,omitempty"`   // YYYY-MM-DD
	Page               int      `json:"page,omitempty"`
	Limit              int      `json:"limit,omitempty"`
	ExportAll          bool     `json:"exportAll,omitempty"`
	TableOnly          bool     `json:"tableOnly,omitempty"`
	CountOnly          bool     `json:"countOnly,omitempty"`
}

// Normalize clamps pagination to sane bounds and returns the effective
// page and limit. ExportAll widens the limit instead of disabling paging so
// every path can share one code shape.
func (f *SearchFilter) Normalize() (page, limit int) {
	page = f.Page
	if page < 1 {
		page = 1
	}
	limit = f.Limit
	switch {
	case f.ExportAll:
		limit = exportPageSize
	case limit < 1:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	return page, limit
}

// DeliveryRange parses the delivery-date bounds. The "to" bound is inclusive
// of the whole day. Unparseable values are treated as absent.
func (f *SearchFilter) DeliveryRange() (from, to *time.Time) {
	if t, err := time.Parse("2006-01-02", f.DeliveryDateFrom); err == nil {
		from = &t
	}
	if t, err := time.Parse("2006-01-02", f.DeliveryDateTo); err == nil {
		end := t.Add(24*time.Hour - time.Nanosecond)
		to = &end
	}
	return from, to
}

// Pagination describes the page window of a search response.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalCount  int  `json:"totalCount"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// NewPagination computes the page window for a total result count.
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalCount:  total,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1 && total > 0,
	}
}

// SearchResult is the envelope returned by every search path. The three
// paths differ only in the provenance fields.
type SearchResult struct {
	Companies      []CompanyRelease `json:"companies"`
	Pagination     Pagination       `json:"pagination"`
	ResponseTimeMS int64            `json:"_responseTime"`
	Cache          string           `json:"_cache"`
	SearchMethod   string           `json:"_searchMethod"`
	RawCount       int              `json:"_rawCount,omitempty"` // pre-dedup count where available
	Error          string           `json:"error,omitempty"`
}
