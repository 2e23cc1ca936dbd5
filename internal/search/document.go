package search

import (
	"github.com/sells-group/press-directory/internal/model"
	"github.com/sells-group/press-directory/internal/snapshot"
)

// Document is the engine's denormalized view of one canonical company. The
// canonical_key field carries the deduplication contract: the index's
// distinct attribute must point at it so engine results merge on the same
// identity as the snapshot and database paths.
type Document struct {
	model.CompanyRelease
	CanonicalKey      string   `json:"canonical_key"`
	DeliveredAtUnix   int64    `json:"delivered_at_unix"`
	PressReleaseTypes []string `json:"press_release_types,omitempty"`
	CapitalBracket    string   `json:"capital_bracket"`
}

// newDocument denormalizes a canonical company for the engine index.
func newDocument(c model.CompanyRelease, key string) Document {
	var types []string
	if c.PressReleaseType1 != "" {
		types = append(types, c.PressReleaseType1)
	}
	if c.PressReleaseType2 != "" && c.PressReleaseType2 != c.PressReleaseType1 {
		types = append(types, c.PressReleaseType2)
	}
	return Document{
		CompanyRelease:    c,
		CanonicalKey:      key,
		DeliveredAtUnix:   c.DeliveredAt.Unix(),
		PressReleaseTypes: types,
		CapitalBracket:    snapshot.CapitalBracket(c.CapitalAmount),
	}
}
