// Package canonical derives the identity key used to merge duplicate company
// records: the registrable website domain, or a normalized legal-entity name
// when no usable website exists.
package canonical

import (
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// NoName is the sentinel returned by NormalizeName for blank input.
const NoName = "no-name"

// jpCorporateTokens are Japanese legal-entity markers that may appear as a
// prefix or suffix of a company name. They are unambiguous multi-character
// sequences, so they are removed wherever they occur.
var jpCorporateTokens = strings.NewReplacer(
	"株式会社", "",
	"有限会社", "",
	"合同会社", "",
	"合資会社", "",
	"合名会社", "",
	"一般社団法人", "",
	"(株)", "",
	"(有)", "",
)

// romanSuffixes are romanized legal-entity suffixes, stripped only at the end
// of a name. Longer variants come first so "co., ltd." wins over "ltd.".
var romanSuffixes = []string{
	" co., ltd.", " co.,ltd.", " co., ltd", " co.,ltd",
	" corporation", " incorporated", " limited",
	" k.k.", " k.k", " kk",
	" g.k.", " g.k", " gk",
	" inc.", " inc",
	" corp.", " corp",
	" ltd.", " ltd",
	" co.", " co",
	" llc",
}

// ExtractDomain returns the lower-cased hostname of a company website with a
// leading "www." stripped, or "" when the input is blank or unparseable. A
// schemeless value is parsed as https. Never panics.
func ExtractDomain(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	return host
}

// NormalizeName standardizes a company name for matching by folding
// full-width characters, lower-casing, removing legal-entity tokens, and
// stripping all whitespace. Blank or fully-stripped input maps to NoName.
func NormalizeName(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return NoName
	}

	s = width.Fold.String(s)
	s = strings.ToLower(s)
	s = jpCorporateTokens.Replace(s)

	s = strings.TrimRight(s, " .")
	for _, suffix := range romanSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	if s == "" {
		return NoName
	}
	return s
}

// Key derives the canonical identity of a record: website domain, then
// normalized name, then a record-scoped synthetic key. Pure and deterministic.
func Key(website, name string, id int64) string {
	if d := ExtractDomain(website); d != "" {
		return d
	}
	if n := NormalizeName(name); n != NoName {
		return n
	}
	return "fallback_" + strconv.FormatInt(id, 10)
}

// KeySQL returns a SQL expression approximating Key for promotion-time
// deduplication in the database fallback path. The fallback query only runs
// over rows with usable websites, so the domain branch carries the identity;
// the name branch is a coarse whitespace-stripped lowering.
func KeySQL(websiteCol, nameCol, idCol string) string {
	return `COALESCE(` +
		`NULLIF(SPLIT_PART(REGEXP_REPLACE(REGEXP_REPLACE(LOWER(TRIM(` + websiteCol + `)), '^https?://', ''), '^www\.', ''), '/', 1), ''), ` +
		`NULLIF(LOWER(REGEXP_REPLACE(` + nameCol + `, '\s', '', 'g')), ''), ` +
		`'fallback_' || ` + idCol + `)`
}
