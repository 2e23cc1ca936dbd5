package ingest

// CSVColumns is the fixed column order of the press-release export file.
// The staging relation mirrors it one-to-one as text columns; promotion maps
// a subset into company_releases (prefecture, market and employee_count are
// present in the export but not promoted).
var CSVColumns = []string{
	"delivered_at",
	"press_release_url",
	"press_release_title",
	"press_release_type1",
	"press_release_type2",
	"company_name",
	"company_website",
	"industry",
	"address",
	"prefecture",
	"phone",
	"representative",
	"listing_status",
	"market",
	"capital_text",
	"established_year",
	"established_month",
	"employee_count",
}

const stagingTable = "staging_company_releases"

const createStagingSQL = `CREATE TEMP TABLE ` + stagingTable + ` (
	delivered_at        TEXT,
	press_release_url   TEXT,
	press_release_title TEXT,
	press_release_type1 TEXT,
	press_release_type2 TEXT,
	company_name        TEXT,
	company_website     TEXT,
	industry            TEXT,
	address             TEXT,
	prefecture          TEXT,
	phone               TEXT,
	representative      TEXT,
	listing_status      TEXT,
	market              TEXT,
	capital_text        TEXT,
	established_year    TEXT,
	established_month   TEXT,
	employee_count      TEXT
) ON COMMIT DROP`

// promoteSQL moves validated staged rows into the durable store in one
// statement. Numeric fields are regex-guarded so a malformed value degrades
// to NULL instead of aborting the statement; rows without a company name are
// excluded entirely and show up only in the batch error count.
const promoteSQL = `INSERT INTO company_releases (
	delivered_at, press_release_url, press_release_title,
	press_release_type1, press_release_type2, company_name, company_website,
	industry, address, phone, representative, listing_status,
	capital_text, capital_amount, established_year, established_month, batch_id
)
SELECT
	CASE WHEN delivered_at ~ '^\d{4}-\d{2}-\d{2}([ T]\d{2}:\d{2}(:\d{2})?)?' THEN delivered_at::timestamptz ELSE now() END,
	LEFT(TRIM(press_release_url), 500),
	LEFT(TRIM(press_release_title), 500),
	LEFT(TRIM(press_release_type1), 100),
	LEFT(TRIM(press_release_type2), 100),
	LEFT(TRIM(company_name), 255),
	NULLIF(LEFT(TRIM(company_website), 500), ''),
	LEFT(TRIM(industry), 100),
	LEFT(TRIM(address), 500),
	LEFT(TRIM(phone), 50),
	LEFT(TRIM(representative), 100),
	LEFT(TRIM(listing_status), 50),
	LEFT(TRIM(capital_text), 100),
	CASE WHEN REGEXP_REPLACE(COALESCE(capital_text, ''), '[^0-9]', '', 'g') ~ '^[0-9]{1,12}$'
		THEN REGEXP_REPLACE(capital_text, '[^0-9]', '', 'g')::bigint END,
	CASE WHEN established_year ~ '^[0-9]{1,4}$' THEN established_year::int END,
	CASE WHEN established_month ~ '^[0-9]{1,2}$' THEN established_month::int END,
	$1
FROM ` + stagingTable + `
WHERE TRIM(COALESCE(company_name, '')) <> ''`
