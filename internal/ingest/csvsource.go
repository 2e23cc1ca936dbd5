package ingest

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// decodeReader wraps r with a charset decoder when the export is not UTF-8.
// PR-TIMES exports are frequently Shift_JIS.
func decodeReader(r io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: unknown charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}

// csvCopySource streams CSV rows straight into the COPY protocol without
// materializing the file. It implements pgx.CopyFromSource.
type csvCopySource struct {
	reader       *csv.Reader
	nullSentinel string
	row          []any
	err          error
	count        int64
	skippedHead  bool
}

func newCSVCopySource(r io.Reader, nullSentinel string) *csvCopySource {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // allow ragged rows; padded/truncated to the fixed order
	cr.LazyQuotes = true
	return &csvCopySource{reader: cr, nullSentinel: nullSentinel}
}

func (s *csvCopySource) Next() bool {
	for {
		record, err := s.reader.Read()
		if err == io.EOF {
			return false
		}
		if err != nil {
			s.err = eris.Wrap(err, "ingest: read csv row")
			return false
		}
		if !s.skippedHead {
			s.skippedHead = true
			continue
		}

		row := make([]any, len(CSVColumns))
		for i := range CSVColumns {
			var v string
			if i < len(record) {
				v = strings.TrimSpace(record[i])
			}
			if v == "" || v == s.nullSentinel {
				row[i] = nil
			} else {
				row[i] = v
			}
		}
		s.row = row
		s.count++
		return true
	}
}

func (s *csvCopySource) Values() ([]any, error) {
	return s.row, nil
}

func (s *csvCopySource) Err() error {
	return s.err
}

// Count returns the number of data rows produced so far.
func (s *csvCopySource) Count() int64 {
	return s.count
}
