// Package monthly appends downloaded CSV data into month-partitioned
// destination files (data/YYYY-MM.csv). Each destination gets exactly one
// header row, taken from the first source merged into it; later sources
// contribute only their data rows.
package monthly

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// HeaderPolicy controls what happens when a source's header differs from
// the destination's existing header.
type HeaderPolicy string

const (
	// HeaderLenient never compares headers. Mismatched sources are merged
	// anyway, producing a structurally inconsistent file. This is the
	// legacy behavior and the default.
	HeaderLenient HeaderPolicy = "lenient"
	// HeaderStrict rejects a merge whose header differs from the
	// destination's first row.
	HeaderStrict HeaderPolicy = "strict"
)

// ParseHeaderPolicy maps a config string to a HeaderPolicy, defaulting to
// lenient for anything unrecognized.
func ParseHeaderPolicy(s string) HeaderPolicy {
	if strings.EqualFold(s, string(HeaderStrict)) {
		return HeaderStrict
	}
	return HeaderLenient
}

// Aggregator owns the month-partitioned destination files under one
// directory. It assumes a single writer; runs must not overlap.
type Aggregator struct {
	dir    string
	policy HeaderPolicy
}

// New returns an Aggregator writing under dir.
func New(dir string, policy HeaderPolicy) *Aggregator {
	return &Aggregator{dir: dir, policy: policy}
}

// Path returns the destination file for a YYYY-MM partition key.
func (a *Aggregator) Path(ym string) string {
	return filepath.Join(a.dir, ym+".csv")
}

// Merge parses raw as CSV and appends its data rows (everything after the
// header) to the partition file for ym, creating the file with the source's
// header first if it does not exist yet. It returns the number of data rows
// appended. Undecodable byte sequences are dropped rather than failing the
// merge; rows with zero fields are skipped.
func (a *Aggregator) Merge(raw []byte, ym string) (int, error) {
	text := strings.ToValidUTF8(string(raw), "")

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	header := rows[0]
	var dataRows [][]string
	for _, row := range rows[1:] {
		if len(row) > 0 {
			dataRows = append(dataRows, row)
		}
	}

	dest := a.Path(ym)
	exists := true
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		exists = false
	}

	if exists && a.policy == HeaderStrict {
		existing, err := readHeader(dest)
		if err != nil {
			return 0, fmt.Errorf("read destination header: %w", err)
		}
		if !slices.Equal(existing, header) {
			return 0, fmt.Errorf("header mismatch for %s: destination %v, source %v", ym, existing, header)
		}
	}

	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(header); err != nil {
			return 0, err
		}
	}
	for _, row := range dataRows {
		if err := w.Write(row); err != nil {
			return 0, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}
	return len(dataRows), nil
}

// RemoveMonths deletes the destination files for the given partition keys,
// so rebuild runs start those months from scratch. Months not listed are
// untouched; already-missing files are fine. It returns the keys whose
// files were actually removed.
func (a *Aggregator) RemoveMonths(yms []string) ([]string, error) {
	var removed []string
	for _, ym := range yms {
		err := os.Remove(a.Path(ym))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("remove %s: %w", a.Path(ym), err)
		}
		removed = append(removed, ym)
	}
	return removed, nil
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.Read()
}
