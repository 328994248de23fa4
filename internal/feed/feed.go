// Package feed reads MVRV Z-Score readings from CSV files.
//
// Accepted layout is date,mvrv_z[,price] with an optional header row. Dates are
// RFC 3339 or YYYY-MM-DD; an empty date is allowed. Rows are returned in file order.
package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/mvrvdca/internal/models"
)

// ErrMalformedRow is returned for rows that cannot be parsed into a reading.
var ErrMalformedRow = errors.New("malformed feed row")

// Row is one data row of a feed. Err is set, wrapping ErrMalformedRow, when the
// row could not be turned into a valid reading.
type Row struct {
	Line    int
	Reading models.Reading
	Err     error
}

// ReadFile opens path and parses it with Read.
func ReadFile(path string) ([]models.Reading, error) {
	var readings []models.Reading
	err := withFile(path, func(r io.Reader) (err error) {
		readings, err = Read(r)
		return err
	})
	return readings, err
}

// ReadFileRows opens path and parses it with ReadRows.
func ReadFileRows(path string) ([]Row, error) {
	var rows []Row
	err := withFile(path, func(r io.Reader) (err error) {
		rows, err = ReadRows(r)
		return err
	})
	return rows, err
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open feed: %w", err)
	}
	defer f.Close()

	if err := fn(f); err != nil {
		return fmt.Errorf("failed to read feed %s: %w", path, err)
	}
	return nil
}

// Read parses every row from r and fails on the first malformed one.
func Read(r io.Reader) ([]models.Reading, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return nil, err
	}
	readings := make([]models.Reading, 0, len(rows))
	for _, row := range rows {
		if row.Err != nil {
			return nil, row.Err
		}
		readings = append(readings, row.Reading)
	}
	return readings, nil
}

// ReadRows parses every data row from r. Malformed rows are returned with Err set
// and do not stop the scan; only read failures of r itself are returned as errors.
func ReadRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var rows []Row
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			rows = append(rows, Row{Line: line, Err: fmt.Errorf("%w: row %d: %v", ErrMalformedRow, line, parseErr.Err)})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}

		if line == 1 && isHeader(record) {
			continue
		}

		reading, err := parseRecord(record)
		if err != nil {
			rows = append(rows, Row{Line: line, Err: fmt.Errorf("%w: row %d: %v", ErrMalformedRow, line, err)})
			continue
		}
		rows = append(rows, Row{Line: line, Reading: reading})
	}

	return rows, nil
}

func isHeader(record []string) bool {
	if len(record) < 2 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	return err != nil
}

func parseRecord(record []string) (models.Reading, error) {
	if len(record) < 2 || len(record) > 3 {
		return models.Reading{}, fmt.Errorf("expected 2 or 3 fields, got %d", len(record))
	}

	var reading models.Reading

	if ts := strings.TrimSpace(record[0]); ts != "" {
		t, err := parseDate(ts)
		if err != nil {
			return models.Reading{}, err
		}
		reading.ObservedAt = t
	}

	z, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return models.Reading{}, fmt.Errorf("invalid z-score %q", record[1])
	}
	reading.Z = z

	if len(record) == 3 {
		if p := strings.TrimSpace(record[2]); p != "" {
			price, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return models.Reading{}, fmt.Errorf("invalid price %q", record[2])
			}
			reading.Price = price
		}
	}

	if err := reading.Validate(); err != nil {
		return models.Reading{}, err
	}
	return reading, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
