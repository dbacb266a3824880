// Package csvio reads and writes the single-column drink history format:
//
//	drink_date
//	2024-06-01
//	2024-06-01
//	2024-06-03
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/civil"

	"drinkLogAPI/internal/drink"
)

const Header = "drink_date"

var ErrInvalidHeader = fmt.Errorf("invalid CSV header, must be '%s'", Header)

// LineError reports the first line that failed to parse.
type LineError struct {
	Line  int
	Value string
	Err   error
}

func (e *LineError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: invalid date format: %s", e.Line, e.Value)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Parse validates the header and every line before returning anything.
// Blank lines are ignored.
func Parse(r io.Reader) ([]civil.Date, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		dates      []civil.Date
		seenHeader bool
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &LineError{Line: pe.Line, Err: pe.Err}
			}
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		value := strings.TrimSpace(strings.Join(row, ","))
		if value == "" {
			continue
		}

		if !seenHeader {
			if strings.TrimPrefix(value, "\ufeff") != Header {
				return nil, ErrInvalidHeader
			}
			seenHeader = true
			continue
		}

		d, err := civil.ParseDate(value)
		if err != nil {
			return nil, &LineError{Line: line, Value: value, Err: err}
		}
		dates = append(dates, d)
	}

	if !seenHeader {
		return nil, ErrInvalidHeader
	}
	return dates, nil
}

// Export writes the header and one line per record in list order.
func Export(w io.Writer, records []drink.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{Header}); err != nil {
		return err
	}
	for _, d := range drink.Dates(records) {
		if err := cw.Write([]string{d.String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Template writes the header only.
func Template(w io.Writer) error {
	return Export(w, nil)
}
