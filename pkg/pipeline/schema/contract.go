package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyTable is returned when a table has no header row.
var ErrEmptyTable = errors.New("table is empty: header row required")

// MissingColumnError reports a required column absent from a header.
type MissingColumnError struct {
	Column string
	Header []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required column %q (header: %s)", e.Column, strings.Join(e.Header, ","))
}

// FormatError reports a table that cannot be parsed at all.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return "table format error: " + e.Err.Error()
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsSchemaError reports whether err is one of the schema failures above.
func IsSchemaError(err error) bool {
	if errors.Is(err, ErrEmptyTable) {
		return true
	}
	var mc *MissingColumnError
	if errors.As(err, &mc) {
		return true
	}
	var fe *FormatError
	return errors.As(err, &fe)
}

// TableContract is the logical column contract of a CSV table.
type TableContract struct {
	Columns []string
}

// Header returns a copy of the contract's columns in order.
func (c TableContract) Header() []string {
	out := make([]string, len(c.Columns))
	copy(out, c.Columns)
	return out
}

// Require checks that header names every contract column. Names match exactly after
// trimming surrounding spaces.
func (c TableContract) Require(header []string) error {
	if isBlankHeader(header) {
		return ErrEmptyTable
	}
	for _, col := range c.Columns {
		if IndexOf(header, col) < 0 {
			return &MissingColumnError{Column: col, Header: header}
		}
	}
	return nil
}

// IndexOf returns the position of column in header, or -1.
func IndexOf(header []string, column string) int {
	want := strings.TrimSpace(column)
	for i, name := range header {
		if strings.TrimSpace(name) == want {
			return i
		}
	}
	return -1
}

func isBlankHeader(header []string) bool {
	for _, name := range header {
		if strings.TrimSpace(name) != "" {
			return false
		}
	}
	return true
}
