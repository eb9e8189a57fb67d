package local

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shpitdev/orthomap/pkg/pipeline/schema"
)

const utf8BOM = "\ufeff"

// ValidateHeader reads only the header row of r and checks that it names column.
func ValidateHeader(r io.Reader, column string) error {
	_, _, err := readHeader(csv.NewReader(r), column)
	return err
}

// ReadColumnCSV reads a CSV and returns the values from column, in row order.
func ReadColumnCSV(r io.Reader, column string) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	_, idx, err := readHeader(cr, column)
	if err != nil {
		return nil, err
	}

	var values []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &schema.FormatError{Err: fmt.Errorf("read row: %w", err)}
		}
		if idx >= len(rec) {
			return nil, &schema.FormatError{Err: fmt.Errorf("row has %d columns, want at least %d", len(rec), idx+1)}
		}
		values = append(values, rec[idx])
	}
	return values, nil
}

func readHeader(cr *csv.Reader, column string) ([]string, int, error) {
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, -1, schema.ErrEmptyTable
	}
	if err != nil {
		return nil, -1, &schema.FormatError{Err: fmt.Errorf("read header: %w", err)}
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	contract := schema.TableContract{Columns: []string{column}}
	if err := contract.Require(header); err != nil {
		return nil, -1, err
	}
	return header, schema.IndexOf(header, column), nil
}

// CSVWriter writes rows incrementally, flushing after every row so partial output
// survives an interrupted run.
type CSVWriter struct {
	cw *csv.Writer
}

// NewCSVWriter writes header to w immediately and returns a writer for the rows.
func NewCSVWriter(w io.Writer, header []string) (*CSVWriter, error) {
	out := &CSVWriter{cw: csv.NewWriter(w)}
	if err := out.WriteRow(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return out, nil
}

// WriteRow writes and flushes one record.
func (w *CSVWriter) WriteRow(rec []string) error {
	if err := w.cw.Write(rec); err != nil {
		return err
	}
	w.cw.Flush()
	return w.cw.Error()
}
