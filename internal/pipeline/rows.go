package pipeline

import (
	"strings"

	"github.com/shpitdev/orthomap/internal/ortholog"
)

// DefaultGeneColumn is the input column holding rat gene symbols.
const DefaultGeneColumn = "Rat Gene"

// Output column names after the gene column.
const (
	ColumnHumanSymbol = "Human Ortholog Gene Symbol"
	ColumnType        = "Type"
	ColumnIdentity    = "Identity (%)"
	ColumnPositivity  = "Positivity (%)"
)

// Header returns the output CSV header. The first column repeats the input gene column name.
func Header(geneColumn string) []string {
	geneColumn = strings.TrimSpace(geneColumn)
	if geneColumn == "" {
		geneColumn = DefaultGeneColumn
	}
	return []string{geneColumn, ColumnHumanSymbol, ColumnType, ColumnIdentity, ColumnPositivity}
}

// Row renders one record in Header order.
func Row(r ortholog.Record) []string {
	return []string{
		r.SourceGene,
		r.TargetSymbol,
		r.HomologyType,
		r.Identity.String(),
		r.Positivity.String(),
	}
}
