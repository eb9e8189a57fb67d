package ortholog

import (
	"context"
	"strconv"
	"strings"
)

const (
	// NotFoundSymbol marks a gene with no human ortholog in a well-formed response.
	NotFoundSymbol = "not found"
	// RetriesExceededSymbol marks a gene whose every lookup attempt failed.
	RetriesExceededSymbol = "error - retries exceeded"
)

// Percent is an optional alignment percentage. The zero value is empty.
type Percent struct {
	Value float64
	Valid bool
}

// Pct returns a valid Percent.
func Pct(v float64) Percent {
	return Percent{Value: v, Valid: true}
}

// String renders the shortest exact decimal form, or "" when empty.
func (p Percent) String() string {
	if !p.Valid {
		return ""
	}
	return strconv.FormatFloat(p.Value, 'f', -1, 64)
}

// Record is one human ortholog of a source gene, or a sentinel placeholder.
type Record struct {
	SourceGene   string
	TargetSymbol string
	HomologyType string
	Identity     Percent
	Positivity   Percent
}

// IsSentinel reports whether r stands in for a missing or failed lookup.
func (r Record) IsSentinel() bool {
	return r.TargetSymbol == NotFoundSymbol || strings.HasPrefix(r.TargetSymbol, "error")
}

// NotFound is the sentinel for a gene without human orthologs.
func NotFound(gene string) Record {
	return Record{SourceGene: gene, TargetSymbol: NotFoundSymbol}
}

// RetriesExceeded is the sentinel for a gene whose lookup attempts were exhausted.
func RetriesExceeded(gene string) Record {
	return Record{SourceGene: gene, TargetSymbol: RetriesExceededSymbol}
}

// Outcome is the result of resolving one gene.
//
// Failed is true only when every request attempt errored; a gene without orthologs is a
// successful outcome carrying the NotFound sentinel.
type Outcome struct {
	Records []Record
	Failed  bool
}

// Resolver resolves a source gene symbol to its human orthologs.
//
// A returned error means the lookup could not produce an outcome at all (for example a
// malformed response); exhausted retries are reported through Outcome.Failed instead.
type Resolver interface {
	Lookup(ctx context.Context, gene string) (Outcome, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, gene string) (Outcome, error)

func (f ResolverFunc) Lookup(ctx context.Context, gene string) (Outcome, error) {
	return f(ctx, gene)
}
