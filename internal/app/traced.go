package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/orthomap/internal/ortholog"
)

// tracedResolver logs each lookup with its outcome and duration.
type tracedResolver struct {
	next   ortholog.Resolver
	logger *zap.Logger
}

func newTracedResolver(next ortholog.Resolver, logger *zap.Logger) *tracedResolver {
	return &tracedResolver{next: next, logger: logger}
}

func (t *tracedResolver) Lookup(ctx context.Context, gene string) (ortholog.Outcome, error) {
	gene = strings.TrimSpace(gene)
	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	t.logger.Debug("lookup request", zap.String("gene", gene), zap.String("deadline_in", deadlineIn))

	start := time.Now()
	out, err := t.next.Lookup(ctx, gene)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		t.logger.Debug("lookup error", zap.String("gene", gene), zap.Duration("elapsed", elapsed), zap.Error(err))
		return out, err
	}

	symbols := make([]string, 0, len(out.Records))
	for _, rec := range out.Records {
		symbols = append(symbols, rec.TargetSymbol)
	}
	t.logger.Debug("lookup response",
		zap.String("gene", gene),
		zap.Duration("elapsed", elapsed),
		zap.Bool("failed", out.Failed),
		zap.Strings("targets", symbols),
	)
	return out, nil
}
