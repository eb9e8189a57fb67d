package ensembl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/orthomap/internal/ortholog"
	"github.com/shpitdev/orthomap/pkg/pipeline/core"
	"github.com/shpitdev/orthomap/pkg/pipeline/redact"
	"github.com/shpitdev/orthomap/pkg/pipeline/retry"
)

// ErrEmptySymbol is returned for a blank gene symbol; no request is made.
var ErrEmptySymbol = errors.New("empty gene symbol")

type ResolverOptions struct {
	// MaxAttempts is the total number of requests per gene. Defaults to 3.
	MaxAttempts int
	// BaseDelay is the backoff before the second attempt. Defaults to 2s.
	BaseDelay time.Duration

	// Sleep and Rand replace the backoff clock and jitter source.
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

// Resolver looks up human orthologs of rat genes. Safe for concurrent use.
type Resolver struct {
	client *Client
	logger *zap.Logger
	policy retry.Policy
}

var _ ortholog.Resolver = (*Resolver)(nil)

func NewResolver(client *Client, logger *zap.Logger, opts ResolverOptions) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	return &Resolver{
		client: client,
		logger: logger,
		policy: retry.Policy{
			MaxAttempts: opts.MaxAttempts,
			BaseDelay:   opts.BaseDelay,
			JitterMin:   0.8,
			JitterMax:   1.2,
			Retryable:   core.Retryable,
			Sleep:       opts.Sleep,
			Rand:        opts.Rand,
		},
	}
}

// Lookup resolves gene to its human orthologs.
//
// Every request failure is retried with backoff, 400 included. When all attempts fail the
// outcome carries the retries-exceeded sentinel and Failed is set. A response that decodes
// but lacks the expected shape is not retried and is returned as an error.
func (r *Resolver) Lookup(ctx context.Context, gene string) (ortholog.Outcome, error) {
	gene = strings.TrimSpace(gene)
	if gene == "" {
		return ortholog.Outcome{}, ErrEmptySymbol
	}
	log := r.logger.With(zap.String("gene", gene))

	policy := r.policy
	policy.OnRetry = func(attempt int, _ error, delay time.Duration) {
		log.Info("retrying homology request",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay.Round(10*time.Millisecond)),
		)
	}

	records, err := retry.Value(ctx, policy, func(ctx context.Context, attempt int) ([]ortholog.Record, error) {
		resp, err := r.client.FetchHomology(ctx, gene)
		if err != nil {
			logAttemptFailure(log, err, attempt+1, policy.MaxAttempts)
			return nil, err
		}
		recs, err := HumanOrthologs(gene, resp)
		if err != nil {
			log.DPanic("unexpected homology response shape", zap.Error(err))
			return nil, &core.PermanentError{Err: err}
		}
		return recs, nil
	})

	var exhausted *retry.ExhaustedError
	switch {
	case err == nil:
	case errors.As(err, &exhausted):
		log.Error("homology lookup failed: retries exceeded",
			zap.Int("attempts", exhausted.Attempts),
			zap.String("error", redact.Secrets(exhausted.Err.Error())),
		)
		return ortholog.Outcome{
			Records: []ortholog.Record{ortholog.RetriesExceeded(gene)},
			Failed:  true,
		}, nil
	default:
		return ortholog.Outcome{}, fmt.Errorf("lookup %s: %w", gene, err)
	}

	if len(records) == 0 {
		records = []ortholog.Record{ortholog.NotFound(gene)}
	}
	return ortholog.Outcome{Records: records}, nil
}

func logAttemptFailure(log *zap.Logger, err error, attempt, attempts int) {
	var herr *HTTPError
	var terr *TransportError
	switch {
	case errors.Is(err, context.Canceled):
		log.Debug("homology request cancelled", zap.Int("attempt", attempt))
	case errors.As(err, &herr) && herr.StatusCode == http.StatusBadRequest:
		log.Warn("bad request for gene",
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
			zap.String("body", herr.Body()),
		)
	case errors.As(err, &herr):
		log.Error("http error for gene",
			zap.Int("status_code", herr.StatusCode),
			zap.String("body", herr.Body()),
			zap.Int("attempt", attempt),
		)
	case errors.As(err, &terr):
		log.Error("request exception for gene",
			zap.String("error", redact.Secrets(err.Error())),
			zap.Bool("timeout", terr.Timeout()),
			zap.Int("attempt", attempt),
		)
	default:
		log.DPanic("unexpected error for gene", zap.Error(err), zap.Int("attempt", attempt))
	}
}
