package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shpitdev/orthomap/internal/config"
	"github.com/shpitdev/orthomap/internal/ensembl"
	"github.com/shpitdev/orthomap/internal/ortholog"
	"github.com/shpitdev/orthomap/internal/pipeline"
	"github.com/shpitdev/orthomap/pkg/pipeline/redact"
)

var (
	ErrMissingPaths  = errors.New("input and output file paths are required when not resolving a single gene")
	ErrInputNotFound = errors.New("input file does not exist")
	ErrOutputExists  = errors.New("output file already exists; use --overwrite to replace it")
	ErrLookupFailed  = errors.New("lookup failed")
)

// CheckPaths refuses a batch run before any work starts.
func CheckPaths(inputPath, outputPath string, overwrite bool) error {
	inputPath = strings.TrimSpace(inputPath)
	outputPath = strings.TrimSpace(outputPath)
	if inputPath == "" || outputPath == "" {
		return ErrMissingPaths
	}
	if _, err := os.Stat(inputPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
		}
		return fmt.Errorf("stat input: %w", err)
	}
	if overwrite {
		return nil
	}
	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("%w: %s", ErrOutputExists, outputPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat output: %w", err)
	}
	return nil
}

// Runner wires configuration to a resolver and runs lookups.
type Runner struct {
	cfg      config.Config
	logger   *zap.Logger
	resolver ortholog.Resolver

	// Progress, when set, receives batch progress.
	Progress func(done, total int)
}

// NewRunner validates cfg and builds an Ensembl-backed runner.
func NewRunner(cfg config.Config, logger *zap.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := ensembl.NewClient(ensembl.ClientConfig{
		Server:         cfg.Server,
		RequestTimeout: cfg.RequestTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
		DefaultCAPath:  cfg.DefaultCAPath,
	})
	if err != nil {
		return nil, err
	}
	resolver := ensembl.NewResolver(client, logger, ensembl.ResolverOptions{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
	})
	return NewRunnerWithResolver(cfg, logger, resolver), nil
}

// NewRunnerWithResolver uses resolver instead of the Ensembl client.
func NewRunnerWithResolver(cfg config.Config, logger *zap.Logger, resolver ortholog.Resolver) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, logger: logger, resolver: resolver}
}

// RunBatch checks paths, resolves every gene in inputPath and writes outputPath.
func (r *Runner) RunBatch(ctx context.Context, inputPath, outputPath string, overwrite bool) (pipeline.Tally, error) {
	if err := CheckPaths(inputPath, outputPath, overwrite); err != nil {
		return pipeline.Tally{}, err
	}

	runID := uuid.NewString()
	log := r.logger.With(zap.String("run", runID))
	start := time.Now()
	log.Info("batch run start",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.String("server", redact.Secrets(r.cfg.Server)),
		zap.String("gene_column", r.cfg.GeneColumn),
		zap.Int("workers", r.cfg.Workers),
		zap.Int("max_attempts", r.cfg.MaxAttempts),
		zap.Duration("base_delay", r.cfg.BaseDelay),
		zap.Float64("rate_limit_rps", r.cfg.RateLimitRPS),
	)

	tally, err := pipeline.Run(ctx, inputPath, outputPath, newTracedResolver(r.resolver, log), pipeline.Options{
		GeneColumn: r.cfg.GeneColumn,
		Workers:    r.cfg.Workers,
		Progress:   r.Progress,
		Logger:     log,
	})
	if err != nil {
		log.Error("batch run failed", zap.Error(err), zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
		return tally, err
	}

	log.Info(
		fmt.Sprintf("Process completed. Orthologs not found or errors encountered for %d genes. Total errors: %d", tally.NotFound, tally.Errors),
		zap.Int("genes", tally.Genes),
		zap.Int("rows", tally.Rows),
		zap.Int("skipped", tally.Skipped),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
	)
	return tally, nil
}

// RunSingle resolves one gene and prints its records to w.
func (r *Runner) RunSingle(ctx context.Context, gene string, w io.Writer, colored bool) (ortholog.Outcome, error) {
	r.logger.Info("processing single gene", zap.String("gene", strings.TrimSpace(gene)))

	out, err := r.resolver.Lookup(ctx, gene)
	if err != nil {
		r.logger.Error("error processing the gene", zap.String("gene", gene), zap.Error(err))
		return out, err
	}
	if out.Failed {
		r.logger.Error("error processing the gene", zap.String("gene", gene))
		return out, fmt.Errorf("%w: %s", ErrLookupFailed, strings.TrimSpace(gene))
	}
	if err := PrintOutcome(w, out, colored); err != nil {
		return out, fmt.Errorf("write output: %w", err)
	}
	return out, nil
}

// PrintOutcome writes one line per record in the labelled human-readable form.
func PrintOutcome(w io.Writer, out ortholog.Outcome, colored bool) error {
	label := color.New(color.FgCyan, color.Bold)
	if colored {
		label.EnableColor()
	} else {
		label.DisableColor()
	}
	field := func(name, value string) string {
		return label.Sprint(name+":") + " " + value
	}

	for _, rec := range out.Records {
		line := strings.Join([]string{
			field("Rat Gene", rec.SourceGene),
			field(pipeline.ColumnHumanSymbol, rec.TargetSymbol),
			field(pipeline.ColumnType, rec.HomologyType),
			field(pipeline.ColumnIdentity, rec.Identity.String()),
			field(pipeline.ColumnPositivity, rec.Positivity.String()),
		}, ", ")
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
