package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/shpitdev/orthomap/internal/ortholog"
	"github.com/shpitdev/orthomap/pkg/pipeline/io/local"
	"github.com/shpitdev/orthomap/pkg/pipeline/worker"
)

type Options struct {
	// GeneColumn names the input column to resolve. Defaults to DefaultGeneColumn.
	GeneColumn string
	// Workers bounds concurrent lookups. Defaults to 10.
	Workers int
	// Progress, when set, is called with (0, total) and then after every completed gene.
	Progress func(done, total int)
	Logger   *zap.Logger
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.GeneColumn) == "" {
		o.GeneColumn = DefaultGeneColumn
	}
	if o.Workers <= 0 {
		o.Workers = 10
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Tally counts what a run wrote.
type Tally struct {
	// NotFound counts sentinel rows, failed lookups included.
	NotFound int
	// Errors counts genes whose every lookup attempt failed.
	Errors int

	Genes   int
	Rows    int
	Skipped int
}

// RowWriter receives output rows one at a time.
type RowWriter interface {
	WriteRow(rec []string) error
}

// Run resolves every gene in the input CSV and writes one output row per record.
//
// The input header is checked before the output file is created, so a schema error leaves
// no output behind. Rows are written in completion order.
func Run(ctx context.Context, inputPath, outputPath string, resolver ortholog.Resolver, opts Options) (Tally, error) {
	opts = opts.withDefaults()

	in, err := os.Open(inputPath)
	if err != nil {
		return Tally{}, fmt.Errorf("open input: %w", err)
	}
	defer func() {
		_ = in.Close()
	}()

	if err := local.ValidateHeader(in, opts.GeneColumn); err != nil {
		return Tally{}, fmt.Errorf("validate %s: %w", inputPath, err)
	}
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return Tally{}, fmt.Errorf("rewind input: %w", err)
	}
	genes, err := local.ReadColumnCSV(in, opts.GeneColumn)
	if err != nil {
		return Tally{}, fmt.Errorf("read %s: %w", inputPath, err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return Tally{}, fmt.Errorf("create output: %w", err)
	}
	w, err := local.NewCSVWriter(out, Header(opts.GeneColumn))
	if err != nil {
		_ = out.Close()
		return Tally{}, err
	}

	tally, runErr := Process(ctx, genes, w, resolver, opts)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", err)
	}
	return tally, runErr
}

// Process looks up genes on a bounded pool and writes each outcome to w as it completes.
//
// A gene whose lookup returns an error or panics is logged and skipped. Only a write
// failure stops the run.
func Process(ctx context.Context, genes []string, w RowWriter, resolver ortholog.Resolver, opts Options) (Tally, error) {
	opts = opts.withDefaults()
	log := opts.Logger

	tally := Tally{Genes: len(genes)}
	done := 0
	if opts.Progress != nil {
		opts.Progress(0, len(genes))
	}

	_, err := worker.ProcessAllWithCallback(ctx, genes, resolver.Lookup,
		func(res worker.Result[string, ortholog.Outcome]) error {
			done++
			if opts.Progress != nil {
				defer opts.Progress(done, len(genes))
			}

			if res.Err != nil {
				tally.Skipped++
				logSkipped(log, res.Input, res.Err)
				return nil
			}

			for _, rec := range res.Output.Records {
				if err := w.WriteRow(Row(rec)); err != nil {
					return fmt.Errorf("write row for %s: %w", rec.SourceGene, err)
				}
				tally.Rows++
				if rec.IsSentinel() {
					tally.NotFound++
				}
			}
			if res.Output.Failed {
				tally.Errors++
			}
			return nil
		},
		worker.Options{Workers: opts.Workers},
	)
	return tally, err
}

func logSkipped(log *zap.Logger, gene string, err error) {
	var perr *worker.PanicError
	if errors.As(err, &perr) {
		log.Error("gene task panicked; skipping",
			zap.String("gene", gene),
			zap.Any("panic", perr.Value),
			zap.ByteString("stack", perr.Stack),
		)
		return
	}
	log.Error("gene task failed; skipping", zap.String("gene", gene), zap.Error(err))
}
