package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/shpitdev/orthomap/internal/app"
	"github.com/shpitdev/orthomap/internal/config"
	"github.com/shpitdev/orthomap/internal/logging"
	"github.com/shpitdev/orthomap/internal/version"
)

type rootFlags struct {
	overwrite bool
	gene      string
	cfgPath   string
	envFile   string

	workers        int
	maxAttempts    int
	baseDelay      time.Duration
	requestTimeout time.Duration
	rateLimitRPS   float64
	server         string
	geneColumn     string
	logLevel       string
	logFormat      string
}

// RootCmd returns the orthomap command.
func RootCmd() *cobra.Command {
	var f rootFlags
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "orthomap [input.csv] [output.csv]",
		Short: "Find human orthologs for rat genes",
		Long: `orthomap resolves rat gene symbols to their human orthologs using the Ensembl REST API.

Pass an input CSV with a "Rat Gene" column and an output path to resolve a whole table, or
--gene to resolve one symbol and print the result.`,
		Example: `  orthomap genes.csv orthologs.csv
  orthomap genes.csv orthologs.csv --overwrite --workers 4
  orthomap --gene Pdx1`,
		Version:       version.Current,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{ConfigPath: f.cfgPath, EnvFile: f.envFile})
			if err != nil {
				return err
			}
			f.apply(cmd.Flags(), &cfg)

			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			runner, err := app.NewRunner(cfg, logger)
			if err != nil {
				return err
			}

			if strings.TrimSpace(f.gene) != "" {
				out := cmd.OutOrStdout()
				_, err := runner.RunSingle(cmd.Context(), f.gene, out, isTerminal(out))
				return err
			}

			var input, output string
			if len(args) > 0 {
				input = args[0]
			}
			if len(args) > 1 {
				output = args[1]
			}
			progressOut := cmd.ErrOrStderr()
			if isTerminal(progressOut) {
				runner.Progress = progressPrinter(progressOut)
			}
			if _, err := runner.RunBatch(cmd.Context(), input, output, f.overwrite); err != nil {
				logger.Error("batch run aborted", zap.Error(err))
				return err
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&f.overwrite, "overwrite", false, "Overwrite the output file if it exists")
	fl.StringVar(&f.gene, "gene", "", "Resolve a single rat gene symbol and print the result (alias: --ensembl-id)")
	fl.StringVar(&f.cfgPath, "config", "", "YAML config file")
	fl.StringVar(&f.envFile, "env-file", "", "dotenv file to load (default: .env when present)")
	fl.IntVar(&f.workers, "workers", defaults.Workers, "Concurrent lookups (env: WORKERS)")
	fl.IntVar(&f.maxAttempts, "max-attempts", defaults.MaxAttempts, "Requests per gene before giving up (env: MAX_ATTEMPTS)")
	fl.DurationVar(&f.baseDelay, "base-delay", defaults.BaseDelay, "Backoff before the second attempt, doubled after each failure (env: BASE_DELAY)")
	fl.DurationVar(&f.requestTimeout, "request-timeout", defaults.RequestTimeout, "Per-request timeout (env: REQUEST_TIMEOUT)")
	fl.Float64Var(&f.rateLimitRPS, "rate-limit-rps", defaults.RateLimitRPS, "Global request rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	fl.StringVar(&f.server, "server", defaults.Server, "Ensembl REST base URL (env: ORTHOMAP_SERVER)")
	fl.StringVar(&f.geneColumn, "gene-column", defaults.GeneColumn, "Input column holding gene symbols (env: ORTHOMAP_GENE_COLUMN)")
	fl.StringVar(&f.logLevel, "log-level", defaults.LogLevel, "debug, info, warn, error or critical (env: LOG_LEVEL)")
	fl.StringVar(&f.logFormat, "log-format", defaults.LogFormat, "console or json (env: LOG_FORMAT)")
	fl.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		switch name {
		case "ensembl-id", "ensembl_id":
			name = "gene"
		}
		return pflag.NormalizedName(name)
	})

	return cmd
}

// apply copies explicitly set flags over cfg.
func (f *rootFlags) apply(fl *pflag.FlagSet, cfg *config.Config) {
	if fl.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fl.Changed("max-attempts") {
		cfg.MaxAttempts = f.maxAttempts
	}
	if fl.Changed("base-delay") {
		cfg.BaseDelay = f.baseDelay
	}
	if fl.Changed("request-timeout") {
		cfg.RequestTimeout = f.requestTimeout
	}
	if fl.Changed("rate-limit-rps") {
		cfg.RateLimitRPS = f.rateLimitRPS
	}
	if fl.Changed("server") {
		cfg.Server = f.server
	}
	if fl.Changed("gene-column") {
		cfg.GeneColumn = f.geneColumn
	}
	if fl.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fl.Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
}

var isTerminal = func(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func progressPrinter(w io.Writer) func(done, total int) {
	return func(done, total int) {
		_, _ = fmt.Fprintf(w, "\rresolved %d/%d", done, total)
		if done == total {
			_, _ = fmt.Fprintln(w)
		}
	}
}
