// Command showwers summarises per-epoch, per-avg decoding results of one or more
// experiments into Markdown tables sorted by the summed metric of two datasets.
//
// Usage:
//
//	showwers -start-epoch 21 -end-epoch 40 -decoding-method greedy_search \
//	    -exp-names "exp_100 exp_960" -dataset "test-clean test-other"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/yfyeung/icefall-utils/internal/apigateway"
	"github.com/yfyeung/icefall-utils/internal/auth"
	"github.com/yfyeung/icefall-utils/internal/configmanagement"
	"github.com/yfyeung/icefall-utils/internal/datastore"
	"github.com/yfyeung/icefall-utils/internal/jobmanagement"
	"github.com/yfyeung/icefall-utils/internal/objectstore"
)

type options struct {
	configPath       string
	fromAccumulation bool
	serveAddr        string
}

func main() {
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("showwers: ")

	os.Exit(runMain(flag.CommandLine, os.Args[1:], os.Stdout))
}

// runMain runs one sweep and returns the process exit code: 0 on success, 1 when a
// report or a required service failed, 2 on invalid configuration. Deferred
// cleanup always runs before the caller exits.
func runMain(fs *flag.FlagSet, args []string, stdout io.Writer) int {
	cfg, opts, err := parseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		log.Printf("Invalid configuration: %v", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	svc := jobmanagement.NewSweepService(cfg, os.DirFS(cfg.ResultsRoot))
	svc.FromAccumulation = opts.fromAccumulation

	if cfg.DBDriver != "" {
		store, err := datastore.InitDB(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			log.Printf("Failed to initialize database: %v", err)
			return 1
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("Failed to close database: %v", err)
			}
		}()
		if err := store.EnsureSchema(ctx); err != nil {
			log.Printf("Failed to prepare database: %v", err)
			return 1
		}
		svc.Results = store
	}

	if cfg.Upload {
		mc, err := objectstore.InitMinioClient(ctx)
		if err != nil {
			log.Printf("Failed to initialize MinIO client: %v", err)
			return 1
		}
		svc.Reports = mc
	}

	sweep, err := svc.Run(ctx)
	if err != nil {
		log.Printf("Sweep failed: %v", err)
		return 1
	}
	if err := printRun(stdout, sweep); err != nil {
		log.Printf("Failed to print reports: %v", err)
		return 1
	}

	if opts.serveAddr != "" {
		router := apigateway.SetupRouter(svc, auth.LoadAdminToken())
		log.Printf("Starting server on %s", opts.serveAddr)
		if err := router.Run(opts.serveAddr); err != nil {
			log.Printf("Failed to start server: %v", err)
			return 1
		}
		return 0
	}

	if len(sweep.ReportErrors) > 0 {
		return 1
	}
	return 0
}

// parseFlags layers defaults, the optional -config file, SHOWWERS_* env vars and
// explicitly set flags, in that order, then validates the result.
func parseFlags(fs *flag.FlagSet, args []string) (configmanagement.SweepConfig, options, error) {
	def := configmanagement.DefaultSweepConfig()
	var opts options

	fs.StringVar(&opts.configPath, "config", "", "YAML sweep config; flags given explicitly override it")
	startEpoch := fs.Int("start-epoch", def.StartEpoch, "first epoch to report, must be greater than 1")
	endEpoch := fs.Int("end-epoch", def.EndEpoch, "last epoch to report")
	startAvg := fs.Int("start-avg", def.StartAvg, "recorded only; averages 1-20 are always reported")
	endAvg := fs.Int("end-avg", def.EndAvg, "recorded only; averages 1-20 are always reported")
	method := fs.String("decoding-method", def.DecodingMethod,
		"greedy_search, beam_search, modified_beam_search, fast_beam_search, fast_beam_search_LG, ...")
	metric := fs.String("metrics", def.Metric, "WER or PER")
	expNames := fs.String("exp-names", "exp", "space separated experiment dirs, e.g. 'exp_100 exp_960'")
	datasets := fs.String("dataset", "test-clean test-other", "two space separated datasets, e.g. 'dev test'")
	resultsRoot := fs.String("root", def.ResultsRoot, "directory holding the experiment dirs")
	outDir := fs.String("out-dir", def.OutputDir, "directory for wers_<exp>.txt and missed.txt")
	rescore := fs.Bool("rescore", false, "recompute missing summaries from recogs-*.txt dumps")
	dbDriver := fs.String("db-driver", "", "persist results with postgres or sqlite")
	dbDSN := fs.String("db-dsn", "", "database DSN; for postgres defaults to DB_* env vars")
	upload := fs.Bool("upload", false, "upload Markdown reports to MinIO (MINIO_* env vars)")
	fs.BoolVar(&opts.fromAccumulation, "from-accumulation", false, "report from existing wers_<exp>.txt instead of summary files")
	fs.StringVar(&opts.serveAddr, "serve", "", "after reporting, serve the reports over HTTP on this address, e.g. :8080")

	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: showwers [flags]")
		fmt.Fprintln(fs.Output(), "  Summarise decoding results per epoch and avg, sorted by the summed metric.")
		fmt.Fprintln(fs.Output())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return def, opts, err
	}

	cfg := def
	if opts.configPath != "" {
		loaded, err := configmanagement.LoadSweepConfigFile(opts.configPath)
		if err != nil {
			return cfg, opts, err
		}
		cfg = loaded
	}
	configmanagement.ApplyEnv(&cfg)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "start-epoch":
			cfg.StartEpoch = *startEpoch
		case "end-epoch":
			cfg.EndEpoch = *endEpoch
		case "start-avg":
			cfg.StartAvg = *startAvg
		case "end-avg":
			cfg.EndAvg = *endAvg
		case "decoding-method":
			cfg.DecodingMethod = *method
		case "metrics":
			cfg.Metric = *metric
		case "exp-names":
			cfg.ExpNames = configmanagement.SplitList(*expNames)
		case "dataset":
			cfg.Datasets = configmanagement.SplitList(*datasets)
		case "root":
			cfg.ResultsRoot = *resultsRoot
		case "out-dir":
			cfg.OutputDir = *outDir
		case "rescore":
			cfg.Rescore = *rescore
		case "db-driver":
			cfg.DBDriver = *dbDriver
		case "db-dsn":
			cfg.DBDSN = *dbDSN
		case "upload":
			cfg.Upload = *upload
		}
	})

	if cfg.DBDriver == "postgres" && cfg.DBDSN == "" {
		cfg.DBDSN = configmanagement.PostgresDSNFromEnv()
	}
	if err := cfg.Validate(); err != nil {
		return cfg, opts, err
	}
	return cfg, opts, nil
}

// printRun writes every report in experiment order. Experiments whose report
// failed are logged instead.
func printRun(w io.Writer, run *jobmanagement.SweepRun) error {
	for _, exp := range run.Config.ExpNames {
		report, ok := run.Reports[exp]
		if !ok {
			log.Printf("No report for %s: %s", exp, run.ReportErrors[exp])
			continue
		}
		if err := report.WriteMarkdown(w); err != nil {
			return err
		}
	}
	if n := len(run.Missed); n > 0 {
		log.Printf("%d lookups missed, see %s", n, filepath.Join(run.Config.OutputDir, datastore.MissedFileName))
	}
	return nil
}
