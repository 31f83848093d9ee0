// tickstore ingests time-series price and event files into a per-symbol
// embedded database, aligned against a reference event series, and compacts
// every table afterwards.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtxerr/tickstore/config"
	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/logging"
	"github.com/xtxerr/tickstore/internal/pipeline"
	"github.com/xtxerr/tickstore/internal/prompt"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// CLI flags
	cfgPath := flag.String("config", "tickstore.yaml", "config file path")
	reference := flag.String("reference", "", "reference event file (overrides config)")
	window := flag.Duration("window", 0, "alignment half-width, e.g. 1m (overrides config)")
	inputDir := flag.String("input-dir", "", "directory of price files for the default table")
	askFile := flag.String("ask", "", "ask price file")
	bidFile := flag.String("bid", "", "bid price file")
	ticksFile := flag.String("ticks", "", "tick file")
	backend := flag.String("backend", "", "store backend: duckdb or sqlite (overrides config)")
	outputDir := flag.String("output-dir", "", "directory for <symbol>.db (overrides config)")
	symbol := flag.String("symbol", "", "symbol naming the database (default: from the first file)")
	skipIngest := flag.Bool("skip-ingest", false, "only compact an existing database")
	interactive := flag.Bool("interactive", false, "ask for input files on the terminal")
	exportParquet := flag.Bool("export", false, "export compacted tables to Parquet")
	reportPath := flag.String("report", "", "write the run report as JSON to this file")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	logJSON := flag.Bool("log-json", false, "log as JSON")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("tickstore", Version)
		return errors.ExitOK
	}

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !flagSet("config") {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "tickstore: %v\n", err)
			return errors.ExitConfig
		}
	}

	// CLI overrides
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logJSON {
		cfg.Log.JSON = true
	}
	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
	log := logging.Component("main")
	log.Info("tickstore starting", "version", Version)

	if *reference != "" {
		cfg.Ingest.Reference.Path = *reference
	}
	if *window > 0 {
		cfg.Ingest.Reference.Window = *window
	}
	if *inputDir != "" {
		cfg.Ingest.InputDir = *inputDir
	}
	if *askFile != "" {
		cfg.MapFile("askPrices", *askFile)
	}
	if *bidFile != "" {
		cfg.MapFile("bidPrices", *bidFile)
	}
	if *ticksFile != "" {
		cfg.MapFile("ticks", *ticksFile)
	}
	if *backend != "" {
		cfg.Store.Backend = *backend
	}
	if *outputDir != "" {
		cfg.Store.OutputDir = *outputDir
	}
	if *symbol != "" {
		cfg.Store.Symbol = *symbol
	}
	if *exportParquet {
		cfg.Export.Enabled = true
	}

	skip := *skipIngest
	noInput := len(cfg.Ingest.Files) == 0 && cfg.Ingest.InputDir == ""
	if *interactive || (noInput && !skip && prompt.Interactive()) {
		sel, err := prompt.New().Select()
		if err != nil {
			log.Error("selection failed", "error", err)
			return errors.ExitCode(err)
		}
		sel.Apply(cfg)
		skip = skip || sel.ExistingDB
	}
	cfg.Normalize()

	// Signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coordinator := pipeline.NewCoordinator(cfg)
	coordinator.SkipIngest = skip
	report, err := coordinator.Run(ctx)

	if *reportPath != "" && report != nil {
		if werr := report.WriteJSON(*reportPath); werr != nil {
			log.Error("report not written", "error", werr)
		} else {
			log.Info("report written", "path", *reportPath)
		}
	}

	if ctx.Err() != nil {
		log.Warn("interrupted")
		return errors.ExitCancelled
	}
	if err != nil {
		return errors.ExitCode(err)
	}
	return errors.ExitOK
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
