package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gftdcojp/tickstore-verify/internal/catalog"
	"github.com/gftdcojp/tickstore-verify/internal/config"
	"github.com/gftdcojp/tickstore-verify/internal/journal"
	"github.com/gftdcojp/tickstore-verify/internal/metrics"
	"github.com/gftdcojp/tickstore-verify/internal/poll"
	"github.com/gftdcojp/tickstore-verify/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: swmr-reader [-q] [-s <seconds between poll cycles>]
    [-h <number of common streams to poll>] [-l <number of random streams to poll>]
    [-r <random seed>] [-config <path>] <seconds to test>

<seconds to test> must be specified and greater than the poll interval.

Defaults to verbose (no '-q' given), 1 second between polls ('-s 1'),
5 common streams ('-h 5'), 10 random streams ('-l 10'), and a
time-derived random seed (no '-r' given).
`)
	os.Exit(1)
}

func main() {
	flag.Usage = usage
	quiet := flag.Bool("q", false, "quiet: no per-seed verbose log file")
	pollSecs := flag.Int("s", 1, "seconds to sleep between poll cycles")
	ncommon := flag.Int("h", 5, "number of common (tier 0) streams to poll")
	nrandom := flag.Int("l", 10, "number of random streams to poll")
	seedFlag := flag.Int64("r", -1, "random seed (time-derived when omitted)")
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("swmr-reader %s\n", version)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		usage()
	}
	nseconds, err := strconv.Atoi(flag.Arg(0))
	if err != nil || nseconds <= 0 {
		usage()
	}
	if *pollSecs <= 0 || *ncommon < 0 || *nrandom < 0 {
		usage()
	}
	if *pollSecs >= nseconds {
		usage()
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.Reader.PollInterval = config.Duration(time.Duration(*pollSecs) * time.Second)
	cfg.Reader.TestDuration = config.Duration(time.Duration(nseconds) * time.Second)
	cfg.Reader.NCommon = *ncommon
	cfg.Reader.NRandom = *nrandom

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	var seed uint64
	if *seedFlag >= 0 {
		seed = uint64(*seedFlag)
	} else {
		seed = uint64(time.Now().UnixNano()) & 0xFFFFFFFF
	}

	// Always echo the seed so a failing run can be reproduced.
	fmt.Printf("swmr-reader: using random seed: %d\n", seed)

	logger, err := newLogger(cfg.Observability.Logging, *quiet, seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, seed, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("verification failed", zap.Uint64("seed", seed), zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, seed uint64, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cat, err := catalog.Generate(cfg.Reader.TierCounts)
	if err != nil {
		return fmt.Errorf("building stream catalog: %w", err)
	}

	rt := store.RecordType{Size: int(cfg.Store.RecordSize)}
	if err := rt.Validate(); err != nil {
		return fmt.Errorf("building record type: %w", err)
	}

	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		path := filepath.Join(cfg.Journal.Dir, fmt.Sprintf("swmr-reader.journal.%d.db", seed))
		jrnl, err = journal.Open(path, seed, logger.Named("journal"))
		if err != nil {
			return fmt.Errorf("opening run journal: %w", err)
		}
		defer jrnl.Close()
	}

	loop := poll.New(poll.Config{
		StoreDir: cfg.Store.Dir,
		SWMR: store.SWMRConfig{
			TickLen:           cfg.Store.TickLen,
			MaxLag:            cfg.Store.MaxLag,
			Writer:            false,
			MetaPagesReserved: cfg.Store.MetaPagesReserved,
			MetaFilePath:      cfg.Store.MetaFilePath,
			PageCacheBytes:    int64(cfg.Store.PageCacheBytes),
		},
		RecordType:   rt,
		PollInterval: cfg.Reader.PollInterval.Duration(),
		TestDuration: cfg.Reader.TestDuration.Duration(),
		NCommon:      cfg.Reader.NCommon,
		NRandom:      cfg.Reader.NRandom,
	}, cat, rand.New(rand.NewSource(int64(seed))), jrnl, logger.Named("poll"))

	logger.Info("swmr-reader started",
		zap.String("version", version),
		zap.Uint64("seed", seed),
		zap.String("store_dir", cfg.Store.Dir),
		zap.Duration("test_duration", cfg.Reader.TestDuration.Duration()),
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Observability.Metrics.Enabled {
		g.Go(func() error { return metrics.RunServer(gctx, cfg.Observability.Metrics) })
	}

	g.Go(func() error {
		defer cancel()
		return loop.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("verification complete",
		zap.Uint64("seed", seed),
		zap.Int("fill_values", loop.Fills()),
	)
	return nil
}

func newLogger(cfg config.LoggingConfig, quiet bool, seed uint64) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level.SetLevel(zap.DebugLevel)
	case "info":
		zapCfg.Level.SetLevel(zap.InfoLevel)
	case "warn":
		zapCfg.Level.SetLevel(zap.WarnLevel)
	case "error":
		zapCfg.Level.SetLevel(zap.ErrorLevel)
	}

	if quiet {
		if zapCfg.Level.Level() < zap.WarnLevel {
			zapCfg.Level.SetLevel(zap.WarnLevel)
		}
	} else {
		// Deterministic per-run log file keyed by the seed.
		zapCfg.OutputPaths = append(zapCfg.OutputPaths, fmt.Sprintf("swmr-reader.log.%d", seed))
	}

	return zapCfg.Build()
}
