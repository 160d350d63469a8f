//go:build linux

// Command quark mounts a predictive-prefetch, pass-through FUSE filesystem
// over a backing directory, grounded on cmd/pbs_plus/main.go's flag-driven
// startup (memory.TotalMemory()-derived default budget) and
// cmd/linux_agent/main.go's signal-driven shutdown shape.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pbnjay/memory"
	"gopkg.in/yaml.v3"

	"github.com/sonroyaalmerol/quark/internal/backing"
	"github.com/sonroyaalmerol/quark/internal/cache"
	"github.com/sonroyaalmerol/quark/internal/fetch"
	"github.com/sonroyaalmerol/quark/internal/fusefs"
	"github.com/sonroyaalmerol/quark/internal/persist"
	"github.com/sonroyaalmerol/quark/internal/predictor"
	"github.com/sonroyaalmerol/quark/internal/qlog"
	"github.com/sonroyaalmerol/quark/internal/quarkfs"
)

const (
	// defaultBudgetCap and defaultBudgetFloor bound the memory-derived
	// default cache budget: at most 8 GiB, at least 4 GiB, otherwise
	// TotalMemory()/8, per the decision recorded in DESIGN.md.
	defaultBudgetCap   = 8 << 30
	defaultBudgetFloor = 4 << 30
)

// fileConfig is the optional on-disk config (-config path), merged under
// explicit flags: flags always win. No live-reload (spec.md's Non-goals
// exclude hot configuration; this is a one-shot load at startup).
type fileConfig struct {
	Budget       int64  `yaml:"budget"`
	Prefetch     *bool  `yaml:"prefetch"`
	Predictor    string `yaml:"predictor"`
	SnapshotPath string `yaml:"snapshot_path"`
}

func defaultBudget() int64 {
	total := int64(memory.TotalMemory())
	budget := total / 8
	if budget > defaultBudgetCap {
		budget = defaultBudgetCap
	}
	if budget < defaultBudgetFloor {
		budget = defaultBudgetFloor
	}
	return budget
}

func main() {
	os.Exit(run())
}

func run() int {
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	budget := flag.Int64("budget", defaultBudget(), "prefetch cache budget in bytes")
	prefetch := flag.Bool("prefetch", false, "enable predictive prefetch")
	configPath := flag.String("config", "", "optional YAML config file")
	predictorKind := flag.String("predictor", "markov", "predictor: swg, markov, or adaptive")
	snapshotPath := flag.String("snapshot", "", "optional path to persist cache index across restarts")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-budget bytes] [-prefetch] [-config path] <root> <mountpoint>\n", os.Args[0])
		flag.PrintDefaults()
	}
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}

	if *configPath != "" {
		if err := loadConfig(*configPath, budget, prefetch, predictorKind, snapshotPath); err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			return 1
		}
	}

	if flag.NArg() != 2 {
		flag.Usage()
		return 1
	}
	rootDir := flag.Arg(0)
	mountpoint := flag.Arg(1)

	log := qlog.New(os.Stderr, *debug)

	root, err := backing.NewRoot(rootDir)
	if err != nil {
		log.Error(err).WithMessage("failed to open backing root").Write()
		return 1
	}

	c := cache.New(*budget)
	worker := fetch.New(root, c, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	pred := buildPredictor(*predictorKind, func(p string) bool {
		_, err := root.Stat(p)
		return err == nil
	})

	qfs := quarkfs.New(root, c, worker, pred, log)
	qfs.SetEnabled(*prefetch)

	var store *persist.Store
	if *snapshotPath != "" {
		store, err = persist.Open(*snapshotPath, c, log, 30*time.Second)
		if err != nil {
			log.Error(err).WithMessage("failed to open snapshot store").Write()
		} else {
			if snap, ok := store.Load(); ok {
				for _, p := range snap.Residents {
					worker.Enqueue(p)
				}
			}
			store.Run()
		}
	}

	server, err := fusefs.Mount(mountpoint, filepath.Base(rootDir), root, qfs, log)
	if err != nil {
		log.Error(err).WithMessage("failed to mount").Write()
		return 1
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go runControlLoop(qfs, log)

	<-sig
	log.Info().WithMessage("shutting down").Write()

	if err := server.Unmount(); err != nil {
		log.Error(err).WithMessage("unmount failed").Write()
	}
	worker.Stop()
	if store != nil {
		if err := store.Stop(); err != nil {
			log.Error(err).WithMessage("snapshot store shutdown failed").Write()
		}
	}
	return 0
}

func buildPredictor(kind string, exists predictor.ExistsFunc) predictor.Predictor {
	switch strings.ToLower(kind) {
	case "swg":
		return predictor.NewSWG(exists)
	case "adaptive":
		return predictor.NewAdaptive(predictor.DefaultAdaptiveHistoryLength, predictor.DefaultAdaptiveLearningRate, predictor.DefaultAdaptiveDecay, exists)
	default:
		return predictor.NewMarkov(predictor.DefaultMarkovOrder, predictor.DefaultMarkovDecay, exists)
	}
}

func loadConfig(path string, budget *int64, prefetch *bool, predictorKind, snapshotPath *string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if cfg.Budget > 0 && !set["budget"] {
		*budget = cfg.Budget
	}
	if cfg.Prefetch != nil && !set["prefetch"] {
		*prefetch = *cfg.Prefetch
	}
	if cfg.Predictor != "" && !set["predictor"] {
		*predictorKind = cfg.Predictor
	}
	if cfg.SnapshotPath != "" && !set["snapshot"] {
		*snapshotPath = cfg.SnapshotPath
	}
	return nil
}

// runControlLoop is the Go analogue of quark.py's _log_cache interactive
// thread: reads "<verb> [args...]" lines from stdin and prints the
// resulting status lines.
func runControlLoop(qfs *quarkfs.FS, log *qlog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		req := quarkfs.ControlRequest{ID: uuid.New(), Verb: fields[0], Args: fields[1:]}
		resp := qfs.Control(req)
		for _, line := range resp.Lines {
			fmt.Println(line)
		}
		if resp.Exit {
			return
		}
	}
}
